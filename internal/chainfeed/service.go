package chainfeed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/delphian/tronrelic-sub011/internal/dispatch"
	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"
	"github.com/delphian/tronrelic-sub011/internal/pkg/resilience/retry"
	"github.com/delphian/tronrelic-sub011/internal/pkg/x/chflow"
)

// ErrServiceAlreadyStarted is returned if Start is called more than once.
var ErrServiceAlreadyStarted = errors.New("service already started")

const (
	// blockChannelBufferSize bounds the handoff between the poller and the
	// dispatcher stage; it only needs to absorb short dispatch hiccups.
	blockChannelBufferSize = 8

	// defaultPollInterval matches TRON's block production cadence.
	defaultPollInterval = 3 * time.Second
)

// Service is the chainfeed lifecycle entrypoint.
type Service interface {
	// Start launches the polling and dispatching stages in the background.
	// Returns ErrServiceAlreadyStarted if called more than once.
	Start(ctx context.Context) error

	// Close stops both stages. It is safe to call Close even if the service
	// was never started.
	Close()
}

type closeFunc func()

type service struct {
	mu        sync.Mutex
	isStarted bool
	closeFunc closeFunc

	blockchain        Blockchain
	dispatcher        Dispatcher
	checkpointStorage CheckpointStorage
	priceSource       PriceSource
	thresholds        dispatch.Thresholds
	pollInterval      time.Duration
	retry             retry.Retry
}

var _ Service = (*service)(nil)

// Start launches the two feed stages: a poller that follows the chain head
// (resuming from the checkpoint when one exists) and a dispatcher that
// enriches each block and fans it out through the registry.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)

	blockCh := make(chan RawBlock, blockChannelBufferSize)
	s.startBlockPoller(ctx, blockCh)
	s.startBlockDispatcher(ctx, blockCh)

	s.closeFunc = closeFunc(cancel)
	s.isStarted = true
	return nil
}

// Close cancels both stages. In-flight observer drains are not this service's
// concern; the registry owns those.
func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeFunc != nil {
		s.closeFunc()
	}
	s.closeFunc = nil
	s.isStarted = false
}

// startingHeight decides where the poller begins: one past the checkpoint when
// one exists, or 0 meaning "start from the chain head".
func (s *service) startingHeight(ctx context.Context) int64 {
	height, err := s.checkpointStorage.LoadLatestCheckpoint(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoCheckpointFound) {
			logger.Error(ctx, "failed to load chainfeed checkpoint, starting from chain head",
				"error", err,
			)
		}
		return 0
	}
	return height + 1
}

// fetchBlock retrieves the block at height, or the chain head when height is
// 0, applying the configured retry policy when one is set.
func (s *service) fetchBlock(ctx context.Context, height int64) (RawBlock, error) {
	fetch := func() (RawBlock, error) {
		if height == 0 {
			return s.blockchain.FetchLatestBlock(ctx)
		}
		return s.blockchain.FetchBlockByNumber(ctx, height)
	}

	if s.retry == nil {
		return fetch()
	}

	var (
		block       RawBlock
		notProduced bool
	)
	err := s.retry.Execute(ctx, func() error {
		var fetchErr error
		block, fetchErr = fetch()

		// A block that simply does not exist yet is not worth retrying.
		if errors.Is(fetchErr, ErrBlockNotProduced) {
			notProduced = true
			return nil
		}

		notProduced = false
		return fetchErr
	})
	if err == nil && notProduced {
		return block, ErrBlockNotProduced
	}
	return block, err
}

// pollBlocks walks the chain one height at a time and sends each fetched block
// to blockCh. It catches up as fast as the node allows and falls back to the
// poll interval once it reaches the head. The channel is closed when the
// poller exits.
func (s *service) pollBlocks(ctx context.Context, blockCh chan<- RawBlock) {
	defer close(blockCh)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	next := s.startingHeight(ctx)
	for {
		block, err := s.fetchBlock(ctx, next)
		if err != nil {
			if !errors.Is(err, ErrBlockNotProduced) {
				logger.Error(ctx, "failed to fetch block",
					"block.height", next,
					"error", err,
				)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		if ok := chflow.Send(ctx, blockCh, block); !ok {
			return
		}
		next = block.Number + 1
	}
}

// startBlockPoller launches pollBlocks in a background goroutine.
func (s *service) startBlockPoller(ctx context.Context, blockCh chan<- RawBlock) {
	go s.pollBlocks(ctx, blockCh)
}

// dispatchBlocks consumes fetched blocks, fans each one out, and persists the
// checkpoint afterwards. A checkpoint failure is logged but never interrupts
// dispatch; at worst the block is re-dispatched after a restart.
func (s *service) dispatchBlocks(ctx context.Context, blockCh <-chan RawBlock) {
	for {
		block, ok := chflow.Receive(ctx, blockCh)
		if !ok {
			return
		}

		s.dispatchBlock(ctx, block)

		if err := s.checkpointStorage.SaveCheckpoint(ctx, block.Number); err != nil {
			logger.Error(ctx, "failed to save chainfeed checkpoint",
				"block.height", block.Number,
				"error", err,
			)
		}
	}
}

// startBlockDispatcher launches dispatchBlocks in a background goroutine.
func (s *service) startBlockDispatcher(ctx context.Context, blockCh <-chan RawBlock) {
	go s.dispatchBlocks(ctx, blockCh)
}

// config holds the optional collaborators and settings for the feed.
type config struct {
	checkpointStorage CheckpointStorage
	priceSource       PriceSource
	thresholds        dispatch.Thresholds
	pollInterval      time.Duration
	retry             retry.Retry
}

// Option configures the chainfeed service at construction time.
type Option func(*config)

// New creates a chainfeed service that reads blocks from blockchain and drives
// dispatcher. Without options the feed starts at the chain head, keeps no
// checkpoint, enriches without USD amounts, uses zero-valued category
// thresholds, polls every 3 seconds, and does not retry failed fetches.
func New(blockchain Blockchain, dispatcher Dispatcher, opts ...Option) *service {
	cfg := config{
		checkpointStorage: nopCheckpoint{},
		priceSource:       nopPriceSource{},
		pollInterval:      defaultPollInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		blockchain:        blockchain,
		dispatcher:        dispatcher,
		checkpointStorage: cfg.checkpointStorage,
		priceSource:       cfg.priceSource,
		thresholds:        cfg.thresholds,
		pollInterval:      cfg.pollInterval,
		retry:             cfg.retry,
	}
}

// WithCheckpointStorage persists dispatch progress so a restarted feed resumes
// where it left off instead of jumping to the chain head.
func WithCheckpointStorage(cs CheckpointStorage) Option {
	return func(c *config) {
		c.checkpointStorage = cs
	}
}

// WithPriceSource enables USD enrichment of payload amounts.
func WithPriceSource(ps PriceSource) Option {
	return func(c *config) {
		c.priceSource = ps
	}
}

// WithThresholds sets the category thresholds used when classifying
// transactions during enrichment.
func WithThresholds(t dispatch.Thresholds) Option {
	return func(c *config) {
		c.thresholds = t
	}
}

// WithPollInterval overrides how long the poller waits when the chain head has
// been reached or a fetch failed.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithRetry applies a retry policy to block fetches.
func WithRetry(r retry.Retry) Option {
	return func(c *config) {
		c.retry = r
	}
}
