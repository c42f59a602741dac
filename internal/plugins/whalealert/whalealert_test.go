package whalealert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/delphian/tronrelic-sub011/internal/dispatch"
	"github.com/delphian/tronrelic-sub011/internal/plugin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// memoryCache is an in-memory plugin.Cache recording stored TTLs.
type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.data[key]
	if !ok {
		return "", plugin.ErrCacheMiss
	}
	return value, nil
}

func (c *memoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

type harness struct {
	registry *dispatch.Registry
	cache    *memoryCache
	logs     *observer.ObservedLogs
}

// setup initializes the plugin against a real registry and an observed logger.
func setup(t *testing.T, minAmountTRX float64) *harness {
	t.Helper()

	core, logs := observer.New(zap.InfoLevel)
	h := &harness{
		registry: dispatch.NewRegistry(),
		cache:    newMemoryCache(),
		logs:     logs,
	}

	pctx := &plugin.Context{
		Registry: h.registry,
		Cache:    h.cache,
		Logger:   zap.New(core).Sugar(),
	}
	require.NoError(t, New(minAmountTRX).Init(t.Context(), pctx))
	return h
}

func (h *harness) notify(ctx context.Context, txID, contractType string, amountTRX float64) {
	h.registry.NotifyTransaction(ctx, &dispatch.Transaction{
		Payload: dispatch.TransactionPayload{
			TxID:         txID,
			ContractType: contractType,
			AmountTRX:    amountTRX,
		},
	})
}

func (h *harness) alerts() []observer.LoggedEntry {
	return h.logs.FilterMessage("whale movement detected").All()
}

func TestPlugin_Init(t *testing.T) {
	t.Run("subscribes one observer to transfers and delegations", func(t *testing.T) {
		h := setup(t, 100_000)

		assert.Equal(t, map[string]int{
			dispatch.ContractTransfer:         1,
			dispatch.ContractDelegateResource: 1,
		}, h.registry.SubscriptionStats())
		assert.Len(t, h.registry.AllObserverStats(), 1)
	})
}

func TestPlugin_Alerting(t *testing.T) {
	t.Run("alerts on transactions at or above the minimum", func(t *testing.T) {
		h := setup(t, 100_000)

		h.notify(t.Context(), "tx-big", dispatch.ContractTransfer, 250_000)
		h.notify(t.Context(), "tx-exact", dispatch.ContractTransfer, 100_000)

		require.Eventually(t, func() bool {
			return len(h.alerts()) == 2
		}, time.Second, time.Millisecond)
	})

	t.Run("ignores transactions below the minimum", func(t *testing.T) {
		h := setup(t, 100_000)

		h.notify(t.Context(), "tx-small", dispatch.ContractTransfer, 99_999)

		require.Eventually(t, func() bool {
			return h.registry.AggregateStats().TotalProcessed == 1
		}, time.Second, time.Millisecond)

		assert.Empty(t, h.alerts())
		assert.Empty(t, h.cache.data)
	})

	t.Run("large delegations alert too", func(t *testing.T) {
		h := setup(t, 100_000)

		h.notify(t.Context(), "tx-delegate", dispatch.ContractDelegateResource, 500_000)

		require.Eventually(t, func() bool {
			return len(h.alerts()) == 1
		}, time.Second, time.Millisecond)
	})

	t.Run("an already-alerted transaction never alerts twice", func(t *testing.T) {
		h := setup(t, 100_000)

		h.notify(t.Context(), "tx-repeat", dispatch.ContractTransfer, 250_000)
		require.Eventually(t, func() bool {
			return len(h.alerts()) == 1
		}, time.Second, time.Millisecond)

		h.notify(t.Context(), "tx-repeat", dispatch.ContractTransfer, 250_000)
		require.Eventually(t, func() bool {
			return h.registry.AggregateStats().TotalProcessed == 2
		}, time.Second, time.Millisecond)

		assert.Len(t, h.alerts(), 1)
	})

	t.Run("the dedupe mark is stored with a bounded ttl", func(t *testing.T) {
		h := setup(t, 100_000)

		h.notify(t.Context(), "tx-ttl", dispatch.ContractTransfer, 250_000)
		require.Eventually(t, func() bool {
			return len(h.alerts()) == 1
		}, time.Second, time.Millisecond)

		h.cache.mu.Lock()
		defer h.cache.mu.Unlock()
		assert.Equal(t, dedupeTTL, h.cache.ttls[dedupeKey("tx-ttl")])
	})
}
