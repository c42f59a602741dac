package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/delphian/tronrelic-sub011/internal/chainfeed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// fakeAppService records lifecycle calls and optionally fails Start.
type fakeAppService struct {
	startErr error
	started  int
	closed   int
}

func (f *fakeAppService) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeAppService) Close() {
	f.closed++
}

// fakeBlockchain serves a fixed chain head.
type fakeBlockchain struct {
	head chainfeed.RawBlock
	err  error
}

func (f *fakeBlockchain) FetchLatestBlock(ctx context.Context) (chainfeed.RawBlock, error) {
	return f.head, f.err
}

func (f *fakeBlockchain) FetchBlockByNumber(ctx context.Context, number int64) (chainfeed.RawBlock, error) {
	return chainfeed.RawBlock{}, chainfeed.ErrBlockNotProduced
}

func TestStartCommand(t *testing.T) {
	t.Run("should create command with correct metadata", func(t *testing.T) {
		cmd := startCommand(&fakeAppService{})

		assert.Equal(t, "start", cmd.Name)
		assert.Empty(t, cmd.Flags)
		assert.NotNil(t, cmd.Action)
	})

	t.Run("should return error when service start fails", func(t *testing.T) {
		svc := &fakeAppService{startErr: errors.New("node unreachable")}

		root := &cli.Command{Commands: []*cli.Command{startCommand(svc)}}
		err := root.Run(t.Context(), []string{"tronrelic", "start"})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "node unreachable")
		assert.Zero(t, svc.closed)
	})
}

func TestCheckNodeCommand(t *testing.T) {
	t.Run("should print the chain head", func(t *testing.T) {
		blockchain := &fakeBlockchain{head: chainfeed.RawBlock{
			Number:       61462240,
			ID:           "0000000003a9d6e0",
			Transactions: make([]chainfeed.RawTransaction, 3),
		}}

		var out bytes.Buffer
		root := &cli.Command{
			Writer:   &out,
			Commands: []*cli.Command{checkNodeCommand(blockchain)},
		}
		require.NoError(t, root.Run(t.Context(), []string{"tronrelic", "check-node"}))

		assert.Contains(t, out.String(), "height=61462240")
		assert.Contains(t, out.String(), "id=0000000003a9d6e0")
		assert.Contains(t, out.String(), "transactions=3")
	})

	t.Run("should surface node errors", func(t *testing.T) {
		blockchain := &fakeBlockchain{err: errors.New("connection refused")}

		root := &cli.Command{Commands: []*cli.Command{checkNodeCommand(blockchain)}}
		err := root.Run(t.Context(), []string{"tronrelic", "check-node"})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}
