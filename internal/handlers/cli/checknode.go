package cli

import (
	"context"
	"fmt"

	"github.com/delphian/tronrelic-sub011/internal/chainfeed"

	"github.com/urfave/cli/v3"
)

// checkNodeCommand returns a CLI command that fetches the chain head from the
// configured TRON node and prints it, confirming node connectivity before
// starting the runtime proper.
//
// Usage example:
//
//	tronrelic check-node
func checkNodeCommand(blockchain chainfeed.Blockchain) *cli.Command {
	return &cli.Command{
		Name:        "check-node",
		Description: "Fetches the current chain head from the configured TRON node and prints it.",
		Usage:       "Verifies node connectivity. Exits non-zero when the node is unreachable.",
		Action: func(ctx context.Context, c *cli.Command) error {
			block, err := blockchain.FetchLatestBlock(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Writer, "chain head: height=%d id=%s transactions=%d\n",
				block.Number, block.ID, len(block.Transactions))
			return nil
		},
	}
}
