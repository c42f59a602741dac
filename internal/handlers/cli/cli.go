package cli

import (
	"context"
	"os"

	"github.com/delphian/tronrelic-sub011/internal/app"
	"github.com/delphian/tronrelic-sub011/internal/chainfeed"

	"github.com/urfave/cli/v3"
)

// Run initializes and executes the tronrelic CLI application.
//
// It registers all available commands:
//
//   - `start`: Runs the full observer dispatch runtime (chain feed, plugins,
//     stats monitor) until interrupted.
//   - `check-node`: Fetches the chain head once and prints it, verifying node
//     connectivity.
//
// Parameters:
//   - ctx: Context used to control the lifecycle of the CLI application.
//   - svc: The application service orchestrating feed and monitor.
//   - blockchain: The TRON node client used by diagnostic commands.
func Run(ctx context.Context, svc app.Service, blockchain chainfeed.Blockchain) error {
	cmd := &cli.Command{
		EnableShellCompletion: true,
		Name:                  "tronrelic",
		Description:           "Command-line interface for running the TronRelic observer dispatch runtime.",
		Usage:                 "tronrelic [command] [flags]",
		Commands: []*cli.Command{
			startCommand(svc),
			checkNodeCommand(blockchain),
		},
	}

	return cmd.Run(ctx, os.Args)
}
