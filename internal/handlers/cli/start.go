package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/delphian/tronrelic-sub011/internal/app"

	"github.com/urfave/cli/v3"
)

// startCommand returns the CLI command that runs the full observer dispatch
// runtime: chain ingestion, transaction fan-out to registered observers, and
// statistics monitoring.
//
// Usage example:
//
//	tronrelic start
//
// The process runs indefinitely until it receives an interrupt (SIGINT or
// SIGTERM); shutdown stops ingestion first and then drains observer queues.
func startCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "start",
		Description: "Starts the observer dispatch runtime: chain feed, plugin observers, and stats monitor.",
		Usage:       "Initializes and runs the full runtime. Terminates gracefully on Ctrl+C or termination signals.",
		Action: func(ctx context.Context, c *cli.Command) error {
			quit := make(chan os.Signal, 1)
			defer close(quit)

			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Close()

			<-quit
			return nil
		},
	}
}
