// Command chargeflow runs the charge pipeline stages from the shell.
//
//	chargeflow load data/input/charges.csv
//	chargeflow transform
//	chargeflow extract charges --format parquet --output charges.parquet
//
// Results are printed to stdout as JSON; logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/chargeflow/internal/app"
	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/spf13/cobra"
)

// cli holds the process dependencies, opened before any subcommand runs.
type cli struct {
	app *app.App
	out io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cli{out: os.Stdout}, os.Args[1:]); err != nil {
		um := core.MapError(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if um.Action != "" {
			fmt.Fprintf(os.Stderr, "  %s (%s)\n", um.Action, um.Code)
		}
		os.Exit(1)
	}
}

// run executes the command line in args and closes the app afterwards,
// including when the command fails.
func run(ctx context.Context, c *cli, args []string) error {
	root := newRootCmd(c)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, c.close())
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "chargeflow",
		Short:         "Load, transform and extract charge data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "help", "completion", cobra.ShellCompRequestCmd:
				return nil
			}
			if c.app != nil {
				return nil
			}
			app.LoadEnv()
			a, err := app.New(cmd.Context(), os.Stderr)
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}

	root.AddCommand(
		newLoadCmd(c),
		newTransformCmd(c),
		newResetCmd(c),
		newSchemaCmd(c),
		newStatsCmd(c),
		newReportCmd(c),
		newExtractCmd(c),
		newHistoryCmd(c),
	)
	return root
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// print writes v to stdout as indented JSON.
func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
