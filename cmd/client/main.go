// Package main is a command-line client for a replistore cluster.
//
// Example usage:
//
//	client store report.pdf ./report.pdf
//	client load report.pdf --out ./copy.pdf
//	client list
//	client remove report.pdf
//	client --coordinator 10.0.0.5:4000 list
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreamware/replistore/internal/client"
	"github.com/dreamware/replistore/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	coordinator string
	timeout     string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:          "client",
		Short:        "Store, load, list and remove files in a replistore cluster",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.coordinator, "coordinator", "127.0.0.1:4000", "coordinator host:port")
	pf.StringVar(&opts.timeout, "timeout", "5s", "per-request timeout (duration or milliseconds)")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newStoreCmd(&opts),
		newLoadCmd(&opts),
		newRemoveCmd(&opts),
		newListCmd(&opts),
	)
	return root
}

// withClient dials the coordinator, runs fn and closes the connection.
func withClient(cmd *cobra.Command, opts *options, fn func(ctx context.Context, c *client.Client) error) error {
	timeout, err := config.ParseDuration(opts.timeout)
	if err != nil {
		return fmt.Errorf("--timeout: %w", err)
	}
	logger, err := config.NewLogger(cmd.ErrOrStderr(), opts.logLevel)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := client.Dial(ctx, opts.coordinator, client.Options{Logger: &logger, Timeout: timeout})
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func newStoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "store <name> <file>",
		Short: "Upload a local file under name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				if err := c.Store(ctx, args[0], data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%d bytes)\n", args[0], len(data))
				return nil
			})
		},
	}
}

func newLoadCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "load <name>",
		Short: "Download a file to --out or standard output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				data, err := c.Load(ctx, args[0])
				if err != nil {
					return err
				}
				if out == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				return os.WriteFile(out, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this path instead of standard output")
	return cmd
}

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a file from every replica",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				if err := c.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				names, err := c.List(ctx)
				if err != nil {
					return err
				}
				return printNames(cmd.OutOrStdout(), names)
			})
		},
	}
}

func printNames(w io.Writer, names []string) error {
	for _, name := range names {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}
