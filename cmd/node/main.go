// Package main runs a replistore storage node.
//
// The node keeps files in a local directory, joins the coordinator and
// serves client uploads and downloads on its own TCP port.
//
// Example usage:
//
//	# positional form: port, coordinator port, timeout (ms), storage directory
//	node 4001 4000 1000 ./data/node1
//
//	# flag form, coordinator on another host
//	node --port 4001 --coordinator 10.0.0.5:4000 --advertise 10.0.0.7:4001 --dir /var/lib/replistore
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dreamware/replistore/internal/config"
	"github.com/dreamware/replistore/internal/node"
	"github.com/dreamware/replistore/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	logLevel    string
	port        int
	coordinator string
	advertise   string
	timeout     string
	dir         string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "node [port cport timeout_ms folder]",
		Short: "Run a replistore storage node",
		Long: "Run a replistore storage node. Positional arguments, when given, override\n" +
			"flags in order: listen port, coordinator port, timeout in milliseconds and storage directory.",
		Args:         cobra.MaximumNArgs(4),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), f, args)
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(os.Stderr, cfg.LogLevel)
			if err != nil {
				return err
			}
			log.Logger = logger

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

func (f *flags) bind(fl *pflag.FlagSet) {
	fl.StringVar(&f.configPath, "config", "", "YAML config file")
	fl.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fl.IntVar(&f.port, "port", 0, "TCP port for client transfers, 0 picks a free port")
	fl.StringVar(&f.coordinator, "coordinator", "", "coordinator host:port")
	fl.StringVar(&f.advertise, "advertise", "", "address sent to the coordinator, defaults to the listen port")
	fl.StringVar(&f.timeout, "timeout", "", "transfer timeout (duration or milliseconds)")
	fl.StringVar(&f.dir, "dir", "", "storage directory")
}

// loadConfig layers file and environment, then changed flags, then positional arguments.
func loadConfig(fl *pflag.FlagSet, f flags, args []string) (config.Node, error) {
	cfg, err := config.LoadNode(f.configPath)
	if err != nil {
		return cfg, err
	}

	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fl.Changed("port") {
		cfg.Port = f.port
	}
	if fl.Changed("coordinator") {
		cfg.Coordinator = f.coordinator
	}
	if fl.Changed("advertise") {
		cfg.Advertise = f.advertise
	}
	if fl.Changed("dir") {
		cfg.Dir = f.dir
	}
	if fl.Changed("timeout") {
		if cfg.Timeout, err = config.ParseDuration(f.timeout); err != nil {
			return cfg, fmt.Errorf("--timeout: %w", err)
		}
	}

	if err := applyArgs(&cfg, args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyArgs(cfg *config.Node, args []string) error {
	var err error
	for i, arg := range args {
		switch i {
		case 0:
			cfg.Port, err = strconv.Atoi(arg)
		case 1:
			cfg.Coordinator, err = withPort(cfg.Coordinator, arg)
		case 2:
			cfg.Timeout, err = config.ParseDuration(arg)
		case 3:
			cfg.Dir = arg
		}
		if err != nil {
			return fmt.Errorf("argument %d (%q): %w", i+1, arg, err)
		}
	}
	return nil
}

// withPort replaces the port of a host:port address.
func withPort(addr, port string) (string, error) {
	if _, err := strconv.Atoi(port); err != nil {
		return "", err
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, port), nil
}

// run serves until ctx is cancelled or the coordinator connection is lost.
func run(ctx context.Context, cfg config.Node, logger zerolog.Logger) error {
	store, err := storage.NewDiskStore(cfg.Dir)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		cfg.Port = tcp.Port
	}

	n, err := node.New(node.Config{
		Logger:       &logger,
		Store:        store,
		Coordinator:  cfg.Coordinator,
		Advertise:    cfg.AdvertiseAddr(),
		Timeout:      cfg.Timeout,
		JoinAttempts: cfg.JoinAttempts,
		JoinInterval: cfg.JoinInterval,
	})
	if err != nil {
		ln.Close()
		return err
	}

	logger.Info().Str("dir", store.Dir()).Str("coordinator", cfg.Coordinator).Msg("starting storage node")
	err = n.Serve(ctx, ln)
	if st, serr := n.Stats(); serr == nil {
		logger.Info().
			Uint64("stores", st.Ops.Stores).
			Uint64("loads", st.Ops.Loads).
			Uint64("removes", st.Ops.Removes).
			Int("files", st.Storage.Files).
			Int64("bytes", st.Storage.Bytes).
			Msg("storage node stopped")
	}
	if errors.Is(err, node.ErrCoordinatorLost) {
		logger.Error().Err(err).Msg("shutting down")
		return err
	}
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
