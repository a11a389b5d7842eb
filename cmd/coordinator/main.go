// Package main runs the replistore coordinator.
//
// The coordinator accepts storage nodes and clients on one TCP port and
// optionally serves an admin HTTP endpoint with health, membership, file
// table and Prometheus metrics.
//
// Example usage:
//
//	# positional form: port, replication factor, timeout (ms), rebalance period (ms)
//	coordinator 4000 3 1000 30000
//
//	# flag form with admin endpoint
//	coordinator --port 4000 --replication 3 --timeout 1s --admin-addr :9090
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dreamware/replistore/internal/config"
	"github.com/dreamware/replistore/internal/coordinator"
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
	replication int
	timeout     string
	rebalance   string
	adminAddr   string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "coordinator [cport R timeout_ms rebalance_ms]",
		Short: "Run the replistore coordinator",
		Long: "Run the replistore coordinator. Positional arguments, when given, override\n" +
			"flags in order: port, replication factor, timeout and rebalance period in milliseconds.",
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
	fl.IntVar(&f.port, "port", 0, "TCP port for nodes and clients")
	fl.IntVar(&f.replication, "replication", 0, "replicas per file")
	fl.StringVar(&f.timeout, "timeout", "", "acknowledgment timeout (duration or milliseconds)")
	fl.StringVar(&f.rebalance, "rebalance", "", "rebalance period (duration or milliseconds, 0 disables)")
	fl.StringVar(&f.adminAddr, "admin-addr", "", "admin HTTP listen address, empty disables")
}

// loadConfig layers file and environment, then changed flags, then positional arguments.
func loadConfig(fl *pflag.FlagSet, f flags, args []string) (config.Coordinator, error) {
	cfg, err := config.LoadCoordinator(f.configPath)
	if err != nil {
		return cfg, err
	}

	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fl.Changed("port") {
		cfg.Port = f.port
	}
	if fl.Changed("replication") {
		cfg.ReplicationFactor = f.replication
	}
	if fl.Changed("admin-addr") {
		cfg.AdminAddr = f.adminAddr
	}
	if fl.Changed("timeout") {
		if cfg.Timeout, err = config.ParseDuration(f.timeout); err != nil {
			return cfg, fmt.Errorf("--timeout: %w", err)
		}
	}
	if fl.Changed("rebalance") {
		if cfg.RebalancePeriod, err = config.ParseDuration(f.rebalance); err != nil {
			return cfg, fmt.Errorf("--rebalance: %w", err)
		}
	}

	if err := applyArgs(&cfg, args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyArgs(cfg *config.Coordinator, args []string) error {
	var err error
	for i, arg := range args {
		switch i {
		case 0:
			cfg.Port, err = strconv.Atoi(arg)
		case 1:
			cfg.ReplicationFactor, err = strconv.Atoi(arg)
		case 2:
			cfg.Timeout, err = config.ParseDuration(arg)
		case 3:
			cfg.RebalancePeriod, err = config.ParseDuration(arg)
		}
		if err != nil {
			return fmt.Errorf("argument %d (%q): %w", i+1, arg, err)
		}
	}
	return nil
}

// run serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Coordinator, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	coord, err := coordinator.New(coordinator.Config{
		Logger:            &logger,
		Registerer:        reg,
		ReplicationFactor: cfg.ReplicationFactor,
		Timeout:           cfg.Timeout,
		RebalancePeriod:   cfg.RebalancePeriod,
		ClientRate:        cfg.ClientRate,
		ClientBurst:       cfg.ClientBurst,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if cfg.AdminAddr != "" {
		adminSrv := &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           newAdminMux(coord, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.AdminAddr).Msg("admin endpoint listening")
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("admin endpoint failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = adminSrv.Shutdown(shutdownCtx)
		}()
	}

	err = coord.Serve(ctx, ln)
	logger.Info().Msg("coordinator stopped")
	return err
}
