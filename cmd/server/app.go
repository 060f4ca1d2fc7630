package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/nickyhof/QueryGate"
	"github.com/nickyhof/QueryGate/config"
	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/db"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("QUERYGATE_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "querygate")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(baseLogger)
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		baseLogger.With("sys", "cli.root").Error("command failed", "error", err)
	}
	return QueryGate.ExitCode(err)
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "querygate-server",
		Short:         "querygate-server answers search, count, insert, update and delete queries over HTTP",
		Version:       Version,
		SilenceErrors: true,
		Example: `
  # In-memory databases, open access, port 8080
  querygate-server

  # Databases under /var/lib/querygate, settings from a configuration file
  querygate-server --port 443 --config /etc/querygate.conf --base-dir /var/lib/querygate

  # One goroutine per connection, at most 32 at a time
  querygate-server --mode perconn --threads 32
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), v, baseLogger)
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "path to the configuration file")
	flags.IntP("port", "p", 8080, "TCP port to listen on")
	flags.String("listen", "", "address to listen on (all interfaces if empty)")
	flags.Int("threads", DefaultThreads, "number of workers")
	flags.Int("queue", DefaultQueueSize, "connections waiting for a worker before the full-queue policy applies")
	flags.String("mode", "pool", "connection handling: pool (queue + workers) or perconn (goroutine per connection)")
	flags.String("full", "block", "full-queue policy: block or reject")
	flags.Duration("read-timeout", 10*time.Second, "socket read timeout (0 disables)")
	flags.Duration("write-timeout", 10*time.Second, "socket write timeout (0 disables)")
	flags.String("metrics-listen", "", "Prometheus /metrics listen address (empty disables)")
	flags.String("base-dir", "", "directory for database repositories (memory if empty)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	flags.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err)
		}
	})
	v.SetEnvPrefix("QUERYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func run(ctx context.Context, v *viper.Viper, baseLogger pslog.Logger) error {
	logger := baseLogger
	if level, ok := pslog.ParseLevel(strings.TrimSpace(v.GetString("log-level"))); ok {
		logger = logger.LogLevel(level)
	}
	cliLogger := logger.With("sys", "cli.root")

	mode, err := ParseMode(v.GetString("mode"))
	if err != nil {
		return fmt.Errorf("%w: %v", QueryGate.ErrConfig, err)
	}
	full, err := ParseFullPolicy(v.GetString("full"))
	if err != nil {
		return fmt.Errorf("%w: %v", QueryGate.ErrConfig, err)
	}

	inst, err := QueryGate.Open(QueryGate.Options{
		ConfigPath: v.GetString("config"),
		BaseDir:    v.GetString("base-dir"),
		Identity:   core.Identity{Name: "QueryGate Server", Email: "server@querygate.local"},
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if path := inst.Config.Path(); path != "" {
		cliLogger.Info("loaded config file", "path", path)
	}

	srv := NewServer(inst.Processor, Config{
		Threads:      v.GetInt("threads"),
		QueueSize:    v.GetInt("queue"),
		Mode:         mode,
		Full:         full,
		ReadTimeout:  v.GetDuration("read-timeout"),
		WriteTimeout: v.GetDuration("write-timeout"),
		Logger:       logger,
	})
	addr := net.JoinHostPort(v.GetString("listen"), strconv.Itoa(v.GetInt("port")))
	if certFile := inst.Config.First(config.CertFile); certFile != "" {
		err = srv.StartTLS(addr, certFile, inst.Config.First(config.KeyFile))
	} else {
		err = srv.Start(addr)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", QueryGate.ErrUnavailable, err)
	}
	defer srv.Stop()

	if metricsAddr := v.GetString("metrics-listen"); metricsAddr != "" {
		bound, err := serveMetrics(ctx, metricsAddr, srv.metrics, logger)
		if err != nil {
			return fmt.Errorf("%w: metrics listener: %v", QueryGate.ErrUnavailable, err)
		}
		cliLogger.Info("metrics listening", "addr", bound)
	}

	size, _ := inst.Config.Int(config.DefaultDbaseSize, db.DefaultDatabaseSize)
	cliLogger.Info("welcome to querygate",
		"version", Version,
		"pid", os.Getpid(),
		"addr", srv.Addr(),
		"base_dir", inst.BaseDir(),
		"default_dbase_size", humanize.Bytes(uint64(size)),
	)

	select {
	case <-ctx.Done():
		cliLogger.Info("shutting down")
		return nil
	case err := <-srv.Fatal():
		return fmt.Errorf("%w: %v", QueryGate.ErrSoftware, err)
	}
}
