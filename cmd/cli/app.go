package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/nickyhof/QueryGate"
	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/query"
)

// DefaultTimeout bounds one CGI or command line request.
const DefaultTimeout = 2 * time.Second

// localIP is the peer address of a command line caller.
const localIP = "127.0.0.1"

var errQuery = errors.New("query failed")

func submain(ctx context.Context, args []string) int {
	logger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("QUERYGATE_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "querygate")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	if os.Getenv("GATEWAY_INTERFACE") != "" {
		err = serveCGI(ctx, cgiSettings(), logger)
	} else {
		cmd := newRootCommand(logger)
		cmd.SetArgs(args)
		err = cmd.ExecuteContext(ctx)
	}
	if err != nil && !errors.Is(err, errQuery) {
		logger.With("sys", "cli.root").Error("command failed", "error", err)
	}
	return QueryGate.ExitCode(err)
}

// settings are the values shared by CGI and command line runs.
type settings struct {
	ConfigPath string
	BaseDir    string
	Timeout    time.Duration
	LogLevel   string
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "querygate [flags] QUERY",
		Short: "querygate runs one query against the local databases",
		Long: `querygate runs one query and prints the answer on stdout.

When started by a web server with GATEWAY_INTERFACE set it serves the
request as a CGI program instead, reading QUERY_STRING and the request
body the usual way. The configuration file is then taken from
QUERYGATE_CONFIG.`,
		Version:       Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		Example: `
  # Count the records of database 1000
  querygate 'op=count&db=1000'

  # Insert a record read from stdin
  echo '[5,"x"]' | querygate --data - 'op=insert&db=1000'

  # CSV output with record ids
  querygate --config /etc/querygate.conf 'op=search&db=1000&format=csv&showid=yes'
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			cmd.SilenceUsage = true
			s := settings{
				ConfigPath: v.GetString("config"),
				BaseDir:    v.GetString("base-dir"),
				Timeout:    v.GetDuration("timeout"),
				LogLevel:   v.GetString("log-level"),
			}
			return runQuery(cmd.Context(), s, oneShot{
				query: args[0],
				data:  v.GetString("data"),
				token: v.GetString("token"),
				in:    cmd.InOrStdin(),
				out:   cmd.OutOrStdout(),
			}, baseLogger)
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "path to the configuration file")
	flags.String("base-dir", "", "directory for database repositories (memory if empty)")
	flags.StringP("data", "d", "", "JSON input for insert and update, or - to read it from stdin")
	flags.String("token", "", "access token")
	flags.Duration("timeout", DefaultTimeout, "maximum time for the query")
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

type oneShot struct {
	query string
	data  string
	token string
	in    io.Reader
	out   io.Writer
}

func openInstance(s settings, baseLogger pslog.Logger) (*QueryGate.Instance, error) {
	logger := baseLogger
	if level, ok := pslog.ParseLevel(strings.TrimSpace(s.LogLevel)); ok {
		logger = logger.LogLevel(level)
	}
	return QueryGate.Open(QueryGate.Options{
		ConfigPath: s.ConfigPath,
		BaseDir:    s.BaseDir,
		Identity:   core.Identity{Name: "QueryGate CLI", Email: "cli@querygate.local"},
		Logger:     logger,
	})
}

func runQuery(ctx context.Context, s settings, q oneShot, baseLogger pslog.Logger) error {
	inst, err := openInstance(s, baseLogger)
	if err != nil {
		return err
	}

	req := query.Request{Method: "GET", Query: q.query, IP: localIP, Token: q.token}
	if q.data != "" {
		body := []byte(q.data)
		if q.data == "-" {
			if body, err = io.ReadAll(io.LimitReader(q.in, query.MaxBodyLen+1)); err != nil {
				return fmt.Errorf("%w: reading stdin: %v", QueryGate.ErrNoInput, err)
			}
		}
		req.Method = "POST"
		req.ContentType = "application/json"
		req.Body = body
	}

	slot := query.NewSlot(0)
	slot.CGI = true
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(s.Timeout))
	defer cancel()
	resp := inst.Process(ctx, slot, req)

	if _, err := fmt.Fprintf(q.out, "%s\n", resp.Body); err != nil {
		return err
	}
	return responseError(resp)
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// responseError turns a failed response into the error that selects the
// exit code. The error payload itself has already been written.
func responseError(resp query.Response) error {
	var qerr *query.Error
	if !errors.As(resp.Err, &qerr) {
		return resp.Err
	}
	switch {
	case qerr.Severity == query.SeverityProcess:
		return fmt.Errorf("%w: %s", QueryGate.ErrSoftware, qerr.Msg)
	case qerr.Msg == query.MsgTimeout, qerr.Msg == query.MsgLocked:
		return fmt.Errorf("%w: %s", QueryGate.ErrTempFail, qerr.Msg)
	}
	return fmt.Errorf("%w: %s", errQuery, qerr.Msg)
}
