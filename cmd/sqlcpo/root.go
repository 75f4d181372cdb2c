// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "sqlcpo"

// config is the configuration shared by all commands. It is read from the
// flags, SQLCPO_* environment variables and .env files, in that order of
// precedence.
type config struct {
	Driver   string
	DSN      string
	DataDir  string
	Address  string
	Cluster  []string
	LogLevel slog.Level
	Capacity int
	Format   string
	Metrics  bool
}

// env holds what a command needs to run.
type env struct {
	cfg     config
	out     io.Writer
	errOut  io.Writer
	logger  *slog.Logger
	metrics *metrics.Set
}

// newRootCmd returns the sqlcpo command. Output goes to out, logs and
// metrics to errOut.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	v := viper.New()
	e := &env{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "sqlcpo",
		Short: "compile and run sqlcpo request files",
		Long: `sqlcpo compiles YAML request files into parameterized SQL and runs them.

The configuration can be set with flags or with environment variables of the
form SQLCPO_<FLAG> (e.g. SQLCPO_LOG_LEVEL=debug). Variables are also read from
.env and .env.local in the working directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.processConfig(v, cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("driver", "sqlite3", wrapString("database driver (sqlite3, dqlite)"))
	flags.String("dsn", "file::memory:", wrapString("data source name for sqlite3, or the database name for dqlite"))
	flags.String("data-dir", "", wrapString("(dqlite) directory holding the node state"))
	flags.String("address", "", wrapString("(dqlite) address the node listens on, e.g. 127.0.0.1:9001"))
	flags.StringSlice("cluster", nil, wrapString("(dqlite) addresses of existing cluster members to join"))
	flags.String("log-level", "info", wrapString("level at which logs are written (debug, info, warn, error)"))
	flags.Int("capacity", 64, wrapString("number of rows buffered between the query and the output"))
	flags.String("format", "yaml", wrapString("output format (yaml, msgpack)"))
	flags.Bool("metrics", false, wrapString("write metrics in Prometheus text format to stderr on exit"))

	root.AddCommand(newCompileCmd(e), newQueryCmd(e), newExecCmd(e))
	return root
}

// processConfig loads the environment, binds the flags and checks the
// resulting configuration.
func (e *env) processConfig(v *viper.Viper, cmd *cobra.Command) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg := config{
		Driver:   v.GetString("driver"),
		DSN:      v.GetString("dsn"),
		DataDir:  v.GetString("data-dir"),
		Address:  v.GetString("address"),
		Cluster:  v.GetStringSlice("cluster"),
		Capacity: v.GetInt("capacity"),
		Format:   v.GetString("format"),
		Metrics:  v.GetBool("metrics"),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level %q", v.GetString("log-level"))
	}
	switch cfg.Driver {
	case "sqlite3", "dqlite":
	default:
		return fmt.Errorf("invalid driver %q (expected one of: sqlite3, dqlite)", cfg.Driver)
	}
	switch cfg.Format {
	case "yaml", "msgpack":
	default:
		return fmt.Errorf("invalid format %q (expected one of: yaml, msgpack)", cfg.Format)
	}
	if cfg.Capacity < 1 {
		return fmt.Errorf("invalid capacity %d", cfg.Capacity)
	}

	e.cfg = cfg
	e.logger = slog.New(slog.NewTextHandler(e.errOut, &slog.HandlerOptions{Level: cfg.LogLevel}))
	e.metrics = metrics.NewSet()
	return nil
}

// writeMetrics writes the metrics of the run if they were asked for.
func (e *env) writeMetrics() {
	if e.cfg.Metrics {
		e.metrics.WritePrometheus(e.errOut)
	}
}

// wrapString wraps help text at 50 characters.
func wrapString(text string) string {
	const wrap = 50
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
