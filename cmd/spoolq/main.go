// Command spoolq pushes, pulls and inspects directory-backed queues.
//
// Usage:
//
//	spoolq [--config spoolq.yaml] push  --queue orders --dir /var/spool/orders '{"id":1}'
//	spoolq [--config spoolq.yaml] pull  --queue orders --count 10
//	spoolq [--config spoolq.yaml] watch --queue orders --metrics-addr :9090
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/spoolq/internal/config"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "spoolq: %v\n", err)
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand once the persistent
// flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "spoolq",
		Short:         "Directory-backed file-per-message queues",
		Long:          "spoolq stores every message as one file in a queue directory and dequeues them in FIFO, LIFO or priority order.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "spoolq.yaml", "path to config file (missing file means defaults)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: json or text (overrides config)")

	root.AddCommand(
		newPushCmd(a),
		newPullCmd(a),
		newSizeCmd(a),
		newStatCmd(a),
		newWatchCmd(a),
		newDLQCmd(a),
	)
	return root
}

// setup loads the configuration, applies flag overrides and installs the
// process logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	level, _ := config.ParseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	if cfg.Log.Format == "text" {
		h = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	}
	a.log = slog.New(h)
	slog.SetDefault(a.log)
	return nil
}
