package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/spoolq/internal/consumer"
	"github.com/snehjoshi/spoolq/internal/dedup"
	"github.com/snehjoshi/spoolq/internal/metrics"
	"github.com/snehjoshi/spoolq/internal/queue"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		qf          queueFlags
		prio        string
		metricsAddr string
		journalPath string
		interval    time.Duration
		noFsnotify  bool
		withMeta    bool
		limit       int64
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Consume messages continuously until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ps, err := parsePriorities(prio)
			if err != nil {
				return err
			}
			pc := a.cfg.Poll
			if cmd.Flags().Changed("interval") {
				pc.Interval = interval
			}
			if cmd.Flags().Changed("journal") {
				pc.Journal = journalPath
			}
			if noFsnotify {
				pc.UseFsnotify = false
			}
			addr := metricsAddr
			if addr == "" && a.cfg.Metrics.Enabled {
				addr = a.cfg.Metrics.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var (
				qopts []queue.Option
				reg   *metrics.Registry
			)
			if addr != "" {
				reg = metrics.New(true)
				qopts = append(qopts, queue.WithObserver(reg))
			}
			q, err := qf.open(cmd, a, qopts...)
			if err != nil {
				return err
			}

			if reg != nil {
				reg.Track(q)
				shutdown, err := serveMetrics(addr, reg)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			popts := []consumer.Option{
				consumer.WithLogger(a.log),
				consumer.WithInterval(pc.Interval),
				consumer.WithRate(pc.Rate, pc.Burst),
				consumer.WithFsnotify(pc.UseFsnotify),
				consumer.WithPriorities(ps...),
			}
			if pc.Journal != "" {
				j, err := dedup.Open(pc.Journal, time.Second)
				if err != nil {
					return err
				}
				defer j.Close()
				popts = append(popts, consumer.WithJournal(j))
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			var handled atomic.Int64
			out := cmd.OutOrStdout()
			handler := func(_ context.Context, msg *queue.Message) error {
				printMessage(out, msg, withMeta)
				if n := handled.Add(1); limit > 0 && n >= limit {
					cancel()
				}
				return nil
			}

			p := consumer.New(q, handler, popts...)
			if err := p.Run(ctx); err != nil {
				return err
			}
			s := p.Stats()
			a.log.Info("watch finished", "delivered", s.Delivered, "duplicates", s.Duplicates, "pull_errors", s.PullErrors)
			return nil
		},
	}
	qf.register(cmd)
	fl := cmd.Flags()
	fl.StringVar(&prio, "priority", "", `priority filter: "p" or "p,q"`)
	fl.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fl.StringVar(&journalPath, "journal", "", "redelivery journal path (bbolt file)")
	fl.DurationVar(&interval, "interval", 0, "idle wait between empty pulls (overrides config)")
	fl.BoolVar(&noFsnotify, "no-fsnotify", false, "disable directory watch wake-ups")
	fl.BoolVar(&withMeta, "with-meta", false, "prefix each body with id, priority and filename")
	fl.Int64Var(&limit, "max", 0, "exit after this many messages (0 = run until signalled)")
	return cmd
}

// serveMetrics starts the metrics listener and returns its shutdown func.
func serveMetrics(addr string, reg *metrics.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		slog.Info("metrics server listening", "addr", ln.Addr().String())
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server error", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-done
	}, nil
}
