// Package consumer runs a caller-side poll loop over a queue.
//
// The queue itself never blocks waiting for work. A Poller pulls until the
// queue reports empty, then sleeps until the idle interval elapses or, with
// fsnotify enabled, until a file is created in the queue directory.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/snehjoshi/spoolq/internal/dedup"
	"github.com/snehjoshi/spoolq/internal/queue"
	"github.com/snehjoshi/spoolq/internal/types"
)

// Source is the part of *queue.Queue a Poller consumes.
type Source interface {
	Pull(priorities ...int) (*queue.Message, error)
	Name() string
	Directory() string
}

// Handler processes one delivered message. The message file is already gone
// when Handler runs; a returned error is logged and counted, not retried.
type Handler func(ctx context.Context, msg *queue.Message) error

// Stats is a snapshot of Poller counters.
type Stats struct {
	Delivered  int64
	Duplicates int64
	Failed     int64 // handler errors
	PullErrors int64
}

// Poller drives Pull in a loop and hands messages to a Handler.
type Poller struct {
	src        Source
	handle     Handler
	log        *slog.Logger
	interval   time.Duration
	limiter    *rate.Limiter
	watch      bool
	journal    *dedup.Journal
	priorities []int

	delivered  atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
	pullErrors atomic.Int64
}

// Option customises a Poller.
type Option func(*Poller)

// WithInterval sets how long the poller idles after the queue reports empty.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithRate caps pulls per second. A non-positive limit removes the cap.
func WithRate(limit float64, burst int) Option {
	return func(p *Poller) {
		if limit <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithFsnotify enables wake-ups on file creation in the queue directory.
func WithFsnotify(on bool) Option {
	return func(p *Poller) { p.watch = on }
}

// WithJournal records every delivered ID in j and drops messages whose ID
// was already delivered, which happens after a delete warning.
func WithJournal(j *dedup.Journal) Option {
	return func(p *Poller) { p.journal = j }
}

// WithPriorities narrows every pull to one priority or a range.
func WithPriorities(ps ...int) Option {
	return func(p *Poller) { p.priorities = append([]int(nil), ps...) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// New returns a Poller over src. It does not start polling; call Run.
func New(src Source, h Handler, opts ...Option) *Poller {
	p := &Poller{
		src:      src,
		handle:   h,
		log:      slog.Default(),
		interval: 500 * time.Millisecond,
		limiter:  rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("queue", src.Name())
	return p
}

// Stats returns the current counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Delivered:  p.delivered.Load(),
		Duplicates: p.duplicates.Load(),
		Failed:     p.failed.Load(),
		PullErrors: p.pullErrors.Load(),
	}
}

// Run polls until ctx is cancelled and then returns nil. It returns an
// error only when the directory watcher cannot be set up.
func (p *Poller) Run(ctx context.Context) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if p.watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("consumer: new watcher: %w", err)
		}
		defer w.Close()
		if err := w.Add(p.src.Directory()); err != nil {
			return fmt.Errorf("consumer: watch %s: %w", p.src.Directory(), err)
		}
		events, errs = w.Events, w.Errors
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("poller started", "dir", p.src.Directory(), "interval", p.interval, "fsnotify", p.watch)
	defer p.log.Info("poller stopped")

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}
		if p.poll(ctx) {
			continue
		}

		// Queue empty or failing: idle until something changes.
	idle:
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				break idle
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if ev.Op&fsnotify.Create != 0 {
					break idle
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				p.log.Warn("watcher error", "err", err)
			}
		}
	}
}

// poll pulls once and reports whether the loop should pull again right away.
// A pull that could not delete its file returns the same file on the next
// scan, so it idles like an empty queue.
func (p *Poller) poll(ctx context.Context) bool {
	msg, err := p.src.Pull(p.priorities...)
	if err != nil && !types.IsWarning(err) {
		p.pullErrors.Add(1)
		p.log.Warn("pull failed", "err", err)
		// A corrupt file is already removed; the next one can be tried now.
		return types.KindOf(err) == types.KindCorrupt
	}
	if msg == nil {
		return false
	}
	again := err == nil

	if p.journal != nil {
		first, jerr := p.journal.MarkDelivered(msg.ID, dedup.Entry{DeliveredAt: time.Now(), File: msg.Filename})
		switch {
		case jerr != nil:
			p.log.Warn("journal write failed, delivering anyway", "id", msg.ID, "err", jerr)
		case !first:
			p.duplicates.Add(1)
			p.log.Debug("duplicate delivery dropped", "id", msg.ID, "file", msg.Filename)
			return false
		}
	}

	if herr := p.handle(ctx, msg); herr != nil {
		p.failed.Add(1)
		p.log.Warn("handler failed", "id", msg.ID, "file", msg.Filename, "err", herr)
		return again
	}
	p.delivered.Add(1)
	return again
}
