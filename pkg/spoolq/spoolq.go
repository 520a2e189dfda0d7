// Package spoolq is the public Go API of spoolq, a directory-backed
// file-per-message queue.
//
// # Quick start
//
//	q, err := spoolq.Singleton(spoolq.Config{Name: "orders", Directory: "/var/spool/orders"})
//
//	// Publish
//	id, err := q.Push(order, 0)
//
//	// Consume
//	msg, err := q.Pull()
//	if msg != nil {
//	    var o Order
//	    err = msg.Decode(&o)
//	}
//
// # Error handling
//
// Every failure is a *Error. Match a category with errors.Is against the
// exported sentinels (ErrConfig, ErrRead, ...). Pull may return a message
// together with an ErrDelete-class error; IsWarning reports that case, and
// the message must still be processed.
//
// # Concurrency
//
// A Queue is safe for concurrent use. Any number of handles in any number of
// processes may share one directory.
package spoolq

import (
	"context"
	"time"

	"github.com/snehjoshi/spoolq/internal/config"
	"github.com/snehjoshi/spoolq/internal/consumer"
	"github.com/snehjoshi/spoolq/internal/dedup"
	"github.com/snehjoshi/spoolq/internal/queue"
	"github.com/snehjoshi/spoolq/internal/types"
)

// ─── Types ────────────────────────────────────────────────────────────────────

type (
	Queue      = queue.Queue
	Config     = queue.Config
	Message    = queue.Message
	Option     = queue.Option
	Observer   = queue.Observer
	Registry   = queue.Registry
	Discipline = types.Discipline
	Error      = types.Error
	Kind       = types.Kind
)

const (
	FIFO = types.FIFO
	LIFO = types.LIFO
	PRIO = types.PRIO

	MinPriority = types.MinPriority
	MaxPriority = types.MaxPriority
)

// ─── Errors ───────────────────────────────────────────────────────────────────

var (
	ErrConfig          = types.ErrConfig
	ErrInvalidPriority = types.ErrInvalidPriority
	ErrNamingExhausted = types.ErrNamingExhausted
	ErrWrite           = types.ErrWrite
	ErrScan            = types.ErrScan
	ErrRead            = types.ErrRead
	ErrDelete          = types.ErrDelete
	ErrCorrupt         = types.ErrCorrupt
)

// IsWarning reports whether err accompanies a successfully delivered message.
func IsWarning(err error) bool { return types.IsWarning(err) }

// ParseDiscipline parses "FIFO", "LIFO" or "PRIO" (case-insensitive).
func ParseDiscipline(s string) (Discipline, error) { return types.ParseDiscipline(s) }

// ─── Construction ─────────────────────────────────────────────────────────────

var (
	WithLogger     = queue.WithLogger
	WithObserver   = queue.WithObserver
	WithQuarantine = queue.WithQuarantine
)

// Singleton returns the process-wide handle for cfg's name and directory.
// A second call with the same key returns the first handle unchanged.
func Singleton(cfg Config, opts ...Option) (*Queue, error) { return queue.Singleton(cfg, opts...) }

// New returns a fresh handle that is not registered anywhere.
func New(cfg Config, opts ...Option) (*Queue, error) { return queue.New(cfg, opts...) }

// QPush builds a one-off handle for cfg and pushes v.
func QPush(cfg Config, v any, priority int) (string, error) { return queue.QPush(cfg, v, priority) }

// FromOptions builds a handle from an option map such as
// {"queueName": "orders", "queueType": "PRIO", "readChunkSize": 100}.
// Unknown keys are rejected.
func FromOptions(m map[string]any, opts ...Option) (*Queue, error) {
	o, err := config.ParseOptions(m)
	if err != nil {
		return nil, err
	}
	cfg, err := o.QueueConfig()
	if err != nil {
		return nil, err
	}
	return queue.Singleton(cfg, opts...)
}

// ─── Polling ──────────────────────────────────────────────────────────────────

type (
	Handler      = consumer.Handler
	Poller       = consumer.Poller
	PollerOption = consumer.Option
	Journal      = dedup.Journal
)

var (
	PollInterval   = consumer.WithInterval
	PollRate       = consumer.WithRate
	PollFsnotify   = consumer.WithFsnotify
	PollJournal    = consumer.WithJournal
	PollPriorities = consumer.WithPriorities
)

// OpenJournal opens the delivered-ID journal used with PollJournal.
func OpenJournal(path string) (*Journal, error) { return dedup.Open(path, time.Second) }

// Consume polls q, calling h for every message, until ctx is cancelled.
func Consume(ctx context.Context, q *Queue, h Handler, opts ...PollerOption) error {
	return consumer.New(q, h, opts...).Run(ctx)
}
