package queue

import (
	"log/slog"

	"github.com/snehjoshi/spoolq/internal/naming"
	"github.com/snehjoshi/spoolq/internal/node"
	"github.com/snehjoshi/spoolq/internal/storage"
	"github.com/snehjoshi/spoolq/internal/types"
)

// Observer receives queue events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Pushed(queue string)
	Pulled(queue string)
	Scanned(queue string, files int)
	Vanished(queue string)
	Corrupt(queue string)
	Failed(queue string, kind types.Kind)
}

// Quarantine stores message content that could not be decoded.
type Quarantine interface {
	Quarantine(queue, filename string, content []byte, cause error) error
}

type nopObserver struct{}

func (nopObserver) Pushed(string)             {}
func (nopObserver) Pulled(string)             {}
func (nopObserver) Scanned(string, int)       {}
func (nopObserver) Vanished(string)           {}
func (nopObserver) Corrupt(string)            {}
func (nopObserver) Failed(string, types.Kind) {}

// Option customises a Queue at construction.
type Option func(*Queue)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithObserver registers an Observer, e.g. *metrics.Registry.
func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.obs = o
		}
	}
}

// WithCodec replaces the filename codec (clock, pid, serial).
func WithCodec(c *naming.Codec) Option {
	return func(q *Queue) {
		if c != nil {
			q.names = c
		}
	}
}

// WithSpool replaces the local file store. The directory of a queue built
// with a custom spool cannot be changed afterwards.
func WithSpool(s storage.Spool) Option {
	return func(q *Queue) { q.custom = s }
}

// WithQuarantine overrides the quarantine built from Config.DeadLetterDir.
func WithQuarantine(qr Quarantine) Option {
	return func(q *Queue) { q.quarantine = qr }
}

// WithIdentity overrides the producer identity written into envelopes.
func WithIdentity(id node.Identity) Option {
	return func(q *Queue) { q.ident = id }
}
