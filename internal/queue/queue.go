// Package queue implements the spoolq queue handle: push, pull and size
// operations over one directory of message files.
//
// A Queue keeps no message state in memory apart from its scan window (the
// filenames captured by the last directory listing). Every message lives in
// its own file; the filename encodes the dequeue order, so a sorted listing
// of the directory is the queue. Any number of handles in any number of
// processes may operate on the same directory.
package queue

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/snehjoshi/spoolq/internal/dlq"
	"github.com/snehjoshi/spoolq/internal/envelope"
	"github.com/snehjoshi/spoolq/internal/naming"
	"github.com/snehjoshi/spoolq/internal/node"
	"github.com/snehjoshi/spoolq/internal/storage"
	"github.com/snehjoshi/spoolq/internal/storage/local"
	"github.com/snehjoshi/spoolq/internal/types"
)

// Queue is a handle on one queue directory.
// All public methods are safe for concurrent use.
type Queue struct {
	log        *slog.Logger
	obs        Observer
	names      *naming.Codec
	ident      node.Identity
	custom     storage.Spool
	quarantine Quarantine
	registered bool // owned by a Registry, keyed by its directory

	mu    sync.Mutex
	cfg   Config
	codec envelope.Codec
	spool storage.Spool
	win   window
}

// New builds a queue handle from cfg, bypassing the process registry.
//
// It validates the name, discipline, chunk sizes, codec and compression,
// and checks that the directory exists and is readable and writable.
func New(cfg Config, opts ...Option) (*Queue, error) {
	cfg, codec, err := normalize(cfg)
	if err != nil {
		return nil, err
	}

	q := &Queue{
		log:   slog.Default(),
		obs:   nopObserver{},
		cfg:   cfg,
		codec: codec,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.names == nil {
		q.names = naming.New(0, nil)
	}
	if q.ident.ID.IsZero() {
		q.ident = node.Process()
	}

	if err := local.ValidateDir(cfg.Name, cfg.Directory); err != nil {
		return nil, err
	}
	if q.spool, err = q.openSpool(cfg.Directory); err != nil {
		return nil, err
	}
	if q.quarantine == nil && cfg.DeadLetterDir != "" {
		store, err := dlq.Open(cfg.DeadLetterDir)
		if err != nil {
			return nil, &types.Error{Kind: types.KindConfig, Queue: cfg.Name, Path: cfg.DeadLetterDir, Err: err}
		}
		q.quarantine = store
	}
	q.log = q.log.With("queue", cfg.Name)
	return q, nil
}

// QPush builds a non-registry handle for cfg and pushes v with priority.
func QPush(cfg Config, v any, priority int) (string, error) {
	q, err := New(cfg)
	if err != nil {
		return "", err
	}
	return q.Push(v, priority)
}

func (q *Queue) openSpool(dir string) (storage.Spool, error) {
	if q.custom != nil {
		return q.custom, nil
	}
	lc := local.Config{Fsync: local.FsyncNever}
	if q.cfg.Fsync {
		lc.Fsync = local.FsyncAlways
	}
	s, err := local.Open(dir, lc)
	if err != nil {
		return nil, types.WithQueue(err, q.cfg.Name)
	}
	return s, nil
}

// ─── Push ─────────────────────────────────────────────────────────────────────

// Push encodes v with the queue codec and stores it as a new message file.
// priority is validated (0..9) and used only under PRIO.
// It returns the message ID.
func (q *Queue) Push(v any, priority int) (string, error) {
	return q.push(priority, func(c envelope.Codec, h envelope.Header) ([]byte, error) {
		return c.Encode(h, v)
	})
}

// PushBytes stores body as-is with content type raw.
func (q *Queue) PushBytes(body []byte, priority int) (string, error) {
	return q.push(priority, func(c envelope.Codec, h envelope.Header) ([]byte, error) {
		return c.EncodeBytes(h, body)
	})
}

// Insert is an alias of Push.
func (q *Queue) Insert(v any, priority int) (string, error) { return q.Push(v, priority) }

func (q *Queue) push(priority int, encode func(envelope.Codec, envelope.Header) ([]byte, error)) (string, error) {
	q.mu.Lock()
	name, d, codec, spool := q.cfg.Name, q.cfg.Discipline, q.codec, q.spool
	q.mu.Unlock()

	prefix, err := q.names.Prefix(d, priority)
	if err != nil {
		q.obs.Failed(name, types.KindOf(err))
		return "", types.WithQueue(err, name)
	}
	if d != types.PRIO {
		priority = 0
	}

	id, err := node.NewID()
	if err != nil {
		return "", &types.Error{Kind: types.KindWrite, Queue: name, Err: err}
	}
	content, err := encode(codec, envelope.Header{
		ID:          id,
		Priority:    priority,
		PublishedAt: time.Now(),
		Producer:    q.ident.ID.String(),
		PID:         q.names.PID,
	})
	if err != nil {
		q.obs.Failed(name, types.KindOf(err))
		return "", types.WithQueue(err, name)
	}

	path, err := spool.Store(q.names.Candidates(spool.Dir(), prefix), content)
	if err != nil {
		q.obs.Failed(name, types.KindOf(err))
		return "", types.WithQueue(err, name)
	}
	q.obs.Pushed(name)
	q.log.Debug("message pushed", "file", filepath.Base(path), "id", id)
	return id, nil
}

// ─── Pull ─────────────────────────────────────────────────────────────────────

// Pull returns the next message in dequeue order, or nil, nil when none is
// available. priorities optionally narrows a PRIO queue to one priority or
// an inclusive range (two values, either order); other disciplines ignore
// them without validation.
//
// Pull walks the scan window:
//   - once ReturnChunkSize messages were taken from one window it resets and
//     reports empty once
//   - an empty or exhausted window triggers one directory scan
//   - files claimed by another consumer are skipped
//   - read failures reset the window and are returned
//   - undecodable content resets the window, is quarantined when configured,
//     and is returned as a KindCorrupt error
//
// When the file was read but could not be deleted, Pull returns the message
// together with a KindDelete error (see types.IsWarning).
func (q *Queue) Pull(priorities ...int) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	filter, err := filterFor(q.cfg.Discipline, priorities)
	if err != nil {
		return nil, types.WithQueue(err, q.cfg.Name)
	}

	if q.win.cursor >= q.cfg.ReturnChunkSize {
		q.win.reset()
		return nil, nil
	}
	if q.win.loaded() && q.win.filter != filter {
		q.win.reset()
	}

	rescanned := false
	for {
		if !q.win.loaded() || q.win.exhausted() {
			if rescanned {
				q.win.reset()
				return nil, nil
			}
			rescanned = true
			found, err := q.scan(filter)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, nil
			}
		}

		path := q.win.take()
		content, err := q.spool.ReadAndRemove(path)
		if errors.Is(err, types.ErrVanished) {
			q.obs.Vanished(q.cfg.Name)
			q.log.Warn("message file vanished, skipping", "file", filepath.Base(path))
			continue
		}
		if err != nil && !types.IsWarning(err) {
			q.win.reset()
			q.obs.Failed(q.cfg.Name, types.KindOf(err))
			return nil, types.WithQueue(err, q.cfg.Name)
		}
		warn := err
		if warn != nil {
			q.obs.Failed(q.cfg.Name, types.KindDelete)
			q.log.Warn("message delivered but not deleted", "file", filepath.Base(path), "err", warn)
		}

		env, err := envelope.Decode(content)
		if err != nil {
			q.win.reset()
			q.obs.Corrupt(q.cfg.Name)
			q.log.Warn("corrupt message", "file", filepath.Base(path), "err", err)
			q.quarantineContent(path, content, err)
			e := types.WithQueue(err, q.cfg.Name)
			var te *types.Error
			if errors.As(e, &te) && te.Path == "" {
				te.Path = path
			}
			return nil, e
		}

		q.obs.Pulled(q.cfg.Name)
		msg := messageFrom(env, filepath.Base(path))
		if warn != nil {
			return msg, types.WithQueue(warn, q.cfg.Name)
		}
		return msg, nil
	}
}

func (q *Queue) quarantineContent(path string, content []byte, cause error) {
	if q.quarantine == nil {
		return
	}
	if err := q.quarantine.Quarantine(q.cfg.Name, filepath.Base(path), content, cause); err != nil {
		q.log.Warn("quarantine failed", "file", filepath.Base(path), "err", err)
	}
}

// scan lists the directory for filter and loads the window. It reports
// whether any file matched. The caller holds q.mu.
func (q *Queue) scan(filter naming.Filter) (bool, error) {
	files, err := q.spool.List(naming.Pattern(q.cfg.Discipline, filter))
	if err != nil {
		q.win.reset()
		q.obs.Failed(q.cfg.Name, types.KindScan)
		return false, types.WithQueue(err, q.cfg.Name)
	}
	q.obs.Scanned(q.cfg.Name, len(files))
	q.log.Debug("directory scanned", "dir", q.spool.Dir(), "count", len(files), "filter", filter.String())
	if len(files) == 0 {
		q.win.reset()
		return false, nil
	}
	if len(files) > q.cfg.ReadChunkSize {
		files = files[:q.cfg.ReadChunkSize]
	}
	q.win.load(files, filter)
	return true, nil
}

// filterFor parses priorities for discipline d. Only PRIO reads them; FIFO
// and LIFO accept and ignore any argument.
func filterFor(d types.Discipline, priorities []int) (naming.Filter, error) {
	if d != types.PRIO {
		return naming.Any, nil
	}
	return naming.ParseFilter(priorities...)
}

// MessageExist rescans the directory and reports whether any message
// matches priorities. The fresh scan replaces the current window.
func (q *Queue) MessageExist(priorities ...int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	filter, err := filterFor(q.cfg.Discipline, priorities)
	if err != nil {
		return false, types.WithQueue(err, q.cfg.Name)
	}
	q.win.reset()
	return q.scan(filter)
}

// ─── Sizes ────────────────────────────────────────────────────────────────────

// QueueSize counts the message files matching priorities, independently of
// the scan window. ok is false when the filter is invalid or the directory
// cannot be listed.
func (q *Queue) QueueSize(priorities ...int) (n int, ok bool) {
	q.mu.Lock()
	d, spool := q.cfg.Discipline, q.spool
	q.mu.Unlock()

	filter, err := filterFor(d, priorities)
	if err != nil {
		return 0, false
	}

	files, err := spool.List(naming.Pattern(d, filter))
	if err != nil {
		q.log.Warn("queue size unavailable", "err", err)
		return 0, false
	}
	return len(files), true
}

// Size is an alias of QueueSize.
func (q *Queue) Size(priorities ...int) (int, bool) { return q.QueueSize(priorities...) }

// DirectorySize sums the sizes of all files in the directory, message or
// not. ok is false when the directory cannot be listed.
func (q *Queue) DirectorySize() (int64, bool) {
	q.mu.Lock()
	spool := q.spool
	q.mu.Unlock()

	n, err := spool.DirSize()
	if err != nil {
		return 0, false
	}
	return n, true
}

// ─── Config ───────────────────────────────────────────────────────────────────

// Config returns a copy of the effective configuration.
func (q *Queue) Config() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.Config().Name }

// Directory returns the absolute queue directory.
func (q *Queue) Directory() string { return q.Config().Directory }

// Discipline returns the dequeue order.
func (q *Queue) Discipline() types.Discipline { return q.Config().Discipline }

// SetDiscipline changes the dequeue order used by later pushes and scans.
func (q *Queue) SetDiscipline(d types.Discipline) error {
	if !d.Valid() {
		return &types.Error{Kind: types.KindConfig, Queue: q.Name(), Value: uint8(d), Err: errors.New("invalid queue type")}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cfg.Discipline = d
	q.win.reset()
	return nil
}

// SetDirectory moves the handle to another existing directory.
//
// Handles returned by a Registry, including Singleton, are refused: their
// registry key names the directory they were created for. Use Singleton with
// the new directory instead.
func (q *Queue) SetDirectory(dir string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.custom != nil {
		return &types.Error{Kind: types.KindConfig, Queue: q.cfg.Name, Path: dir, Err: errors.New("directory is fixed by a custom spool")}
	}
	if q.registered {
		return &types.Error{Kind: types.KindConfig, Queue: q.cfg.Name, Path: dir, Err: errors.New("directory is fixed by the registry key")}
	}
	abs, err := cleanDir(dir, "")
	if err != nil {
		return &types.Error{Kind: types.KindConfig, Queue: q.cfg.Name, Path: dir, Err: err}
	}
	if err := local.ValidateDir(q.cfg.Name, abs); err != nil {
		return err
	}
	spool, err := q.openSpool(abs)
	if err != nil {
		return err
	}
	q.cfg.Directory = abs
	q.spool = spool
	q.win.reset()
	return nil
}

// SetReadChunkSize changes the maximum number of filenames kept per scan.
func (q *Queue) SetReadChunkSize(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n < 1 {
		return invalidChunk(q.cfg.Name, "readChunkSize", n)
	}
	q.cfg.ReadChunkSize = n
	q.win.reset()
	return nil
}

// SetReturnChunkSize changes the number of messages handed out per window.
func (q *Queue) SetReturnChunkSize(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n < 1 {
		return invalidChunk(q.cfg.Name, "returnChunkSize", n)
	}
	q.cfg.ReturnChunkSize = n
	q.win.reset()
	return nil
}
