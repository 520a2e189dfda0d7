// Package dlq quarantines message content that could not be decoded.
//
// The quarantine is a plain directory tree:
//
//	<root>/<queueName>/<ULID>.dead
//
// Each .dead file is a JSON record holding the original filename, the decode
// error and the raw file content. Records are written once and only removed
// by Purge.
package dlq

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/snehjoshi/spoolq/internal/node"
)

const recordExt = ".dead"

// Record is one quarantined message.
type Record struct {
	ID            string    `json:"id"`
	Queue         string    `json:"queue"`
	File          string    `json:"file"`
	Reason        string    `json:"reason"`
	QuarantinedAt time.Time `json:"quarantined_at"`
	Content       []byte    `json:"content"`
}

// Store is a quarantine directory.
type Store struct {
	root string
}

// Open returns the quarantine rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("dlq: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("dlq: create dir: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the quarantine root directory.
func (s *Store) Root() string { return s.root }

// Quarantine writes content read from queue's file filename.
func (s *Store) Quarantine(queue, filename string, content []byte, cause error) error {
	if err := checkQueue(queue); err != nil {
		return err
	}
	dir := filepath.Join(s.root, queue)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("dlq: create queue dir: %w", err)
	}

	rec := Record{
		ID:            node.MustNewID(),
		Queue:         queue,
		File:          filename,
		QuarantinedAt: time.Now().UTC(),
		Content:       content,
	}
	if cause != nil {
		rec.Reason = cause.Error()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("dlq: marshal record: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial record.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("dlq: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("dlq: write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("dlq: close record: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, rec.ID+recordExt)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("dlq: rename record: %w", err)
	}
	return nil
}

// List returns the records of queue, oldest first. An empty queue name
// lists every queue.
func (s *Store) List(queue string) ([]Record, error) {
	paths, err := s.paths(queue)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("dlq: read %s: %w", p, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("dlq: decode %s: %w", p, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of records of queue (all queues when empty).
// Returns 0 if the quarantine cannot be listed.
func (s *Store) Len(queue string) int {
	paths, err := s.paths(queue)
	if err != nil {
		return 0
	}
	return len(paths)
}

// Purge deletes all records of queue (all queues when empty) and returns
// the number removed.
func (s *Store) Purge(queue string) (int, error) {
	paths, err := s.paths(queue)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, fmt.Errorf("dlq: purge: %w", err)
		}
		n++
	}
	return n, nil
}

// checkQueue rejects names that would resolve outside root/<queue>.
func checkQueue(queue string) error {
	if queue == "" || queue == "." || queue == ".." || strings.ContainsAny(queue, `/\`) {
		return fmt.Errorf("dlq: invalid queue name %q", queue)
	}
	return nil
}

// paths returns record paths sorted by queue, then by ULID (creation order).
func (s *Store) paths(queue string) ([]string, error) {
	queues := []string{queue}
	if queue != "" {
		if err := checkQueue(queue); err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			return nil, fmt.Errorf("dlq: list %s: %w", s.root, err)
		}
		queues = queues[:0]
		for _, e := range entries {
			if e.IsDir() {
				queues = append(queues, e.Name())
			}
		}
	}

	var out []string
	for _, q := range queues {
		matches, err := filepath.Glob(filepath.Join(s.root, q, "*"+recordExt))
		if err != nil {
			return nil, fmt.Errorf("dlq: glob: %w", err)
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}
