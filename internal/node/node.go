// Package node describes the identity of the current spoolq process.
// Every process gets an instance ULID at first use; it is embedded in every
// envelope it writes (the producer field) together with the pid, so the
// origin of a message file is always traceable.
package node

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID string that uniquely identifies a spoolq process or message.
type ID string

func (id ID) String() string { return string(id) }

// IsZero reports whether the ID is the zero value.
func (id ID) IsZero() bool { return id == "" }

// Identity holds the identity of one producer process.
type Identity struct {
	ID        ID
	PID       int
	Hostname  string
	StartedAt time.Time
}

var (
	procOnce sync.Once
	proc     Identity
)

// Process returns the identity of the running process. It is created on
// first call and never changes afterwards.
func Process() Identity {
	procOnce.Do(func() {
		id, err := New(os.Getpid())
		if err != nil {
			// crypto/rand failing is unrecoverable for ID generation anyway.
			panic(fmt.Sprintf("node.Process: %v", err))
		}
		proc = id
	})
	return proc
}

// New returns a fresh Identity for pid.
func New(pid int) (Identity, error) {
	id, err := generateULID(time.Now())
	if err != nil {
		return Identity{}, fmt.Errorf("node: generate id: %w", err)
	}
	host, _ := os.Hostname()
	return Identity{
		ID:        id,
		PID:       pid,
		Hostname:  host,
		StartedAt: ulid.Time(ulid.MustParse(id.String()).Time()),
	}, nil
}

// monoEntropy is a package-level monotone entropy source shared across all
// generateULID calls, so IDs generated within the same millisecond stay
// lexicographically ordered.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

func generateULID(now time.Time) (ID, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), monoEntropy)
	if err != nil {
		return "", err
	}
	return ID(id.String()), nil
}

// NewID generates a fresh message ULID.
func NewID() (string, error) {
	id, err := generateULID(time.Now())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNewID is like NewID but panics on error. Use only in tests or init code.
func MustNewID() string {
	id, err := NewID()
	if err != nil {
		panic(fmt.Sprintf("node.MustNewID: %v", err))
	}
	return id
}

// Validate returns an error if s is not a well-formed ULID string.
func Validate(s string) error {
	_, err := ulid.ParseStrict(s)
	return err
}

// IDTime returns the millisecond timestamp embedded in a ULID.
func IDTime(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("node: parse id %q: %w", s, err)
	}
	return ulid.Time(id.Time()), nil
}
