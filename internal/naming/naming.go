// Package naming derives message filenames whose lexicographic order is the
// dequeue order of a queue, and the glob patterns used to list them.
//
// File naming convention:
//
//	<prio:1>.<key1:20>.<key2:20>.<pid:6>.<serial>
//	e.g. 9.00000000001700000000.00000000000000123456.004242.17
//
// The 20-digit zero-padding ensures lexicographic sorting matches numeric
// ordering, so a sorted directory listing is the queue itself.
package naming

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/snehjoshi/spoolq/internal/types"
)

const (
	// KeyWidth is the number of digits of each order key.
	KeyWidth = 20
	// PIDWidth is the number of digits of the pid field.
	PIDWidth = 6

	// SearchPattern matches every well-formed message filename.
	SearchPattern = "?.????????????????????.????????????????????.??????.?*"

	createFormat = "%d.%020d.%020d.%06d."
)

// ─── Serial ──────────────────────────────────────────────────────────────────

// Serial is a monotonically increasing disambiguator appended to every
// filename. It wraps to 0 after math.MaxInt64, so the value after the
// maximum is 1.
type Serial struct {
	n atomic.Int64
}

// ProcessSerial is the serial shared by every Codec built with a nil Serial.
var ProcessSerial = &Serial{}

// Next returns the next serial value.
func (s *Serial) Next() int64 {
	for {
		cur := s.n.Load()
		next := cur + 1
		if cur == math.MaxInt64 {
			next = 1
		}
		if s.n.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Set positions the counter so that the following Next returns v+1 (or 1
// when v is math.MaxInt64). Used by tests to exercise wraparound.
func (s *Serial) Set(v int64) { s.n.Store(v) }

// ─── Ordering strategies ─────────────────────────────────────────────────────

// ordering computes the three leading fields of a filename for one
// discipline.
type ordering func(priority int, sec, usec int64) (prio int, key1, key2 int64)

func fifoOrder(_ int, sec, usec int64) (int, int64, int64) { return 0, sec, usec }

func lifoOrder(_ int, sec, usec int64) (int, int64, int64) {
	return 0, math.MaxInt64 - sec, math.MaxInt64 - usec
}

func prioOrder(priority int, sec, usec int64) (int, int64, int64) {
	return types.MaxPriority - priority, sec, usec
}

func orderingFor(d types.Discipline) ordering {
	switch d {
	case types.LIFO:
		return lifoOrder
	case types.PRIO:
		return prioOrder
	default:
		return fifoOrder
	}
}

// ─── Codec ───────────────────────────────────────────────────────────────────

// Codec builds filenames for one producer process.
type Codec struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// PID is the process id embedded in every name.
	PID int
	// Serial supplies the trailing disambiguator.
	Serial *Serial
}

// New returns a Codec for pid drawing from serial. A nil serial uses
// ProcessSerial; pid <= 0 uses os.Getpid().
func New(pid int, serial *Serial) *Codec {
	if pid <= 0 {
		pid = os.Getpid()
	}
	if serial == nil {
		serial = ProcessSerial
	}
	return &Codec{Clock: time.Now, PID: pid, Serial: serial}
}

// Prefix returns the ordering-encoded filename prefix (everything up to and
// including the dot before the serial) for a message pushed now.
// priority is only consulted, and validated, for PRIO.
func (c *Codec) Prefix(d types.Discipline, priority int) (string, error) {
	if d == types.PRIO {
		if err := types.CheckPriority(priority); err != nil {
			return "", err
		}
	}
	now := c.now()
	sec := now.Unix()
	usec := int64(now.Nanosecond() / 1000)

	prio, k1, k2 := orderingFor(d)(priority, sec, usec)
	return fmt.Sprintf(createFormat, prio, k1, k2, c.PID%1_000_000), nil
}

// Candidates returns a generator of full paths in dir for prefix, each call
// drawing a fresh serial.
func (c *Codec) Candidates(dir, prefix string) func() string {
	return func() string {
		return filepath.Join(dir, Name(prefix, c.Serial.Next()))
	}
}

func (c *Codec) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock()
}

// Name appends serial to prefix.
func Name(prefix string, serial int64) string {
	return prefix + strconv.FormatInt(serial, 10)
}

// ─── Parsing ─────────────────────────────────────────────────────────────────

// Parts is a decoded message filename.
type Parts struct {
	PrioDigit int
	Key1      int64
	Key2      int64
	PID       int
	Serial    int64
}

// Priority returns the user priority encoded in a PRIO filename.
func (p Parts) Priority() int { return types.MaxPriority - p.PrioDigit }

// Parse decodes a base filename. It returns an error if name does not follow
// the naming grammar.
func Parse(name string) (Parts, error) {
	fields := strings.Split(name, ".")
	if len(fields) != 5 {
		return Parts{}, fmt.Errorf("naming: invalid filename %q (want 5 fields)", name)
	}
	widths := []int{1, KeyWidth, KeyWidth, PIDWidth}
	for i, w := range widths {
		if len(fields[i]) != w || !allDigits(fields[i]) {
			return Parts{}, fmt.Errorf("naming: invalid filename %q (field %d)", name, i+1)
		}
	}
	if fields[4] == "" || !allDigits(fields[4]) {
		return Parts{}, fmt.Errorf("naming: invalid filename %q (serial)", name)
	}

	var p Parts
	var err error
	p.PrioDigit = int(fields[0][0] - '0')
	if p.Key1, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return Parts{}, fmt.Errorf("naming: invalid filename %q: %w", name, err)
	}
	if p.Key2, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return Parts{}, fmt.Errorf("naming: invalid filename %q: %w", name, err)
	}
	pid, _ := strconv.Atoi(fields[3])
	p.PID = pid
	if p.Serial, err = strconv.ParseInt(fields[4], 10, 64); err != nil {
		return Parts{}, fmt.Errorf("naming: invalid filename %q: %w", name, err)
	}
	return p, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
