// Package types contains the core domain types shared across all spoolq
// internal packages. It has zero imports of other spoolq packages so that the
// naming, storage and queue layers can all depend on it without creating
// import cycles.
package types

import (
	"fmt"
	"strings"
)

// Discipline is the ordering policy of a queue.
type Discipline uint8

const (
	// FIFO returns the oldest message first.
	FIFO Discipline = iota
	// LIFO returns the newest message first.
	LIFO
	// PRIO returns the highest priority first, FIFO within one priority.
	PRIO
)

// String returns the canonical configuration spelling of the discipline.
func (d Discipline) String() string {
	switch d {
	case FIFO:
		return "FIFO"
	case LIFO:
		return "LIFO"
	case PRIO:
		return "PRIO"
	default:
		return fmt.Sprintf("Discipline(%d)", uint8(d))
	}
}

// Valid reports whether d is one of the three known disciplines.
func (d Discipline) Valid() bool { return d <= PRIO }

// ParseDiscipline converts a configuration value ("FIFO", "lifo", ...) into a
// Discipline. The empty string yields FIFO.
func ParseDiscipline(s string) (Discipline, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "FIFO":
		return FIFO, nil
	case "LIFO":
		return LIFO, nil
	case "PRIO", "PRIORITY":
		return PRIO, nil
	}
	return FIFO, &Error{Kind: KindConfig, Value: s, Err: fmt.Errorf("invalid queue type")}
}

// MarshalText implements encoding.TextMarshaler.
func (d Discipline) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("types: invalid discipline %d", uint8(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Discipline) UnmarshalText(b []byte) error {
	v, err := ParseDiscipline(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Priority bounds. 0 is the lowest priority, 9 the highest.
const (
	MinPriority = 0
	MaxPriority = 9
)

// CheckPriority returns an InvalidPriority error when p is outside
// [MinPriority, MaxPriority].
func CheckPriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return &Error{
			Kind:  KindInvalidPriority,
			Value: p,
			Err:   fmt.Errorf("expected %d <= priority <= %d", MinPriority, MaxPriority),
		}
	}
	return nil
}
