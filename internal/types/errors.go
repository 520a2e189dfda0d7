package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a spoolq failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindConfig: empty queue name, invalid directory, invalid discipline or option.
	KindConfig
	// KindInvalidPriority: priority outside 0..9 or an ill-formed range.
	KindInvalidPriority
	// KindNamingExhausted: no free filename found within the retry budget.
	KindNamingExhausted
	// KindWrite: partial or failed message write.
	KindWrite
	// KindScan: directory listing failed.
	KindScan
	// KindRead: read-and-remove failed at the stage given by Error.Stage.
	KindRead
	// KindDelete: the file was read but could not be removed. The payload
	// was still delivered.
	KindDelete
	// KindCorrupt: content is not a well-formed envelope.
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindInvalidPriority:
		return "invalid priority"
	case KindNamingExhausted:
		return "naming exhausted"
	case KindWrite:
		return "write"
	case KindScan:
		return "scan"
	case KindRead:
		return "read"
	case KindDelete:
		return "delete"
	case KindCorrupt:
		return "corrupt message"
	default:
		return "unknown"
	}
}

// Stage is the read-and-remove step at which a KindRead error occurred.
type Stage uint8

const (
	StageNone Stage = iota
	StageOpen
	StageLock
	StageStat
	StageEmpty
	StageRead
)

func (s Stage) String() string {
	switch s {
	case StageOpen:
		return "open"
	case StageLock:
		return "lock"
	case StageStat:
		return "stat"
	case StageEmpty:
		return "empty file"
	case StageRead:
		return "read"
	default:
		return ""
	}
}

// Sentinels matched by errors.Is against any *Error of the same Kind.
var (
	ErrConfig          = &Error{Kind: KindConfig}
	ErrInvalidPriority = &Error{Kind: KindInvalidPriority}
	ErrNamingExhausted = &Error{Kind: KindNamingExhausted}
	ErrWrite           = &Error{Kind: KindWrite}
	ErrScan            = &Error{Kind: KindScan}
	ErrRead            = &Error{Kind: KindRead}
	ErrDelete          = &Error{Kind: KindDelete}
	ErrCorrupt         = &Error{Kind: KindCorrupt}
)

// ErrVanished is returned by the storage layer when a message file
// disappeared before it could be opened or removed, i.e. another consumer
// claimed it. Queue.Pull treats it as "skip to the next file".
var ErrVanished = errors.New("spoolq: message file vanished")

// Error is the typed error returned by every spoolq core operation.
// Queue, Path and Value are filled in when known.
type Error struct {
	Kind  Kind
	Stage Stage
	Queue string
	Path  string
	Value any
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("spoolq: ")
	if e.Queue != "" {
		fmt.Fprintf(&b, "queue %q: ", e.Queue)
	}
	b.WriteString(e.Kind.String())
	if e.Stage != StageNone {
		fmt.Fprintf(&b, " (%s)", e.Stage)
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Value != nil {
		fmt.Fprintf(&b, " [%v]", e.Value)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by Kind, and also by Stage when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Stage == StageNone || t.Stage == e.Stage
}

// WithQueue returns err with the queue name attached when err is an *Error
// that does not carry one yet. Other errors are returned unchanged.
func WithQueue(err error, queue string) error {
	var e *Error
	if errors.As(err, &e) && e.Queue == "" {
		c := *e
		c.Queue = queue
		return &c
	}
	return err
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsWarning reports whether err is warning class: the operation delivered
// its result but a follow-up step failed (currently only KindDelete).
func IsWarning(err error) bool {
	return KindOf(err) == KindDelete
}
