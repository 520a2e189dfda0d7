package naming

import (
	"fmt"
	"path/filepath"

	"github.com/snehjoshi/spoolq/internal/types"
)

// Filter narrows a PRIO listing to one priority or an inclusive range.
// The zero Filter matches every priority.
type Filter struct {
	set    bool
	lo, hi int // priorities, lo <= hi
}

// Any matches every priority.
var Any = Filter{}

// ParseFilter builds a Filter from zero, one or two priorities. Two values
// form an inclusive range in either order; equal endpoints or more than two
// values are rejected.
func ParseFilter(priorities ...int) (Filter, error) {
	switch len(priorities) {
	case 0:
		return Any, nil
	case 1:
		if err := types.CheckPriority(priorities[0]); err != nil {
			return Any, err
		}
		return Filter{set: true, lo: priorities[0], hi: priorities[0]}, nil
	case 2:
		a, b := priorities[0], priorities[1]
		if err := types.CheckPriority(a); err != nil {
			return Any, err
		}
		if err := types.CheckPriority(b); err != nil {
			return Any, err
		}
		if a == b {
			return Any, &types.Error{
				Kind:  types.KindInvalidPriority,
				Value: priorities,
				Err:   fmt.Errorf("range bounds must differ"),
			}
		}
		if a > b {
			a, b = b, a
		}
		return Filter{set: true, lo: a, hi: b}, nil
	}
	return Any, &types.Error{
		Kind:  types.KindInvalidPriority,
		Value: priorities,
		Err:   fmt.Errorf("expected at most two priorities, got %d", len(priorities)),
	}
}

// IsAny reports whether f matches every priority.
func (f Filter) IsAny() bool { return !f.set }

// Contains reports whether priority p passes the filter.
func (f Filter) Contains(p int) bool {
	return !f.set || (p >= f.lo && p <= f.hi)
}

func (f Filter) String() string {
	switch {
	case !f.set:
		return "any"
	case f.lo == f.hi:
		return fmt.Sprintf("%d", f.lo)
	default:
		return fmt.Sprintf("%d-%d", f.lo, f.hi)
	}
}

// Pattern returns the glob pattern (relative to the queue directory) that
// lists messages of discipline d passing f. Only PRIO honours the filter.
func Pattern(d types.Discipline, f Filter) string {
	if d != types.PRIO || !f.set {
		return SearchPattern
	}
	// Encoded digits are 9-priority, so the highest priority is the lowest digit.
	lo, hi := types.MaxPriority-f.hi, types.MaxPriority-f.lo
	if lo == hi {
		return fmt.Sprintf("%d%s", lo, SearchPattern[1:])
	}
	return fmt.Sprintf("[%d-%d]%s", lo, hi, SearchPattern[1:])
}

// Match reports whether the base filename name matches pattern.
func Match(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
