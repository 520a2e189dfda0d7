package queue

import "github.com/snehjoshi/spoolq/internal/naming"

// window.go holds the scan window: the ordered filenames captured by one
// directory listing and a cursor over them.
//
// State diagram:
//
//	          scan, ≥1 match
//	EMPTY ───────────────────► LOADED ──┐ pull: read files[cursor], cursor++
//	  ▲                          │  ▲   │
//	  │                          │  └───┘
//	  └──────────────────────────┘
//	   cursor ≥ returnChunkSize, list exhausted, read error,
//	   corrupt content, filter or config change
//
// Invariant: 0 <= cursor <= len(files).
type window struct {
	files  []string
	cursor int
	filter naming.Filter
}

// loaded reports whether the window holds a scan result.
func (w *window) loaded() bool { return w.files != nil }

// exhausted reports whether every filename has been taken.
func (w *window) exhausted() bool { return w.cursor >= len(w.files) }

// load replaces the window with files scanned for filter.
func (w *window) load(files []string, filter naming.Filter) {
	w.files = files
	w.cursor = 0
	w.filter = filter
}

// take returns the filename at the cursor and advances it.
// The caller checks exhausted first.
func (w *window) take() string {
	f := w.files[w.cursor]
	w.cursor++
	return f
}

// reset returns the window to EMPTY.
func (w *window) reset() {
	w.files = nil
	w.cursor = 0
	w.filter = naming.Any
}
