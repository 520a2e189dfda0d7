// Package storage defines the Spool abstraction used by every queue.
//
// The queue engine interacts with message files only through this
// interface. Never call file I/O directly from the queue layer, so the
// physical protocol (exclusive create, locking, delete) stays in one place
// and tests can substitute failing implementations.
package storage

// MaxNameAttempts is how many extra candidate names Store tries after the
// first one collides before giving up with NamingExhausted.
const MaxNameAttempts = 10

// Spool is the file-per-message store backing one queue directory.
//
// Implementations:
//   - local.Storage: flock(2) based, one directory on a local filesystem
//
// All methods must be safe for concurrent use.
type Spool interface {
	// Store writes content to the first free path produced by next and
	// returns that path. next is called once per attempt and must yield a
	// fresh candidate each time.
	Store(next func() string, content []byte) (path string, err error)

	// ReadAndRemove reads the whole file at path and deletes it.
	// Returns types.ErrVanished if another consumer took the file first.
	// On a delete failure the content is returned together with a
	// KindDelete error.
	ReadAndRemove(path string) ([]byte, error)

	// List returns the full paths of files in the directory whose base name
	// matches pattern, sorted lexicographically.
	List(pattern string) ([]string, error)

	// DirSize returns the summed size in bytes of all regular files in the
	// directory, regardless of name.
	DirSize() (int64, error)

	// Dir returns the directory backing the spool.
	Dir() string
}
