// Package local provides the single-directory, local-filesystem
// implementation of storage.Spool. Every message is one file; writers fill a
// hidden temp file under flock(LOCK_EX) and hard-link it to its final name,
// readers take flock(LOCK_SH), read the whole file and unlink it.
package local

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/snehjoshi/spoolq/internal/naming"
	"github.com/snehjoshi/spoolq/internal/storage"
	"github.com/snehjoshi/spoolq/internal/types"
)

// ─── Local Storage Config ────────────────────────────────────────────────────

// FsyncPolicy controls whether message files are flushed to physical disk
// before Store returns.
type FsyncPolicy string

const (
	FsyncAlways FsyncPolicy = "always" // fsync every message file (safest, slowest)
	FsyncNever  FsyncPolicy = "never"  // rely on the page cache (default)
)

// Config holds options that tune local.Storage behaviour.
// All zero-values are safe: DefaultConfig() fills in sensible defaults.
type Config struct {
	Fsync FsyncPolicy
	Perm  fs.FileMode // permission bits of new message files
}

// DefaultConfig returns the Config used when Open is called without one.
func DefaultConfig() Config {
	return Config{
		Fsync: FsyncNever,
		Perm:  0o640,
	}
}

// ─── Storage ─────────────────────────────────────────────────────────────────

// Storage is the local implementation of storage.Spool.
// It holds no open file handles between calls; all coordination with other
// processes happens through the filesystem.
type Storage struct {
	dir    string
	cfg    Config
	remove func(string) error
}

// Ensure Storage satisfies the interface at compile time.
var _ storage.Spool = (*Storage)(nil)

// Open returns a Storage for dir after validating that dir exists and is
// readable and writable. The directory is never created.
//
// The variadic signature keeps the common call site (Open(dir)) short.
func Open(dir string, cfgs ...Config) (*Storage, error) {
	if err := ValidateDir("", dir); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if len(cfgs) > 0 {
		c := cfgs[0]
		if c.Fsync != "" {
			cfg.Fsync = c.Fsync
		}
		if c.Perm != 0 {
			cfg.Perm = c.Perm
		}
	}
	return &Storage{dir: dir, cfg: cfg, remove: os.Remove}, nil
}

// Dir returns the spool directory.
func (s *Storage) Dir() string { return s.dir }

// ─── Write ───────────────────────────────────────────────────────────────────

// TempPrefix starts the name of a message file that is still being written.
// It can never match a listing pattern, whose second byte is always '.'.
const TempPrefix = ".spoolq-"

// Store writes content and publishes it under the first free candidate name.
//
// Claim sequence:
//  1. create a hidden temp file, flock(LOCK_EX), single write, length check,
//     optional fsync, close
//  2. link(temp, candidate) → the existence check and the claim are one
//     syscall; the file appears in the directory complete
//  3. on EEXIST draw the next candidate, at most MaxNameAttempts more times
//  4. unlink the temp name
func (s *Storage) Store(next func() string, content []byte) (string, error) {
	tmp, err := s.writeTemp(content)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	for attempt := 0; ; attempt++ {
		path := next()
		err := os.Link(tmp, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", &types.Error{Kind: types.KindWrite, Path: path, Err: err}
		}
		if attempt >= storage.MaxNameAttempts {
			return "", &types.Error{
				Kind: types.KindNamingExhausted,
				Path: path,
				Err:  fmt.Errorf("no free filename after %d attempts", attempt+1),
			}
		}
	}
}

// writeTemp writes content to a new hidden file in the spool directory and
// returns its path. The file is removed again on failure.
func (s *Storage) writeTemp(content []byte) (string, error) {
	f, err := os.CreateTemp(s.dir, TempPrefix+"*")
	if err != nil {
		return "", &types.Error{Kind: types.KindWrite, Path: s.dir, Err: err}
	}
	tmp := f.Name()
	if err := f.Chmod(s.cfg.Perm); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", &types.Error{Kind: types.KindWrite, Path: tmp, Err: err}
	}
	if err := s.writeLocked(f, content); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", &types.Error{Kind: types.KindWrite, Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", &types.Error{Kind: types.KindWrite, Path: tmp, Err: err}
	}
	return tmp, nil
}

func (s *Storage) writeLocked(f *os.File, content []byte) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	n, err := f.Write(content)
	if err != nil {
		return err
	}
	if n != len(content) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(content))
	}
	if s.cfg.Fsync == FsyncAlways {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("fsync: %w", err)
		}
	}
	return nil
}

// ─── Read ────────────────────────────────────────────────────────────────────

// ReadAndRemove reads the message file at path and unlinks it.
//
// Every failing stage closes the handle before returning a KindRead error
// with the matching Stage. A file that is gone at open time, or that another
// consumer unlinked first, yields types.ErrVanished.
func (s *Storage) ReadAndRemove(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.ErrVanished
		}
		return nil, readErr(types.StageOpen, path, err)
	}

	content, err := readLocked(f, path)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	if err := s.remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Lost the unlink race: the other consumer delivers this message.
			return nil, types.ErrVanished
		}
		return content, &types.Error{Kind: types.KindDelete, Path: path, Err: err}
	}
	return content, nil
}

func readLocked(f *os.File, path string) ([]byte, error) {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return nil, readErr(types.StageLock, path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, readErr(types.StageStat, path, err)
	}
	if fi.Size() == 0 {
		return nil, readErr(types.StageEmpty, path, errors.New("file size is zero"))
	}
	buf := make([]byte, fi.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, readErr(types.StageRead, path, err)
	}
	return buf, nil
}

func readErr(stage types.Stage, path string, err error) error {
	return &types.Error{Kind: types.KindRead, Stage: stage, Path: path, Err: err}
}

// ─── Listing ─────────────────────────────────────────────────────────────────

// List returns the paths of regular files whose base name matches pattern.
// os.ReadDir returns entries sorted by filename, which is the dequeue order.
func (s *Storage) List(pattern string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &types.Error{Kind: types.KindScan, Path: filepath.Join(s.dir, pattern), Err: err}
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !naming.Match(pattern, e.Name()) {
			continue
		}
		out = append(out, filepath.Join(s.dir, e.Name()))
	}
	return out, nil
}

// DirSize sums the sizes of all regular files in the directory.
// Files removed while iterating are skipped.
func (s *Storage) DirSize() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, &types.Error{Kind: types.KindScan, Path: s.dir, Err: err}
	}
	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// ─── Directory precondition ──────────────────────────────────────────────────

// ValidateDir checks that dir is a non-empty path to an existing directory
// that the process can read and write. Each violation is a distinct
// KindConfig error.
func ValidateDir(queue, dir string) error {
	if dir == "" {
		return &types.Error{Kind: types.KindConfig, Queue: queue, Err: errors.New("directory can't be empty")}
	}
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return &types.Error{
			Kind:  types.KindConfig,
			Queue: queue,
			Path:  dir,
			Err:   fmt.Errorf("directory does not exist or is not a directory: %w", err),
		}
	}
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return &types.Error{
			Kind:  types.KindConfig,
			Queue: queue,
			Path:  dir,
			Err:   fmt.Errorf("directory is not readable/writable: %w", err),
		}
	}
	return nil
}
