package queue

import (
	"errors"
	"math"
	"path/filepath"
	"strings"

	"github.com/snehjoshi/spoolq/internal/envelope"
	"github.com/snehjoshi/spoolq/internal/types"
)

// ─── Per-queue config ─────────────────────────────────────────────────────────

// Config holds the parameters of a single queue handle.
// Zero values select the defaults documented on each field.
type Config struct {
	// Name identifies the queue in errors, logs, metrics and the registry key.
	// Required.
	Name string

	// Directory holds the message files. Defaults to Name. It must already
	// exist and be readable and writable; it is never created.
	Directory string

	// Discipline is the dequeue order. Defaults to FIFO.
	Discipline types.Discipline

	// ReadChunkSize caps the number of filenames kept from one scan.
	// 0 = unlimited.
	ReadChunkSize int

	// ReturnChunkSize caps the number of messages handed out from one scan
	// window before Pull reports empty once and starts over.
	// 0 = unlimited.
	ReturnChunkSize int

	// Codec is the payload codec: "json" (default), "yaml" or "raw".
	Codec string

	// Compression is the payload compression: "none" (default), "zstd" or "s2".
	Compression string

	// DeadLetterDir, when set, receives undecodable message content.
	DeadLetterDir string

	// Fsync flushes every message file to disk before Push returns.
	Fsync bool
}

// normalize validates cfg and fills in defaults. The directory is made
// absolute but not checked against the filesystem.
func normalize(cfg Config) (Config, envelope.Codec, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return cfg, envelope.Codec{}, &types.Error{Kind: types.KindConfig, Err: errors.New("queue name can't be empty")}
	}
	dir, err := cleanDir(cfg.Directory, cfg.Name)
	if err != nil {
		return cfg, envelope.Codec{}, &types.Error{Kind: types.KindConfig, Queue: cfg.Name, Path: cfg.Directory, Err: err}
	}
	cfg.Directory = dir

	if !cfg.Discipline.Valid() {
		return cfg, envelope.Codec{}, &types.Error{
			Kind:  types.KindConfig,
			Queue: cfg.Name,
			Value: uint8(cfg.Discipline),
			Err:   errors.New("invalid queue type"),
		}
	}
	if cfg.ReadChunkSize, err = chunkSize(cfg.Name, "readChunkSize", cfg.ReadChunkSize); err != nil {
		return cfg, envelope.Codec{}, err
	}
	if cfg.ReturnChunkSize, err = chunkSize(cfg.Name, "returnChunkSize", cfg.ReturnChunkSize); err != nil {
		return cfg, envelope.Codec{}, err
	}

	codec, err := envelope.NewCodec(cfg.Codec, cfg.Compression)
	if err != nil {
		return cfg, envelope.Codec{}, types.WithQueue(err, cfg.Name)
	}
	cfg.Codec = string(codec.ContentType)
	cfg.Compression = string(codec.Compression)

	if cfg.DeadLetterDir != "" {
		if cfg.DeadLetterDir, err = cleanDir(cfg.DeadLetterDir, ""); err != nil {
			return cfg, envelope.Codec{}, &types.Error{Kind: types.KindConfig, Queue: cfg.Name, Path: cfg.DeadLetterDir, Err: err}
		}
	}
	return cfg, codec, nil
}

// chunkSize maps 0 to unlimited and rejects negatives.
func chunkSize(queue, field string, n int) (int, error) {
	switch {
	case n == 0:
		return math.MaxInt, nil
	case n < 0:
		return 0, invalidChunk(queue, field, n)
	}
	return n, nil
}

func invalidChunk(queue, field string, n int) error {
	return &types.Error{
		Kind:  types.KindConfig,
		Queue: queue,
		Value: n,
		Err:   errors.New(field + " must be a positive integer"),
	}
}

// cleanDir trims dir, falls back to def when empty, and returns the
// absolute cleaned path. Trailing separators are dropped by filepath.Clean.
func cleanDir(dir, def string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = def
	}
	if dir == "" {
		return "", errors.New("directory can't be empty")
	}
	return filepath.Abs(dir)
}
