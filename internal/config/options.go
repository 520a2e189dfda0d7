package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/snehjoshi/spoolq/internal/queue"
	"github.com/snehjoshi/spoolq/internal/types"
)

// QueueOptions is the option surface of one queue, as found in the YAML
// file or in an option map.
type QueueOptions struct {
	QueueName       string `yaml:"queueName"`
	Directory       string `yaml:"directory"`
	QueueType       string `yaml:"queueType"`
	ReadChunkSize   int    `yaml:"readChunkSize"`
	ReturnChunkSize int    `yaml:"returnChunkSize"`
	Codec           string `yaml:"codec"`
	Compression     string `yaml:"compression"`
	DeadLetterDir   string `yaml:"deadLetterDir"`
	Fsync           bool   `yaml:"fsync"`
}

// Option map keys.
const (
	KeyQueueName       = "queueName"
	KeyDirectory       = "directory"
	KeyQueueType       = "queueType"
	KeyReadChunkSize   = "readChunkSize"
	KeyReturnChunkSize = "returnChunkSize"
	KeyCodec           = "codec"
	KeyCompression     = "compression"
	KeyDeadLetterDir   = "deadLetterDir"
	KeyFsync           = "fsync"
)

// ParseOptions builds QueueOptions from an option map. Unknown keys, values
// of the wrong type and non-positive chunk sizes are rejected with a
// KindConfig error. queueName is required.
func ParseOptions(m map[string]any) (QueueOptions, error) {
	var o QueueOptions

	// Iterate in key order so the first reported error is deterministic.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		var err error
		switch k {
		case KeyQueueName:
			o.QueueName, err = stringOpt(k, v)
		case KeyDirectory:
			o.Directory, err = stringOpt(k, v)
		case KeyQueueType:
			o.QueueType, err = stringOpt(k, v)
		case KeyCodec:
			o.Codec, err = stringOpt(k, v)
		case KeyCompression:
			o.Compression, err = stringOpt(k, v)
		case KeyDeadLetterDir:
			o.DeadLetterDir, err = stringOpt(k, v)
		case KeyReadChunkSize:
			o.ReadChunkSize, err = positiveOpt(k, v)
		case KeyReturnChunkSize:
			o.ReturnChunkSize, err = positiveOpt(k, v)
		case KeyFsync:
			b, ok := v.(bool)
			if !ok {
				err = optErr(k, v, "must be a boolean")
			}
			o.Fsync = b
		default:
			err = optErr(k, v, "unknown option")
		}
		if err != nil {
			return QueueOptions{}, err
		}
	}
	if strings.TrimSpace(o.QueueName) == "" {
		return QueueOptions{}, optErr(KeyQueueName, o.QueueName, "is required")
	}
	return o, nil
}

// QueueConfig converts o into a queue.Config. The directory defaults to the
// queue name.
func (o QueueOptions) QueueConfig() (queue.Config, error) {
	if strings.TrimSpace(o.QueueName) == "" {
		return queue.Config{}, optErr(KeyQueueName, o.QueueName, "is required")
	}
	d, err := types.ParseDiscipline(o.QueueType)
	if err != nil {
		return queue.Config{}, types.WithQueue(err, o.QueueName)
	}
	if o.ReadChunkSize < 0 {
		return queue.Config{}, optErr(KeyReadChunkSize, o.ReadChunkSize, "must be a positive integer")
	}
	if o.ReturnChunkSize < 0 {
		return queue.Config{}, optErr(KeyReturnChunkSize, o.ReturnChunkSize, "must be a positive integer")
	}
	dir := o.Directory
	if strings.TrimSpace(dir) == "" {
		dir = o.QueueName
	}
	return queue.Config{
		Name:            o.QueueName,
		Directory:       dir,
		Discipline:      d,
		ReadChunkSize:   o.ReadChunkSize,
		ReturnChunkSize: o.ReturnChunkSize,
		Codec:           o.Codec,
		Compression:     o.Compression,
		DeadLetterDir:   o.DeadLetterDir,
		Fsync:           o.Fsync,
	}, nil
}

func stringOpt(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", optErr(key, v, "must be a string")
	}
	return s, nil
}

// positiveOpt accepts Go integers, integral floats (as produced by JSON
// decoding) and decimal strings.
func positiveOpt(key string, v any) (int, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, optErr(key, v, "is out of range")
		}
		n = int64(x)
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 || x < math.MinInt64 {
			return 0, optErr(key, v, "must be an integer")
		}
		n = int64(x)
	case string:
		p, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, optErr(key, v, "must be an integer")
		}
		n = p
	default:
		return 0, optErr(key, v, "must be an integer")
	}
	if n < 1 || n > math.MaxInt {
		return 0, optErr(key, v, "must be a positive integer")
	}
	return int(n), nil
}

func optErr(key string, v any, msg string) error {
	return &types.Error{Kind: types.KindConfig, Value: v, Err: fmt.Errorf("%s %s", key, msg)}
}
