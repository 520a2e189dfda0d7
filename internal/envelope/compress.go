package envelope

import (
	"errors"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"github.com/snehjoshi/spoolq/internal/types"
)

// Compression names the payload compression algorithm.
type Compression string

const (
	None Compression = "none"
	Zstd Compression = "zstd"
	S2   Compression = "s2"
)

// ParseCompression accepts "", "none", "zstd" and "s2" (case-insensitive).
// The empty string selects None.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(s))) {
	case "", None:
		return None, nil
	case Zstd:
		return Zstd, nil
	case S2:
		return S2, nil
	}
	return "", &types.Error{Kind: types.KindConfig, Value: s, Err: errors.New("unknown compression")}
}

// Shared zstd coders. EncodeAll and DecodeAll are safe for concurrent use.
var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return zstdEnc, zstdDec, zstdErr
}

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Zstd:
		enc, _, err := zstdCoders()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(data, nil), nil
	case S2:
		return s2.Encode(nil, data), nil
	}
	return nil, errors.New("unknown compression " + string(c))
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Zstd:
		_, dec, err := zstdCoders()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(data, nil)
	case S2:
		return s2.Decode(nil, data)
	}
	return nil, errors.New("unknown compression " + string(c))
}
