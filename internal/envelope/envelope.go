// Package envelope defines the on-disk representation of a message.
//
// Every message file holds one JSON envelope:
//
//	{"kind":"spoolq/envelope","version":1,"id":"01H...","priority":5,
//	 "published_at":1700000000123,"producer":"01H...","pid":4242,
//	 "content_type":"json","compression":"zstd","checksum":2807124766,
//	 "payload":"KLUv/QBY..."}
//
// The payload is encoded by the content-type codec, then compressed, then
// checksummed (CRC-32 IEEE over the stored bytes). Decode verifies the tag,
// version, codec names and checksum before the payload is trusted.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snehjoshi/spoolq/internal/types"
)

const (
	// Kind is the type tag written into every envelope.
	Kind = "spoolq/envelope"
	// Version is the current envelope layout version.
	Version = 1
)

// ContentType names the payload codec.
type ContentType string

const (
	JSON ContentType = "json"
	YAML ContentType = "yaml"
	Raw  ContentType = "raw"
)

// ParseContentType accepts "", "json", "yaml" and "raw" (case-insensitive).
// The empty string selects JSON.
func ParseContentType(s string) (ContentType, error) {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case "", JSON:
		return JSON, nil
	case YAML:
		return YAML, nil
	case Raw:
		return Raw, nil
	}
	return "", &types.Error{Kind: types.KindConfig, Value: s, Err: errors.New("unknown codec")}
}

// Header carries the message metadata stored next to the payload.
type Header struct {
	ID          string
	Priority    int
	PublishedAt time.Time
	Producer    string
	PID         int
}

// Envelope is a decoded message file.
type Envelope struct {
	Header
	ContentType ContentType
	Compression Compression
	// Body is the decompressed payload, still in ContentType encoding.
	Body []byte
}

// Unmarshal decodes the body into v using the envelope's content type.
func (e Envelope) Unmarshal(v any) error {
	return Unmarshal(e.ContentType, e.Body, v)
}

type wire struct {
	Kind        string `json:"kind"`
	Version     int    `json:"version"`
	ID          string `json:"id"`
	Priority    int    `json:"priority"`
	PublishedAt int64  `json:"published_at"`
	Producer    string `json:"producer"`
	PID         int    `json:"pid"`
	ContentType string `json:"content_type"`
	Compression string `json:"compression"`
	Checksum    uint32 `json:"checksum"`
	Payload     []byte `json:"payload"`
}

// ─── Codec ───────────────────────────────────────────────────────────────────

// Codec encodes payloads with one content type and compression.
// The zero Codec is JSON without compression.
type Codec struct {
	ContentType ContentType
	Compression Compression
}

// NewCodec validates the codec and compression names.
func NewCodec(contentType, compression string) (Codec, error) {
	ct, err := ParseContentType(contentType)
	if err != nil {
		return Codec{}, err
	}
	comp, err := ParseCompression(compression)
	if err != nil {
		return Codec{}, err
	}
	return Codec{ContentType: ct, Compression: comp}, nil
}

// Encode marshals v with the codec's content type and wraps it.
func (c Codec) Encode(h Header, v any) ([]byte, error) {
	ct := c.contentType()
	body, err := Marshal(ct, v)
	if err != nil {
		return nil, err
	}
	return c.wrap(h, ct, body)
}

// EncodeBytes wraps body as-is with content type raw.
func (c Codec) EncodeBytes(h Header, body []byte) ([]byte, error) {
	return c.wrap(h, Raw, body)
}

func (c Codec) contentType() ContentType {
	if c.ContentType == "" {
		return JSON
	}
	return c.ContentType
}

func (c Codec) wrap(h Header, ct ContentType, body []byte) ([]byte, error) {
	comp := c.Compression
	if comp == "" {
		comp = None
	}
	stored, err := compress(comp, body)
	if err != nil {
		return nil, &types.Error{Kind: types.KindWrite, Value: comp, Err: err}
	}
	w := wire{
		Kind:        Kind,
		Version:     Version,
		ID:          h.ID,
		Priority:    h.Priority,
		PublishedAt: h.PublishedAt.UnixMilli(),
		Producer:    h.Producer,
		PID:         h.PID,
		ContentType: string(ct),
		Compression: string(comp),
		Checksum:    crc32.ChecksumIEEE(stored),
		Payload:     stored,
	}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, &types.Error{Kind: types.KindWrite, Err: err}
	}
	return out, nil
}

// ─── Decode ──────────────────────────────────────────────────────────────────

// Decode parses and verifies a message file. Every failure is KindCorrupt.
func Decode(data []byte) (Envelope, error) {
	var w wire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Envelope{}, corrupt("malformed envelope: %v", err)
	}
	if w.Kind != Kind {
		return Envelope{}, corrupt("unexpected kind %q", w.Kind)
	}
	if w.Version != Version {
		return Envelope{}, corrupt("unsupported version %d", w.Version)
	}
	ct, err := ParseContentType(w.ContentType)
	if err != nil || w.ContentType == "" {
		return Envelope{}, corrupt("unknown content type %q", w.ContentType)
	}
	comp, err := ParseCompression(w.Compression)
	if err != nil || w.Compression == "" {
		return Envelope{}, corrupt("unknown compression %q", w.Compression)
	}
	if sum := crc32.ChecksumIEEE(w.Payload); sum != w.Checksum {
		return Envelope{}, corrupt("checksum mismatch: stored %d, computed %d", w.Checksum, sum)
	}
	body, err := decompress(comp, w.Payload)
	if err != nil {
		return Envelope{}, corrupt("decompress %s: %v", comp, err)
	}
	return Envelope{
		Header: Header{
			ID:          w.ID,
			Priority:    w.Priority,
			PublishedAt: time.UnixMilli(w.PublishedAt),
			Producer:    w.Producer,
			PID:         w.PID,
		},
		ContentType: ct,
		Compression: comp,
		Body:        body,
	}, nil
}

func corrupt(format string, args ...any) error {
	return &types.Error{Kind: types.KindCorrupt, Err: fmt.Errorf(format, args...)}
}

// ─── Payload codecs ──────────────────────────────────────────────────────────

// Marshal encodes v with ct. Raw accepts only []byte and string.
func Marshal(ct ContentType, v any) ([]byte, error) {
	switch ct {
	case JSON, "":
		b, err := json.Marshal(v)
		if err != nil {
			return nil, &types.Error{Kind: types.KindWrite, Value: fmt.Sprintf("%T", v), Err: err}
		}
		return b, nil
	case YAML:
		b, err := yaml.Marshal(v)
		if err != nil {
			return nil, &types.Error{Kind: types.KindWrite, Value: fmt.Sprintf("%T", v), Err: err}
		}
		return b, nil
	case Raw:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, &types.Error{
			Kind:  types.KindWrite,
			Value: fmt.Sprintf("%T", v),
			Err:   errors.New("raw codec accepts only []byte or string"),
		}
	}
	return nil, &types.Error{Kind: types.KindConfig, Value: ct, Err: errors.New("unknown codec")}
}

// Unmarshal decodes body encoded with ct into v. For Raw, v must be
// *[]byte or *string.
func Unmarshal(ct ContentType, body []byte, v any) error {
	var err error
	switch ct {
	case JSON:
		err = json.Unmarshal(body, v)
	case YAML:
		err = yaml.Unmarshal(body, v)
	case Raw:
		switch p := v.(type) {
		case *[]byte:
			*p = append([]byte(nil), body...)
		case *string:
			*p = string(body)
		case *any:
			*p = append([]byte(nil), body...)
		default:
			err = fmt.Errorf("raw payload cannot be decoded into %T", v)
		}
	default:
		err = fmt.Errorf("unknown content type %q", ct)
	}
	if err != nil {
		return &types.Error{Kind: types.KindCorrupt, Value: ct, Err: err}
	}
	return nil
}
