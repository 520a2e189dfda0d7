// Package dedup keeps a persistent journal of delivered message IDs.
//
// A pull that reads a message but fails to delete its file (a KindDelete
// warning) leaves the file in place, so the next scan sees it again. Callers
// that record every delivered ID here can recognise and drop that second
// delivery.
package dedup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketDelivered = []byte("delivered")

// ErrClosed is returned by operations on a closed Journal.
var ErrClosed = errors.New("dedup: journal closed")

// Entry describes one delivered message.
type Entry struct {
	DeliveredAt time.Time
	File        string // base filename the message was read from
}

// Journal is a bbolt-backed set of delivered message IDs.
// It is safe for concurrent use; bbolt serialises writers.
type Journal struct {
	db *bbolt.DB
}

// Open opens (or creates) the journal at path.
// Open fails after timeout if another process holds the database.
func Open(path string, timeout time.Duration) (*Journal, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("dedup: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDelivered)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dedup: init bucket: %w", err)
	}
	return &Journal{db: db}, nil
}

// MarkDelivered records id as delivered and reports whether this is its
// first delivery. The check and the insert are one transaction.
func (j *Journal) MarkDelivered(id string, e Entry) (first bool, err error) {
	if id == "" {
		return false, errors.New("dedup: empty message id")
	}
	err = j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDelivered)
		if b.Get([]byte(id)) != nil {
			return nil
		}
		first = true
		return b.Put([]byte(id), marshalEntry(e))
	})
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return false, ErrClosed
	}
	return first, err
}

// Lookup returns the entry recorded for id.
func (j *Journal) Lookup(id string) (Entry, bool, error) {
	var (
		e     Entry
		found bool
	)
	err := j.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketDelivered).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		var err error
		e, err = unmarshalEntry(v)
		return err
	})
	return e, found, err
}

// Prune deletes entries delivered before cutoff and returns how many were
// removed.
func (j *Journal) Prune(cutoff time.Time) (int, error) {
	removed := 0
	err := j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDelivered)
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			e, err := unmarshalEntry(v)
			if err != nil || e.DeliveredAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Len returns the number of recorded IDs.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketDelivered).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying bbolt database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// ---- serialisation helpers -------------------------------------------------
//
//	[deliveredMs : 8 bytes, int64 ]
//	[fileLen     : 2 bytes, uint16]
//	[file        : fileLen bytes  ]

func marshalEntry(e Entry) []byte {
	file := []byte(e.File)
	if len(file) > 0xffff {
		file = file[:0xffff]
	}
	buf := make([]byte, 8+2+len(file))
	binary.BigEndian.PutUint64(buf[0:], uint64(e.DeliveredAt.UnixMilli()))
	binary.BigEndian.PutUint16(buf[8:], uint16(len(file)))
	copy(buf[10:], file)
	return buf
}

func unmarshalEntry(buf []byte) (Entry, error) {
	if len(buf) < 10 {
		return Entry{}, fmt.Errorf("dedup: entry too short (%d bytes)", len(buf))
	}
	n := int(binary.BigEndian.Uint16(buf[8:]))
	if n > len(buf)-10 {
		return Entry{}, fmt.Errorf("dedup: file length %d exceeds buffer", n)
	}
	return Entry{
		DeliveredAt: time.UnixMilli(int64(binary.BigEndian.Uint64(buf[0:]))),
		File:        string(buf[10 : 10+n]),
	}, nil
}
