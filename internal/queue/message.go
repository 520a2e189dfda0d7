package queue

import (
	"time"

	"github.com/snehjoshi/spoolq/internal/envelope"
)

// Message is a pulled message. Its file has been removed from the queue
// directory unless Pull also returned a delete warning.
type Message struct {
	ID          string
	Priority    int
	PublishedAt time.Time
	Producer    string // instance ULID of the pushing process
	PID         int
	Filename    string // base name of the file the message was read from
	ContentType envelope.ContentType
	// Body is the decompressed payload, still in ContentType encoding.
	Body []byte
}

// Decode unmarshals the payload into v with the message's codec.
// A JSON false or an empty raw body decodes without error.
func (m *Message) Decode(v any) error {
	return envelope.Unmarshal(m.ContentType, m.Body, v)
}

func messageFrom(env envelope.Envelope, filename string) *Message {
	return &Message{
		ID:          env.ID,
		Priority:    env.Priority,
		PublishedAt: env.PublishedAt,
		Producer:    env.Producer,
		PID:         env.PID,
		Filename:    filename,
		ContentType: env.ContentType,
		Body:        env.Body,
	}
}
