package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of an entry shipped to an external sink.
type Envelope struct {
	ID          string    `json:"event_id"`
	Kind        Kind      `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	ForwardedAt time.Time `json:"forwarded_at"`
	Entry       Entry     `json:"entry"`
}

// NewEnvelope wraps an entry with a fresh event ID. Build one envelope per
// entry and hand the same value to every sink so the ID identifies the entry
// across all of them.
func NewEnvelope(e Entry) Envelope {
	return Envelope{
		ID:          uuid.NewString(),
		Kind:        e.Kind(),
		Timestamp:   e.Time(),
		ForwardedAt: time.Now().UTC(),
		Entry:       e,
	}
}

// Marshal encodes the envelope as JSON.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
