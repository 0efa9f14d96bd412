package domain

import "context"

// EntryStore defines the capability set shared by every log storage strategy.
// Results are copies; callers can never mutate stored state through them.
type EntryStore interface {
	// Append records a single entry. It fails only on unrecoverable I/O errors.
	Append(ctx context.Context, entry Entry) error

	// Recent returns at most limit entries of the selected kind, most recent first.
	Recent(ctx context.Context, kind Kind, limit int) ([]Entry, error)

	// Search returns entries whose serialized form contains keyword
	// (case-insensitive), most recent first, capped at MaxSearchResults.
	Search(ctx context.Context, keyword string, kind Kind) ([]Entry, error)

	// Entries returns the full retained set of the selected kind in append order.
	Entries(ctx context.Context, kind Kind) ([]Entry, error)

	// Prune removes whatever is older than the retention horizon and
	// returns how many entries or files were removed.
	Prune(ctx context.Context) (int, error)
}

// Forwarder ships entries to an external system. Forward must not block.
type Forwarder interface {
	Forward(entry Entry)
}

// Sink is one external destination used by a forwarder.
type Sink interface {
	Name() string
	Send(ctx context.Context, envelopes []Envelope) error
}

// Publisher receives every appended entry, e.g. for live tailing.
type Publisher interface {
	Publish(entry Entry)
}

// APIKeyRepository defines the interface for validating API keys.
type APIKeyRepository interface {
	// IsValid checks if the provided API key is valid and active.
	IsValid(ctx context.Context, key string) (bool, error)
}
