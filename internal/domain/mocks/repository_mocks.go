package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/callwatch/internal/domain"
)

// MockEntryStore is a mock implementation of domain.EntryStore for testing.
// Recent, Search and Entries return the configured results verbatim.
type MockEntryStore struct {
	mu            sync.Mutex
	Appended      []domain.Entry
	RecentResult  []domain.Entry
	SearchResult  []domain.Entry
	EntriesResult []domain.Entry
	PruneResult   int
	PruneCalls    int
	LastKind      domain.Kind
	LastLimit     int
	LastKeyword   string
	AppendErr     error
	ReadErr       error
	PruneErr      error
}

func (m *MockEntryStore) Append(ctx context.Context, entry domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Appended = append(m.Appended, entry)
	return nil
}

func (m *MockEntryStore) Recent(ctx context.Context, kind domain.Kind, limit int) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastKind, m.LastLimit = kind, limit
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.RecentResult, nil
}

func (m *MockEntryStore) Search(ctx context.Context, keyword string, kind domain.Kind) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastKind, m.LastKeyword = kind, keyword
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.SearchResult, nil
}

func (m *MockEntryStore) Entries(ctx context.Context, kind domain.Kind) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastKind = kind
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.EntriesResult, nil
}

func (m *MockEntryStore) Prune(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PruneCalls++
	if m.PruneErr != nil {
		return 0, m.PruneErr
	}
	return m.PruneResult, nil
}

// MockSink records every batch it receives.
type MockSink struct {
	mu      sync.Mutex
	SinkID  string
	Batches [][]domain.Envelope
	SendErr error
	// Block, when non-nil, is received from before each Send returns.
	Block chan struct{}
}

func (m *MockSink) Name() string {
	if m.SinkID == "" {
		return "mock"
	}
	return m.SinkID
}

func (m *MockSink) Send(ctx context.Context, envelopes []domain.Envelope) error {
	if m.Block != nil {
		<-m.Block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]domain.Envelope, len(envelopes))
	copy(batch, envelopes)
	m.Batches = append(m.Batches, batch)
	return m.SendErr
}

// Sent returns the total number of entries delivered to the sink.
func (m *MockSink) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.Batches {
		n += len(b)
	}
	return n
}

// MockPublisher collects published entries.
type MockPublisher struct {
	mu        sync.Mutex
	Published []domain.Entry
}

func (m *MockPublisher) Publish(entry domain.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, entry)
}

// MockAPIKeyRepository is a mock implementation of domain.APIKeyRepository.
type MockAPIKeyRepository struct {
	ValidKeys map[string]bool
	Err       error
}

func (m *MockAPIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.ValidKeys[key], nil
}
