package ledger

import "sync"

// MemoryStore is the default in-process store: a fixed-capacity ring buffer
// of event entries (newest first) and an unbounded revenue log. All methods
// are safe under concurrent dispatch; evict-then-insert happens under one
// lock so no entry is ever lost to an interleaved append.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
	revenue  []RevenueEvent
}

// NewMemoryStore creates an empty store retaining at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) AppendEvent(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]Entry{entry}, s.entries...)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[:s.capacity]
	}
	return nil
}

func (s *MemoryStore) Events() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) AppendRevenue(ev RevenueEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revenue = append([]RevenueEvent{ev}, s.revenue...)
	return nil
}

func (s *MemoryStore) Revenue() ([]RevenueEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RevenueEvent, len(s.revenue))
	copy(out, s.revenue)
	return out, nil
}
