package history

import (
	"sync"

	"github.com/google/uuid"
)

// TimestampLayout renders local time as YYYY-MM-DD HH:MM:SS.
const TimestampLayout = "2006-01-02 15:04:05"

// Entry records one successful classification. Entries are never modified
// after they are appended.
type Entry struct {
	Id         uuid.UUID `json:"id"`
	Image      string    `json:"image"`
	Prediction string    `json:"prediction"`
	Confidence string    `json:"confidence"`
	Timestamp  string    `json:"timestamp"`
}

// Store is an append-only, process-lifetime list of entries.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
}

// ListNewestFirst returns a reversed copy; callers may modify it freely.
func (s *Store) ListNewestFirst() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, entry := range s.entries {
		out[len(s.entries)-1-i] = entry
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}
