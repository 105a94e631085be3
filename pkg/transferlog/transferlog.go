// Package transferlog records the outcome of file transfers.
package transferlog

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when no entry exists for the requested ID.
var ErrNotFound = errors.New("transfer entry not found")

// Entry describes a single transfer attempt.
type Entry struct {
	ID              uuid.UUID `json:"id"`
	File            string    `json:"file"`
	Remote          string    `json:"remote"`
	Bytes           uint64    `json:"bytes"`
	Datagrams       uint64    `json:"datagrams"`
	Retransmissions uint64    `json:"retransmissions"`
	Timeouts        uint64    `json:"timeouts"`
	Digest          string    `json:"digest,omitempty"` // hex BLAKE2b-256 of the bytes read from File
	Started         time.Time `json:"started"`
	Finished        time.Time `json:"finished"`
	Error           string    `json:"error,omitempty"`
}

// NewEntry creates an Entry with a fresh ID, started now.
func NewEntry(file, remote string) *Entry {
	return &Entry{
		ID:      uuid.New(),
		File:    file,
		Remote:  remote,
		Started: time.Now(),
	}
}

// Duration returns how long the transfer ran.
func (e *Entry) Duration() time.Duration {
	if e.Finished.IsZero() {
		return 0
	}
	return e.Finished.Sub(e.Started)
}

// Succeeded reports whether the transfer finished without error.
func (e *Entry) Succeeded() bool {
	return !e.Finished.IsZero() && e.Error == ""
}

// Store stores transfer entries.
type Store interface {
	Record(entry *Entry) error
	Entry(id uuid.UUID) (*Entry, error)
	Entries() ([]*Entry, error)
	Close() error
}

type inMemoryStore struct {
	entries map[uuid.UUID]*Entry
	mu      sync.Mutex
}

// InMemoryStore implements in-memory Store.
func InMemoryStore() Store {
	return &inMemoryStore{
		entries: map[uuid.UUID]*Entry{},
	}
}

func (s *inMemoryStore) Record(entry *Entry) error {
	if entry == nil {
		return errors.New("nil entry")
	}

	e := *entry
	s.mu.Lock()
	s.entries[e.ID] = &e
	s.mu.Unlock()
	return nil
}

func (s *inMemoryStore) Entry(id uuid.UUID) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	e := *entry
	return &e, nil
}

func (s *inMemoryStore) Entries() ([]*Entry, error) {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		e := *entry
		entries = append(entries, &e)
	}
	s.mu.Unlock()

	sortEntries(entries)
	return entries, nil
}

func (s *inMemoryStore) Close() error {
	return nil
}

// sortEntries orders entries by start time, oldest first.
func sortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Started.Before(entries[j].Started)
	})
}
