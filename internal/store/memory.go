package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// InMemoryResultStore implements ResultStore for testing and for servers
// that do not keep history across restarts.
type InMemoryResultStore struct {
	mu      sync.RWMutex
	reports map[string]*Report
}

// NewInMemoryResultStore creates a new in-memory store.
func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{
		reports: make(map[string]*Report),
	}
}

// Save stores the report.
func (s *InMemoryResultStore) Save(ctx context.Context, report *Report) error {
	if err := validateReport(report); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *report
	s.reports[report.ID] = &cp
	return nil
}

// Get retrieves a report by ID.
func (s *InMemoryResultStore) Get(ctx context.Context, id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

// List returns report summaries, newest first.
func (s *InMemoryResultStore) List(ctx context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r.Summary())
	}
	sortSummaries(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a report.
func (s *InMemoryResultStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.reports, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryResultStore) Close() error {
	return nil
}

// sortSummaries orders newest first, ties broken by ID.
func sortSummaries(s []Summary) {
	slices.SortFunc(s, func(a, b Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
