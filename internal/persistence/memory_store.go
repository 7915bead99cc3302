package persistence

import (
	"fmt"
	"sync"
	"time"
)

// InMemoryStore is a simple, goroutine-safe JobStore backed by a map.
// It is intended for tests and single-process development setups.
type InMemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		jobs: make(map[string]*Job),
	}
}

// Ensure InMemoryStore implements JobStore.
var _ JobStore = (*InMemoryStore)(nil)

// SaveJob inserts a new job record. Saving an ID that already exists is
// an error, matching the SQLite store's primary key constraint.
func (s *InMemoryStore) SaveJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %q already exists", job.ID)
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *InMemoryStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}

	job.UpdatedAt = time.Now()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	copied := *job
	return &copied, nil
}

func (s *InMemoryStore) ListJobs(filter JobFilter) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Job

	for _, job := range s.jobs {
		if filter.ProjectID != "" && job.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		copied := *job
		result = append(result, &copied)
	}

	return result, nil
}
