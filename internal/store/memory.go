package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aivideotool/api/internal/model"
)

// MemoryJobStore keeps jobs in process memory. Used by the inline queue mode and tests.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	now  func() time.Time
}

var _ JobStore = (*MemoryJobStore)(nil)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]*model.Job),
		now:  time.Now,
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryJobStore) List(_ context.Context, offset, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	all := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, cloneJob(job))
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*model.Job{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

func (s *MemoryJobStore) Claim(_ context.Context, id string) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		return applyClaim(job, s.now())
	})
}

func (s *MemoryJobStore) Checkpoint(_ context.Context, id string, progress int, message string) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		return applyCheckpoint(job, progress, message)
	})
}

func (s *MemoryJobStore) Complete(_ context.Context, id string, c Completion) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		return applyComplete(job, c, s.now())
	})
}

func (s *MemoryJobStore) Fail(_ context.Context, id string, message string) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		return applyFail(job, message, s.now())
	})
}

func (s *MemoryJobStore) Cancel(_ context.Context, id string, message string) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		return applyCancel(job, message, s.now())
	})
}

func (s *MemoryJobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if err := checkDeletable(job); err != nil {
		return err
	}
	delete(s.jobs, id)
	return nil
}

// update applies fn to a copy of the stored job and swaps it in only on success.
func (s *MemoryJobStore) update(id string, fn func(*model.Job) error) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	next := cloneJob(current)
	if err := fn(next); err != nil {
		return cloneJob(current), err
	}
	s.jobs[id] = next
	return cloneJob(next), nil
}

// MemoryFileStore keeps file records in process memory
type MemoryFileStore struct {
	mu    sync.RWMutex
	files map[string]*model.FileRecord
}

var _ FileStore = (*MemoryFileStore)(nil)

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string]*model.FileRecord)}
}

func (s *MemoryFileStore) Save(_ context.Context, rec *model.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *rec
	s.files[rec.ID] = &c
	return nil
}

func (s *MemoryFileStore) Get(_ context.Context, id string) (*model.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.files[id]
	if !ok {
		return nil, ErrFileNotFound
	}
	c := *rec
	return &c, nil
}

func (s *MemoryFileStore) List(_ context.Context) ([]*model.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.FileRecord, 0, len(s.files))
	for _, rec := range s.files {
		c := *rec
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryFileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, id)
	return nil
}
