package jobs

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a job id is unknown, either because it never
// existed or because the cascade exhausted every encoder and deleted it.
var ErrNotFound = errors.New("job not found")

// Registry is the process-wide job store. It is a flat in-memory map with
// no persistence: entries vanish on restart.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Put stores a job under its id.
func (r *Registry) Put(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID()] = job
}

// Get retrieves a job by id.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// Delete removes a job. Deleting an unknown id is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
