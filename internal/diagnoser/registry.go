package diagnoser

import (
	"sync"

	"github.com/signalnine/benchtrace/internal/counters"
)

// Registry maps execution units to their trace artifact and the counter
// descriptors armed for them. Only the diagnoser writes to it.
type Registry struct {
	mu        sync.RWMutex
	artifacts map[string]string
	descs     map[string][]counters.Descriptor
	// pending holds descriptors of captures not yet stopped.
	pending map[string][]counters.Descriptor
	last    string
}

func NewRegistry() *Registry {
	return &Registry{
		artifacts: make(map[string]string),
		descs:     make(map[string][]counters.Descriptor),
		pending:   make(map[string][]counters.Descriptor),
	}
}

func (r *Registry) setCounters(unit string, descs []counters.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[unit] = descs
}

// setArtifact records path together with the descriptors of the capture
// that produced it.
func (r *Registry) setArtifact(unit, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[unit] = path
	r.descs[unit] = r.pending[unit]
	delete(r.pending, unit)
	r.last = path
}

func (r *Registry) dropPending(unit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, unit)
}

// Artifact returns the artifact path and descriptors recorded for unit.
func (r *Registry) Artifact(unit string) (string, []counters.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.artifacts[unit]
	return path, r.descs[unit], ok
}

// Count reports how many units have an artifact.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.artifacts)
}

// Example returns the most recently recorded artifact path.
func (r *Registry) Example() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}
