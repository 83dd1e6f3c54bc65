// Package registry issues the stable client address embedded in every
// lock a transaction writes, so a remote lock cleaner can ask "is the
// worker that owns this lock still registered and alive" instead of
// trusting the TTL alone. Address generation follows the uuid-per-worker
// pattern used elsewhere in the retrieved corpus for assigning stable
// worker identities (google/uuid's NewString).
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks live worker addresses. A single Registry is shared by
// every transaction created by one process.
type Registry struct {
	mu      sync.RWMutex
	address []byte
}

// New creates a Registry that has not yet registered a worker.
func New() *Registry {
	return &Registry{}
}

// RegisterWorker assigns this process a stable client address, generating
// one on first call and returning the same address on every subsequent
// call. Safe for concurrent use.
func (r *Registry) RegisterWorker() []byte {
	r.mu.RLock()
	if r.address != nil {
		defer r.mu.RUnlock()
		return r.address
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.address == nil {
		r.address = []byte(uuid.NewString())
	}
	return r.address
}

// GetClientAddress returns the address assigned by RegisterWorker,
// registering one first if none exists yet.
func (r *Registry) GetClientAddress() []byte {
	return r.RegisterWorker()
}

// IsAlive reports whether address names a worker this registry considers
// live. The in-process Registry only ever tracks its own address, so it
// reports true only for itself; a distributed registry backed by a
// heartbeat store would track every worker's last-seen time here.
func (r *Registry) IsAlive(address []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.address != nil && string(address) == string(r.address)
}
