package registry

import (
	"errors"
	"sync"

	"github.com/hupe1980/vecd/index"
)

// Registry maps index keys to live handles. Each key is constructed at most
// once: concurrent Init calls for the same key observe a single instance,
// and re-initializing an existing key is a no-op.
//
// The zero value is not usable; create instances with New.
type Registry struct {
	mu      sync.RWMutex
	handles map[index.Key]*Handle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		handles: make(map[index.Key]*Handle),
	}
}

// Init ensures an index exists for key, constructing it on first use. The
// capacity hint pre-sizes backends that support reservation and may be zero.
//
// Construction happens under the registry lock, so two goroutines racing on
// the same key build exactly one index.
func (r *Registry) Init(key index.Key, capacityHint int) error {
	if err := key.Validate(); err != nil {
		return err
	}

	r.mu.RLock()
	_, ok := r.handles[key]
	r.mu.RUnlock()
	if ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[key]; ok {
		return nil
	}

	h, err := buildForKey(key, capacityHint)
	if err != nil {
		return err
	}
	r.handles[key] = h

	return nil
}

// Get returns the handle registered for key, or false when no index with
// that exact algorithm, dimension and metric has been initialized.
func (r *Registry) Get(key index.Key) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[key]
	return h, ok
}

// Keys returns the keys of all registered indexes in unspecified order.
func (r *Registry) Keys() []index.Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]index.Key, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of registered indexes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handles)
}

// Close releases every registered index and empties the registry. All
// handles are closed even when some fail; the returned error joins the
// individual failures.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for k, h := range r.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.handles, k)
	}

	return errors.Join(errs...)
}
