package embedding

import (
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotRegistered is returned by Registry.Get for unknown names.
var ErrNotRegistered = errors.New("embedding not registered")

// Registry shares loaded embeddings by name, so that models using the same word vectors or
// checkpoint load them only once.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	mu        sync.Mutex
	embedding Embedding
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

func (r *Registry) entry(name string) *registryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.entries[name]
	if !found {
		e = &registryEntry{}
		r.entries[name] = e
	}
	return e
}

// Register stores e under name, replacing any previous embedding.
func (r *Registry) Register(name string, e Embedding) {
	entry := r.entry(name)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.embedding = e
}

// Get returns the embedding registered under name.
func (r *Registry) Get(name string) (Embedding, error) {
	r.mu.Lock()
	entry, found := r.entries[name]
	r.mu.Unlock()
	if found {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if entry.embedding != nil {
			return entry.embedding, nil
		}
	}
	return nil, errors.Wrapf(ErrNotRegistered, "%q", name)
}

// GetOrCreate returns the embedding registered under name, creating it with create if needed.
//
// Concurrent calls for the same name wait for a single creation. If create fails, the error is
// returned and a later call tries again.
func (r *Registry) GetOrCreate(name string, create func() (Embedding, error)) (Embedding, error) {
	entry := r.entry(name)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.embedding != nil {
		return entry.embedding, nil
	}
	e, err := create()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create embedding %q", name)
	}
	entry.embedding = e
	return e, nil
}

// Names returns the names of the registered embeddings.
func (r *Registry) Names() []string {
	r.mu.Lock()
	entries := make(map[string]*registryEntry, len(r.entries))
	for name, entry := range r.entries {
		entries[name] = entry
	}
	r.mu.Unlock()
	names := make([]string, 0, len(entries))
	for name, entry := range entries {
		entry.mu.Lock()
		if entry.embedding != nil {
			names = append(names, name)
		}
		entry.mu.Unlock()
	}
	sort.Strings(names)
	return names
}

// Close releases the embeddings that hold resources, and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()
	var firstErr error
	for _, entry := range entries {
		entry.mu.Lock()
		if closer, ok := entry.embedding.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		entry.embedding = nil
		entry.mu.Unlock()
	}
	return firstErr
}
