package compose

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/pspoerri/wmsoverlay/internal/coord"
)

// LayerFunc paints one named layer for a request. It must only write to dst,
// which is private to the call, and must treat proj as read-only.
type LayerFunc func(ctx context.Context, dst *image.RGBA, proj *coord.Projection) error

// Registry maps layer names to their paint functions. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	layers map[string]LayerFunc
}

func NewRegistry() *Registry {
	return &Registry{layers: make(map[string]LayerFunc)}
}

// Register adds a layer. Names must be non-empty and unique.
func (r *Registry) Register(name string, fn LayerFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("registering layer %q: name and paint function are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.layers[name]; ok {
		return fmt.Errorf("registering layer %q: already registered", name)
	}
	r.layers[name] = fn
	return nil
}

// MustRegister is Register that panics on error, for static setup.
func (r *Registry) MustRegister(name string, fn LayerFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the paint function for name.
func (r *Registry) Lookup(name string) (LayerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.layers[name]
	return fn, ok
}

// Names returns the registered layer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.layers))
	for n := range r.layers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Jobs resolves names against the registry, binding each layer to proj.
// Names with no registered layer are returned separately, in order.
func (r *Registry) Jobs(proj *coord.Projection, names []string) (jobs []Job, unknown []string) {
	for _, name := range names {
		fn, ok := r.Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		jobs = append(jobs, Job{
			Layer: name,
			Paint: func(ctx context.Context, dst *image.RGBA) error {
				return fn(ctx, dst, proj)
			},
		})
	}
	return jobs, unknown
}
