package worker

import (
	"context"
	"slices"
	"sync"

	"github.com/storyprint/printqueue/internal/config"
	"gorm.io/datatypes"
)

// HandlerFunc executes one job. The returned value is stored as the job's
// JSON result; a non-nil error fails the job with its message.
type HandlerFunc func(ctx context.Context, payload datatypes.JSON) (any, error)

// Registry maps job types to the handlers that execute them.
type Registry struct {
	mu       sync.RWMutex
	handlers map[config.JobType]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[config.JobType]HandlerFunc{}}
}

// Register installs h for t, replacing any previous handler.
func (r *Registry) Register(t config.JobType, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

func (r *Registry) Lookup(t config.JobType) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns the registered job types in sorted order. Workers only
// claim jobs of these types.
func (r *Registry) Types() []config.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]config.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
