package jobs

import (
	"context"
	"fmt"
)

// Handler processes one job kind. Handlers receive the full job row so
// they can attribute writes to their own job ID and checkpoint
// progress; they never mutate the job row itself — the worker calls
// Complete with whatever they return.
type Handler interface {
	Kind() Kind
	Handle(ctx context.Context, job *Job) (JSONMap, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	JobKind Kind
	Fn      func(ctx context.Context, job *Job) (JSONMap, error)
}

func (h HandlerFunc) Kind() Kind { return h.JobKind }

func (h HandlerFunc) Handle(ctx context.Context, job *Job) (JSONMap, error) {
	return h.Fn(ctx, job)
}

// Registry maps job kinds to handlers.
type Registry struct {
	handlers map[Kind]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[Kind]Handler{}}
}

// Register adds a handler; registering the same kind twice panics, it
// is a wiring bug.
func (r *Registry) Register(h Handler) {
	if _, dup := r.handlers[h.Kind()]; dup {
		panic(fmt.Sprintf("jobs: duplicate handler for kind %s", h.Kind()))
	}
	r.handlers[h.Kind()] = h
}

// Handle dispatches the job to its kind's handler.
func (r *Registry) Handle(ctx context.Context, job *Job) (JSONMap, error) {
	h, ok := r.handlers[job.Kind]
	if !ok {
		return nil, fmt.Errorf("no handler registered for kind %s", job.Kind)
	}
	return h.Handle(ctx, job)
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	return out
}
