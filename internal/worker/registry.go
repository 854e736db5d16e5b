package worker

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/autoweave/jobqueue/internal/job"
)

// Result is the outcome a processor hands back: success plus optional
// result data, or a classified failure.
type Result struct {
	Success bool
	Data    json.RawMessage
	Err     error
}

// Ok builds a successful Result carrying data.
func Ok(data json.RawMessage) Result {
	return Result{Success: true, Data: data}
}

// Failed builds a failed Result wrapping err.
func Failed(err error) Result {
	return Result{Success: false, Err: err}
}

// ProcessorFunc processes one job given its execution context.
type ProcessorFunc func(jc *JobContext) Result

// Registry maps a job kind to the processor that handles it.
type Registry struct {
	mu         sync.RWMutex
	processors map[job.JobKind]ProcessorFunc
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[job.JobKind]ProcessorFunc),
	}
}

// Register binds a processor to a kind, wrapping it with the given
// decorators in order (outermost first).
func (r *Registry) Register(kind job.JobKind, fn ProcessorFunc, decorators ...Decorator) {
	for i := len(decorators) - 1; i >= 0; i-- {
		fn = decorators[i](fn)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[kind] = fn
}

// Get retrieves the processor bound to kind.
func (r *Registry) Get(kind job.JobKind) (ProcessorFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.processors[kind]
	return fn, ok
}

// Count returns the number of registered processors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processors)
}

// MissingKinds reports which of the given kinds have no registered
// processor. A missing kind is a fatal submission-time error, not a
// runtime one: callers should check this at startup before a queue
// ever accepts a job of that kind.
func (r *Registry) MissingKinds(kinds []job.JobKind) []job.JobKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []job.JobKind
	for _, k := range kinds {
		if _, ok := r.processors[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Dispatch runs the processor registered for jc.Job.Kind.
func (r *Registry) Dispatch(jc *JobContext) Result {
	fn, ok := r.Get(jc.Job.Kind)
	if !ok {
		return Failed(fmt.Errorf("no processor registered for job kind: %s", jc.Job.Kind))
	}
	return fn(jc)
}
