package timer

import (
	"sort"
	"sync"
)

type entry struct {
	timer *Timer
	refs  int
}

// Registry hands out named timers and tears them down at zero references.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{timers: make(map[string]*entry)}
}

// Acquire returns the timer with the given name, creating it on first use,
// and adds a reference.
func (r *Registry) Acquire(name string) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.timers[name]
	if !ok {
		e = &entry{timer: newTimer(name)}
		r.timers[name] = e
	}
	e.refs++
	return e.timer
}

// Release drops a reference. The last release stops the timer and returns
// true.
func (r *Registry) Release(name string) bool {
	r.mu.Lock()
	e, ok := r.timers[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return false
	}
	delete(r.timers, name)
	r.mu.Unlock()

	e.timer.close()
	return true
}

// RefCount returns the number of references held on name
func (r *Registry) RefCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.timers[name]; ok {
		return e.refs
	}
	return 0
}

// Names returns the live timer names, sorted
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.timers))
	for name := range r.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close tears down every timer regardless of references
func (r *Registry) Close() {
	r.mu.Lock()
	timers := r.timers
	r.timers = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range timers {
		e.timer.close()
	}
}
