package kv

import "sync"

// Watchers fans change notifications out to registered callbacks. The zero
// value is ready to use. Callbacks run synchronously on the notifying
// goroutine, outside any lock.
type Watchers struct {
	mu   sync.Mutex
	fns  map[int]ChangeFunc
	next int
}

// Add registers fn and returns a function that cancels the registration.
func (w *Watchers) Add(fn ChangeFunc) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]ChangeFunc)
	}
	id := w.next
	w.next++
	w.fns[id] = fn

	return func() {
		w.mu.Lock()
		delete(w.fns, id)
		w.mu.Unlock()
	}
}

// Len returns the number of registered callbacks.
func (w *Watchers) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.fns)
}

// Notify delivers changes to every callback. Empty change sets are dropped.
func (w *Watchers) Notify(changes Changes) {
	if len(changes) == 0 {
		return
	}
	w.mu.Lock()
	fns := make([]ChangeFunc, 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(changes)
	}
}
