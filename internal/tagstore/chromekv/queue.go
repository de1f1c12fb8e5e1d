package chromekv

import (
	"sync"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
)

// changeQueue hands change batches from the browser callback to the
// dispatch goroutine. push never blocks and never drops a batch.
type changeQueue struct {
	mu      sync.Mutex
	pending []kv.Changes
	wake    chan struct{}
	done    chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *changeQueue) push(changes kv.Changes) {
	q.mu.Lock()
	q.pending = append(q.pending, changes)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run delivers batches to fn in push order until close is called.
func (q *changeQueue) run(fn kv.ChangeFunc) {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		for _, changes := range batch {
			fn(changes)
		}
	}
}

func (q *changeQueue) close() {
	close(q.done)
}
