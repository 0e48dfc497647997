package engine

import (
	"sync"

	"github.com/picokube/picokube/models"
)

// workQueue is a keyed dedup queue enforcing the single-writer-per-object
// discipline: a key has at most one pending wakeup and at most one in-flight
// reconcile. Re-adding a key that is being processed parks it in the dirty
// set; Done re-queues it.
type workQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	items      []models.Key
	dirty      map[models.Key]struct{}
	processing map[models.Key]struct{}
	shutdown   bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		dirty:      make(map[models.Key]struct{}),
		processing: make(map[models.Key]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add enqueues a key unless it is already pending.
func (q *workQueue) Add(key models.Key) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		return
	}
	if _, ok := q.dirty[key]; ok {
		return
	}
	q.dirty[key] = struct{}{}
	if _, ok := q.processing[key]; ok {
		return
	}
	q.items = append(q.items, key)
	q.cond.Signal()
}

// Get blocks until a key is available or the queue shuts down.
func (q *workQueue) Get() (models.Key, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.shutdown {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return models.Key{}, false
	}
	key := q.items[0]
	q.items = q.items[1:]
	delete(q.dirty, key)
	q.processing[key] = struct{}{}
	return key, true
}

// Done marks a key's reconcile finished, re-queueing it if it went dirty
// while in flight.
func (q *workQueue) Done(key models.Key) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, key)
	if _, ok := q.dirty[key]; ok {
		q.items = append(q.items, key)
		q.cond.Signal()
	}
}

// Len returns the number of pending keys.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ShutDown wakes all waiters; Get drains remaining items and then reports
// closed.
func (q *workQueue) ShutDown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shutdown = true
	q.cond.Broadcast()
}
