package utils

import (
	"context"
	"sync"
)

// DefaultWorkerCount bounds concurrency when callers pass a non-positive
// worker count.
const DefaultWorkerCount = 4

// KeyedMutex serializes operations per string key. It backs the
// per-(namespace, entity_type) resolver lock and the per-pair discovery
// lock; there is deliberately no global lock.
type KeyedMutex struct {
	locks sync.Map // key -> *sync.Mutex
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	mu, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Worker processes one item and returns its result.
type Worker[T any, R any] func(ctx context.Context, item T) (R, error)

// WorkerPool processes items concurrently with a bounded number of workers.
//
// Workers read from an internal channel until it drains or the context is
// cancelled; ProcessItems blocks until all workers return. Panics inside a
// worker are recovered and reported as PanicError for that item.
type WorkerPool[T any, R any] struct {
	numWorkers int
	worker     Worker[T, R]
}

// NewWorkerPool creates a pool with numWorkers workers.
func NewWorkerPool[T any, R any](numWorkers int, worker Worker[T, R]) *WorkerPool[T, R] {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkerCount
	}
	return &WorkerPool[T, R]{numWorkers: numWorkers, worker: worker}
}

// ProcessItems runs the worker over every item and returns results and
// errors positionally aligned with items.
func (wp *WorkerPool[T, R]) ProcessItems(ctx context.Context, items []T) ([]R, []error) {
	if len(items) == 0 {
		return nil, nil
	}

	type indexed struct {
		item  T
		index int
	}

	itemsChan := make(chan indexed, len(items))
	for i, item := range items {
		itemsChan <- indexed{item: item, index: i}
	}
	close(itemsChan)

	results := make([]R, len(items))
	errors := make([]error, len(items))
	var wg sync.WaitGroup

	for i := 0; i < wp.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case item, ok := <-itemsChan:
					if !ok {
						return
					}
					func() {
						defer RecoverWithCallback(func(err error) {
							errors[item.index] = err
						})
						results[item.index], errors[item.index] = wp.worker(ctx, item.item)
					}()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Wait()
	return results, errors
}
