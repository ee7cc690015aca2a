package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("acme|system")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestWorkerPoolProcessItems(t *testing.T) {
	pool := NewWorkerPool(4, func(ctx context.Context, n int) (int, error) {
		if n < 0 {
			return 0, errors.New("negative")
		}
		return n * 2, nil
	})

	items := []int{1, 2, -1, 4}
	results, errs := pool.ProcessItems(context.Background(), items)

	if results[0] != 2 || results[1] != 4 || results[3] != 8 {
		t.Errorf("unexpected results: %v", results)
	}
	if errs[2] == nil {
		t.Error("expected error for negative item")
	}
	if errs[0] != nil || errs[1] != nil || errs[3] != nil {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(2, func(ctx context.Context, n int) (int, error) {
		if n == 13 {
			panic("boom")
		}
		return n, nil
	})

	_, errs := pool.ProcessItems(context.Background(), []int{1, 13})

	if errs[0] != nil {
		t.Errorf("unexpected error: %v", errs[0])
	}
	var pe *PanicError
	if !errors.As(errs[1], &pe) {
		t.Fatalf("expected PanicError, got %v", errs[1])
	}
}
