package wp

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_BasicExecution(t *testing.T) {
	p := NewPool(3, 10)

	var (
		mu      sync.Mutex
		results []int
	)

	tasks := []struct {
		key  string
		exec func()
	}{
		{"post#1", func() { mu.Lock(); results = append(results, 1); mu.Unlock() }},
		{"post#2", func() { mu.Lock(); results = append(results, 2); mu.Unlock() }},
		{"comment#1", func() { mu.Lock(); results = append(results, 3); mu.Unlock() }},
	}

	for _, task := range tasks {
		if !p.Submit(task.key, task.exec) {
			t.Fatalf("Submit(%s) rejected", task.key)
		}
	}
	p.Stop()

	if len(results) != 3 {
		t.Errorf("Wrong number of results: %d", len(results))
	}
}

func TestWorkerPool_StopDrainsQueue(t *testing.T) {
	p := NewPool(3, 5)
	var counter atomic.Int64

	tasks := 50
	for i := 0; i < tasks; i++ {
		p.Submit("same-key", func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}

	p.Stop()

	if got := counter.Load(); got != int64(tasks) {
		t.Errorf("Wrong number of tasks: %d", got)
	}
}

func TestWorkerPool_SameKeyKeepsOrder(t *testing.T) {
	p := NewPool(4, 100)

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 20; i++ {
		p.Submit("user_profile#42", func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	p.Stop()

	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", order)
		}
	}
}

func TestWorkerPool_NilTask(t *testing.T) {
	p := NewPool(2, 2)
	defer p.Stop()

	if p.Submit("nil-task", nil) {
		t.Error("nil task should be rejected")
	}
}

func TestWorkerPool_NoSubmitAfterStop(t *testing.T) {
	p := NewPool(2, 2)
	p.Stop()

	if p.Submit("stopped-task", func() {}) {
		t.Error("submit after stop should be rejected")
	}
	p.Stop()
}

func TestWorkerPool_Abort(t *testing.T) {
	p := NewPool(1, 10)
	release := make(chan struct{})
	var ran atomic.Int64

	p.Submit("k", func() { <-release; ran.Add(1) })
	for i := 0; i < 5; i++ {
		p.Submit("k", func() { ran.Add(1) })
	}

	done := make(chan struct{})
	go func() {
		p.Abort()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Abort did not return")
	}
	if got := ran.Load(); got >= 6 {
		t.Errorf("expected queued tasks to be dropped, %d ran", got)
	}
}
