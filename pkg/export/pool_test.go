package export

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_RunsAllTasks(t *testing.T) {
	pool := newPool(4)

	var ran atomic.Int64
	for i := 0; i < 50; i++ {
		pool.submit(func() error {
			ran.Add(1)
			return nil
		})
	}

	if err := pool.drain(); err != nil {
		t.Fatalf("drain() error: %v", err)
	}
	if ran.Load() != 50 {
		t.Errorf("ran %d tasks, want 50", ran.Load())
	}
}

func TestWorkerPool_KeepsFirstError(t *testing.T) {
	pool := newPool(1)

	boom := errors.New("boom")
	pool.submit(func() error { return boom })
	pool.submit(func() error { return errors.New("later") })

	if err := pool.drain(); !errors.Is(err, boom) {
		t.Errorf("drain() = %v, want the first error", err)
	}
}

func TestWorkerPool_SkipsTasksAfterError(t *testing.T) {
	pool := newPool(1)

	var ran atomic.Int64
	pool.submit(func() error { return errors.New("boom") })
	for i := 0; i < 10; i++ {
		pool.submit(func() error {
			ran.Add(1)
			return nil
		})
	}

	if err := pool.drain(); err == nil {
		t.Fatal("drain() should report the error")
	}
	if ran.Load() != 0 {
		t.Errorf("%d tasks ran after the error, want 0", ran.Load())
	}
}

func TestWorkerPool_DrainTwice(t *testing.T) {
	pool := newPool(2)
	pool.submit(func() error { return nil })

	if err := pool.drain(); err != nil {
		t.Fatalf("first drain() error: %v", err)
	}
	if err := pool.drain(); err != nil {
		t.Fatalf("second drain() error: %v", err)
	}
}

func TestIDSet(t *testing.T) {
	s := newIDSet()

	if !s.add("1") {
		t.Error("first add of '1' should report new")
	}
	if s.add("1") {
		t.Error("second add of '1' should report seen")
	}
	if !s.has("1") {
		t.Error("has('1') = false after add")
	}
	if s.has("2") {
		t.Error("has('2') = true without add")
	}
	if s.add("") != true {
		t.Error("empty id is still an id")
	}
	if s.len() != 2 {
		t.Errorf("len() = %d, want 2", s.len())
	}
}
