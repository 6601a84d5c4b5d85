package export

import (
	"sync"
)

// workerPool runs tasks on a fixed set of goroutines, remembering the first
// error. Once an error is recorded, remaining tasks are consumed but not run,
// so producers never block on a dying pool. Pools are scoped to one export
// operation: created, drained, and discarded within a single call.
type workerPool struct {
	tasks chan func() error
	wg    sync.WaitGroup
	once  sync.Once

	mu  sync.Mutex
	err error
}

func newPool(workers int) *workerPool {
	p := &workerPool{
		tasks: make(chan func() error),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		if p.Err() != nil {
			continue
		}
		if err := task(); err != nil {
			p.setErr(err)
		}
	}
}

// submit queues a task. It blocks until a worker picks it up.
func (p *workerPool) submit(task func() error) {
	p.tasks <- task
}

// drain closes the queue, waits for workers to finish, and returns the first
// recorded error. Safe to call more than once.
func (p *workerPool) drain() error {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
	return p.Err()
}

func (p *workerPool) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

// Err returns the first error recorded by any worker.
func (p *workerPool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// idSet is a mutex-guarded set of record identifiers, shared between the
// page loop and delivery workers.
type idSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newIDSet() *idSet {
	return &idSet{ids: make(map[string]struct{})}
}

// add inserts id and reports whether it was not already present.
func (s *idSet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.ids[id]; seen {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *idSet) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.ids[id]
	return seen
}

func (s *idSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
