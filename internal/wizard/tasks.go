package wizard

import (
	"context"
	"sync"
)

type taskKind string

const (
	taskSearch  taskKind = "search"
	taskSubmit  taskKind = "submit"
	taskPayment taskKind = "payment"
)

type task struct {
	kind   taskKind
	cancel context.CancelFunc
}

type visitorLock struct {
	mu   sync.Mutex
	refs int
}

// taskRegistry tracks the cancellable work running for each visitor.
type taskRegistry struct {
	mu     sync.Mutex
	nextID uint64
	tasks  map[string]map[uint64]task
	locks  map[string]*visitorLock
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{
		tasks: make(map[string]map[uint64]task),
		locks: make(map[string]*visitorLock),
	}
}

// lock serialises state writes for one visitor. Cancelling operations hold it while they cancel
// and rewrite state, so a task that checks its context under the lock cannot write after them.
func (r *taskRegistry) lock(visitor string) func() {
	r.mu.Lock()
	l := r.locks[visitor]
	if l == nil {
		l = &visitorLock{}
		r.locks[visitor] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		defer r.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, visitor)
		}
	}
}

// commit runs write under the visitor lock unless taskCtx has been cancelled.
func (r *taskRegistry) commit(taskCtx context.Context, visitor string, write func() error) error {
	unlock := r.lock(visitor)
	defer unlock()
	if err := taskCtx.Err(); err != nil {
		return err
	}
	return write()
}

// replace cancels the visitor's running tasks of kind and registers a new one.
func (r *taskRegistry) replace(ctx context.Context, visitor string, kind taskKind) (context.Context, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks[visitor] {
		if t.kind == kind {
			t.cancel()
		}
	}
	return r.addLocked(ctx, visitor, kind)
}

// exclusive registers a task unless one of kind is already running for the visitor.
func (r *taskRegistry) exclusive(ctx context.Context, visitor string, kind taskKind) (context.Context, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks[visitor] {
		if t.kind == kind {
			return nil, nil, false
		}
	}
	taskCtx, done := r.addLocked(ctx, visitor, kind)
	return taskCtx, done, true
}

func (r *taskRegistry) addLocked(ctx context.Context, visitor string, kind taskKind) (context.Context, func()) {
	taskCtx, cancel := context.WithCancel(ctx)
	r.nextID++
	id := r.nextID
	if r.tasks[visitor] == nil {
		r.tasks[visitor] = make(map[uint64]task)
	}
	r.tasks[visitor][id] = task{kind: kind, cancel: cancel}

	return taskCtx, func() {
		cancel()
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.tasks[visitor], id)
		if len(r.tasks[visitor]) == 0 {
			delete(r.tasks, visitor)
		}
	}
}

// cancelAll cancels every task of the visitor and reports how many were running.
func (r *taskRegistry) cancelAll(visitor string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks[visitor] {
		t.cancel()
		n++
	}
	return n
}

func (r *taskRegistry) running(visitor string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks[visitor])
}
