// Package ksync implements the blocking coordination primitives built
// on top of the scheduler (component B): a counting semaphore and a
// recursive mutex. Grounded on the teacher's biscuit/src/util and
// biscuit/src/proc lock helpers in spirit (block the calling task
// rather than spin), reworked against this kernel's task.Block/
// task.Unblock instead of Go's sync primitives, since a real mutex
// here must put a task to sleep on the scheduler's ready/blocked
// queues, not the Go runtime's own.
package ksync

import (
	"sync"

	"github.com/HaoLin-hub/sparrowos/src/list"
	"github.com/HaoLin-hub/sparrowos/src/task"
)

/// Sema_t is a counting semaphore whose down() blocks the calling task
/// (via the scheduler) rather than the host goroutine directly.
type Sema_t struct {
	mu      sync.Mutex
	count   int
	waiters list.List_t[*task.Task_t]
}

/// MkSema constructs a semaphore with the given initial count.
func MkSema(count int) *Sema_t {
	return &Sema_t{count: count}
}

/// Down blocks until the semaphore's count is non-zero, then consumes
/// one unit.
func (s *Sema_t) Down() {
	for {
		s.mu.Lock()
		if s.count > 0 {
			s.count--
			s.mu.Unlock()
			return
		}
		s.waiters.PushTail(task.Current())
		s.mu.Unlock()
		task.Block(task.Blocked)
	}
}

/// Up increments the count and, if a waiter is present, wakes the
/// oldest one.
func (s *Sema_t) Up() {
	s.mu.Lock()
	var woken *task.Task_t
	if v, ok := s.waiters.PopHead(); ok {
		woken = v
	}
	s.count++
	s.mu.Unlock()
	if woken != nil {
		task.Unblock(woken)
	}
}

/// Count returns the current count, for tests and diagnostics only.
func (s *Sema_t) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

/// Mutex_t is a recursive mutex: the holder may reacquire it without
/// deadlocking itself, as long as it releases it the same number of
/// times. Built on a binary Sema_t, per spec.md's recursive-mutex
/// design (a holder field plus a nesting count guarding a semaphore
/// initialised to one).
type Mutex_t struct {
	sem    *Sema_t
	mu     sync.Mutex
	holder *task.Task_t
	nest   uint32
}

/// MkMutex constructs an unheld recursive mutex.
func MkMutex() *Mutex_t {
	return &Mutex_t{sem: MkSema(1)}
}

/// Lock acquires the mutex, blocking if another task holds it. Re-
/// entrant: if the calling task already holds it, this only bumps the
/// nesting count.
func (m *Mutex_t) Lock() {
	cur := task.Current()
	m.mu.Lock()
	if m.holder == cur {
		m.nest++
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.sem.Down()

	m.mu.Lock()
	m.holder = cur
	m.nest = 1
	m.mu.Unlock()
}

/// Unlock releases one level of nesting; the mutex is only actually
/// released back to the pool when the nesting count reaches zero.
/// Unlock by a non-holder panics: it indicates a kernel bug, not a
/// recoverable error.
func (m *Mutex_t) Unlock() {
	cur := task.Current()
	m.mu.Lock()
	if m.holder != cur {
		m.mu.Unlock()
		panic("unlock of mutex not held by caller")
	}
	m.nest--
	if m.nest > 0 {
		m.mu.Unlock()
		return
	}
	m.holder = nil
	m.mu.Unlock()
	m.sem.Up()
}

/// Holder returns the task currently holding the mutex, or nil.
func (m *Mutex_t) Holder() *task.Task_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}
