// Package task implements the process control block, the ready/blocked
// state machine, and a single-processor round-robin scheduler, the
// core of component C. Grounded on the teacher's PCB/scheduler shape
// (biscuit's per-task page directory, fd table, and block/unblock
// primitives spread across biscuit/src/tinfo, biscuit/src/vm, and the
// proc package) but reworked for a uniprocessor machine: one task runs
// at a time, and every other task's goroutine sits parked on its own
// resume channel until the scheduler hands it the CPU. A real timer
// interrupt cannot suspend a running goroutine mid-instruction the way
// it suspends real silicon, so the tick is modeled as an explicit
// Tick() call made by whatever stands in for the interrupt glue (the
// ATA busy-wait); see DESIGN.md.
package task

import (
	"fmt"
	"sync"

	"github.com/HaoLin-hub/sparrowos/src/bitmap"
	"github.com/HaoLin-hub/sparrowos/src/caller"
	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/hashtable"
	"github.com/HaoLin-hub/sparrowos/src/list"
)

/// State enumerates the life cycle of a task.
type State int

const (
	Running State = iota
	Ready
	Blocked
	Waiting
	Hanging
	Died
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	case Waiting:
		return "waiting"
	case Hanging:
		return "hanging"
	case Died:
		return "died"
	default:
		return "unknown"
	}
}

const magic = 0xcafebabe

// NumBlocks is the count of geometric block-size descriptors each task
// (and the kernel) owns for its small-object heap; see mem.ArenaSet_t.
const NumBlocks = 7

// NumFds is the size of a task's per-process file-descriptor table;
// indices 0-2 are reserved for stdio.
const NumFds = 8

/// Task_t is the process control block. Real hardware gives this
/// struct its own page and a kernel stack growing down from the page
/// top; here the "stack" is simply the goroutine's own Go stack, and
/// Fds/Cwdino/UserData stand in for the fields the on-disk/VM layers
/// key off of.
type Task_t struct {
	Pid  defs.Pid_t
	Ppid defs.Pid_t
	Name string

	Priority int
	Ticks    int
	CumTicks int

	ExitStatus int
	magic      uint32

	state State
	mu    sync.Mutex

	// Fds is the per-task file-descriptor table; index i holds a global
	// open-file-table index, or -1 if free. Populated by src/fd.
	Fds [NumFds]int
	// Cwdino is the inode number of the task's current working directory.
	Cwdino uint32

	resume    chan struct{}
	readyElem *list.Elem_t[*Task_t]
	allElem   *list.Elem_t[*Task_t]

	// UserData lets higher layers (mem for page directories, fd for open
	// files) attach their own per-task state without task importing them
	// and creating an import cycle.
	UserData any
}

/// Magic reports whether the task's stack-overflow canary is intact.
func (t *Task_t) Magic() bool {
	return t.magic == magic
}

/// State returns the task's current scheduling state.
func (t *Task_t) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

type sched_t struct {
	mu      sync.Mutex
	ready   list.List_t[*Task_t]
	all     list.List_t[*Task_t]
	current *Task_t
	idle    *Task_t

	pidmu sync.Mutex
	pids  *bitmap.Bitmap_t
}

const maxPids = 1024

var sched = &sched_t{pids: bitmap.MkBitmap(maxPids)}

// pidTable is the pid -> *Task_t registry backing Find: the direct
// pid2task lookup proc.Exit needs to wake a waiting parent, without
// scanning every live task.
var pidTable = hashtable.MkPidTable[*Task_t](256)

// childSet_t is the set of a parent's live children, keyed by the
// parent's pid in childIndex. Its own mutex guards the map, separately
// from sched.mu, since Get against the hashtable itself never takes
// sched.mu.
type childSet_t struct {
	mu   sync.Mutex
	kids map[defs.Pid_t]*Task_t
}

// childIndex maps a parent pid to its children, backing FindChild and
// HasChild with a lookup scoped to one parent's family instead of a
// scan over every task in the system.
var childIndex = hashtable.MkPidTable[*childSet_t](256)

func childSetFor(ppid defs.Pid_t) *childSet_t {
	if cs, ok := childIndex.Get(ppid); ok {
		return cs
	}
	cs := &childSet_t{kids: make(map[defs.Pid_t]*Task_t)}
	if childIndex.Set(ppid, cs) {
		return cs
	}
	// Lost the race to install this parent's set; whoever won has one.
	cs, _ = childIndex.Get(ppid)
	return cs
}

// registerTask makes t visible to Find and to its parent's child set.
func registerTask(t *Task_t) {
	pidTable.Set(t.Pid, t)
	cs := childSetFor(t.Ppid)
	cs.mu.Lock()
	cs.kids[t.Pid] = t
	cs.mu.Unlock()
}

// deregisterTask removes t from Find and from its parent's child set,
// the mirror of registerTask, called once t is fully reaped.
func deregisterTask(t *Task_t) {
	pidTable.Del(t.Pid)
	if cs, ok := childIndex.Get(t.Ppid); ok {
		cs.mu.Lock()
		delete(cs.kids, t.Pid)
		cs.mu.Unlock()
	}
}

/// Find looks up the task with the given pid, without scanning
/// AllTasks. Exit uses it to find the parent to wake.
func Find(pid defs.Pid_t) (*Task_t, bool) {
	return pidTable.Get(pid)
}

/// AllocPid returns the first clear pid starting at 1, or -1 if the
/// pid pool is exhausted. Fork is the only path that allocates a pid.
func AllocPid() defs.Pid_t {
	sched.pidmu.Lock()
	defer sched.pidmu.Unlock()
	i := sched.pids.ScanZeros(1, 1)
	if i < 0 {
		return -1
	}
	sched.pids.Set(i)
	return defs.Pid_t(i)
}

/// ReleasePid clears a pid. Wait releases the pid of a reaped child.
func ReleasePid(pid defs.Pid_t) {
	sched.pidmu.Lock()
	defer sched.pidmu.Unlock()
	sched.pids.Clear(int(pid))
}

func newTask(name string, ppid defs.Pid_t, priority int) *Task_t {
	t := &Task_t{
		Pid:      AllocPid(),
		Ppid:     ppid,
		Name:     name,
		Priority: priority,
		Ticks:    priority,
		magic:    magic,
		resume:   make(chan struct{}),
	}
	for i := range t.Fds {
		t.Fds[i] = -1
	}
	registerTask(t)
	return t
}

/// Current returns the task presently occupying the CPU.
func Current() *Task_t {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	return sched.current
}

/// Boot creates the very first task and runs fn on the calling
/// goroutine directly as that task's body: there is no prior task to
/// switch away from, so there is nothing to park.
func Boot(name string, priority int, fn func(*Task_t)) {
	t := newTask(name, 0, priority)
	t.state = Running
	sched.mu.Lock()
	sched.current = t
	t.allElem = sched.all.PushTail(t)
	sched.mu.Unlock()
	fn(t)
	// The boot task's return means the whole system is shutting down:
	// unlike a Spawn'd task's exit, there is no guarantee of a sibling
	// left to hand the CPU to, so this does not reschedule.
	Exit(t, false)
}

/// BootIdle installs the idle task. It must run before the first
/// Yield/Block call that might exhaust the ready queue.
func BootIdle() {
	t := newTask("idle", 0, 1)
	t.state = Blocked
	sched.mu.Lock()
	sched.idle = t
	t.allElem = sched.all.PushTail(t)
	sched.mu.Unlock()
	first := t.resume
	go func() {
		<-first
		for {
			Block(Blocked)
		}
	}()
}

/// Spawn creates a new task whose body is fn, ready to run, and links
/// it into the all-tasks list. It does not run until the scheduler
/// chooses it.
func Spawn(name string, ppid defs.Pid_t, priority int, fn func(*Task_t)) *Task_t {
	t := newTask(name, ppid, priority)
	first := t.resume
	go func() {
		<-first
		fn(t)
		finish(t)
	}()
	sched.mu.Lock()
	t.state = Ready
	t.readyElem = sched.ready.PushTail(t)
	t.allElem = sched.all.PushTail(t)
	sched.mu.Unlock()
	return t
}

func finish(t *Task_t) {
	// A task whose body returns without calling Exit behaves as if it
	// exited with status 0; used by kernel-internal helper tasks that
	// have no wait()ing parent to reap them explicitly.
	Exit(t, true)
}

/// AllTasks returns a snapshot of every task currently known to the
/// scheduler, for "ps".
func AllTasks() []*Task_t {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	var out []*Task_t
	sched.all.Iter(func(t *Task_t) bool {
		out = append(out, t)
		return false
	})
	return out
}

/// FindChild returns the first task in state want whose Ppid is pid,
/// scoped to pid's own child set rather than every live task.
func FindChild(pid defs.Pid_t, want State) (*Task_t, bool) {
	cs, ok := childIndex.Get(pid)
	if !ok {
		return nil, false
	}
	sched.mu.Lock()
	defer sched.mu.Unlock()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, t := range cs.kids {
		if t.state == want {
			return t, true
		}
	}
	return nil, false
}

/// HasChild reports whether any task has Ppid == pid.
func HasChild(pid defs.Pid_t) bool {
	cs, ok := childIndex.Get(pid)
	if !ok {
		return false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.kids) > 0
}

/// Reparent assigns every task whose Ppid is "from" to "to" (init),
/// moving their entries in childIndex along with them.
func Reparent(from, to defs.Pid_t) {
	sched.mu.Lock()
	sched.all.Iter(func(t *Task_t) bool {
		if t.Ppid == from {
			t.Ppid = to
		}
		return false
	})
	sched.mu.Unlock()

	fromSet, ok := childIndex.Get(from)
	if !ok {
		return
	}
	toSet := childSetFor(to)

	fromSet.mu.Lock()
	moved := fromSet.kids
	fromSet.kids = make(map[defs.Pid_t]*Task_t)
	fromSet.mu.Unlock()

	toSet.mu.Lock()
	for pid, t := range moved {
		toSet.kids[pid] = t
	}
	toSet.mu.Unlock()
}

func (s *sched_t) pickNext() *Task_t {
	if v, ok := s.ready.PopHead(); ok {
		v.readyElem = nil
		return v
	}
	if s.idle == nil {
		caller.Callerdump(1)
		panic("no ready task and no idle task installed")
	}
	s.idle.state = Ready
	return s.idle
}

// reschedule is the scheduler entered with the conceptual equivalent
// of interrupts disabled: it moves the calling task off the CPU into
// newState, picks the next task to run, and — if that's a different
// task — hands it the CPU and waits for its own turn to come back
// around. Block states are never re-enqueued onto the ready list.
func reschedule(newState State) {
	s := sched
	s.mu.Lock()
	cur := s.current
	cur.state = newState
	if newState == Ready {
		cur.Ticks = cur.Priority
		cur.readyElem = s.ready.PushTail(cur)
	}
	next := s.pickNext()
	next.state = Running
	s.current = next
	s.mu.Unlock()

	if next != cur {
		close(next.resume)
		next.resume = make(chan struct{})
		if newState != Died {
			<-cur.resume
		}
	}
}

// close(next.resume) above is a one-shot signal; swapping in a fresh
// channel immediately after means the next call that targets this same
// task creates a brand new rendezvous instead of re-closing a closed
// channel. cur.resume is replaced the same way by whichever later
// reschedule call eventually wakes it.
//
// That keeps the invariant that every resume channel is closed at most
// once before being replaced: reschedule is the only place a resume
// channel is closed, and it installs the fresh one in the same step.
// Unblock and pickNext never touch resume channels.

/// Yield voluntarily gives up the remainder of the time slice; the
/// caller is put back at the ready tail.
func Yield() {
	reschedule(Ready)
}

/// Block transitions the current task to one of Blocked, Waiting, or
/// Hanging and switches away from it. It returns once some other code
/// path calls Unblock on this task.
func Block(state State) {
	if state != Blocked && state != Waiting && state != Hanging {
		caller.Callerdump(1)
		panic("bad block state")
	}
	reschedule(state)
}

/// Unblock moves a blocked/waiting/hanging task to the ready head, so
/// freshly-woken tasks run soon, without itself switching away from
/// whatever task is presently running.
func Unblock(t *Task_t) {
	s := sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.state != Blocked && t.state != Waiting && t.state != Hanging {
		caller.Callerdump(1)
		panic(fmt.Sprintf("unblock of task in state %v", t.state))
	}
	t.state = Ready
	t.Ticks = t.Priority
	t.readyElem = s.ready.PushHead(t)
}

/// Tick simulates one timer interrupt against the current task: it
/// decrements Ticks and, at zero, calls the scheduler exactly as the
/// tick handler would. The ATA busy-wait calls this on each poll that
/// finds the device not ready, standing in for hardware preemption,
/// which a goroutine cannot otherwise receive mid-instruction; nothing
/// else calls it.
func Tick() {
	t := Current()
	t.CumTicks++
	t.Ticks--
	if t.Ticks <= 0 {
		Yield()
	}
}

/// Exit transitions t to Died, unlinks it from the ready and all-tasks
/// lists, and switches away if t is the caller. The PCB itself is kept
/// alive (Go's GC, not a page allocator, owns its memory) until nothing
/// references it; callers that modeled spec.md's "free the PCB page"
/// step should simply drop their last pointer to t after reaping it.
func Exit(t *Task_t, reschedule_ bool) {
	s := sched
	s.mu.Lock()
	t.state = Died
	if t.readyElem != nil {
		s.ready.Remove(t.readyElem)
		t.readyElem = nil
	}
	if t.allElem != nil {
		s.all.Remove(t.allElem)
		t.allElem = nil
	}
	wasCurrent := s.current == t
	s.mu.Unlock()

	deregisterTask(t)

	if wasCurrent && reschedule_ {
		reschedule(Died)
	}
}
