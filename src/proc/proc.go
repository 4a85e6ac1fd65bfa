// Package proc implements component K, process lifecycle: fork, exec,
// wait, exit. It is the glue layer that binds task.Task_t (scheduling),
// mem (address spaces), fd (descriptor tables), and fs (the file
// system providing exec's binary) into the process abstraction none of
// those lower packages know about by themselves — each attaches its own
// slice of per-task state through Task_t.UserData rather than task
// importing any of them, exactly as that field's doc comment intends.
package proc

import (
	"github.com/HaoLin-hub/sparrowos/src/accnt"
	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/fd"
	"github.com/HaoLin-hub/sparrowos/src/limits"
	"github.com/HaoLin-hub/sparrowos/src/task"
)

// InitPid is the pid every orphaned task is reparented to, per
// original_source/userprog/wait_exit.c's init_adopt_a_child.
const InitPid defs.Pid_t = 1

// State_t is the per-process state task.Task_t has no room for: its
// address space, its fd table and cwd, and its CPU accounting. Stored
// in Task_t.UserData.
type State_t struct {
	Addr *AddrSpace_t
	Fds  *fd.Table_t
	Cwd  *fd.Cwd_t
	Acc  *accnt.Accnt_t
}

// State recovers t's process state. Panics if t was never initialised
// by Spawn or Fork, which is always a programmer error.
func State(t *task.Task_t) *State_t {
	return t.UserData.(*State_t)
}

// Spawn creates the first process of a brand-new address space: used
// for the init task and for any kernel-started program that has no
// parent to fork from. The caller is responsible for actually creating
// the task.Task_t (task.Boot or task.Spawn); Spawn only attaches the
// process-level state to it before its body can observe t.UserData.
func Spawn(t *task.Task_t, global *fd.GlobalTable_t, cwd uint32) *State_t {
	t.Cwdino = cwd
	st := &State_t{
		Addr: NewAddrSpace(),
		Fds:  fd.MkTable(global, &t.Fds),
		Cwd:  fd.MkCwd(&t.Cwdino),
		Acc:  &accnt.Accnt_t{},
	}
	t.UserData = st
	return st
}

// Fork implements spec.md's fork: allocate a child task, deep-clone the
// parent's address space, bump the open-count/dup-count of every fd
// the child inherits, and link the child in ready to run. Unlike a real
// fork, a goroutine cannot duplicate its own call stack and resume
// twice from the point of the call, so the child's behaviour from that
// point on is whatever body runs as instead of a literal continuation
// of the parent — the same simulation trade-off spec.md's design notes
// already accept for exec's "jump" and the ATA driver's synchronous
// interrupt completion. The parent gets the child's pid back directly;
// there is no symmetrical "0" return into a resumed parent stack frame.
func Fork(parent *task.Task_t, body func(child *task.Task_t)) (*task.Task_t, defs.Err_t) {
	if !limits.Syslimit.Procs.Take() {
		return nil, defs.ENOMEM
	}
	pst := State(parent)

	childAddr, err := Clone(pst.Addr)
	if err != 0 {
		limits.Syslimit.Procs.Give()
		return nil, err
	}

	child := task.Spawn(parent.Name+"_fork", parent.Pid, parent.Priority, body)

	global := pst.Fds.Global()
	child.Fds = parent.Fds
	child.Cwdino = parent.Cwdino
	cst := &State_t{
		Addr: childAddr,
		Fds:  fd.WrapTable(global, &child.Fds),
		Cwd:  fd.MkCwd(&child.Cwdino),
		Acc:  &accnt.Accnt_t{},
	}
	child.UserData = cst

	for i := fd.FirstUserFd; i < fd.NumFds; i++ {
		gi := child.Fds[i]
		if gi == -1 {
			continue
		}
		if g := global.Get(gi); g != nil {
			g.Fops.Reopen()
		}
	}

	return child, 0
}

// Wait implements spec.md's wait: loop looking for a Hanging child;
// once found, copy its exit status, reap it (task.Exit frees its
// scheduler-side PCB linkage, task.ReleasePid frees its pid), and
// return its pid. If the caller has no children at all, return ECHILD
// immediately. Otherwise block Waiting until a child's Exit wakes this
// task, then loop again. Grounded on
// original_source/userprog/wait_exit.c's sys_wait.
func Wait(parent *task.Task_t) (defs.Pid_t, int, defs.Err_t) {
	for {
		if child, ok := task.FindChild(parent.Pid, task.Hanging); ok {
			pid := child.Pid
			status := child.ExitStatus
			task.Exit(child, false)
			task.ReleasePid(pid)
			limits.Syslimit.Procs.Give()
			return pid, status, 0
		}
		if !task.HasChild(parent.Pid) {
			return -1, 0, defs.ECHILD
		}
		task.Block(task.Waiting)
	}
}

// Exit implements spec.md's exit: reparent every child to init, release
// the address space and every open fd, wake the parent if it is
// Waiting, then block Hanging until a reaping Wait call frees this
// task's pid and scheduler linkage. It deliberately does not call
// task.Exit itself — that would unlink the task from the all-tasks
// list before a concurrent Wait's task.FindChild(_, Hanging) could ever
// see it, defeating the entire handshake. Grounded on
// original_source/userprog/wait_exit.c's sys_exit.
func Exit(t *task.Task_t, status int) {
	st := State(t)
	t.ExitStatus = status

	task.Reparent(t.Pid, InitPid)

	for i := fd.FirstUserFd; i < fd.NumFds; i++ {
		if t.Fds[i] != -1 {
			st.Fds.Close(i)
		}
	}
	st.Addr.Destroy()

	if parent, ok := task.Find(t.Ppid); ok && parent.State() == task.Waiting {
		task.Unblock(parent)
	}

	task.Block(task.Hanging)
}
