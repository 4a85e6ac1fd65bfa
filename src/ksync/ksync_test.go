package ksync

import (
	"testing"

	"github.com/HaoLin-hub/sparrowos/src/task"
)

func TestSemaDownBlocksUntilUp(t *testing.T) {
	sem := MkSema(0)
	woke := false
	task.Boot("main", 5, func(self *task.Task_t) {
		task.Spawn("waiter", self.Pid, 5, func(c *task.Task_t) {
			sem.Down()
			woke = true
		})
		task.Yield()
		if woke {
			t.Error("waiter should still be blocked before Up")
		}
		sem.Up()
		task.Yield()
		task.Yield()
	})
	if !woke {
		t.Fatal("expected waiter to wake after Up")
	}
}

func TestSemaDownConsumesAvailableCount(t *testing.T) {
	sem := MkSema(1)
	task.Boot("main", 5, func(self *task.Task_t) {
		sem.Down()
	})
	if sem.Count() != 0 {
		t.Fatalf("count = %d, want 0", sem.Count())
	}
}

func TestMutexIsReentrant(t *testing.T) {
	task.Boot("main", 5, func(self *task.Task_t) {
		m := MkMutex()
		m.Lock()
		m.Lock()
		if m.Holder() != self {
			t.Error("expected self to hold mutex")
		}
		m.Unlock()
		if m.Holder() != self {
			t.Error("mutex should remain held after single unlock of double-lock")
		}
		m.Unlock()
		if m.Holder() != nil {
			t.Error("expected mutex released after matching unlocks")
		}
	})
}

func TestMutexExcludesOtherTask(t *testing.T) {
	m := MkMutex()
	var secondAcquired bool
	task.Boot("main", 5, func(self *task.Task_t) {
		m.Lock()
		task.Spawn("other", self.Pid, 5, func(c *task.Task_t) {
			m.Lock()
			secondAcquired = true
			m.Unlock()
		})
		task.Yield()
		if secondAcquired {
			t.Error("other task should not have acquired held mutex")
		}
		m.Unlock()
		task.Yield()
		task.Yield()
	})
	if !secondAcquired {
		t.Fatal("expected other task to acquire mutex after release")
	}
}

func TestUnlockByNonHolderPanics(t *testing.T) {
	m := MkMutex()
	task.Boot("main", 5, func(self *task.Task_t) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic unlocking a mutex this task never locked")
			}
		}()
		m.Unlock()
	})
}
