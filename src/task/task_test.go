package task

import "testing"

func TestAllocReleasePid(t *testing.T) {
	p1 := AllocPid()
	p2 := AllocPid()
	if p1 == p2 {
		t.Fatalf("expected distinct pids, got %d twice", p1)
	}
	ReleasePid(p1)
	p3 := AllocPid()
	if p3 != p1 {
		t.Fatalf("expected released pid %d to be reused, got %d", p1, p3)
	}
	ReleasePid(p2)
	ReleasePid(p3)
}

func TestYieldAloneIsNoop(t *testing.T) {
	ran := false
	Boot("solo", 5, func(self *Task_t) {
		Yield()
		Yield()
		ran = true
	})
	if !ran {
		t.Fatal("Boot should run its body synchronously to completion when no other task exists")
	}
}

// TestSpawnAndYieldInterleave checks that a spawned task actually gets
// the CPU via round-robin Yield, and that control always returns to the
// boot task once the spawned task exits.
func TestSpawnAndYieldInterleave(t *testing.T) {
	var order []string
	Boot("main", 5, func(self *Task_t) {
		Spawn("child", self.Pid, 5, func(c *Task_t) {
			order = append(order, "child-1")
			Yield()
			order = append(order, "child-2")
		})
		order = append(order, "main-1")
		Yield()
		order = append(order, "main-2")
		Yield()
	})
	want := []string{"main-1", "child-1", "main-2", "child-2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestBlockUnblock(t *testing.T) {
	woke := false
	Boot("main", 5, func(self *Task_t) {
		child := Spawn("waiter", self.Pid, 5, func(c *Task_t) {
			Block(Blocked)
			woke = true
		})
		Yield()
		Unblock(child)
		Yield()
		Yield()
	})
	if !woke {
		t.Fatal("expected child to wake after Unblock")
	}
}
