package list

import "testing"

func TestPushPopOrder(t *testing.T) {
	var l List_t[int]
	l.PushTail(1)
	l.PushTail(2)
	l.PushTail(3)
	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}
	for _, want := range []int{1, 2, 3} {
		v, ok := l.PopHead()
		if !ok || v != want {
			t.Fatalf("pophead = %d, %v, want %d, true", v, ok, want)
		}
	}
	if !l.Empty() {
		t.Fatal("expected empty list")
	}
}

func TestPushHeadPrepends(t *testing.T) {
	var l List_t[string]
	l.PushTail("b")
	l.PushHead("a")
	v, _ := l.PopHead()
	if v != "a" {
		t.Fatalf("pophead = %q, want \"a\"", v)
	}
}

func TestRemoveMiddle(t *testing.T) {
	var l List_t[int]
	l.PushTail(1)
	mid := l.PushTail(2)
	l.PushTail(3)
	l.Remove(mid)
	if l.Len() != 2 {
		t.Fatalf("len = %d, want 2", l.Len())
	}
	var got []int
	l.Iter(func(v int) bool { got = append(got, v); return false })
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("remaining = %v, want [1 3]", got)
	}
}

func TestFindWithPredicateArg(t *testing.T) {
	var l List_t[int]
	for i := 0; i < 5; i++ {
		l.PushTail(i)
	}
	e, ok := l.Find(func(v, arg int) bool { return v == arg }, 3)
	if !ok || e.Val() != 3 {
		t.Fatalf("find(3) = %v, %v", e, ok)
	}
	if _, ok := l.Find(func(v, arg int) bool { return v == arg }, 99); ok {
		t.Fatal("expected find(99) to miss")
	}
}
