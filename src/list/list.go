// Package list implements an intrusive doubly-linked list, the
// container every queue in this kernel (ready queue, all-tasks list,
// waiter slots, open-inodes list) is built on. Grounded on the
// teacher's container style (small, allocation-free, no reflection)
// rather than any one biscuit file, since the teacher keeps its lists
// inline inside the structures that use them; this kernel factors the
// pattern out once so every queue shares it.
package list

/// Elem_t is one list node, allocated by PushHead/PushTail and carrying
/// its value; the owner keeps the returned pointer to Remove it later.
type Elem_t[T any] struct {
	next *Elem_t[T]
	prev *Elem_t[T]
	val  T
}

/// Val returns the value carried by this element.
func (e *Elem_t[T]) Val() T {
	return e.val
}

/// List_t is a doubly-linked list with plain head/tail pointers that are
/// nil when empty; it has no sentinel nodes. Append, push, pop, and
/// remove are all O(1).
type List_t[T any] struct {
	head *Elem_t[T]
	tail *Elem_t[T]
	n    int
}

/// Len returns the number of elements currently linked.
func (l *List_t[T]) Len() int {
	return l.n
}

/// Empty reports whether the list has no elements.
func (l *List_t[T]) Empty() bool {
	return l.n == 0
}

/// PushHead links a new element carrying v at the front of the list
/// and returns it so the caller can later Remove it directly.
func (l *List_t[T]) PushHead(v T) *Elem_t[T] {
	e := &Elem_t[T]{val: v}
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	} else {
		l.tail = e
	}
	l.head = e
	l.n++
	return e
}

/// PushTail links a new element carrying v at the back of the list.
func (l *List_t[T]) PushTail(v T) *Elem_t[T] {
	e := &Elem_t[T]{val: v}
	e.prev = l.tail
	if l.tail != nil {
		l.tail.next = e
	} else {
		l.head = e
	}
	l.tail = e
	l.n++
	return e
}

/// PopHead unlinks and returns the front element's value.
func (l *List_t[T]) PopHead() (T, bool) {
	var zero T
	if l.head == nil {
		return zero, false
	}
	e := l.head
	l.Remove(e)
	return e.val, true
}

/// Remove unlinks e from the list. e must currently belong to l.
func (l *List_t[T]) Remove(e *Elem_t[T]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.next, e.prev = nil, nil
	l.n--
}

/// Find returns the first element for which pred reports true, along
/// with ok=true, scanning head to tail.
///
/// \param pred predicate taking the candidate value and an arbitrary
///             integer argument supplied by the caller.
/// \param arg  argument forwarded to pred on every call.
func (l *List_t[T]) Find(pred func(v T, arg int) bool, arg int) (*Elem_t[T], bool) {
	for e := l.head; e != nil; e = e.next {
		if pred(e.val, arg) {
			return e, true
		}
	}
	return nil, false
}

/// Iter calls f on every element's value, head to tail, stopping early
/// if f returns true.
func (l *List_t[T]) Iter(f func(T) bool) {
	for e := l.head; e != nil; e = e.next {
		if f(e.val) {
			return
		}
	}
}
