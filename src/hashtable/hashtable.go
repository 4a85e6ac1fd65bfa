// Package hashtable provides a sharded, mostly lock-free hash table
// specialized to the one lookup this kernel actually needs: pid ->
// owning task. Adapted from the teacher's generic interface{}-keyed
// biscuit/src/hashtable package, narrowed with Go generics to a
// concrete key/value pair instead of a reflective one.
package hashtable

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/HaoLin-hub/sparrowos/src/defs"
)

type elem_t[V any] struct {
	key     defs.Pid_t
	value   V
	keyHash uint32
	next    *elem_t[V]
}

type bucket_t[V any] struct {
	sync.RWMutex
	first *elem_t[V]
}

func (b *bucket_t[V]) len() int {
	b.RLock()
	defer b.RUnlock()
	n := 0
	for e := b.first; e != nil; e = e.next {
		n++
	}
	return n
}

/// PidTable_t maps process IDs to an arbitrary value (in this kernel,
/// always *task.Task_t), sharded across buckets so that Get does not
/// need to take the bucket lock in the common case.
type PidTable_t[V any] struct {
	table    []*bucket_t[V]
	capacity int
}

/// MkPidTable allocates a table with the given number of buckets.
///
/// \param size number of buckets to allocate
/// \return pointer to an initialized PidTable_t.
func MkPidTable[V any](size int) *PidTable_t[V] {
	ht := &PidTable_t[V]{capacity: size}
	ht.table = make([]*bucket_t[V], size)
	for i := range ht.table {
		ht.table[i] = &bucket_t[V]{}
	}
	return ht
}

/// Size returns the total number of elements stored in the table.
func (ht *PidTable_t[V]) Size() int {
	n := 0
	for _, b := range ht.table {
		n += b.len()
	}
	return n
}

/// Get looks up pid and returns its value, without taking a lock.
///
/// \param pid process identifier to search for
/// \return stored value and true when found.
func (ht *PidTable_t[V]) Get(pid defs.Pid_t) (V, bool) {
	kh := khash(pid)
	b := ht.table[ht.hash(kh)]
	for e := loadptr(&b.first); e != nil; e = loadptr(&e.next) {
		if e.keyHash == kh && e.key == pid {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

/// Set inserts a pid/value pair. Returns false without modifying the
/// table if pid is already present.
///
/// \param pid process identifier
/// \param value data to store
/// \return true when inserted.
func (ht *PidTable_t[V]) Set(pid defs.Pid_t, value V) bool {
	kh := khash(pid)
	b := ht.table[ht.hash(kh)]
	b.Lock()
	defer b.Unlock()

	for e := b.first; e != nil; e = e.next {
		if e.keyHash == kh && e.key == pid {
			return false
		}
	}
	n := &elem_t[V]{key: pid, value: value, keyHash: kh, next: b.first}
	storeptr(&b.first, n)
	return true
}

/// Del removes pid from the table. Panics if pid is not present, since
/// every caller in this kernel already knows the pid exists (it is
/// removing its own bookkeeping entry).
///
/// \param pid process identifier to delete
func (ht *PidTable_t[V]) Del(pid defs.Pid_t) {
	kh := khash(pid)
	b := ht.table[ht.hash(kh)]
	b.Lock()
	defer b.Unlock()

	var last *elem_t[V]
	for e := b.first; e != nil; e = e.next {
		if e.keyHash == kh && e.key == pid {
			if last == nil {
				storeptr(&b.first, e.next)
			} else {
				storeptr(&last.next, e.next)
			}
			return
		}
		last = e
	}
	panic(fmt.Sprintf("del of non-existing pid %d", pid))
}

func (ht *PidTable_t[V]) hash(keyHash uint32) int {
	return int(keyHash % uint32(len(ht.table)))
}

// Without an explicit memory model this is hard to prove correct, but
// LoadPointer/StorePointer give enough ordering on x86 for Get() to
// race safely against Set()/Del() without taking the bucket lock.
func loadptr[V any](e **elem_t[V]) *elem_t[V] {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(e))
	p := atomic.LoadPointer(ptr)
	return (*elem_t[V])(p)
}

func storeptr[V any](p **elem_t[V], n *elem_t[V]) {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(p))
	atomic.StorePointer(ptr, unsafe.Pointer(n))
}

func khash(pid defs.Pid_t) uint32 {
	return uint32(2654435761) * uint32(pid)
}
