// Package circbuf implements the 2048-byte single-producer/single-
// consumer ring buffer backing pipes and the console, component E.
// Adapted from biscuit/src/circbuf/circbuf.go: kept the Full/Empty/
// Left naming and the modular-arithmetic wraparound copy shape,
// but replaced the teacher's fdops.Userio_i source/sink abstraction
// (built for zero-copy userspace iovecs over a real page) with plain
// []byte put/get, and replaced the teacher's bufsz-head-tail counters
// (head/tail only ever grow, modulo'd on every access) with the
// classic head==tail-means-empty / (head+1)%N==tail-means-full scheme
// spec.md specifies, which needs exactly one spare slot. Blocking is
// new: the teacher's circbuf is never itself a blocking point (TCP
// sockets block elsewhere); this one blocks a full producer or an
// empty consumer directly on the scheduler, grounded on
// original_source/device/ioqueue.c's single-waiter-per-side design,
// since a pipe's reader and writer are exactly one task each.
package circbuf

import (
	"github.com/HaoLin-hub/sparrowos/src/task"
)

/// Size is the fixed capacity of a ring buffer in bytes. One slot is
/// always left empty to distinguish full from empty by index alone.
const Size = 2048

/// Circbuf_t is a bounded byte queue with room for exactly one blocked
/// producer and one blocked consumer at a time. It is not safe for more
/// than one producer or more than one consumer to call concurrently.
type Circbuf_t struct {
	buf  [Size]byte
	head int
	tail int

	producer *task.Task_t
	consumer *task.Task_t
}

func (cb *Circbuf_t) next(i int) int {
	return (i + 1) % Size
}

/// Full reports whether the buffer can accept no further bytes.
func (cb *Circbuf_t) Full() bool {
	return cb.next(cb.head) == cb.tail
}

/// Empty reports whether the buffer holds no bytes.
func (cb *Circbuf_t) Empty() bool {
	return cb.head == cb.tail
}

/// Length returns the number of bytes currently queued.
func (cb *Circbuf_t) Length() int {
	return ((cb.head - cb.tail) + Size) % Size
}

/// Left returns the number of bytes that can still be written before
/// the buffer is full.
func (cb *Circbuf_t) Left() int {
	return Size - 1 - cb.Length()
}

/// Write copies min(len(src), free space) bytes into the buffer without
/// blocking, for callers (pipe writes) that implement the partial-
/// transfer semantics themselves. It returns the count written.
func (cb *Circbuf_t) Write(src []byte) int {
	n := len(src)
	if left := cb.Left(); n > left {
		n = left
	}
	for i := 0; i < n; i++ {
		cb.buf[cb.head] = src[i]
		cb.head = cb.next(cb.head)
	}
	if n > 0 && cb.consumer != nil {
		w := cb.consumer
		cb.consumer = nil
		task.Unblock(w)
	}
	return n
}

/// Read copies min(len(dst), queued bytes) bytes out of the buffer
/// without blocking. It returns the count read.
func (cb *Circbuf_t) Read(dst []byte) int {
	n := len(dst)
	if avail := cb.Length(); n > avail {
		n = avail
	}
	for i := 0; i < n; i++ {
		dst[i] = cb.buf[cb.tail]
		cb.tail = cb.next(cb.tail)
	}
	if n > 0 && cb.producer != nil {
		w := cb.producer
		cb.producer = nil
		task.Unblock(w)
	}
	return n
}

/// BlockingWrite writes all of src, blocking the calling task whenever
/// the buffer is full until a reader drains it. Only one task may be
/// blocked as producer at a time; a second concurrent blocking writer
/// is a caller bug.
func (cb *Circbuf_t) BlockingWrite(src []byte) {
	off := 0
	for off < len(src) {
		n := cb.Write(src[off:])
		off += n
		if off < len(src) {
			if cb.producer != nil {
				panic("circbuf already has a blocked producer")
			}
			cb.producer = task.Current()
			task.Block(task.Blocked)
		}
	}
}

/// BlockingRead reads exactly len(dst) bytes, blocking the calling task
/// whenever the buffer is empty until a writer fills it. Only one task
/// may be blocked as consumer at a time.
func (cb *Circbuf_t) BlockingRead(dst []byte) {
	off := 0
	for off < len(dst) {
		n := cb.Read(dst[off:])
		off += n
		if off < len(dst) {
			if cb.consumer != nil {
				panic("circbuf already has a blocked consumer")
			}
			cb.consumer = task.Current()
			task.Block(task.Blocked)
		}
	}
}
