// Package limits tracks system-wide resource ceilings, trimmed from the
// teacher's networking-era Syslimit_t (biscuit/src/limits/limits.go) down
// to the handful of resources this kernel actually allocates: processes,
// open files, pipes, and disk blocks. No sockets, ARP, or route tables,
// since spec.md's Non-goals exclude networking entirely.
package limits

import (
	"sync/atomic"
	"unsafe"
)

/// Sysatomic_t is a numeric limit that can be atomically taken from and
/// given back to.
type Sysatomic_t int64

/// Syslimit_t tracks system-wide resource limits.
type Syslimit_t struct {
	// max simultaneously live processes
	Procs Sysatomic_t
	// max simultaneously open file-table rows (regular files + pipes)
	Ofiles Sysatomic_t
	// max simultaneously live pipes
	Pipes Sysatomic_t
	// max disk blocks addressable by the formatted file system
	Blocks int
}

/// Syslimit holds the configured system-wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Procs:  1024,
		Ofiles: 4096,
		Pipes:  512,
		Blocks: 1 << 20,
	}
}

func (s *Sysatomic_t) aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64(s.aptr(), int64(n))
}

/// Taken tries to decrement the limit by the provided amount, returning
/// true on success and leaving the limit unchanged on failure.
func (s *Sysatomic_t) Taken(n uint) bool {
	g := atomic.AddInt64(s.aptr(), -int64(n))
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s.aptr(), int64(n))
	return false
}

/// Take decrements the limit by one and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
