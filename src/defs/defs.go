// Package defs holds the error codes, handle types, and wire constants
// shared by every kernel package, mirroring the teacher's own defs
// package: a single dependency-free leaf everything else imports.
package defs

/// Err_t is the kernel-wide error return type. Zero means success;
/// a nonzero value is one of the E-constants below.
type Err_t int

// Error codes returned by system calls. Values are the small positive
// errno numbers, and callers return them as is ("defs.EFOO").
const (
	EPERM     Err_t = 1
	ENOENT    Err_t = 2
	ESRCH     Err_t = 3
	EINTR     Err_t = 4
	EIO       Err_t = 5
	EBADF     Err_t = 9
	ECHILD    Err_t = 10
	ENOMEM    Err_t = 12
	EACCES    Err_t = 13
	EFAULT    Err_t = 14
	EEXIST    Err_t = 17
	ENOTDIR   Err_t = 20
	EISDIR    Err_t = 21
	EINVAL    Err_t = 22
	ENFILE    Err_t = 23
	EMFILE    Err_t = 24
	ENOSPC    Err_t = 28
	ESPIPE    Err_t = 29
	ENAMETOOLONG Err_t = 36
	ENOTEMPTY Err_t = 39
	ENOSYS    Err_t = 38
)

/// Tid_t identifies a task (there is one thread per task in this kernel).
type Tid_t int

/// Pid_t identifies a process.
type Pid_t int

// Open flags for sys_open, matching spec.md §6's system-call surface.
const (
	O_RDONLY int = 0
	O_WRONLY int = 1
	O_RDWR   int = 2
	O_CREAT  int = 0x40
)

// Seek whence values for sys_lseek.
const (
	SEEK_SET int = 0
	SEEK_CUR int = 1
	SEEK_END int = 2
)

// File types stored in a directory entry, per spec.md §6.
type Ftype_t uint8

const (
	FT_UNKNOWN  Ftype_t = 0
	FT_REGULAR  Ftype_t = 1
	FT_DIR      Ftype_t = 2
)

// Device class used by fd.Fd_t for the few non-regular-file descriptors
// this kernel knows about (console and pipes); regular files and
// directories go through src/fs instead. Grounded on the teacher's
// device-id scheme in biscuit/src/defs/device.go, trimmed to what this
// kernel actually has (no sockets, no /dev/null, no profiling device).
const (
	D_CONSOLE int = 1
	D_PIPE    int = 2
)
