// Package pipe implements component J: pipe() and the ring-buffer
// read/write path layered on src/circbuf and src/fd. Grounded on
// original_source/shell/pipe.c's sys_pipe/pipe_read/pipe_write (a
// kernel page holding one ioqueue shared by both descriptors, dup
// count stored where the file table otherwise keeps a seek position)
// mapped onto this kernel's src/circbuf ring and src/fd.Fops_i.
package pipe

import (
	"github.com/HaoLin-hub/sparrowos/src/circbuf"
	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/fd"
)

/// Pipe_t is the shared state behind both ends of one pipe: a single
/// ring buffer and a dup count standing in for spec.md's fd_pos==2
/// reuse (how many descriptors currently reference this pipe, across
/// both ends and any dup()/fork() copies).
type Pipe_t struct {
	ring    circbuf.Circbuf_t
	dupCnt  int
}

/// End_t is one end of a pipe (read or write), installed behind a
/// fd.Fd_t as its Fops_i.
type End_t struct {
	p       *Pipe_t
	canRead bool
}

var _ fd.Fops_i = (*End_t)(nil)

// Read implements spec.md §4.J's pipe read: bounded to
// min(count, length) so the caller observes a partial transfer rather
// than blocking, mirroring original_source/shell/pipe.c's pipe_read.
func (e *End_t) Read(dst []byte) (int, defs.Err_t) {
	if !e.canRead {
		return 0, defs.EINVAL
	}
	return e.p.ring.Read(dst), 0
}

// Write implements spec.md §4.J's pipe write: bounded to
// min(count, free), mirroring pipe_write.
func (e *End_t) Write(src []byte) (int, defs.Err_t) {
	if e.canRead {
		return 0, defs.EINVAL
	}
	return e.p.ring.Write(src), 0
}

/// Reopen bumps the pipe's dup count, per spec.md's fd_pos==dup-count
/// reuse: every Copyfd (dup2, fork inheritance) on a pipe end counts
/// against the same total as the two ends pipe() installed.
func (e *End_t) Reopen() defs.Err_t {
	e.p.dupCnt++
	return 0
}

/// Close decrements the pipe's dup count; at zero, the ring buffer (a
/// single allocation shared by both ends) has no more referents and is
/// simply dropped for the garbage collector, replacing spec.md's
/// explicit kernel-page free.
func (e *End_t) Close() defs.Err_t {
	e.p.dupCnt--
	return 0
}

/// Pipe implements spec.md's pipe(fd[2]): allocate one ring buffer
/// shared by a read end and a write end, install both into the
/// global file table, and install both into the calling task's local
/// fd table. Returns the two local fd numbers in read, write order.
func Pipe(global *fd.GlobalTable_t, local *fd.Table_t) (rfd, wfd int, err defs.Err_t) {
	p := &Pipe_t{dupCnt: 2}
	readEnd := &End_t{p: p, canRead: true}
	writeEnd := &End_t{p: p, canRead: false}

	rgi := global.Install(&fd.Fd_t{Fops: readEnd, Perms: fd.FD_READ})
	wgi := global.Install(&fd.Fd_t{Fops: writeEnd, Perms: fd.FD_WRITE})

	rfd, err = local.InstallFd(rgi)
	if err != 0 {
		global.Free(rgi)
		global.Free(wgi)
		return -1, -1, err
	}
	wfd, err = local.InstallFd(wgi)
	if err != 0 {
		local.Close(rfd)
		global.Free(wgi)
		return -1, -1, err
	}
	return rfd, wfd, 0
}
