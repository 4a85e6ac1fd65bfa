// Package shell implements component L, the interactive command
// interpreter: a line editor, pipeline composition over "|", and a
// built-in command set, with anything else loaded from disk via
// proc.Exec. Grounded on original_source/shell/shell.c and
// original_source/shell/pipe.c, since biscuit never shipped a shell of
// its own — its programs are launched by a test harness instead.
package shell

import (
	"fmt"

	"github.com/HaoLin-hub/sparrowos/src/fd"
	"github.com/HaoLin-hub/sparrowos/src/fs"
	"github.com/HaoLin-hub/sparrowos/src/proc"
	"github.com/HaoLin-hub/sparrowos/src/task"
)

// backspace, ctrlL and ctrlU are the control bytes readLine reacts to,
// taken verbatim from shell.c's readline: 'l'-'a' and 'u'-'a' rather
// than the usual Ctrl+key-plus-one convention.
const (
	backspace = '\b'
	ctrlL     = 'l' - 'a'
	ctrlU     = 'u' - 'a'
)

// maxLine bounds one line of input, mirroring shell.c's cmd_len.
const maxLine = 128

// Shell_t is one running shell instance: the task it executes as, that
// task's process state, and the mounted file system programs and
// built-ins operate against.
type Shell_t struct {
	t        *task.Task_t
	st       *proc.State_t
	fs       *fs.Fs_t
	cwdCache string
}

// New constructs a shell bound to t, which must already have been
// initialised by proc.Spawn or proc.Fork.
func New(t *task.Task_t, filesystem *fs.Fs_t) *Shell_t {
	sh := &Shell_t{t: t, st: proc.State(t), fs: filesystem}
	sh.refreshCwd()
	return sh
}

func (sh *Shell_t) refreshCwd() {
	cwd, err := sh.fs.Getcwd(sh.st.Cwd.Get())
	if err != nil {
		sh.cwdCache = "/"
		return
	}
	sh.cwdCache = cwd
}

// ctx_t is the execution context a built-in or pipeline stage runs
// against: either the shell's own task (a direct, single-stage
// built-in, so cd/mkdir/etc. affect the shell itself) or a forked
// child's (one stage of a multi-stage pipeline, so its side effects
// stay local to that child exactly as a subshell's would).
type ctx_t struct {
	t  *task.Task_t
	st *proc.State_t
	fs *fs.Fs_t
}

func (c *ctx_t) stdout() *fd.Fd_t {
	f, err := c.st.Fds.Fd_local2global(1)
	if err != 0 {
		return nil
	}
	return f
}

func (c *ctx_t) write(s string) {
	if f := c.stdout(); f != nil {
		f.Fops.Write([]byte(s))
	}
}

// writeByte writes a single byte to the shell's own stdout, used by
// readLine for echo and screen control.
func (sh *Shell_t) writeByte(b byte) {
	f, err := sh.st.Fds.Fd_local2global(1)
	if err != 0 {
		return
	}
	f.Fops.Write([]byte{b})
}

func (sh *Shell_t) writeString(s string) {
	f, err := sh.st.Fds.Fd_local2global(1)
	if err != 0 {
		return
	}
	f.Fops.Write([]byte(s))
}

// printPrompt writes spec.md's shell prompt: "[user@host cwd]$ ".
func (sh *Shell_t) printPrompt() {
	sh.writeString(fmt.Sprintf("[user@host %s]$ ", sh.cwdCache))
}

// clearScreen emits the ANSI clear-and-home sequence; there is no
// console device in this kernel model, so this is the portable
// stand-in for shell.c's clear() call into the text console driver.
func (sh *Shell_t) clearScreen() {
	sh.writeString("\x1b[2J\x1b[H")
}

// readLine reads one line from stdin a byte at a time, exactly as
// shell.c's readline does over its own stdin_no, handling Enter,
// backspace, Ctrl-L and Ctrl-U. It returns ok=false on EOF (no bytes
// read at all).
func (sh *Shell_t) readLine() (string, bool) {
	in, err := sh.st.Fds.Fd_local2global(0)
	if err != 0 {
		return "", false
	}

	buf := make([]byte, 0, maxLine)
	one := make([]byte, 1)
	for len(buf) < maxLine {
		n, rerr := in.Fops.Read(one)
		if rerr != 0 || n == 0 {
			return string(buf), len(buf) > 0
		}
		c := one[0]
		switch {
		case c == '\n' || c == '\r':
			sh.writeByte('\n')
			return string(buf), true
		case c == backspace:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
				sh.writeByte('\b')
			}
		case c == ctrlL:
			buf = buf[:0]
			sh.clearScreen()
			sh.printPrompt()
		case c == ctrlU:
			for len(buf) > 0 {
				buf = buf[:len(buf)-1]
				sh.writeByte('\b')
			}
		default:
			buf = append(buf, c)
			sh.writeByte(c)
		}
	}
	return string(buf), true
}

// Run is the shell's main loop: print the prompt, read a line, parse
// and execute it, repeat until stdin closes.
func (sh *Shell_t) Run() {
	for {
		sh.printPrompt()
		line, ok := sh.readLine()
		if !ok {
			return
		}
		stages := Parse(line)
		if len(stages) == 0 {
			continue
		}
		sh.execute(stages)
	}
}
