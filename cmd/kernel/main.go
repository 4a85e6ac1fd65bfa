// Command kernel boots the simulator: wire up an ATA backend, mount
// (or format) a file system, install console file descriptors over
// the host's own stdin/stdout, and run a single init task whose body
// is the shell. Grounded on biscuit's kernel/main.go boot sequence
// (mem.Init, an idle task, a first forked task) adapted from a
// Multiboot bring-up to a host process that stands in for the
// hardware spec.md describes.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/HaoLin-hub/sparrowos/src/ata"
	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/fd"
	"github.com/HaoLin-hub/sparrowos/src/fs"
	"github.com/HaoLin-hub/sparrowos/src/mem"
	"github.com/HaoLin-hub/sparrowos/src/partscan"
	"github.com/HaoLin-hub/sparrowos/src/proc"
	"github.com/HaoLin-hub/sparrowos/src/shell"
	"github.com/HaoLin-hub/sparrowos/src/task"
)

func main() {
	disk := flag.String("disk", "", "path to the disk image file (required unless -mem)")
	memDisk := flag.Bool("mem", false, "back the disk with memory instead of a file, discarded on exit")
	blocks := flag.Uint("blocks", 65536, "total blocks to format when the disk is formatted (-format, or no mountable file system), and the size of a -mem disk")
	format := flag.Bool("format", false, "format the disk before mounting, instead of auto-detecting a partition")
	kernelFrames := flag.Int("kernel-frames", 256, "kernel-reserved page frames")
	userFrames := flag.Int("user-frames", 4096, "user-available page frames")
	priority := flag.Int("priority", 10, "scheduling priority of the init task")
	raw := flag.Bool("raw", true, "put stdin in raw mode so the shell's own line editor sees every keystroke")
	flag.Parse()

	if *disk == "" && !*memDisk {
		fmt.Fprintln(os.Stderr, "kernel: one of -disk or -mem is required")
		os.Exit(1)
	}

	var backend ata.Backend_i
	if *memDisk {
		backend = ata.MkMemBackend([2]int{int(*blocks), 0})
	} else {
		fb, err := ata.OpenFileBackend(*disk, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "kernel: %v\n", err)
			os.Exit(1)
		}
		defer fb.Close()
		backend = fb
	}
	ch := ata.MkChannel("primary", 14, backend)

	filesystem, err := mountOrFormat(ch, *format, uint32(*blocks))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernel: %v\n", err)
		os.Exit(1)
	}

	if *raw {
		restore, err := rawTerminal(int(os.Stdin.Fd()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "kernel: raw mode: %v (continuing without it)\n", err)
		} else {
			defer restore()
		}
	}

	mem.Init(*kernelFrames, *userFrames)
	task.BootIdle()

	task.Boot("init", *priority, func(t *task.Task_t) {
		global := fd.MkGlobalTable()
		st := proc.Spawn(t, global, fs.RootInode)

		stdinGi := global.Install(&fd.Fd_t{Fops: hostFile_t{os.Stdin}, Perms: fd.FD_READ})
		stdoutGi := global.Install(&fd.Fd_t{Fops: hostFile_t{os.Stdout}, Perms: fd.FD_WRITE})
		stderrGi := global.Install(&fd.Fd_t{Fops: hostFile_t{os.Stderr}, Perms: fd.FD_WRITE})
		st.Fds.SetStdio(0, stdinGi)
		st.Fds.SetStdio(1, stdoutGi)
		st.Fds.SetStdio(2, stderrGi)

		sh := shell.New(t, filesystem)
		sh.Run()
	})
}

// mountOrFormat implements the auto-mount-on-boot supplement: probe
// every partition partscan finds and mount the first one carrying a
// valid super-block magic, falling back to formatting (and mounting)
// the whole disk at LBA 0 when -format was requested or no partition
// mounts cleanly.
func mountOrFormat(ch *ata.Channel_t, forceFormat bool, totalBlocks uint32) (*fs.Fs_t, error) {
	if !forceFormat {
		if entries, serr := partscan.Scan(ch, 0, "disk0"); serr == nil {
			for _, e := range entries {
				if filesystem, merr := fs.Mount(ch, e.Dev, e.StartLBA); merr == nil {
					return filesystem, nil
				}
			}
		}
		if filesystem, merr := fs.Mount(ch, 0, 0); merr == nil {
			return filesystem, nil
		}
	}
	if err := fs.Format(ch, 0, 0, totalBlocks); err != nil {
		return nil, err
	}
	return fs.Mount(ch, 0, 0)
}

// hostFile_t adapts an *os.File to fd.Fops_i, standing in for the
// console device spec.md assumes already exists.
type hostFile_t struct {
	f *os.File
}

func (h hostFile_t) Read(dst []byte) (int, defs.Err_t) {
	n, err := h.f.Read(dst)
	if err != nil && n == 0 {
		return 0, defs.EIO
	}
	return n, 0
}

func (h hostFile_t) Write(src []byte) (int, defs.Err_t) {
	n, err := h.f.Write(src)
	if err != nil {
		return n, defs.EIO
	}
	return n, 0
}

func (h hostFile_t) Close() defs.Err_t  { return 0 }
func (h hostFile_t) Reopen() defs.Err_t { return 0 }

// rawTerminal puts fd into non-canonical, no-echo mode so the shell's
// own readLine sees every byte (including backspace and the Ctrl-L/
// Ctrl-U control bytes) instead of having the host tty driver's line
// discipline consume them first. The returned func restores the
// original termios.
func rawTerminal(fd int) (func(), error) {
	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	raw := *orig
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}
	return func() {
		unix.IoctlSetTermios(fd, unix.TCSETS, orig)
	}, nil
}
