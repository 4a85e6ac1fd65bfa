package shell

import (
	"github.com/HaoLin-hub/sparrowos/src/fs"
	"github.com/HaoLin-hub/sparrowos/src/pipe"
	"github.com/HaoLin-hub/sparrowos/src/proc"
	"github.com/HaoLin-hub/sparrowos/src/task"
)

// execute runs one parsed command line: a lone built-in runs directly
// in the shell's own task (so cd, mkdir and friends affect the shell
// itself), anything else — a lone external program or a multi-stage
// "|" pipeline — forks one child per stage and waits for all of them,
// mirroring pipe.c's sys_fd_redirect plumbing between each pair of
// adjacent stages.
func (sh *Shell_t) execute(stages [][]string) {
	if len(stages) == 1 {
		if fn, ok := builtins[stages[0][0]]; ok {
			c := &ctx_t{t: sh.t, st: sh.st, fs: sh.fs}
			fn(c, stages[0])
			sh.refreshCwd()
			return
		}
	}
	sh.runPipeline(stages)
}

// runPipeline forks stages in order, redirecting each stage's stdin to
// the previous stage's pipe read end and its stdout to a fresh pipe's
// write end (the last stage keeps the shell's own stdout). The shell's
// own stdio bindings are saved with fd.Table_t.RawGlobal and restored
// with SetStdio around each fork, since original_source/shell/pipe.c's
// literal-integer restore trick does not translate to this table's
// dynamically-allocated global indices (see fd.Table_t.RawGlobal's doc
// comment). Every stage completes in full before the scheduler ever
// returns control to the shell (src/task's cooperative scheduler only
// switches at a Block/Exit), so a later stage always sees everything
// an earlier one wrote to the pipe joining them despite neither end
// blocking on empty or full.
//
// Every pipe-end local descriptor stays open in the shell's own table
// until every stage has been reaped: fd.Table_t.Close frees the global
// slot outright, with no regard for other aliases still pointing at
// it (the stdio slots a fork copies into a child's own table), so
// closing one early would yank a still-running stage's stdin or
// stdout out from under it.
func (sh *Shell_t) runPipeline(stages [][]string) {
	local := sh.st.Fds
	savedIn := local.RawGlobal(0)
	savedOut := local.RawGlobal(1)
	global := local.Global()

	n := 0
	prevReadLocal := -1
	var pipeLocals []int

	for i, argv := range stages {
		if prevReadLocal != -1 {
			local.SetStdio(0, local.RawGlobal(prevReadLocal))
		}

		if i < len(stages)-1 {
			rfd, wfd, perr := pipe.Pipe(global, local)
			if perr != 0 {
				sh.writeString("shell: pipe: cannot create\n")
				break
			}
			local.SetStdio(1, local.RawGlobal(wfd))
			pipeLocals = append(pipeLocals, rfd, wfd)
			prevReadLocal = rfd
		} else {
			prevReadLocal = -1
		}

		_, ferr := proc.Fork(sh.t, func(c *task.Task_t) {
			runStage(c, sh.fs, argv)
		})

		local.SetStdio(0, savedIn)
		local.SetStdio(1, savedOut)

		if ferr != 0 {
			sh.writeString("shell: fork: cannot create process\n")
			break
		}
		n++
	}

	for i := 0; i < n; i++ {
		proc.Wait(sh.t)
	}

	for _, lf := range pipeLocals {
		local.Close(lf)
	}
}

// runStage is a forked pipeline stage's body: resolve argv[0] as a
// built-in or an on-disk program and run it, then exit carrying the
// result as the process's exit status.
func runStage(c *task.Task_t, filesystem *fs.Fs_t, argv []string) {
	ctx := &ctx_t{t: c, st: proc.State(c), fs: filesystem}
	if fn, ok := builtins[argv[0]]; ok {
		proc.Exit(c, fn(ctx, argv))
		return
	}
	proc.Exit(c, runExternal(ctx, argv))
}

// runExternal resolves argv[0] against the current directory (or
// takes it as-is if already absolute) and loads it via proc.Exec,
// mirroring shell.c's cmd_execute else-branch. This kernel model never
// executes loaded instructions (exec.go's ExecResult documents the
// same limit), so a successful load's exit status stands in for
// "the program ran and returned 0".
func runExternal(c *ctx_t, argv []string) int {
	path := argv[0]
	if len(path) == 0 || path[0] != '/' {
		cwd, err := c.fs.Getcwd(c.st.Cwd.Get())
		if err != nil {
			cwd = "/"
		}
		path = cwd + "/" + path
	}
	if _, eerr := proc.Exec(c.t, c.fs, path, argv); eerr != 0 {
		c.write("shell: " + argv[0] + ": command not found\n")
		return 127
	}
	return 0
}
