package shell

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/fs"
	"github.com/HaoLin-hub/sparrowos/src/task"
)

// builtins is spec.md's shell surface built-in set: ls, cd, pwd, ps,
// clear, mkdir, rmdir, rm, help. Each returns the exit status a forked
// pipeline stage would carry to proc.Wait.
var builtins = map[string]func(c *ctx_t, argv []string) int{
	"ls":     builtinLs,
	"cd":     builtinCd,
	"pwd":    builtinPwd,
	"ps":     builtinPs,
	"clear":  builtinClear,
	"mkdir":  builtinMkdir,
	"rmdir":  builtinRmdir,
	"rm":     builtinRm,
	"help":   builtinHelp,
}

// resolvePath turns argv's possibly-relative path into an absolute
// one against ctx's current directory, since fs.SearchFile always
// descends from the root.
func resolvePath(c *ctx_t, path string) string {
	if path == "" {
		path = "."
	}
	if path[0] == '/' {
		return path
	}
	cwd, err := c.fs.Getcwd(c.st.Cwd.Get())
	if err != nil {
		cwd = "/"
	}
	if cwd == "/" {
		return "/" + path
	}
	return cwd + "/" + path
}

// displayWidth measures path's on-screen column width, widening every
// East Asian wide or fullwidth rune to two cells, so ls and ps keep
// their columns aligned even when a name carries non-Latin text.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		p, _ := width.LookupRune(r)
		switch p.Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w += 2
		default:
			w++
		}
	}
	return w
}

func padRight(s string, n int) string {
	w := displayWidth(s)
	if w >= n {
		return s
	}
	return s + strings.Repeat(" ", n-w)
}

func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = displayWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := displayWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	var b strings.Builder
	for i, h := range header {
		b.WriteString(padRight(h, widths[i]+2))
	}
	b.WriteByte('\n')
	for _, row := range rows {
		for i, cell := range row {
			b.WriteString(padRight(cell, widths[i]+2))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// termWidth is the column budget ls wraps its grid at; real consoles
// vary, but nothing in this kernel model exposes a tty size ioctl.
const termWidth = 80

func renderGrid(names []string) string {
	if len(names) == 0 {
		return ""
	}
	maxw := 0
	for _, n := range names {
		if w := displayWidth(n); w > maxw {
			maxw = w
		}
	}
	cols := termWidth / (maxw + 2)
	if cols < 1 {
		cols = 1
	}
	var b strings.Builder
	for i, n := range names {
		b.WriteString(padRight(n, maxw+2))
		if (i+1)%cols == 0 {
			b.WriteByte('\n')
		}
	}
	if len(names)%cols != 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

// ftypeName renders a stat.Stat_t's file type the way ls -l shows it.
func ftypeName(ft defs.Ftype_t) string {
	if ft == defs.FT_DIR {
		return "dir"
	}
	return "file"
}

// lsLongRow stats e's inode and renders one ls -l row through
// stat.Stat_t's accessors, the same struct fs.Stat returns for sys_stat.
func lsLongRow(c *ctx_t, e fs.Dirent_t) []string {
	ino, err := c.fs.OpenInode(e.InodeNo, e.Ftype)
	if err != nil {
		return []string{"?", "?", ftypeName(e.Ftype), e.Name}
	}
	st := fs.Stat(ino)
	c.fs.CloseInode(ino)
	return []string{
		strconv.Itoa(int(st.Size())),
		strconv.Itoa(int(st.Blocks())),
		ftypeName(st.Ftype()),
		e.Name,
	}
}

func builtinLs(c *ctx_t, argv []string) int {
	args := argv[1:]
	long := false
	if len(args) > 0 && args[0] == "-l" {
		long = true
		args = args[1:]
	}

	ino := c.st.Cwd.Get()
	if len(args) > 0 {
		res, err := c.fs.SearchFile(resolvePath(c, args[0]))
		if err != nil || !res.Found {
			c.write("ls: " + args[0] + ": No such file or directory\n")
			if err == nil {
				c.fs.CloseInode(res.Parent)
			}
			return 1
		}
		c.fs.CloseInode(res.Parent)
		if res.Ftype != defs.FT_DIR {
			if long {
				c.write(renderTable([]string{"SIZE", "BLOCKS", "TYPE", "NAME"},
					[][]string{lsLongRow(c, fs.Dirent_t{Name: args[0], InodeNo: res.InodeNo, Ftype: res.Ftype})}))
			} else {
				c.write(args[0] + "\n")
			}
			return 0
		}
		ino = res.InodeNo
	}

	d, err := c.fs.Opendir(ino)
	if err != nil {
		c.write("ls: cannot open directory\n")
		return 1
	}
	defer d.Closedir()

	var ents []fs.Dirent_t
	for {
		ent, ok, err := d.Readdir()
		if err != nil || !ok {
			break
		}
		ents = append(ents, ent)
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].Name < ents[j].Name })

	if !long {
		names := make([]string, len(ents))
		for i, e := range ents {
			names[i] = e.Name
		}
		c.write(renderGrid(names))
		return 0
	}

	var rows [][]string
	for _, e := range ents {
		rows = append(rows, lsLongRow(c, e))
	}
	c.write(renderTable([]string{"SIZE", "BLOCKS", "TYPE", "NAME"}, rows))
	return 0
}

func builtinCd(c *ctx_t, argv []string) int {
	target := "/"
	if len(argv) > 1 {
		target = argv[1]
	}
	ino, err := c.fs.Chdir(resolvePath(c, target))
	if err != nil {
		c.write("cd: " + target + ": No such file or directory\n")
		return 1
	}
	c.st.Cwd.Set(ino)
	return 0
}

func builtinPwd(c *ctx_t, argv []string) int {
	cwd, err := c.fs.Getcwd(c.st.Cwd.Get())
	if err != nil {
		cwd = "/"
	}
	c.write(cwd + "\n")
	return 0
}

func builtinPs(c *ctx_t, argv []string) int {
	header := []string{"PID", "PPID", "STATE", "NAME"}
	var rows [][]string
	for _, t := range task.AllTasks() {
		rows = append(rows, []string{
			strconv.Itoa(int(t.Pid)),
			strconv.Itoa(int(t.Ppid)),
			t.State().String(),
			t.Name,
		})
	}
	c.write(renderTable(header, rows))
	return 0
}

func builtinClear(c *ctx_t, argv []string) int {
	c.write("\x1b[2J\x1b[H")
	return 0
}

func builtinMkdir(c *ctx_t, argv []string) int {
	if len(argv) < 2 {
		c.write("mkdir: missing operand\n")
		return 1
	}
	status := 0
	for _, name := range argv[1:] {
		res, err := c.fs.SearchFile(resolvePath(c, name))
		if err != nil {
			c.write("mkdir: " + name + ": " + err.Error() + "\n")
			status = 1
			continue
		}
		if res.Found {
			c.fs.CloseInode(res.Parent)
			c.write("mkdir: " + name + ": File exists\n")
			status = 1
			continue
		}
		if merr := c.fs.Mkdir(res.Parent, res.LastName); merr != nil {
			c.write("mkdir: " + name + ": " + merr.Error() + "\n")
			status = 1
		}
		c.fs.CloseInode(res.Parent)
	}
	return status
}

func builtinRmdir(c *ctx_t, argv []string) int {
	if len(argv) < 2 {
		c.write("rmdir: missing operand\n")
		return 1
	}
	status := 0
	for _, name := range argv[1:] {
		res, err := c.fs.SearchFile(resolvePath(c, name))
		if err != nil || !res.Found {
			c.write("rmdir: " + name + ": No such file or directory\n")
			if err == nil {
				c.fs.CloseInode(res.Parent)
			}
			status = 1
			continue
		}
		if rerr := c.fs.Rmdir(res.Parent, res.LastName); rerr != nil {
			c.write("rmdir: " + name + ": " + rerr.Error() + "\n")
			status = 1
		}
		c.fs.CloseInode(res.Parent)
	}
	return status
}

func builtinRm(c *ctx_t, argv []string) int {
	if len(argv) < 2 {
		c.write("rm: missing operand\n")
		return 1
	}
	status := 0
	for _, name := range argv[1:] {
		res, err := c.fs.SearchFile(resolvePath(c, name))
		if err != nil || !res.Found {
			c.write("rm: " + name + ": No such file or directory\n")
			if err == nil {
				c.fs.CloseInode(res.Parent)
			}
			status = 1
			continue
		}
		if uerr := c.fs.Unlink(res.Parent, res.LastName); uerr != nil {
			c.write("rm: " + name + ": " + uerr.Error() + "\n")
			status = 1
		}
		c.fs.CloseInode(res.Parent)
	}
	return status
}

func builtinHelp(c *ctx_t, argv []string) int {
	c.write(strings.Join([]string{
		"built-in commands: ls cd pwd ps clear mkdir rmdir rm help",
		"anything else is looked up on disk and run via exec",
		"pipelines: cmd1 | cmd2 | cmd3",
		"",
	}, "\n"))
	return 0
}
