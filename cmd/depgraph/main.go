// Command depgraph prints a Graphviz DOT description of this module's
// own package dependency graph. Originally (teacher) a thin wrapper
// shelling out to `go mod graph`, which only reports module-to-module
// edges; rebuilt on golang.org/x/tools/go/packages to walk the actual
// package-level import graph of src/... directly, giving an edge per
// import rather than per dependency module.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"golang.org/x/tools/go/packages"
)

func main() {
	pattern := flag.String("pattern", "./src/...", "package pattern to load, as given to `go list`")
	flag.Parse()

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps,
	}
	pkgs, err := packages.Load(cfg, *pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "depgraph: %v\n", err)
		os.Exit(1)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	fmt.Fprintln(w, "digraph deps {")
	seen := make(map[string]bool)
	for _, pkg := range pkgs {
		walk(w, pkg, seen)
	}
	fmt.Fprintln(w, "}")
}

// walk emits pkg's import edges and recurses into each imported
// package exactly once, so a package reached through more than one
// path in the graph is only expanded the first time.
func walk(w *bufio.Writer, pkg *packages.Package, seen map[string]bool) {
	if seen[pkg.PkgPath] {
		return
	}
	seen[pkg.PkgPath] = true
	for path, imp := range pkg.Imports {
		fmt.Fprintf(w, "    %q -> %q;\n", pkg.PkgPath, path)
		walk(w, imp, seen)
	}
}
