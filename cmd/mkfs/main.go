// Command mkfs formats a disk image and populates it from a host
// skeleton directory. Grounded on biscuit's src/mkfs/mkfs.go
// (copydata/addfiles walking a skeleton dir with filepath.WalkDir into
// a freshly built ufs.Ufs_t image), adapted to this module's
// fs.Format/fs.Fs_t API and to a plain data-partition image instead of
// the teacher's bootloader+kernel+fs concatenation (this module has no
// bootloader stage to splice in; cmd/kernel loads the image directly).
package main

import (
	"flag"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/HaoLin-hub/sparrowos/src/ata"
	"github.com/HaoLin-hub/sparrowos/src/fs"
)

func main() {
	image := flag.String("image", "", "path to the disk image to create (required)")
	blocks := flag.Uint("blocks", 65536, "total blocks to format the image with")
	skel := flag.String("skel", "", "host directory tree to copy into the new image (optional)")
	flag.Parse()

	if *image == "" {
		fmt.Fprintln(os.Stderr, "mkfs: -image is required")
		os.Exit(1)
	}

	backend, err := ata.OpenFileBackend(*image, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()
	ch := ata.MkChannel("primary", 14, backend)

	if err := fs.Format(ch, 0, 0, uint32(*blocks)); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: format: %v\n", err)
		os.Exit(1)
	}

	filesystem, err := fs.Mount(ch, 0, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: mount: %v\n", err)
		os.Exit(1)
	}

	if *skel != "" {
		if err := addFiles(filesystem, *skel); err != nil {
			fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
			os.Exit(1)
		}
	}
}

// skelEntry is one entry discovered under the skeleton directory: its
// path relative to the skeleton root (leading "/", as fs.SearchFile
// expects), whether it is a directory, and — for a regular file — its
// content, read in during the parallel read phase below.
type skelEntry struct {
	rel   string
	isDir bool
	data  []byte
}

// addFiles replicates skelDir's tree into filesystem in two phases.
// The host tree is walked once, sequentially, to record every
// directory and file entry in parent-before-child order — directories
// must be created before anything inside them, and fs.Fs_t's block/
// inode bitmap bookkeeping is only lock-protected per individual
// allocation call, not across a whole multi-step create-then-write, so
// the actual on-image mutations below stay single-threaded. What does
// parallelise, mirroring the teacher's own directory-walk copy but
// spread across goroutines, is the purely host-side work: reading
// every regular file's bytes off the host disk, via errgroup, before
// any of them are written into the image.
func addFiles(filesystem *fs.Fs_t, skelDir string) error {
	var entries []*skelEntry

	err := filepath.WalkDir(skelDir, func(path string, d iofs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(skelDir, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		entries = append(entries, &skelEntry{rel: "/" + filepath.ToSlash(rel), isDir: d.IsDir()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", skelDir, err)
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for _, e := range entries {
		if e.isDir {
			continue
		}
		e := e
		g.Go(func() error {
			data, rerr := os.ReadFile(filepath.Join(skelDir, e.rel))
			if rerr != nil {
				return fmt.Errorf("read %s: %w", e.rel, rerr)
			}
			e.data = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, e := range entries {
		if err := writeEntry(filesystem, e); err != nil {
			return err
		}
	}
	return nil
}

// writeEntry creates one already-discovered entry in filesystem:
// fs.SearchFile resolves (and leaves open) the parent directory the
// entry belongs in, then a directory is created with Mkdir and a file
// with CreateFile followed by a single Write of its pre-loaded bytes.
func writeEntry(filesystem *fs.Fs_t, e *skelEntry) error {
	res, err := filesystem.SearchFile(e.rel)
	if err != nil {
		return fmt.Errorf("search %s: %w", e.rel, err)
	}
	defer filesystem.CloseInode(res.Parent)

	if res.Found {
		return fmt.Errorf("create %s: already exists", e.rel)
	}

	if e.isDir {
		if err := filesystem.Mkdir(res.Parent, res.LastName); err != nil {
			return fmt.Errorf("mkdir %s: %w", e.rel, err)
		}
		return nil
	}

	f, err := filesystem.CreateFile(res.Parent, res.LastName)
	if err != nil {
		return fmt.Errorf("create %s: %w", e.rel, err)
	}
	defer f.Close()
	if _, err := f.Write(e.data); err != nil {
		return fmt.Errorf("write %s: %w", e.rel, err)
	}
	return nil
}
