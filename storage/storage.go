package storage

import (
	"strings"
	"time"

	"github.com/mlhaufe/nufs/directory"
	"github.com/mlhaufe/nufs/errors"
	"github.com/mlhaufe/nufs/image"
	"github.com/mlhaufe/nufs/inode"
)

// Storage is the path-addressed filesystem core bound to one open image.
// Every exported method here is the Go analogue of one storage_*
// function in the original source, restated against the typed
// image/inode/directory packages instead of raw blocks_get_block calls.
type Storage struct {
	Image *image.Image
	Inodes *inode.Table
}

// New wraps an already-opened, already-InitLayout'd image as a Storage.
// Callers must still call Init before using it, the same way storage_init
// bootstraps the root directory on top of blocks_init.
func New(img *image.Image) *Storage {
	return &Storage{Image: img, Inodes: inode.NewTable(img)}
}

// Init ensures the image has a valid root directory, creating one if the
// persisted root inode number is absent or doesn't name a directory.
// Mirrors storage_init's root-bootstrap branch exactly, including
// reusing whatever root inode number was already persisted when it is
// valid.
func (s *Storage) Init() error {
	rootInum, err := s.Image.RootInodeNumber()
	if err != nil {
		return err
	}

	valid := false
	if allocated, _ := s.Inodes.IsAllocated(rootInum); allocated {
		rec, err := s.Inodes.Get(rootInum)
		if err != nil {
			return err
		}
		valid = rec.IsDir()
	}
	if valid {
		return nil
	}

	newRoot, err := s.Inodes.Alloc()
	if err != nil {
		return err
	}
	rec, err := s.Inodes.Get(newRoot)
	if err != nil {
		return err
	}
	rec.SetMode(inode.ModeDir | 0o755)

	block, err := allocBlock(s.Image)
	if err != nil {
		s.Inodes.Free(newRoot, func(int) error { return nil })
		return err
	}
	rec.SetBlock(block)

	if err := directory.Init(s.Image, rec, newRoot, newRoot); err != nil {
		freeBlock(s.Image, block)
		s.Inodes.Free(newRoot, func(int) error { return nil })
		return err
	}

	if err := s.Image.SetRootInodeNumber(newRoot); err != nil {
		return err
	}
	return s.Image.Flush()
}

// splitPath splits an absolute path into its parent directory path and
// final component, the way storage_mknod/storage_unlink split with
// strrchr(path_copy, '/') before resolving the parent separately.
func splitPath(path string) (parentPath, name string, err error) {
	if path == "" || path[0] != '/' {
		return "", "", errors.Invalid("path must be absolute")
	}
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "", "", errors.Invalid("path has no final component")
	}
	idx := strings.LastIndex(trimmed, "/")
	name = trimmed[idx+1:]
	parentPath = trimmed[:idx]
	if parentPath == "" {
		parentPath = "/"
	}
	return parentPath, name, nil
}

// LookupPath resolves an absolute path to an inode number, walking one
// path component at a time through directory.Lookup, exactly as
// storage_lookup_path does via strtok_r.
func (s *Storage) LookupPath(path string) (int, error) {
	root, err := s.Image.RootInodeNumber()
	if err != nil {
		return 0, err
	}
	if path == "/" || path == "" {
		return root, nil
	}
	if path[0] != '/' {
		return 0, errors.Invalid("path must be absolute")
	}

	current := root
	for _, component := range strings.Split(strings.Trim(path, "/"), "/") {
		if component == "" {
			continue
		}
		rec, err := s.Inodes.Get(current)
		if err != nil {
			return 0, err
		}
		if !rec.IsDir() {
			return 0, errors.NotDir(path)
		}
		dir, err := directory.Open(s.Image, rec)
		if err != nil {
			return 0, err
		}
		next, err := dir.Lookup(component)
		if err != nil {
			return 0, errors.NotFound(path)
		}
		current = next
	}
	return current, nil
}

// Attr is the subset of inode state a GetAttr caller needs, independent
// of any particular host-adapter's attribute struct.
type Attr struct {
	Inum  int
	Mode  int
	Size  int
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// GetAttr resolves path and returns its attributes. Per the open
// question resolution recorded in SPEC_FULL.md §9, there is no separate
// storage_stat codepath: GetAttr consults the inode table directly, the
// single source of truth LookupPath also reads from.
func (s *Storage) GetAttr(path string) (Attr, error) {
	inum, err := s.LookupPath(path)
	if err != nil {
		return Attr{}, err
	}
	rec, err := s.Inodes.Get(inum)
	if err != nil {
		return Attr{}, err
	}
	return Attr{
		Inum:  inum,
		Mode:  rec.Mode(),
		Size:  rec.Size(),
		Atime: time.Unix(rec.Atime(), 0),
		Mtime: time.Unix(rec.Mtime(), 0),
		Ctime: time.Unix(rec.Ctime(), 0),
	}, nil
}

// List resolves path to a directory and returns its live entry names,
// excluding "." and "..".
func (s *Storage) List(path string) ([]string, error) {
	inum, err := s.LookupPath(path)
	if err != nil {
		return nil, err
	}
	rec, err := s.Inodes.Get(inum)
	if err != nil {
		return nil, err
	}
	if !rec.IsDir() {
		return nil, errors.NotDir(path)
	}
	dir, err := directory.Open(s.Image, rec)
	if err != nil {
		return nil, err
	}
	return dir.List()
}
