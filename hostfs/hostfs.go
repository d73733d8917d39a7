// Package hostfs adapts the storage core to the FUSE host through
// hanwen/go-fuse/v2's path-based pathfs.FileSystem interface. It is the
// Go restatement of original_source/p2-nat-mat-main/nufs.c: every
// nufs_* callback there becomes one method here, doing the same path
// splitting and the same storage call, just against the typed storage
// package instead of raw C structs.
package hostfs

import (
	"log"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	"github.com/mlhaufe/nufs/errors"
	"github.com/mlhaufe/nufs/inode"
	"github.com/mlhaufe/nufs/storage"
)

// FileSystem implements pathfs.FileSystem over a *storage.Storage.
// Concurrency: spec §5 calls for a single coarse lock serializing every
// mutating and reading call into the core, the same role
// pathfs.PathNodeFs's own pathLock plays for path renames -- here it's
// made explicit so the relationship between a FUSE op and the storage
// call it makes is one-to-one and easy to audit.
type FileSystem struct {
	// Default handles every pathfs.FileSystem method this type doesn't
	// override (Symlink, Readlink, GetXAttr, StatFs, OnMount, ...),
	// the same embed-the-default-then-override-some pattern go-fuse's
	// own example filesystems use.
	pathfs.FileSystem

	storage *storage.Storage
	mu      sync.Mutex
	log     *log.Logger
}

// New wraps s as a FUSE-mountable filesystem.
func New(s *storage.Storage) *FileSystem {
	return &FileSystem{
		FileSystem: pathfs.NewDefaultFileSystem(),
		storage:    s,
		log:        log.New(os.Stderr, "nufs: hostfs: ", log.LstdFlags),
	}
}

func normalize(name string) string {
	if name == "" {
		return "/"
	}
	return "/" + name
}

// Access reports whether path exists; original nufs_access only ever
// checked existence, not the mode bits, and this keeps that behavior.
func (fs *FileSystem) Access(name string, mode uint32, context *fuse.Context) fuse.Status {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.storage.LookupPath(normalize(name))
	return toStatus(err)
}

// GetAttr resolves name and reports its attributes, synthesizing the
// directory link-count the way nufs_getattr counts child directories for
// st_nlink.
func (fs *FileSystem) GetAttr(name string, context *fuse.Context) (*fuse.Attr, fuse.Status) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	attr, err := fs.storage.GetAttr(normalize(name))
	if err != nil {
		return nil, toStatus(err)
	}

	nlink := uint32(1)
	if attr.Mode&inode.ModeDir != 0 {
		nlink = 2
		names, err := fs.storage.List(normalize(name))
		if err == nil {
			for _, child := range names {
				childAttr, err := fs.storage.GetAttr(joinPath(normalize(name), child))
				if err == nil && childAttr.Mode&inode.ModeDir != 0 {
					nlink++
				}
			}
		}
	}

	return &fuse.Attr{
		Mode:  uint32(attr.Mode),
		Size:  uint64(attr.Size),
		Nlink: nlink,
		Ino:   uint64(attr.Inum),
		Atime: uint64(attr.Atime.Unix()),
		Mtime: uint64(attr.Mtime.Unix()),
		Ctime: uint64(attr.Ctime.Unix()),
	}, fuse.OK
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// OpenDir lists a directory's live entries, synthesizing "." and ".."
// the way nufs_readdir adds them ahead of whatever directory_list
// returns (here both are already directory entries, but the FUSE
// filler still needs them named explicitly).
func (fs *FileSystem) OpenDir(name string, context *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := normalize(name)
	attr, err := fs.storage.GetAttr(path)
	if err != nil {
		return nil, toStatus(err)
	}
	if attr.Mode&inode.ModeDir == 0 {
		return nil, fuse.ENOTDIR
	}

	names, err := fs.storage.List(path)
	if err != nil {
		return nil, toStatus(err)
	}

	entries := make([]fuse.DirEntry, 0, len(names)+2)
	entries = append(entries,
		fuse.DirEntry{Name: ".", Mode: fuse.S_IFDIR},
		fuse.DirEntry{Name: "..", Mode: fuse.S_IFDIR},
	)
	for _, n := range names {
		childAttr, err := fs.storage.GetAttr(joinPath(path, n))
		mode := uint32(fuse.S_IFREG)
		if err == nil && childAttr.Mode&inode.ModeDir != 0 {
			mode = fuse.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: n, Mode: mode})
	}
	return entries, fuse.OK
}

// Mknod creates a regular file (or other node type encoded in mode).
func (fs *FileSystem) Mknod(name string, mode uint32, dev uint32, context *fuse.Context) fuse.Status {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := fs.storage.Mknod(normalize(name), int(mode))
	return toStatus(err)
}

// Create behaves like Mknod followed by Open, the combination most FUSE
// clients actually invoke for O_CREAT.
func (fs *FileSystem) Create(name string, flags uint32, mode uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	fs.mu.Lock()
	if _, err := fs.storage.LookupPath(normalize(name)); err != nil {
		if err := fs.storage.Mknod(normalize(name), int(mode)|inode.ModeRegular); err != nil {
			fs.mu.Unlock()
			return nil, toStatus(err)
		}
	}
	fs.mu.Unlock()

	return fs.newFileHandle(name), fuse.OK
}

// Mkdir creates a new directory.
func (fs *FileSystem) Mkdir(name string, mode uint32, context *fuse.Context) fuse.Status {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := fs.storage.Mkdir(normalize(name), int(mode))
	return toStatus(err)
}

// Unlink removes a regular file.
func (fs *FileSystem) Unlink(name string, context *fuse.Context) fuse.Status {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return toStatus(fs.storage.Unlink(normalize(name)))
}

// Rmdir removes an empty directory.
func (fs *FileSystem) Rmdir(name string, context *fuse.Context) fuse.Status {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return toStatus(fs.storage.Rmdir(normalize(name)))
}

// Rename moves oldName to newName, per storage.Rename's overwrite
// semantics.
func (fs *FileSystem) Rename(oldName, newName string, context *fuse.Context) fuse.Status {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return toStatus(fs.storage.Rename(normalize(oldName), normalize(newName)))
}

// Truncate changes a regular file's reported size.
func (fs *FileSystem) Truncate(name string, size uint64, context *fuse.Context) fuse.Status {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return toStatus(fs.storage.Truncate(normalize(name), int(size)))
}

// Open checks the file exists and, for any write-intending open mode,
// that the inode's write bit is set -- nufs_open's O_ACCMODE/0222 check,
// the only permission enforcement this module does (spec §1 Non-goals
// excludes anything further).
func (fs *FileSystem) Open(name string, flags uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	fs.mu.Lock()
	attr, err := fs.storage.GetAttr(normalize(name))
	fs.mu.Unlock()
	if err != nil {
		return nil, toStatus(err)
	}

	if flags&uint32(syscall.O_ACCMODE) != uint32(os.O_RDONLY) {
		if attr.Mode&0o222 == 0 {
			return nil, fuse.EACCES
		}
	}

	return fs.newFileHandle(name), fuse.OK
}

// Utimens ignores the requested timestamps and stamps both atime and
// mtime with the current second, unchanged from nufs_utimens's
// "simplified to current time" behavior.
func (fs *FileSystem) Utimens(name string, aTime *time.Time, mTime *time.Time, context *fuse.Context) fuse.Status {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inum, err := fs.storage.LookupPath(normalize(name))
	if err != nil {
		return toStatus(err)
	}
	rec, err := fs.storage.Inodes.Get(inum)
	if err != nil {
		return toStatus(err)
	}
	rec.TouchAtime()
	rec.TouchMtime()
	return fuse.OK
}

// toStatus translates a storage-layer error into a fuse.Status the way
// the errno return values throughout nufs.c become this package's
// return values, just typed instead of a bare negative int.
func toStatus(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	switch errors.Errno(err) {
	case syscall.ENOENT:
		return fuse.ENOENT
	case syscall.ENOTDIR:
		return fuse.Status(syscall.ENOTDIR)
	case syscall.EISDIR:
		return fuse.Status(syscall.EISDIR)
	case syscall.EEXIST:
		return fuse.Status(syscall.EEXIST)
	case syscall.ENOSPC:
		return fuse.Status(syscall.ENOSPC)
	case syscall.ENOTEMPTY:
		return fuse.Status(syscall.ENOTEMPTY)
	case syscall.EACCES:
		return fuse.EACCES
	case syscall.ENOMEM:
		return fuse.Status(syscall.ENOMEM)
	case syscall.EINVAL:
		return fuse.EINVAL
	default:
		return fuse.EIO
	}
}
