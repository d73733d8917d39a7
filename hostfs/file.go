package hostfs

import (
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
)

// fileHandle is the nodefs.File returned by Open/Create. It carries no
// state of its own beyond the path: every call re-resolves through the
// FileSystem's storage, which is consistent with the rest of this
// module treating the storage core as the single source of truth
// instead of caching anything at the handle level.
type fileHandle struct {
	nodefs.File

	fs   *FileSystem
	path string
}

func (fs *FileSystem) newFileHandle(name string) nodefs.File {
	return &fileHandle{
		File: nodefs.NewDefaultFile(),
		fs:   fs,
		path: normalize(name),
	}
}

func (f *fileHandle) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	n, err := f.fs.storage.Read(f.path, dest, int(off))
	if err != nil {
		return nil, toStatus(err)
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (f *fileHandle) Write(data []byte, off int64) (uint32, fuse.Status) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	n, err := f.fs.storage.Write(f.path, data, int(off))
	if err != nil {
		return 0, toStatus(err)
	}
	return uint32(n), fuse.OK
}

func (f *fileHandle) Truncate(size uint64) fuse.Status {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	return toStatus(f.fs.storage.Truncate(f.path, int(size)))
}

func (f *fileHandle) GetAttr(out *fuse.Attr) fuse.Status {
	f.fs.mu.Lock()
	attr, err := f.fs.storage.GetAttr(f.path)
	f.fs.mu.Unlock()
	if err != nil {
		return toStatus(err)
	}
	out.Mode = uint32(attr.Mode)
	out.Size = uint64(attr.Size)
	out.Nlink = 1
	out.Ino = uint64(attr.Inum)
	out.Atime = uint64(attr.Atime.Unix())
	out.Mtime = uint64(attr.Mtime.Unix())
	out.Ctime = uint64(attr.Ctime.Unix())
	return fuse.OK
}

func (f *fileHandle) Flush() fuse.Status {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if err := f.fs.storage.Image.Flush(); err != nil {
		return toStatus(err)
	}
	return fuse.OK
}
