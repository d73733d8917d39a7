package storage_test

import (
	"strconv"
	"testing"

	"github.com/mlhaufe/nufs/directory"
	"github.com/mlhaufe/nufs/errors"
	"github.com/mlhaufe/nufs/image"
	"github.com/mlhaufe/nufs/inode"
	"github.com/mlhaufe/nufs/internal/testimage"
	"github.com/mlhaufe/nufs/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modeRegular644 = inode.ModeRegular | 0o644

func newTestStorage(t *testing.T, totalBlocks int) *storage.Storage {
	t.Helper()
	img := testimage.New(t, totalBlocks)
	s := storage.New(img)
	require.NoError(t, s.Init())
	return s
}

// S1: init on a fresh image produces a root whose own readdir is empty
// apart from "." and "..".
func TestInitProducesEmptyRoot(t *testing.T) {
	s := newTestStorage(t, 16)

	root, err := s.LookupPath("/")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, root, 0)

	names, err := s.List("/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

// S2: write then read a small file round-trips its bytes.
func TestWriteThenReadRoundTrips(t *testing.T) {
	s := newTestStorage(t, 16)

	require.NoError(t, s.Mknod("/a", modeRegular644))

	n, err := s.Write("/a", []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 10)
	n, err = s.Read("/a", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))
}

// S3: a non-empty directory refuses rmdir until its one file is
// unlinked, after which both operations succeed and the path vanishes.
func TestRmdirRequiresEmptyDirectory(t *testing.T) {
	s := newTestStorage(t, 16)

	require.NoError(t, s.Mkdir("/d", 0o755))
	require.NoError(t, s.Mknod("/d/f", modeRegular644))

	names, err := s.List("/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, names)

	err = s.Rmdir("/d")
	assert.Equal(t, errors.NotEmpty("/d").Errno(), errors.Errno(err))

	require.NoError(t, s.Unlink("/d/f"))
	require.NoError(t, s.Rmdir("/d"))

	_, err = s.LookupPath("/d")
	assert.Equal(t, errors.NotFound("/d").Errno(), errors.Errno(err))
}

// S4: rename moves the name, leaving the old path gone and the new path
// resolving to the same inode.
func TestRenameMovesName(t *testing.T) {
	s := newTestStorage(t, 16)

	require.NoError(t, s.Mknod("/x", modeRegular644))
	xInum, err := s.LookupPath("/x")
	require.NoError(t, err)

	require.NoError(t, s.Rename("/x", "/y"))

	_, err = s.LookupPath("/x")
	assert.Equal(t, errors.NotFound("/x").Errno(), errors.Errno(err))

	yInum, err := s.LookupPath("/y")
	require.NoError(t, err)
	assert.Equal(t, xInum, yInum)
}

// S4b: renaming onto an existing regular file overwrites it rather than
// failing with EEXIST, per the resolved open question on rename
// semantics; renaming onto an existing directory is refused.
func TestRenameOntoExistingFileOverwrites(t *testing.T) {
	s := newTestStorage(t, 16)

	require.NoError(t, s.Mknod("/src", modeRegular644))
	_, err := s.Write("/src", []byte("new"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Mknod("/dst", modeRegular644))

	require.NoError(t, s.Rename("/src", "/dst"))

	buf := make([]byte, 3)
	n, err := s.Read("/dst", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "new", string(buf[:n]))

	_, err = s.LookupPath("/src")
	assert.Error(t, err)
}

func TestRenameOntoExistingDirectoryFails(t *testing.T) {
	s := newTestStorage(t, 16)

	require.NoError(t, s.Mknod("/src", modeRegular644))
	require.NoError(t, s.Mkdir("/dst", 0o755))

	err := s.Rename("/src", "/dst")
	assert.Equal(t, errors.Exists("/dst").Errno(), errors.Errno(err))
}

// S5: filling a directory to capacity, failing the next mknod with
// ENOSPC, then succeeding after one entry is freed.
func TestDirectoryCapacityExhaustionAndReuse(t *testing.T) {
	// Needs enough inodes and blocks for Capacity-2 files (slots 0 and 1
	// are always "." and ".."), plus one more after freeing a slot.
	s := newTestStorage(t, 128)

	require.NoError(t, s.Mkdir("/d", 0o755))

	usable := 0 // number of non-dot entries that fit
	for usable+2 < directory.Capacity {
		name := "/d/f" + strconv.Itoa(usable)
		if err := s.Mknod(name, modeRegular644); err != nil {
			break
		}
		usable++
	}

	err := s.Mknod("/d/overflow", modeRegular644)
	assert.Equal(t, errors.NoSpace("").Errno(), errors.Errno(err))

	require.NoError(t, s.Unlink("/d/f0"))
	assert.NoError(t, s.Mknod("/d/overflow", modeRegular644))
}

// S6: allocate every inode, confirm the next mknod is refused, then
// confirm unlinking one lets a subsequent mknod succeed.
func TestInodeExhaustionAndReuse(t *testing.T) {
	s := newTestStorage(t, 512)

	// One directory block holds only Capacity-2 files, so the files are
	// spread over several directories to run out of inodes first.
	const dirs = 5
	const perDir = directory.Capacity - 4
	for i := 0; i < dirs; i++ {
		require.NoError(t, s.Mkdir("/d"+strconv.Itoa(i), 0o755))
	}

	created := 0
	var lastErr error
	for {
		name := "/d" + strconv.Itoa(created/perDir) + "/n" + strconv.Itoa(created)
		if err := s.Mknod(name, modeRegular644); err != nil {
			lastErr = err
			break
		}
		created++
	}
	require.Error(t, lastErr)
	assert.Equal(t, errors.NoSpace("").Errno(), errors.Errno(lastErr))
	assert.Equal(t, image.InodeCount-1-dirs, created, "every inode but the root and the directories should hold a file")

	require.NoError(t, s.Unlink("/d0/n0"))
	assert.NoError(t, s.Mknod("/d0/refill", modeRegular644))
}

func TestMknodRejectsDuplicateName(t *testing.T) {
	s := newTestStorage(t, 16)
	require.NoError(t, s.Mknod("/dup", modeRegular644))
	err := s.Mknod("/dup", modeRegular644)
	assert.Equal(t, errors.Exists("/dup").Errno(), errors.Errno(err))
}

func TestUnlinkRefusesDirectory(t *testing.T) {
	s := newTestStorage(t, 16)
	require.NoError(t, s.Mkdir("/d", 0o755))
	err := s.Unlink("/d")
	assert.Equal(t, errors.IsDir("/d").Errno(), errors.Errno(err))
}

func TestWriteBeyondBlockSizeFails(t *testing.T) {
	s := newTestStorage(t, 16)
	require.NoError(t, s.Mknod("/big", modeRegular644))

	buf := make([]byte, image.BlockSize+1)
	_, err := s.Write("/big", buf, 0)
	assert.Equal(t, errors.NoSpace("").Errno(), errors.Errno(err))
}

func TestTruncateNeverAllocatesOrFrees(t *testing.T) {
	s := newTestStorage(t, 16)
	require.NoError(t, s.Mknod("/t", modeRegular644))
	_, err := s.Write("/t", []byte("abcdef"), 0)
	require.NoError(t, err)

	inum, err := s.LookupPath("/t")
	require.NoError(t, err)
	rec, err := s.Inodes.Get(inum)
	require.NoError(t, err)
	blockBefore := rec.Block()

	require.NoError(t, s.Truncate("/t", 2))
	attr, err := s.GetAttr("/t")
	require.NoError(t, err)
	assert.Equal(t, 2, attr.Size)
	assert.Equal(t, blockBefore, rec.Block())

	require.NoError(t, s.Truncate("/t", 100))
	assert.Equal(t, blockBefore, rec.Block())
	blockBitmap, err := s.Image.BlockBitmap()
	require.NoError(t, err)
	assert.True(t, blockBitmap.Get(blockBefore))
}

