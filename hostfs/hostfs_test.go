package hostfs_test

import (
	"os"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/mlhaufe/nufs/hostfs"
	"github.com/mlhaufe/nufs/inode"
	"github.com/mlhaufe/nufs/internal/testimage"
	"github.com/mlhaufe/nufs/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *hostfs.FileSystem {
	t.Helper()
	img := testimage.New(t, 32)
	s := storage.New(img)
	require.NoError(t, s.Init())
	return hostfs.New(s)
}

func TestGetAttrOnRoot(t *testing.T) {
	fs := newTestFS(t)

	attr, status := fs.GetAttr("", nil)
	require.True(t, status.Ok())
	assert.NotZero(t, attr.Mode&uint32(inode.ModeDir))
	assert.EqualValues(t, 2, attr.Nlink)
}

func TestGetAttrOnMissingPathReturnsENOENT(t *testing.T) {
	fs := newTestFS(t)

	_, status := fs.GetAttr("nope", nil)
	assert.Equal(t, fuse.ENOENT, status)
}

func TestMknodThenOpenDirLists(t *testing.T) {
	fs := newTestFS(t)

	status := fs.Mknod("a.txt", uint32(inode.ModeRegular|0o644), 0, nil)
	require.True(t, status.Ok())

	entries, status := fs.OpenDir("", nil)
	require.True(t, status.Ok())

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{".", "..", "a.txt"}, names)
}

func TestCreateWriteReadRoundTrips(t *testing.T) {
	fs := newTestFS(t)

	file, status := fs.Create("f.txt", 0, uint32(0o644), nil)
	require.True(t, status.Ok())

	n, status := file.Write([]byte("hello"), 0)
	require.True(t, status.Ok())
	assert.EqualValues(t, 5, n)

	buf := make([]byte, 5)
	res, status := file.Read(buf, 0)
	require.True(t, status.Ok())
	data, status := res.Bytes(buf)
	require.True(t, status.Ok())
	assert.Equal(t, "hello", string(data))
}

func TestRmdirOnNonEmptyDirectoryFails(t *testing.T) {
	fs := newTestFS(t)

	status := fs.Mkdir("d", 0o755, nil)
	require.True(t, status.Ok())
	status = fs.Mknod("d/f", uint32(inode.ModeRegular|0o644), 0, nil)
	require.True(t, status.Ok())

	status = fs.Rmdir("d", nil)
	assert.Equal(t, fuse.Status(syscall.ENOTEMPTY), status)
}

func TestOpenForWriteWithoutWriteBitFails(t *testing.T) {
	fs := newTestFS(t)

	status := fs.Mknod("ro.txt", uint32(inode.ModeRegular|0o444), 0, nil)
	require.True(t, status.Ok())

	_, status = fs.Open("ro.txt", uint32(os.O_WRONLY), nil)
	assert.Equal(t, fuse.EACCES, status)
}
