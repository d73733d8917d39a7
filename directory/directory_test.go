package directory_test

import (
	"testing"

	"github.com/mlhaufe/nufs/directory"
	"github.com/mlhaufe/nufs/inode"
	"github.com/mlhaufe/nufs/internal/testimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDir(t *testing.T) (*directory.Directory, inode.Record) {
	t.Helper()
	img := testimage.New(t, 8)
	table := inode.NewTable(img)

	dirInum, err := table.Alloc()
	require.NoError(t, err)
	rec, err := table.Get(dirInum)
	require.NoError(t, err)
	rec.SetMode(inode.ModeDir | 0o755)
	rec.SetBlock(2)

	require.NoError(t, directory.Init(img, rec, dirInum, dirInum))

	d, err := directory.Open(img, rec)
	require.NoError(t, err)
	return d, rec
}

func TestInitSeedsDotAndDotDot(t *testing.T) {
	d, rec := newTestDir(t)

	self, err := d.Lookup(".")
	require.NoError(t, err)
	assert.Equal(t, rec.Inum(), self)

	parent, err := d.Lookup("..")
	require.NoError(t, err)
	assert.Equal(t, rec.Inum(), parent)
}

func TestPutThenLookup(t *testing.T) {
	d, _ := newTestDir(t)

	require.NoError(t, d.Put("hello.txt", 5))

	inum, err := d.Lookup("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, 5, inum)
}

func TestLookupMissingNameFails(t *testing.T) {
	d, _ := newTestDir(t)
	_, err := d.Lookup("nope")
	assert.Error(t, err)
}

func TestDeleteCompactsLivePrefix(t *testing.T) {
	d, _ := newTestDir(t)

	require.NoError(t, d.Put("a", 10))
	require.NoError(t, d.Put("b", 11))
	require.NoError(t, d.Put("c", 12))

	require.NoError(t, d.Delete("b"))

	_, err := d.Lookup("b")
	assert.Error(t, err)

	aInum, err := d.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, 10, aInum)

	cInum, err := d.Lookup("c")
	require.NoError(t, err)
	assert.Equal(t, 12, cInum)

	names, err := d.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, names)
}

func TestDeleteMissingNameFails(t *testing.T) {
	d, _ := newTestDir(t)
	assert.Error(t, d.Delete("ghost"))
}

func TestListExcludesDotEntries(t *testing.T) {
	d, _ := newTestDir(t)
	require.NoError(t, d.Put("x", 9))

	names, err := d.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names)
}

func TestPutRejectsNameTooLong(t *testing.T) {
	d, _ := newTestDir(t)
	long := make([]byte, directory.NameLength)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, d.Put(string(long), 1))
}

func TestSizeShrinksOnDeleteAndGrowsOnReinsert(t *testing.T) {
	d, rec := newTestDir(t)

	require.NoError(t, d.Put("a", 10))
	require.NoError(t, d.Put("b", 11))
	sizeBeforeDelete := rec.Size()

	require.NoError(t, d.Delete("a"))
	assert.Less(t, rec.Size(), sizeBeforeDelete)

	require.NoError(t, d.Put("c", 12))
	assert.Equal(t, sizeBeforeDelete, rec.Size(), "compaction should free exactly one entry's worth of size")
}
