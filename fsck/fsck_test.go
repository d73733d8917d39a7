package fsck_test

import (
	"testing"

	"github.com/mlhaufe/nufs/fsck"
	"github.com/mlhaufe/nufs/inode"
	"github.com/mlhaufe/nufs/internal/testimage"
	"github.com/mlhaufe/nufs/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPassesOnFreshlyInitializedImage(t *testing.T) {
	img := testimage.New(t, 16)
	s := storage.New(img)
	require.NoError(t, s.Init())

	assert.NoError(t, fsck.Check(img))
}

func TestCheckPassesAfterOrdinaryMutations(t *testing.T) {
	img := testimage.New(t, 32)
	s := storage.New(img)
	require.NoError(t, s.Init())

	require.NoError(t, s.Mkdir("/d", 0o755))
	require.NoError(t, s.Mknod("/d/f", inode.ModeRegular|0o644))
	require.NoError(t, s.Mknod("/d/g", inode.ModeRegular|0o644))
	require.NoError(t, s.Unlink("/d/f"))
	require.NoError(t, s.Rename("/d/g", "/d/h"))

	assert.NoError(t, fsck.Check(img))
}

func TestCheckDetectsInodeAllocatedButUnreachable(t *testing.T) {
	img := testimage.New(t, 16)
	s := storage.New(img)
	require.NoError(t, s.Init())

	// Allocate an inode directly, bypassing storage so it's never linked
	// into any directory -- this should trip bitmap faithfulness.
	_, err := s.Inodes.Alloc()
	require.NoError(t, err)

	err = fsck.Check(img)
	assert.Error(t, err)
}

func TestCheckDetectsMissingDotDotEntry(t *testing.T) {
	img := testimage.New(t, 16)
	s := storage.New(img)
	require.NoError(t, s.Init())
	require.NoError(t, s.Mkdir("/d", 0o755))

	dirInum, err := s.LookupPath("/d")
	require.NoError(t, err)
	rec, err := s.Inodes.Get(dirInum)
	require.NoError(t, err)

	block, err := img.GetBlock(rec.Block())
	require.NoError(t, err)
	for i := range block[64:128] {
		block[64+i] = 0
	}

	err = fsck.Check(img)
	assert.Error(t, err)
}
