// Package testimage builds disposable, pre-initialized disk images for
// tests across the module. Unlike the teacher's testing/images.go (which
// wraps a []byte with bytesextra.NewReadWriteSeeker because its driver
// talks to an io.ReadWriteSeeker), this module's pager mmaps a real file
// descriptor, so tests need a real temporary file instead — the
// substitution testing/images.go makes isn't available once the pager is
// mmap-based. See image/image_test.go's own use of bytesextra for the
// places where a plain byte buffer still works.
package testimage

import (
	"os"
	"testing"

	"github.com/mlhaufe/nufs/image"
	"github.com/stretchr/testify/require"
)

// New creates a fresh, InitLayout'd image in a temp file with the given
// block count, and registers cleanup to remove it when the test ends.
func New(t *testing.T, totalBlocks int) *image.Image {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "nufs-*.img")
	require.NoError(t, err)
	path := f.Name()
	require.NoError(t, f.Close())

	img, err := image.Open(path, totalBlocks)
	require.NoError(t, err)
	require.NoError(t, img.InitLayout())

	t.Cleanup(func() { img.Close() })
	return img
}
