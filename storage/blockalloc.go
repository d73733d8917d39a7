// Package storage implements the path-addressed filesystem core: block
// allocation, root initialization, path resolution, and the mutating
// operations (mknod, mkdir, unlink, rmdir, rename, write, truncate).
// Grounded on original_source/p2-nat-mat-main/storage.c, restated the
// way dargueta-disko's api.go shapes a Driver around small, orthogonal
// methods instead of one large dispatch function.
package storage

import (
	"github.com/mlhaufe/nufs/errors"
	"github.com/mlhaufe/nufs/image"
)

// allocBlock scans the block bitmap from 0 for the first free bit, the
// same first-fit-from-zero order alloc_block() uses in helpers/blocks.c.
// The header block and inode-table blocks are pre-reserved by
// image.InitLayout, so this scan naturally never returns them.
func allocBlock(img *image.Image) (int, error) {
	bm, err := img.BlockBitmap()
	if err != nil {
		return 0, err
	}
	for i := 0; i < img.TotalBlocks; i++ {
		if bm.Get(i) {
			continue
		}
		bm.Set(i, true)
		return i, nil
	}
	return 0, errors.NoSpace("no free blocks")
}

// freeBlock clears block i's bitmap bit. It does not zero the block's
// contents; a freshly allocated block is handed out dirty, same as
// alloc_block() in the C source, and callers that need a clean slate
// (directory initialization) zero it themselves.
func freeBlock(img *image.Image, i int) error {
	bm, err := img.BlockBitmap()
	if err != nil {
		return err
	}
	bm.Set(i, false)
	return nil
}
