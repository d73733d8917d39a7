package image

import (
	"encoding/binary"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/noxer/bytewriter"

	nufserrors "github.com/mlhaufe/nufs/errors"
)

// Fixed constants from the data model (spec §3, §6).
const (
	// InodeCount is I: the total number of inodes the image can hold.
	InodeCount = 256
	// InodeRecordSize is sizeof(inode_record); see inode.RecordSize.
	InodeRecordSize = 32
	// InodesPerBlock is how many fixed-width inode records fit in one block.
	InodesPerBlock = BlockSize / InodeRecordSize
	// InodeTableBlocks is K: the number of blocks reserved for the inode
	// table, sized so that InodesPerBlock*InodeTableBlocks >= InodeCount.
	InodeTableBlocks = (InodeCount + InodesPerBlock - 1) / InodesPerBlock

	// headerReserved is the reserved header region at the start of block
	// 0: its first 4 bytes hold the persisted root inode number, the block
	// bitmap starts at byte headerReserved, and the inode bitmap follows
	// immediately after the block bitmap (see inodeBitmapOffset).
	headerReserved    = 32
	rootInodeOffset   = 0
	blockBitmapOffset = headerReserved
)

// blockBitmapSizeBytes returns how many bytes the block bitmap needs to
// cover totalBlocks bits, rounded up to a whole byte.
func blockBitmapSizeBytes(totalBlocks int) int {
	return (totalBlocks + 7) / 8
}

// inodeBitmapSizeBytes is I/8 bits' worth of bytes for the fixed inode
// count.
const inodeBitmapSizeBytes = (InodeCount + 7) / 8

// inodeBitmapOffset places the inode bitmap immediately after the block
// bitmap, which in turn starts right after the 32-byte header. Both
// bitmaps and the header must fit inside block 0 (spec §6: "Implementers
// may pick the exact offsets freely but MUST document them");
// MaxSupportedBlocks enforces that bound.
func (img *Image) inodeBitmapOffset() int {
	return blockBitmapOffset + blockBitmapSizeBytes(img.TotalBlocks)
}

// MaxSupportedBlocks is the largest image, in blocks, whose block bitmap
// still leaves room in block 0 for the header and the (fixed-size) inode
// bitmap.
func MaxSupportedBlocks() int {
	return (BlockSize - headerReserved - inodeBitmapSizeBytes) * 8
}

// BlockBitmap returns a bitmap.Bitmap view directly over the block
// bitmap region of block 0 — mutations through it are mutations of the
// mapped image, with no copy and no separate flush step. Grounded on
// drivers/unixv1/driver.go and drivers/common/blockmanager.go, both of
// which keep their allocation state as a github.com/boljen/go-bitmap
// Bitmap; here it's mapped directly over mmap'd bytes instead of a
// private in-memory buffer.
func (img *Image) BlockBitmap() (bitmap.Bitmap, error) {
	block0, err := img.GetBlock(0)
	if err != nil {
		return nil, err
	}
	end := blockBitmapOffset + blockBitmapSizeBytes(img.TotalBlocks)
	return bitmap.Map(block0[blockBitmapOffset:end]), nil
}

// InodeBitmap returns a bitmap.Bitmap view over the inode bitmap region
// of block 0.
func (img *Image) InodeBitmap() (bitmap.Bitmap, error) {
	block0, err := img.GetBlock(0)
	if err != nil {
		return nil, err
	}
	off := img.inodeBitmapOffset()
	return bitmap.Map(block0[off : off+inodeBitmapSizeBytes]), nil
}

// RootInodeNumber reads the persisted root inode number out of block 0.
func (img *Image) RootInodeNumber() (int, error) {
	block0, err := img.GetBlock(0)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint32(block0[rootInodeOffset : rootInodeOffset+4])), nil
}

// SetRootInodeNumber persists the root inode number into block 0.
func (img *Image) SetRootInodeNumber(inum int) error {
	block0, err := img.GetBlock(0)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(block0[rootInodeOffset:rootInodeOffset+4], uint32(inum))
	return nil
}

// InitLayout pre-reserves block 0 and the inode-table blocks in the block
// bitmap. It must run exactly once, the first time a brand-new image is
// formatted, before any block or inode is allocated. Grounded on
// file_systems/unixv1/format.go's free-block-bitmap initialization loop,
// which marks the bitmap/table region and a reserved tail as permanently
// allocated; here only block 0 and the inode table are reserved, per
// spec §4.3 ("all bits corresponding to block 0 and the inode-table
// blocks are set at image-creation time").
func (img *Image) InitLayout() error {
	block0, err := img.GetBlock(0)
	if err != nil {
		return err
	}

	// Writing the zeroed header through a bytewriter (rather than a bare
	// slice write) mirrors how the teacher's formatter lays down a fresh
	// image's header fields in sequence before anything is parsed back
	// out of it.
	writer := bytewriter.New(block0)
	zeroHeader := make([]byte, headerReserved)
	if _, err := writer.Write(zeroHeader); err != nil {
		return nufserrors.IOError(err.Error())
	}

	blockBitmap, err := img.BlockBitmap()
	if err != nil {
		return err
	}
	reserved := 1 + InodeTableBlocks
	if reserved > img.TotalBlocks {
		return nufserrors.Invalid("image too small to hold its own inode table")
	}
	for i := 0; i < reserved; i++ {
		blockBitmap.Set(i, true)
	}

	return nil
}
