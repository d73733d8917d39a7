// Package image implements the block-addressed pager: it maps a backing
// file on the host file system into memory and exposes it as a sequence
// of fixed-size blocks. It is the lowest layer of the storage stack —
// everything above it (bitmaps, the inode table, directories, file data)
// is just a typed view over byte ranges this package hands out.
package image

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	nufserrors "github.com/mlhaufe/nufs/errors"
)

// BlockSize is B from the data model: every block is exactly this many
// bytes, and every I/O done through this package happens in multiples of
// it.
const BlockSize = 4096

// MinBlocks is the smallest image this package will mount: block 0 plus
// at least one inode-table block plus at least one data block.
const MinBlocks = 4

// Image is the single owned value holding the mapping for a mounted disk
// image. Every operation in the packages above this one takes an *Image
// and derives views (block bitmap, inode table, directory block) as
// byte-range borrows over its mapping — never two overlapping mutable views
// at once, per the re-architecture guidance in the design notes.
type Image struct {
	file        *os.File
	mapping     mmap.MMap
	TotalBlocks int
}

// Open mounts an existing image file, or creates one with room for
// totalBlocks blocks if it does not exist or is empty. totalBlocks only
// sizes a newly created file; an existing non-empty file is mounted at
// its own size (which must be a multiple of BlockSize) and is never
// resized.
func Open(path string, totalBlocks int) (*Image, error) {
	if totalBlocks < MinBlocks {
		return nil, nufserrors.Invalid(fmt.Sprintf(
			"image must have at least %d blocks, got %d", MinBlocks, totalBlocks))
	}
	if totalBlocks > MaxSupportedBlocks() {
		return nil, nufserrors.Invalid(fmt.Sprintf(
			"image can have at most %d blocks before its bitmaps overflow block 0, got %d",
			MaxSupportedBlocks(), totalBlocks))
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, nufserrors.IOError(err.Error())
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nufserrors.IOError(err.Error())
	}

	wantSize := int64(totalBlocks) * BlockSize
	if info.Size() == 0 {
		if err := formatNew(file, totalBlocks); err != nil {
			file.Close()
			return nil, err
		}
	} else if info.Size() != wantSize {
		// An existing image keeps its own size; the caller's totalBlocks
		// hint is only used for brand-new images.
		totalBlocks = int(info.Size() / BlockSize)
		if int64(totalBlocks)*BlockSize != info.Size() {
			file.Close()
			return nil, nufserrors.IOError(fmt.Sprintf(
				"image size %d is not a multiple of the block size %d",
				info.Size(), BlockSize))
		}
	}

	mapping, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		file.Close()
		return nil, nufserrors.IOError(err.Error())
	}

	return &Image{file: file, mapping: mapping, TotalBlocks: totalBlocks}, nil
}

// formatNew pre-sizes a brand-new image file, the way
// file_systems/unixv1/format.go resizes an image before writing its
// header into it. Truncate zero-fills the new bytes, so there's nothing
// further to do here; the superblock/bitmap contents themselves are
// filled in later by InitLayout, through a bytewriter, once the file is
// mapped.
func formatNew(file *os.File, totalBlocks int) error {
	size := int64(totalBlocks) * BlockSize
	if err := file.Truncate(size); err != nil {
		return nufserrors.IOError(err.Error())
	}
	return nil
}

// GetBlock returns a mutable view of block i. The returned slice aliases
// the mapping directly: writes through it are visible to every
// subsequent GetBlock call for the same index, and there is no
// additional caching layer.
func (img *Image) GetBlock(i int) ([]byte, error) {
	if i < 0 || i >= img.TotalBlocks {
		return nil, nufserrors.Invalid(fmt.Sprintf(
			"block %d not in range [0, %d)", i, img.TotalBlocks))
	}
	start := i * BlockSize
	return img.mapping[start : start+BlockSize], nil
}

// Flush synchronizes the mapping to the backing file.
func (img *Image) Flush() error {
	if err := img.mapping.Flush(); err != nil {
		return nufserrors.IOError(err.Error())
	}
	return nil
}

// Close flushes and unmaps the image. The Image must not be used
// afterward.
func (img *Image) Close() error {
	if err := img.mapping.Unmap(); err != nil {
		img.file.Close()
		return nufserrors.IOError(err.Error())
	}
	if err := img.file.Close(); err != nil {
		return nufserrors.IOError(err.Error())
	}
	return nil
}
