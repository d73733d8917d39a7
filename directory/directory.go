// Package directory implements the single-block directory format: a
// packed array of fixed-width 64-byte entries, addressed through the
// owning inode's Record. Grounded directly on
// original_source/p2-nat-mat-main/directory.c (directory_lookup,
// directory_put, directory_delete, directory_list) and on
// drivers/unixv1/dirents.go's raw-struct-over-bytes idiom.
package directory

import (
	"bytes"
	"encoding/binary"

	"github.com/mlhaufe/nufs/errors"
	"github.com/mlhaufe/nufs/image"
	"github.com/mlhaufe/nufs/inode"
)

// EntrySize is E: the fixed width of a directory entry record.
const EntrySize = 64

// NameLength is L: the maximum name length, including the NUL
// terminator (so names can be at most NameLength-1 bytes).
const NameLength = 48

// Capacity is how many entries fit in a single block.
const Capacity = image.BlockSize / EntrySize

// entry is a decoded view of one 64-byte directory record: 48 bytes
// name (NUL-padded), 4 bytes little-endian inode number, 12 bytes
// padding, exactly as spec §6 requires bit-for-bit.
type entry struct {
	raw []byte
}

func entryAt(block []byte, i int) entry {
	return entry{raw: block[i*EntrySize : (i+1)*EntrySize]}
}

func (e entry) name() string {
	nul := bytes.IndexByte(e.raw[:NameLength], 0)
	if nul < 0 {
		nul = NameLength
	}
	return string(e.raw[:nul])
}

func (e entry) isLive() bool {
	return e.raw[0] != 0
}

func (e entry) inum() int {
	return int(binary.LittleEndian.Uint32(e.raw[NameLength : NameLength+4]))
}

func (e entry) setInum(n int) {
	binary.LittleEndian.PutUint32(e.raw[NameLength:NameLength+4], uint32(n))
}

func (e entry) setName(name string) {
	for i := range e.raw[:NameLength] {
		e.raw[i] = 0
	}
	copy(e.raw[:NameLength-1], name)
}

func (e entry) clear() {
	for i := range e.raw {
		e.raw[i] = 0
	}
}

// Directory is a view over a directory's data block, addressed by its
// owning inode record.
type Directory struct {
	img  *image.Image
	node inode.Record
}

// Open wraps node as a Directory. The caller must have already verified
// node.IsDir(). Open itself never fails: the block is fetched by each
// operation, which reports the error if it can't be.
func Open(img *image.Image, node inode.Record) (*Directory, error) {
	return &Directory{img: img, node: node}, nil
}

func (d *Directory) block() ([]byte, error) {
	return d.img.GetBlock(d.node.Block())
}

func (d *Directory) count() int {
	return d.node.Size() / EntrySize
}

// Lookup performs a linear scan across the live prefix for name, per
// directory_lookup in the C source.
func (d *Directory) Lookup(name string) (int, error) {
	if !d.node.IsDir() {
		return 0, errors.NotDir("")
	}

	block, err := d.block()
	if err != nil {
		return 0, err
	}

	for i := 0; i < d.count(); i++ {
		e := entryAt(block, i)
		if e.isLive() && e.name() == name {
			return e.inum(), nil
		}
	}
	return 0, errors.NotFound(name)
}

// Put adds a new entry, appending at the end of the live prefix. Per the
// open question resolution in SPEC_FULL.md §9, this implementation
// always compacts on Delete and never leaves a tombstone, so the
// slot-reuse branch below is dead in practice -- kept, and documented,
// because a directory block mutated by something other than this
// package (e.g. a future repair tool) could still produce one, the same
// way directory_put's reuse-first loop survives unreachable in the
// graded C source once directory_delete always compacts.
func (d *Directory) Put(name string, inum int) error {
	if !d.node.IsDir() {
		return errors.NotDir("")
	}
	if len(name) > NameLength-1 {
		return errors.Invalid("name too long")
	}

	block, err := d.block()
	if err != nil {
		return err
	}

	count := d.count()
	for i := 0; i < count; i++ {
		e := entryAt(block, i)
		if !e.isLive() {
			e.setName(name)
			e.setInum(inum)
			d.node.TouchMtime()
			return nil
		}
	}

	if count >= Capacity {
		return errors.NoSpace("directory is full")
	}

	e := entryAt(block, count)
	e.setName(name)
	e.setInum(inum)
	d.node.SetSize(d.node.Size() + EntrySize)
	d.node.TouchMtime()
	return nil
}

// Delete removes name, then shifts every following live entry left by
// one slot to keep the live prefix contiguous, per directory_delete.
// This is the "always compact" branch of SPEC_FULL.md §9's open
// question.
func (d *Directory) Delete(name string) error {
	if !d.node.IsDir() {
		return errors.NotDir("")
	}

	block, err := d.block()
	if err != nil {
		return err
	}

	count := d.count()
	matchIdx := -1
	for i := 0; i < count; i++ {
		if entryAt(block, i).isLive() && entryAt(block, i).name() == name {
			matchIdx = i
			break
		}
	}
	if matchIdx < 0 {
		return errors.NotFound(name)
	}

	for i := matchIdx; i < count-1; i++ {
		copy(entryAt(block, i).raw, entryAt(block, i+1).raw)
	}
	entryAt(block, count-1).clear()

	d.node.SetSize(d.node.Size() - EntrySize)
	d.node.TouchMtime()
	return nil
}

// List returns every live name except "." and "..".
func (d *Directory) List() ([]string, error) {
	if !d.node.IsDir() {
		return nil, errors.NotDir("")
	}

	block, err := d.block()
	if err != nil {
		return nil, err
	}

	var names []string
	for i := 0; i < d.count(); i++ {
		e := entryAt(block, i)
		if !e.isLive() {
			continue
		}
		name := e.name()
		if name == "." || name == ".." {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Entries returns every live (name, inum) pair including "." and "..",
// for callers (fsck) that need the whole picture.
func (d *Directory) Entries() ([]struct {
	Name string
	Inum int
}, error) {
	block, err := d.block()
	if err != nil {
		return nil, err
	}

	var out []struct {
		Name string
		Inum int
	}
	for i := 0; i < d.count(); i++ {
		e := entryAt(block, i)
		if !e.isLive() {
			continue
		}
		out = append(out, struct {
			Name string
			Inum int
		}{Name: e.name(), Inum: e.inum()})
	}
	return out, nil
}

// Init writes "." -> self and ".." -> parent into a freshly allocated,
// zeroed directory block and sets size to 2*EntrySize, per
// storage_mkdir_at's directory initialization in storage.c.
func Init(img *image.Image, node inode.Record, selfInum, parentInum int) error {
	block, err := img.GetBlock(node.Block())
	if err != nil {
		return err
	}
	for i := range block {
		block[i] = 0
	}

	dot := entryAt(block, 0)
	dot.setName(".")
	dot.setInum(selfInum)

	dotdot := entryAt(block, 1)
	dotdot.setName("..")
	dotdot.setInum(parentInum)

	node.SetSize(2 * EntrySize)
	return nil
}
