// Package inode implements the fixed-width inode table: allocation,
// lookup, and freeing of the metadata records that describe files and
// directories. Grounded directly on
// original_source/p2-nat-mat-main/inode.c's get_inode/alloc_inode/
// free_inode, restated as typed views over the mapped image the way
// drivers/unixv1/inode.go turns a RawInode into a decoded Inode.
package inode

import (
	"encoding/binary"
	"time"

	"github.com/mlhaufe/nufs/errors"
	"github.com/mlhaufe/nufs/image"
)

// Mode bits: file type occupies the high bits, permission bits the low 9.
const (
	ModeDir    = 0o040000
	ModeRegular = 0o100000
	ModePerm    = 0o000777
)

// RecordSize is sizeof(inode_record): 8 fields, 4 bytes each, laid out
// in the fixed order {inum, refs, mode, size, block, atime, mtime,
// ctime}. image.InodeRecordSize must match this.
const RecordSize = 32

// Record is a decoded view of one on-disk inode record. It is not a
// copy: Record methods read and write directly through the byte slice
// handed to Table.Get, the same way get_inode() in the C source returns
// a raw pointer into the mapped image instead of a decoded copy.
type Record struct {
	raw []byte
}

func wrap(raw []byte) Record { return Record{raw: raw} }

func (r Record) Inum() int      { return int(binary.LittleEndian.Uint32(r.raw[0:4])) }
func (r Record) Refs() int      { return int(binary.LittleEndian.Uint32(r.raw[4:8])) }
func (r Record) Mode() int      { return int(binary.LittleEndian.Uint32(r.raw[8:12])) }
func (r Record) Size() int      { return int(binary.LittleEndian.Uint32(r.raw[12:16])) }
func (r Record) Block() int     { return int(binary.LittleEndian.Uint32(r.raw[16:20])) }
func (r Record) Atime() int64   { return int64(binary.LittleEndian.Uint32(r.raw[20:24])) }
func (r Record) Mtime() int64   { return int64(binary.LittleEndian.Uint32(r.raw[24:28])) }
func (r Record) Ctime() int64   { return int64(binary.LittleEndian.Uint32(r.raw[28:32])) }

func (r Record) SetInum(v int)    { binary.LittleEndian.PutUint32(r.raw[0:4], uint32(v)) }
func (r Record) SetRefs(v int)    { binary.LittleEndian.PutUint32(r.raw[4:8], uint32(v)) }
func (r Record) SetMode(v int)    { binary.LittleEndian.PutUint32(r.raw[8:12], uint32(v)) }
func (r Record) SetSize(v int)    { binary.LittleEndian.PutUint32(r.raw[12:16], uint32(v)) }
func (r Record) SetBlock(v int)   { binary.LittleEndian.PutUint32(r.raw[16:20], uint32(v)) }
func (r Record) SetAtime(v int64) { binary.LittleEndian.PutUint32(r.raw[20:24], uint32(v)) }
func (r Record) SetMtime(v int64) { binary.LittleEndian.PutUint32(r.raw[24:28], uint32(v)) }
func (r Record) SetCtime(v int64) { binary.LittleEndian.PutUint32(r.raw[28:32], uint32(v)) }

func (r Record) IsDir() bool     { return r.Mode()&ModeDir != 0 }
func (r Record) IsRegular() bool { return r.Mode()&ModeRegular != 0 }

// TouchAtime, TouchMtime, and TouchCtime stamp the respective timestamp
// field with the current wall-clock second, as inode.c does throughout
// storage.c (e.g. "parent->mtime = parent->ctime = time(NULL)").
func (r Record) TouchAtime() { r.SetAtime(time.Now().Unix()) }
func (r Record) TouchMtime() { r.SetMtime(time.Now().Unix()) }
func (r Record) TouchCtime() { r.SetCtime(time.Now().Unix()) }

// Table is the inode allocator and table, addressed by inode number.
type Table struct {
	img *image.Image
}

// NewTable wraps an already-InitLayout'd image as an inode table.
func NewTable(img *image.Image) *Table {
	return &Table{img: img}
}

// recordLocation returns the (block, offset) of inode n's record, per
// spec §3: block (1 + n / recordsPerBlock), offset (n % recordsPerBlock)
// * RecordSize.
func recordLocation(n int) (block, offset int) {
	return 1 + n/image.InodesPerBlock, (n % image.InodesPerBlock) * RecordSize
}

// Get returns a view of inode n's record, or an error if n is out of
// range. It does not check whether n is actually allocated -- that's the
// bitmap's job (see Table.IsAllocated).
func (t *Table) Get(n int) (Record, error) {
	if n < 0 || n >= image.InodeCount {
		return Record{}, errors.Invalid("inode number out of range")
	}
	blockNum, offset := recordLocation(n)
	block, err := t.img.GetBlock(blockNum)
	if err != nil {
		return Record{}, err
	}
	return wrap(block[offset : offset+RecordSize]), nil
}

// IsAllocated reports whether inode n's bitmap bit is set.
func (t *Table) IsAllocated(n int) (bool, error) {
	if n < 0 || n >= image.InodeCount {
		return false, nil
	}
	bm, err := t.img.InodeBitmap()
	if err != nil {
		return false, err
	}
	return bm.Get(n), nil
}

// Alloc scans the inode bitmap from 0, sets the first clear bit, zeros
// the record, and fills in {inum, refs: 1, three timestamps}. Mirrors
// alloc_inode() in inode.c exactly, including the first-fit-from-zero
// scan order.
func (t *Table) Alloc() (int, error) {
	bm, err := t.img.InodeBitmap()
	if err != nil {
		return 0, err
	}

	for n := 0; n < image.InodeCount; n++ {
		if bm.Get(n) {
			continue
		}
		bm.Set(n, true)

		rec, err := t.Get(n)
		if err != nil {
			return 0, err
		}
		for i := range rec.raw {
			rec.raw[i] = 0
		}
		rec.SetInum(n)
		rec.SetRefs(1)
		now := time.Now().Unix()
		rec.SetAtime(now)
		rec.SetMtime(now)
		rec.SetCtime(now)
		return n, nil
	}
	return 0, errors.NoSpace("no free inodes")
}

// Free clears inode n's bitmap bit. If the inode's block field is
// nonzero, that data block is also freed. Per spec §4.4, Free does not
// touch or validate refs -- callers must remove the referencing
// directory entry first (see original_source's "free any blocks
// associated with this inode" note in inode.c's free_inode).
func (t *Table) Free(n int, freeBlock func(block int) error) error {
	bm, err := t.img.InodeBitmap()
	if err != nil {
		return err
	}
	bm.Set(n, false)

	rec, err := t.Get(n)
	if err != nil {
		return err
	}
	if rec.Block() != 0 {
		return freeBlock(rec.Block())
	}
	return nil
}
