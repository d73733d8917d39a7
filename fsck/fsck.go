// Package fsck checks a mounted image against the consistency
// invariants the storage core is supposed to maintain. It has no
// equivalent in original_source/p2-nat-mat-main (the C implementation
// never grew a checker). It accumulates multiple independent failures
// with github.com/hashicorp/go-multierror, a dependency dargueta-disko
// declares, rather than stopping at the first one.
package fsck

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/mlhaufe/nufs/directory"
	"github.com/mlhaufe/nufs/image"
	"github.com/mlhaufe/nufs/inode"
)

// Check walks every reachable directory in img starting from its
// persisted root and verifies the four structural invariants named in
// SPEC_FULL.md §8: bitmap faithfulness, directory packing, self-links,
// and unique names. It returns a *multierror.Error aggregating every
// violation found, or nil if none were.
func Check(img *image.Image) error {
	table := inode.NewTable(img)

	rootInum, err := img.RootInodeNumber()
	if err != nil {
		return err
	}

	var result *multierror.Error

	reachableInodes := map[int]bool{rootInum: true}
	reachableBlocks := map[int]bool{}

	// Pre-reserved blocks (header + inode table) are always expected to
	// be set, per image.InitLayout.
	for i := 0; i < 1+image.InodeTableBlocks; i++ {
		reachableBlocks[i] = true
	}

	visited := map[int]bool{}
	queue := []int{rootInum}
	for len(queue) > 0 {
		dirInum := queue[0]
		queue = queue[1:]
		if visited[dirInum] {
			continue
		}
		visited[dirInum] = true

		rec, err := table.Get(dirInum)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("inode %d: %w", dirInum, err))
			continue
		}
		if !rec.IsDir() {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d is reachable as a directory but is not marked as one", dirInum))
			continue
		}
		reachableBlocks[rec.Block()] = true

		dir, err := directory.Open(img, rec)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("directory %d: %w", dirInum, err))
			continue
		}

		for _, e := range checkPacking(dirInum, rec, img) {
			result = multierror.Append(result, e)
		}
		for _, e := range checkSelfLinks(dirInum, rec, dir) {
			result = multierror.Append(result, e)
		}

		entries, err := dir.Entries()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("directory %d: %w", dirInum, err))
			continue
		}

		seen := map[string]bool{}
		for _, e := range entries {
			if seen[e.Name] {
				result = multierror.Append(result, fmt.Errorf(
					"directory %d has duplicate name %q", dirInum, e.Name))
			}
			seen[e.Name] = true

			if e.Name == "." || e.Name == ".." {
				continue
			}
			reachableInodes[e.Inum] = true

			childRec, err := table.Get(e.Inum)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf(
					"directory %d entry %q: %w", dirInum, e.Name, err))
				continue
			}
			if childRec.IsDir() {
				queue = append(queue, e.Inum)
			} else if childRec.Block() != 0 {
				reachableBlocks[childRec.Block()] = true
			}
		}
	}

	for _, e := range checkBitmapFaithfulness(img, reachableInodes, reachableBlocks) {
		result = multierror.Append(result, e)
	}

	return result.ErrorOrNil()
}

// checkPacking verifies invariant 2: the live prefix has no NUL-first-
// byte entries, and the record immediately past it is all zero.
func checkPacking(dirInum int, rec inode.Record, img *image.Image) []error {
	var errs []error

	block, err := img.GetBlock(rec.Block())
	if err != nil {
		return append(errs, fmt.Errorf("directory %d: %w", dirInum, err))
	}
	count := rec.Size() / directory.EntrySize
	for i := 0; i < count; i++ {
		if block[i*directory.EntrySize] == 0 {
			errs = append(errs, fmt.Errorf(
				"directory %d: entry %d in the live prefix has a NUL first byte", dirInum, i))
		}
	}
	if count*directory.EntrySize < len(block) {
		next := block[count*directory.EntrySize : (count+1)*directory.EntrySize]
		for _, b := range next {
			if b != 0 {
				errs = append(errs, fmt.Errorf(
					"directory %d: record immediately after the live prefix is not zeroed", dirInum))
				break
			}
		}
	}
	return errs
}

// checkSelfLinks verifies invariant 3 in part: "." must point to the
// directory itself and a ".." entry must exist. Which inode ".." points
// to is not checked.
func checkSelfLinks(dirInum int, rec inode.Record, dir *directory.Directory) []error {
	var errs []error

	self, err := dir.Lookup(".")
	if err != nil || self != dirInum {
		errs = append(errs, fmt.Errorf("directory %d: \".\" does not point to itself", dirInum))
	}
	if _, err := dir.Lookup(".."); err != nil {
		errs = append(errs, fmt.Errorf("directory %d: missing \"..\" entry", dirInum))
	}
	return errs
}

// checkBitmapFaithfulness verifies invariant 1 for both bitmaps.
func checkBitmapFaithfulness(img *image.Image, reachableInodes, reachableBlocks map[int]bool) []error {
	var errs []error

	inodeBitmap, err := img.InodeBitmap()
	if err != nil {
		return append(errs, err)
	}
	for n := 0; n < image.InodeCount; n++ {
		set := inodeBitmap.Get(n)
		if set && !reachableInodes[n] {
			errs = append(errs, fmt.Errorf(
				"inode %d is marked allocated but is not reachable from the root", n))
		}
		if !set && reachableInodes[n] {
			errs = append(errs, fmt.Errorf(
				"inode %d is reachable from the root but not marked allocated", n))
		}
	}

	blockBitmap, err := img.BlockBitmap()
	if err != nil {
		return append(errs, err)
	}
	for b := 0; b < img.TotalBlocks; b++ {
		set := blockBitmap.Get(b)
		if set && !reachableBlocks[b] {
			errs = append(errs, fmt.Errorf(
				"block %d is marked allocated but is not referenced by any reachable inode", b))
		}
		if !set && reachableBlocks[b] {
			errs = append(errs, fmt.Errorf(
				"block %d is referenced by a reachable inode but not marked allocated", b))
		}
	}
	return errs
}
