/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package heapcheck walks a live heap and checks its structural
// invariants: free-list bucket membership and ordering, and per-chunk
// physical block coverage. It is not part of the allocator's hot path —
// it exists purely to back the allocator's own test suite.
//
// The per-chunk coverage check is adapted from the one-bit-per-block
// occupancy bitmap idiom for tracking allocator blocks: since every
// block boundary falls on an Alignment-byte cell, a bitmap at that
// granularity can assert that a chunk's blocks exactly tile its payload
// bytes with no gaps or overlaps.
package heapcheck

import "fmt"

// Accessor is the minimal view heapcheck needs into a heap's internals. It
// exists so this package has no import-cycle-forcing dependency on the
// alloc package's unexported representation; alloc's debug.go supplies a
// thin adapter.
type Accessor interface {
	// NumBuckets returns the number of segregated free-list buckets.
	NumBuckets() int
	// BucketBlocks returns, in list order, the masked sizes of every block
	// linked in bucket i.
	BucketBlocks(i int) []uintptr
	// Classify returns the bucket index a masked size belongs in.
	Classify(size uintptr) int
	// Chunks returns, oldest first is not required, one []ChunkBlock slice
	// per chunk: the ordered, physically-contiguous blocks of that chunk.
	Chunks() [][]ChunkBlock
	// Alignment is the allocator's word-pair alignment (A).
	Alignment() uintptr
}

// ChunkBlock describes one physical block for coverage checking.
type ChunkBlock struct {
	Offset     uintptr // offset from the start of the chunk's payload
	TotalSize  uintptr // header + masked payload size + footer
	Allocated  bool
	HasPrev    bool
	HasNext    bool
	HeaderSize uintptr
	FooterSize uintptr
	PayloadLen uintptr
}

// Verify checks bucket membership/ordering and chunk coverage against a.
// It does not check that a returned buffer is at least the size the
// caller requested; that is checked inline by the allocator's own tests.
func Verify(a Accessor) error {
	if err := verifyBuckets(a); err != nil {
		return err
	}
	return verifyChunks(a)
}

// verifyBuckets checks that every block in bucket i classifies to i, and
// that each bucket is sorted ascending by masked size.
func verifyBuckets(a Accessor) error {
	for i := 0; i < a.NumBuckets(); i++ {
		sizes := a.BucketBlocks(i)
		prev := uintptr(0)
		for j, sz := range sizes {
			if got := a.Classify(sz); got != i {
				return fmt.Errorf("heapcheck: misclassified block: size %d in bucket %d classifies to bucket %d", sz, i, got)
			}
			if j > 0 && sz < prev {
				return fmt.Errorf("heapcheck: bucket %d not ascending at index %d (%d < %d)", i, j, sz, prev)
			}
			prev = sz
		}
	}
	return nil
}

// verifyChunks checks that no two physically adjacent blocks are both
// free, that each chunk's blocks tile its payload with no gaps or
// overlaps, and that the has-physical-prev/next flags agree with each
// block's actual position in the chunk.
func verifyChunks(a Accessor) error {
	align := a.Alignment()
	for ci, blocks := range a.Chunks() {
		if len(blocks) == 0 {
			continue
		}
		if blocks[0].HasPrev {
			return fmt.Errorf("heapcheck: chunk %d: first block has has_physical_prev set", ci)
		}
		if blocks[len(blocks)-1].HasNext {
			return fmt.Errorf("heapcheck: chunk %d: last block has has_physical_next set", ci)
		}

		cellCount := int(blocks[len(blocks)-1].Offset+blocks[len(blocks)-1].TotalSize) / int(align)
		covered := make([]bool, cellCount)

		wantOffset := uintptr(0)
		prevFree := false
		for bi, blk := range blocks {
			if blk.Offset != wantOffset {
				return fmt.Errorf("heapcheck: chunk %d: block %d at offset %d, expected %d (gap or overlap)", ci, bi, blk.Offset, wantOffset)
			}
			if blk.TotalSize%align != 0 {
				return fmt.Errorf("heapcheck: chunk %d: block %d size %d not aligned", ci, bi, blk.TotalSize)
			}
			start := int(blk.Offset) / int(align)
			end := int(blk.Offset+blk.TotalSize) / int(align)
			for c := start; c < end; c++ {
				if covered[c] {
					return fmt.Errorf("heapcheck: chunk %d: cell %d covered by more than one block", ci, c)
				}
				covered[c] = true
			}

			if bi > 0 && !blk.HasPrev {
				return fmt.Errorf("heapcheck: chunk %d: block %d is not first but has_physical_prev is clear", ci, bi)
			}
			if !blk.Allocated && prevFree {
				return fmt.Errorf("heapcheck: chunk %d: block %d and its physical predecessor are both free", ci, bi)
			}
			prevFree = !blk.Allocated
			wantOffset += blk.TotalSize
		}
		for c, ok := range covered {
			if !ok {
				return fmt.Errorf("heapcheck: chunk %d: cell %d not covered by any block", ci, c)
			}
		}
	}
	return nil
}
