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

package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brkheap/brkheap/alloc/internal/brk"
)

func newTestHeap(t *testing.T, bufLen int) (*Heap, *brk.Fake) {
	t.Helper()
	fake := brk.NewFake(bufLen)
	return NewHeap(fake), fake
}

func TestAllocate_ColdRequestsOneMinChunk(t *testing.T) {
	h, fake := newTestHeap(t, 64*1024)

	buf := h.Allocate(24)
	require.Len(t, buf, 24)
	require.Len(t, fake.Grants, 1)
	assert.Equal(t, MinChunk, fake.Grants[0].Length)
	assert.NoError(t, h.Verify())
}

func TestAllocate_LargeRequestSkipsMinChunk(t *testing.T) {
	h, fake := newTestHeap(t, 64*1024)

	n := 4000
	buf := h.Allocate(n)
	require.Len(t, buf, n)
	require.Len(t, fake.Grants, 1)
	assert.Greater(t, fake.Grants[0].Length, MinChunk)
	assert.NoError(t, h.Verify())
}

func TestAllocate_ZeroAndNegativeReturnNil(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	assert.Nil(t, h.Allocate(0))
	assert.Nil(t, h.Allocate(-1))
	assert.NoError(t, h.LastError())
}

func TestFree_ThenAllocateReusesBlockWithoutNewGrant(t *testing.T) {
	h, fake := newTestHeap(t, 64*1024)

	a := h.Allocate(24)
	require.Len(t, fake.Grants, 1)

	h.Free(a)
	b := h.Allocate(20)
	require.NotNil(t, b)
	assert.Len(t, fake.Grants, 1, "reuse of the just-freed block should not touch the program-break primitive")
	assert.NoError(t, h.Verify())
}

func TestFree_Nil(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	assert.NotPanics(t, func() { h.Free(nil) })
}

func TestSplit_LeavesCorrectlyBucketedRemainder(t *testing.T) {
	h, _ := newTestHeap(t, 64*1024)

	buf := h.Allocate(24)
	require.Len(t, buf, 24)

	// A fresh 256-byte chunk holds one 192-byte free block before the
	// first allocation; after carving off a 32-byte payload (24 rounded up
	// to Alignment), the remainder should be reachable in the bucket its
	// size classifies into.
	wantLeftover := uintptr(MinChunk-ChunkOverhead) - uintptr(BlockOverhead) - alignUp(24) - uintptr(BlockOverhead)
	idx := classify(wantLeftover)
	anchor := h.bucketAnchor(idx)
	cur := anchor.NextFree()
	require.True(t, cur.Valid())
	assert.Equal(t, wantLeftover, cur.MaskedSize())
	assert.False(t, cur.NextFree().Valid())
	assert.NoError(t, h.Verify())
}

func TestGrowChunk_NonContiguousGrantStartsNewChunk(t *testing.T) {
	h, fake := newTestHeap(t, 64*1024)

	_ = h.Allocate(24)
	firstChunk := h.latest
	require.Nil(t, firstChunk.older)

	fake.ForceGap(4096)
	big := h.Allocate(2000)
	require.NotNil(t, big)

	assert.Len(t, fake.Grants, 2)
	require.NotNil(t, h.latest.older)
	assert.Same(t, firstChunk, h.latest.older)
	assert.NotSame(t, firstChunk, h.latest)
	assert.NoError(t, h.Verify())
}

func TestGrowChunk_ContiguousGrantExtendsLatestChunk(t *testing.T) {
	h, fake := newTestHeap(t, 64*1024)

	_ = h.Allocate(24)
	firstChunk := h.latest
	require.Nil(t, firstChunk.older)

	big := h.Allocate(2000)
	require.NotNil(t, big)

	assert.Len(t, fake.Grants, 2)
	assert.Same(t, firstChunk, h.latest, "a contiguous grant should extend the existing chunk, not mint a new one")
	assert.Nil(t, h.latest.older)
	assert.NoError(t, h.Verify())
}

func TestGrowChunk_OutOfMemorySetsLastError(t *testing.T) {
	h, fake := newTestHeap(t, 64)

	buf := h.Allocate(4096)
	assert.Nil(t, buf)
	assert.ErrorIs(t, h.LastError(), ErrOutOfMemory)
	_ = fake
}

func TestReallocate_PreservesLeadingBytes(t *testing.T) {
	h, _ := newTestHeap(t, 64*1024)

	a := h.Allocate(10)
	for i := range a {
		a[i] = byte(i + 1)
	}

	b := h.Reallocate(a, 100)
	require.Len(t, b, 100)
	for i := 0; i < 10; i++ {
		assert.Equal(t, byte(i+1), b[i])
	}
	assert.NoError(t, h.Verify())
}

func TestReallocate_NilBehavesLikeAllocate(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	b := h.Reallocate(nil, 32)
	assert.Len(t, b, 32)
}

func TestReallocate_ZeroFreesAndReturnsNil(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	a := h.Allocate(16)
	b := h.Reallocate(a, 0)
	assert.Nil(t, b)
	assert.NoError(t, h.Verify())
}

func TestClearedAllocate_ZerosReusedMemory(t *testing.T) {
	h, _ := newTestHeap(t, 64*1024)

	dirty := h.Allocate(40)
	for i := range dirty {
		dirty[i] = 0xFF
	}
	h.Free(dirty)

	clean := h.ClearedAllocate(10, 4)
	require.Len(t, clean, 40)
	for _, v := range clean {
		assert.Zero(t, v)
	}
}

func TestClearedAllocate_GuardsZeroAndOverflow(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	assert.Nil(t, h.ClearedAllocate(0, 8))
	assert.Nil(t, h.ClearedAllocate(8, 0))
	assert.Nil(t, h.ClearedAllocate(1<<61, 4))
}

func TestFree_DoubleFreePanics(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	a := h.Allocate(16)
	h.Free(a)
	assert.Panics(t, func() { h.Free(a) })
}

func TestFree_CoalescesAdjacentFreeBlocks(t *testing.T) {
	h, _ := newTestHeap(t, 64*1024)

	a := h.Allocate(32)
	b := h.Allocate(32)
	c := h.Allocate(32)
	_ = b

	h.Free(a)
	h.Free(c)
	h.Free(b)

	// Every block in the chunk is free again; coalescing should have
	// merged them back into a single block covering the whole chunk's
	// payload.
	idx := classify(uintptr(MinChunk - ChunkOverhead - BlockOverhead))
	found := false
	for i := idx; i < NumBuckets; i++ {
		if h.bucketAnchor(i).NextFree().Valid() {
			found = true
			sizes := 0
			for cur := h.bucketAnchor(i).NextFree(); cur.Valid(); cur = cur.NextFree() {
				sizes++
			}
			assert.Equal(t, 1, sizes, "expected exactly one fully-coalesced free block")
		}
	}
	assert.True(t, found)
	assert.NoError(t, h.Verify())
}
