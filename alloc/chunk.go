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
	"fmt"
	"unsafe"
)

// MinChunk is the minimum number of bytes requested from the program-break
// primitive per grant.
const MinChunk = 256

// chunkHeader is the descriptor at the low-address end of each chunk.
type chunkHeader struct {
	size  uintptr
	older *chunkHeader
}

const ChunkOverhead = int(unsafe.Sizeof(chunkHeader{}))

func chunkAt(addr uintptr) *chunkHeader {
	return (*chunkHeader)(unsafe.Pointer(addr))
}

func (c *chunkHeader) addr() uintptr { return uintptr(unsafe.Pointer(c)) }

func (c *chunkHeader) payloadStart() uintptr { return c.addr() + uintptr(ChunkOverhead) }

func (c *chunkHeader) payloadEnd() uintptr { return c.payloadStart() + c.size }

// firstBlock returns the first (lowest-address) block of the chunk.
func (c *chunkHeader) firstBlock() Block { return blockAt(c.payloadStart()) }

// lastBlock walks from the first block to the last one physically present
// in the chunk.
func (c *chunkHeader) lastBlock() Block {
	b := c.firstBlock()
	for b.HasPhysicalNext() {
		b = b.PhysicalNext()
	}
	return b
}

// growChunk obtains at least m usable payload bytes from the program-break
// primitive, either by extending the most recently acquired chunk in place
// (if the OS happens to grant contiguous memory) or by minting a brand new
// chunk. The returned Block is free but not yet in any bucket — the caller
// consumes or buckets it.
func (h *Heap) growChunk(m uintptr) (Block, error) {
	// Step 1: the true minimum usable span needed once the grant is
	// trimmed to alignment, plus slack to absorb that trimming. Up to
	// Alignment-1 bytes can be lost at the front (rounding the start up)
	// and up to Alignment-1 at the back (rounding the end down), so the
	// slack has to cover both.
	required := alignUp(m) + uintptr(BlockOverhead) + uintptr(ChunkOverhead)
	want := required + 2*Alignment

	// Step 2: request max(want, MinChunk), retrying at the smaller size on
	// failure.
	reqSize := want
	if MinChunk > want {
		reqSize = MinChunk
	}
	addr, length, err := h.src.Grow(int(reqSize))
	if err != nil {
		if reqSize != want {
			addr, length, err = h.src.Grow(int(want))
		}
		if err != nil {
			return Block{}, fmt.Errorf("alloc: chunk allocator exhausted: %w", err)
		}
	}

	// Step 3: align the grant.
	start := alignUp(addr)
	end := (addr + uintptr(length)) &^ (Alignment - 1)
	usable := end - start
	if usable < required || usable%Alignment != 0 {
		panic("alloc: program-break primitive returned an unusable grant")
	}

	// Step 4: contiguous-extension test.
	if h.latest != nil && h.latest.payloadEnd() == start {
		return h.extendChunk(h.latest, end-start), nil
	}

	// Step 5: fresh chunk.
	c := chunkAt(start)
	c.older = h.latest
	c.size = end - start - uintptr(ChunkOverhead)
	h.latest = c

	b := initBlock(c.payloadStart())
	b.SetSize(c.size - uintptr(BlockOverhead))
	b.SetHasPhysicalPrev(false)
	b.SetHasPhysicalNext(false)
	return b, nil
}

// extendChunk grows the most-recently-acquired chunk in place by span
// bytes, in one of two ways depending on whether its last block is free.
func (h *Heap) extendChunk(c *chunkHeader, span uintptr) Block {
	last := c.lastBlock()
	c.size += span

	if !last.Allocated() {
		// Last block is free: fold the new span into it.
		unlink(last)
		last.SetSize(last.MaskedSize() + span)
		return last
	}

	// Last block is allocated: mint a fresh block in the new span.
	newAddr := last.End()
	b := initBlock(newAddr)
	b.SetSize(span - uintptr(BlockOverhead))
	b.SetHasPhysicalPrev(true)
	b.SetHasPhysicalNext(false)
	last.SetHasPhysicalNext(true)
	return b
}
