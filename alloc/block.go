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

import "unsafe"

const (
	// Alignment is the word-pair alignment (A). Every stored size and every
	// returned payload address is a multiple of this.
	Alignment = 16

	// blockMagic is written to a block's header pad word while it is
	// allocated, and checked on Free/Reallocate to catch use-after-free and
	// double-free. Adapted from unsafex/malloc/buddy.go's "magic" guard.
	blockMagic uint64 = 0xBADC0FFEE0DDF00D

	lowBit = uintptr(1)
)

// blockHeader is the on-heap layout of a block's header. All fields are
// plain integers (not pointer-typed) on purpose: blocks live in memory
// obtained from internal/brk, which the Go garbage collector never scans,
// so bit-packing a flag into the low bit of an address is safe here in a
// way it would not be for a normal Go-managed pointer field.
//
//	prevFree: low bit = allocated flag; remaining bits = masked *blockHeader
//	          address of the previous free-list entry (0 if unlinked).
//	nextFree: masked *blockHeader address of the next free-list entry.
//	size:     low bit = has-physical-prev flag; remaining bits = payload size.
//	pad:      blockMagic while allocated, unspecified while free.
type blockHeader struct {
	prevFree uintptr
	nextFree uintptr
	size     uintptr
	pad      uint64
}

// blockFooter is the on-heap layout of a block's footer.
//
//	pad:  unused, an 8-byte word kept as a corruption shield per the original design.
//	size: low bit = has-physical-next flag; remaining bits = payload size.
type blockFooter struct {
	pad  uint64
	size uintptr
}

const (
	HeaderSize    = int(unsafe.Sizeof(blockHeader{}))
	FooterSize    = int(unsafe.Sizeof(blockFooter{}))
	BlockOverhead = HeaderSize + FooterSize
)

// Block is a view over a block header living somewhere in a chunk's memory.
// It never exposes the raw header/footer words; every accessor masks or
// preserves flag bits internally, per the "view type" guidance for this
// kind of bit-packed layout.
type Block struct {
	h *blockHeader
}

// blockAt views the header starting at addr.
func blockAt(addr uintptr) Block {
	return Block{h: (*blockHeader)(unsafe.Pointer(addr))}
}

// blockFromPayload recovers the Block owning a payload pointer previously
// handed out by the allocator.
func blockFromPayload(payload unsafe.Pointer) Block {
	return blockAt(uintptr(payload) - uintptr(HeaderSize))
}

// Valid reports whether b refers to a real header (as opposed to the zero
// Block, used as a "no such block" result).
func (b Block) Valid() bool { return b.h != nil }

func (b Block) addr() uintptr { return uintptr(unsafe.Pointer(b.h)) }

// Payload returns the address of the first payload byte.
func (b Block) Payload() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(b.h), HeaderSize)
}

// footer returns the footer, which immediately follows the payload. Only
// valid once the header's size field has been set.
func (b Block) footer() *blockFooter {
	return (*blockFooter)(unsafe.Add(b.Payload(), int(b.MaskedSize())))
}

// MaskedSize returns the block's payload size in bytes, flag bit cleared.
func (b Block) MaskedSize() uintptr { return b.h.size &^ lowBit }

// SetSize writes both header and footer size words, preserving
// has-physical-prev (stored in the header) but not has-physical-next
// (stored in the footer, which may have just moved): callers that need to
// preserve has-physical-next must capture and restore it themselves.
func (b Block) SetSize(s uintptr) {
	hadPrev := b.HasPhysicalPrev()
	b.h.size = s
	b.setHasPhysicalPrevRaw(hadPrev)
	b.footer().size = s
}

func (b Block) HasPhysicalPrev() bool { return b.h.size&lowBit != 0 }

func (b Block) setHasPhysicalPrevRaw(has bool) {
	if has {
		b.h.size |= lowBit
	} else {
		b.h.size &^= lowBit
	}
}

// SetHasPhysicalPrev sets the flag without disturbing the masked size.
func (b Block) SetHasPhysicalPrev(has bool) { b.setHasPhysicalPrevRaw(has) }

func (b Block) HasPhysicalNext() bool { return b.footer().size&lowBit != 0 }

func (b Block) SetHasPhysicalNext(has bool) {
	f := b.footer()
	if has {
		f.size |= lowBit
	} else {
		f.size &^= lowBit
	}
}

func (b Block) Allocated() bool { return b.h.prevFree&lowBit != 0 }

func (b Block) setAllocatedRaw(allocated bool) {
	if allocated {
		b.h.prevFree |= lowBit
	} else {
		b.h.prevFree &^= lowBit
	}
}

// SetAllocated marks b allocated or free without disturbing its free-list
// linkage bits. Setting b allocated also stamps (or clears) the
// use-after-free guard in the header pad word.
func (b Block) SetAllocated(allocated bool) {
	b.setAllocatedRaw(allocated)
	if allocated {
		b.h.pad = blockMagic
	} else {
		b.h.pad = 0
	}
}

// CheckGuard panics if b does not look like a live allocation, catching
// double-free and use-after-free the way unsafex/malloc/buddy.go's magic
// check does. It also panics if b's header and footer masked sizes differ.
func (b Block) CheckGuard() {
	if !b.Allocated() || b.h.pad != blockMagic {
		panic("alloc: double free or corrupted block")
	}
	if b.footer().size&^lowBit != b.MaskedSize() {
		panic("alloc: corrupted block: header and footer sizes disagree")
	}
}

func (b Block) prevFreeMasked() uintptr { return b.h.prevFree &^ lowBit }

// PrevFree returns the previous free-list entry, or the zero Block if b is
// unlinked (which includes the case where b is allocated).
func (b Block) PrevFree() Block {
	if m := b.prevFreeMasked(); m != 0 {
		return blockAt(m)
	}
	return Block{}
}

// NextFree returns the next free-list entry, or the zero Block at list end.
func (b Block) NextFree() Block {
	if b.h.nextFree != 0 {
		return blockAt(b.h.nextFree)
	}
	return Block{}
}

// setPrevFree overwrites the masked predecessor bits, preserving whatever
// the allocated flag currently holds.
func (b Block) setPrevFree(pred Block) {
	allocBit := b.h.prevFree & lowBit
	if pred.Valid() {
		b.h.prevFree = pred.addr() | allocBit
	} else {
		b.h.prevFree = allocBit
	}
}

func (b Block) setNextFree(next Block) {
	if next.Valid() {
		b.h.nextFree = next.addr()
	} else {
		b.h.nextFree = 0
	}
}

// Linked reports whether b currently sits in some bucket's free list.
func (b Block) Linked() bool { return b.prevFreeMasked() != 0 }

// PhysicalPrev returns the block physically preceding b in the same chunk,
// recovered by reading the footer that ends immediately before b's header.
// Only valid when HasPhysicalPrev() is true.
func (b Block) PhysicalPrev() Block {
	prevFooterAddr := b.addr() - uintptr(FooterSize)
	prevFooter := (*blockFooter)(unsafe.Pointer(prevFooterAddr))
	prevSize := prevFooter.size &^ lowBit
	prevHeaderAddr := prevFooterAddr - prevSize - uintptr(HeaderSize)
	return blockAt(prevHeaderAddr)
}

// PhysicalNext returns the block physically following b in the same chunk.
// Only valid when HasPhysicalNext() is true.
func (b Block) PhysicalNext() Block {
	nextAddr := b.addr() + uintptr(HeaderSize) + b.MaskedSize() + uintptr(FooterSize)
	return blockAt(nextAddr)
}

// End returns the address one past b's footer (i.e. where a following
// block's header would start).
func (b Block) End() uintptr {
	return b.addr() + uintptr(HeaderSize) + b.MaskedSize() + uintptr(FooterSize)
}

// initBlock wipes and initializes a new header at addr; callers must still
// set size and physical-adjacency flags.
func initBlock(addr uintptr) Block {
	b := blockAt(addr)
	b.h.prevFree = 0
	b.h.nextFree = 0
	b.h.size = 0
	b.h.pad = 0
	return b
}
