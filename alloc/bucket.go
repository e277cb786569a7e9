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

// linkAfter splices b immediately after anchor in anchor's free list, and
// clears b's allocated flag as a side effect (a linked block is always
// free).
func linkAfter(anchor, b Block) {
	b.setPrevFree(anchor)
	succ := anchor.NextFree()
	b.setNextFree(succ)
	if succ.Valid() {
		succ.setPrevFree(b)
	}
	anchor.setNextFree(b)
	b.setAllocatedRaw(false)
	b.h.pad = 0
}

// unlink removes b from whatever free list it is in. It is idempotent:
// calling it on an already-unlinked (or allocated) block is a no-op, so
// callers never need to track whether a block is currently linked before
// unlinking it.
func unlink(b Block) {
	pred := b.PrevFree()
	if !pred.Valid() {
		return
	}
	succ := b.NextFree()
	pred.setNextFree(succ)
	if succ.Valid() {
		succ.setPrevFree(pred)
	}
	b.setPrevFree(Block{})
	b.setNextFree(Block{})
}

// insert picks b's bucket by its masked size and splices it in ascending-
// size order, so first-fit within a bucket is also best-fit within that
// bucket. b must not currently be linked.
func insert(h *Heap, b Block) {
	idx := classify(b.MaskedSize())
	cur := h.bucketAnchor(idx)
	for next := cur.NextFree(); next.Valid() && next.MaskedSize() < b.MaskedSize(); next = cur.NextFree() {
		cur = next
	}
	linkAfter(cur, b)
}
