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

// split carves s bytes (already aligned) off the front of b, leaving a
// free remainder block bucketed back into h. If there is no room for a
// remainder (or the remainder would be negative), b is left untouched and
// the caller gets the whole block. b is not itself (re)bucketed; the
// caller is about to mark it allocated.
func split(h *Heap, b Block, s uintptr) {
	if b.MaskedSize() <= s+uintptr(BlockOverhead) {
		return
	}

	hadNext := b.HasPhysicalNext()
	leftover := b.MaskedSize() - s - uintptr(BlockOverhead)

	b.SetSize(s)
	newAddr := b.addr() + uintptr(HeaderSize) + s + uintptr(FooterSize)
	n := initBlock(newAddr)
	n.SetSize(leftover)
	n.SetHasPhysicalPrev(true)
	n.SetHasPhysicalNext(hadNext)
	b.SetHasPhysicalNext(true)

	insert(h, n)
}
