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

// coalesce fuses a freshly-freed, unlinked block with its free physical
// neighbors and returns the resulting maximal free block, still unlinked.
// Forward fusion happens first, then backward — backward fusion this way
// automatically absorbs anything already merged forward.
func coalesce(b Block) Block {
	b = mergeForward(b)
	if b.HasPhysicalPrev() {
		prev := b.PhysicalPrev()
		if !prev.Allocated() {
			unlink(prev)
			b = mergeForward(prev)
		}
	}
	return b
}

// mergeForward absorbs b's physical successor into b if that successor is
// free, and returns b (grown, if a merge happened).
func mergeForward(b Block) Block {
	if !b.HasPhysicalNext() {
		return b
	}
	next := b.PhysicalNext()
	if next.Allocated() {
		return b
	}
	unlink(next)
	hadNext := next.HasPhysicalNext()
	hadPrev := b.HasPhysicalPrev()
	b.SetSize(b.MaskedSize() + next.MaskedSize() + uintptr(BlockOverhead))
	b.SetHasPhysicalPrev(hadPrev)
	b.SetHasPhysicalNext(hadNext)
	return b
}
