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

package brk

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// OSBreak is the production Source. Each Grow is one anonymous, private
// mmap — the closest portable equivalent of sbrk available from Go, and the
// same primitive used for this purpose in
// other_examples/d7097b71_alewtschuk-balloc and
// other_examples/d176b14f_cznic-memory. Memory handed out this way is
// never returned to the OS: there is no Shrink, matching the allocator's
// "chunks are never released" contract.
type OSBreak struct{}

func (OSBreak) Grow(n int) (addr uintptr, length int, err error) {
	if n <= 0 {
		return 0, 0, fmt.Errorf("brk: invalid grow size %d", n)
	}
	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, 0, fmt.Errorf("brk: mmap %d bytes: %w", n, err)
	}
	return uintptr(unsafe.Pointer(&b[0])), len(b), nil
}
