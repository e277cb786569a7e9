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

// Package brk stands in for the OS program-break primitive: a
// monotonically-advancing request for more process memory. The real
// implementation (OSBreak) is backed by anonymous golang.org/x/sys/unix
// mmap calls, which — like sbrk — hand back memory the Go garbage
// collector never sees and never reclaims.
package brk

// Source requests more memory from the OS. Grow returns the address and
// actual length of the newly granted span; a request may return more than
// asked for, never less. Successive grants are not guaranteed contiguous —
// callers must verify via address arithmetic before assuming so.
type Source interface {
	Grow(n int) (addr uintptr, length int, err error)
}
