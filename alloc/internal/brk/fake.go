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
	"errors"
	"unsafe"
)

// ErrExhausted is returned once a Fake's backing buffer can no longer
// satisfy a Grow request.
var ErrExhausted = errors.New("brk: fake source exhausted")

// ErrForcedFailure is returned by a Grow call consumed by FailNext.
var ErrForcedFailure = errors.New("brk: fake source forced failure")

// Fake is a deterministic Source for tests, backed by a single
// pre-allocated buffer. By default every Grow is contiguous with the
// previous one (start == previous end); ForceGap and FailNext let a test
// script non-contiguous-growth and out-of-memory scenarios without
// depending on real mmap placement.
type Fake struct {
	buf      []byte
	cursor   int
	gapOnce  int // extra bytes to skip before the next grant
	failOnce bool

	// Grants records every (addr, length) pair handed out, for assertions.
	Grants []Grant
}

type Grant struct {
	Addr   uintptr
	Length int
}

// fakeAlign is the alignment Fake guarantees its grants start at, mirroring
// the page alignment a real mmap-backed Source always provides. Grows are
// always for an alloc.Alignment-multiple length, so once the first grant
// starts on this boundary every later one does too; callers don't have to
// account for arbitrary Go-heap slice alignment.
const fakeAlign = 16

// NewFake creates a Fake backed by a freshly allocated buffer of size
// bufLen (plus rounding slack). The buffer is ordinary Go memory; that's
// fine for a test double, since it's never addressed except through the
// Source interface and the allocator built on top of it.
func NewFake(bufLen int) *Fake {
	buf := make([]byte, bufLen+fakeAlign)
	base := uintptr(unsafe.Pointer(&buf[0]))
	offset := (fakeAlign - int(base%fakeAlign)) % fakeAlign
	return &Fake{buf: buf, cursor: offset}
}

// ForceGap makes the next Grow skip gap bytes before granting, so its
// result is not contiguous with the previous grant.
func (f *Fake) ForceGap(gap int) { f.gapOnce = gap }

// FailNext makes the next Grow return ErrForcedFailure instead of granting.
func (f *Fake) FailNext() { f.failOnce = true }

func (f *Fake) Grow(n int) (uintptr, int, error) {
	if f.failOnce {
		f.failOnce = false
		return 0, 0, ErrForcedFailure
	}
	start := f.cursor + f.gapOnce
	f.gapOnce = 0
	if start+n > len(f.buf) {
		return 0, 0, ErrExhausted
	}
	addr := uintptr(unsafe.Pointer(&f.buf[start]))
	f.cursor = start + n
	f.Grants = append(f.Grants, Grant{Addr: addr, Length: n})
	return addr, n, nil
}
