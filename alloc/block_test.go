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
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlock(t *testing.T, size uintptr) Block {
	t.Helper()
	buf := make([]byte, HeaderSize+int(size)+FooterSize+64)
	b := initBlock(uintptr(unsafe.Pointer(&buf[0])))
	b.SetSize(size)
	return b
}

func TestBlock_SetSizePreservesHasPhysicalPrevNotNext(t *testing.T) {
	b := newTestBlock(t, 64)
	b.SetHasPhysicalPrev(true)
	b.SetHasPhysicalNext(true)

	b.SetSize(96)
	assert.True(t, b.HasPhysicalPrev())
	assert.False(t, b.HasPhysicalNext(), "SetSize writes a fresh footer, clearing has-physical-next")
	assert.Equal(t, uintptr(96), b.MaskedSize())
}

func TestBlock_AllocatedFlagIndependentOfLinkage(t *testing.T) {
	b := newTestBlock(t, 32)
	assert.False(t, b.Allocated())

	b.SetAllocated(true)
	assert.True(t, b.Allocated())
	assert.False(t, b.PrevFree().Valid())

	b.CheckGuard() // must not panic: allocated with a fresh magic

	b.SetAllocated(false)
	assert.False(t, b.Allocated())
}

func TestBlock_CheckGuardPanicsWhenNotAllocated(t *testing.T) {
	b := newTestBlock(t, 32)
	assert.Panics(t, func() { b.CheckGuard() })
}

func TestBlock_CheckGuardPanicsOnCorruptedPad(t *testing.T) {
	b := newTestBlock(t, 32)
	b.SetAllocated(true)
	b.h.pad = 0xDEAD
	assert.Panics(t, func() { b.CheckGuard() })
}

func TestUnlink_IsIdempotent(t *testing.T) {
	anchor := newTestBlock(t, 0)
	b := newTestBlock(t, 32)

	linkAfter(anchor, b)
	require.True(t, b.Linked())

	unlink(b)
	assert.False(t, b.Linked())

	assert.NotPanics(t, func() { unlink(b) })
	assert.False(t, b.Linked())
}

func TestLinkAfter_PreservesAscendingOrderSearch(t *testing.T) {
	anchor := newTestBlock(t, 0)
	small := newTestBlock(t, 16)
	mid := newTestBlock(t, 32)
	big := newTestBlock(t, 64)

	linkAfter(anchor, small)
	linkAfter(small, mid)
	linkAfter(mid, big)

	got := []uintptr{}
	for cur := anchor.NextFree(); cur.Valid(); cur = cur.NextFree() {
		got = append(got, cur.MaskedSize())
	}
	assert.Equal(t, []uintptr{16, 32, 64}, got)
}

func TestPhysicalPrevNext_RoundTrip(t *testing.T) {
	buf := make([]byte, 512)
	base := uintptr(unsafe.Pointer(&buf[0]))

	a := initBlock(base)
	a.SetSize(64)
	a.SetHasPhysicalPrev(false)

	b := initBlock(a.End())
	b.SetSize(32)
	b.SetHasPhysicalPrev(true)
	a.SetHasPhysicalNext(true)
	b.SetHasPhysicalNext(false)

	assert.Equal(t, b.addr(), a.PhysicalNext().addr())
	assert.Equal(t, a.addr(), b.PhysicalPrev().addr())
}
