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

// Package alloc implements a segregated free-list heap allocator with
// boundary-tag coalescing and incremental chunk acquisition.
//
// Memory is obtained from the OS in chunks (see internal/brk) and carved
// into blocks. Each block carries a header and footer holding bit-packed
// flags (allocated, has-physical-prev, has-physical-next) alongside the
// usual free-list and size bookkeeping; see block.go for the exact layout.
//
// A single process-wide *Heap is exposed through the package-level
// Allocate/Free/Reallocate/ClearedAllocate functions. The type is not safe
// for concurrent use: like the allocator it replaces, it assumes a
// single-threaded caller.
package alloc
