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

// Package ptrutil holds small unsafe pointer-reinterpretation helpers, in
// the style of internal/hack, used where a byte buffer needs to be viewed
// as a string without copying it.
package ptrutil

import "unsafe"

// PreviewString views the first n bytes of b as a string without copying.
// It is meant for short diagnostic previews of allocator payloads (for
// example in stress-test logging); b must outlive the returned string,
// since no copy is made.
func PreviewString(b []byte, n int) string {
	if n > len(b) {
		n = len(b)
	}
	if n <= 0 {
		return ""
	}
	return unsafe.String(&b[0], n)
}
