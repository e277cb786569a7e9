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

// Command brkstress drives a pool of allocator heaps concurrently, each
// worker running a random mix of allocate/free/reallocate against its own
// heap, and reports throughput and error counts. It is an external
// collaborator to the allocator itself, not part of its public API.
package main

import (
	"flag"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/brkheap/brkheap/alloc"
	"github.com/brkheap/brkheap/internal/ptrutil"
	"github.com/brkheap/brkheap/internal/workerpool"
)

func main() {
	workers := flag.Int("workers", 4, "number of worker goroutines, each with its own heap")
	duration := flag.Duration("duration", 5*time.Second, "how long to run")
	minAlloc := flag.Int("min", 1, "minimum allocation size in bytes")
	maxAlloc := flag.Int("max", 4096, "maximum allocation size in bytes")
	liveCap := flag.Int("live-cap", 256, "max live allocations a worker keeps; at this count it always frees")
	flag.Parse()

	if *minAlloc < 1 || *maxAlloc < *minAlloc {
		log.Fatalf("brkstress: invalid size range [%d, %d]", *minAlloc, *maxAlloc)
	}

	var stats runStats
	pool := workerpool.New(*workers, *workers*2)
	pool.SetPanicHandler(func(r interface{}) {
		atomic.AddInt64(&stats.panics, 1)
		log.Printf("brkstress: worker panic: %v", r)
	})

	deadline := time.Now().Add(*duration)
	for i := 0; i < *workers; i++ {
		pool.Submit(func(h *alloc.Heap) {
			runWorker(h, deadline, *minAlloc, *maxAlloc, *liveCap, &stats)
		})
	}
	pool.Close()

	log.Printf("brkstress: done: allocs=%d frees=%d reallocs=%d oom=%d panics=%d bytes=%d",
		atomic.LoadInt64(&stats.allocs), atomic.LoadInt64(&stats.frees),
		atomic.LoadInt64(&stats.reallocs), atomic.LoadInt64(&stats.oom),
		atomic.LoadInt64(&stats.panics), atomic.LoadInt64(&stats.bytes))
}

type runStats struct {
	allocs   int64
	frees    int64
	reallocs int64
	oom      int64
	panics   int64
	bytes    int64
}

// runWorker repeatedly allocates, occasionally reallocates, and frees (at
// random while it holds any buffer, and always once it holds liveCap live
// buffers), until deadline passes. Each
// call runs against h alone; h must not be touched by any other goroutine.
func runWorker(h *alloc.Heap, deadline time.Time, minAlloc, maxAlloc, liveCap int, stats *runStats) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var live [][]byte

	for time.Now().Before(deadline) {
		switch {
		case len(live) > 0 && (len(live) >= liveCap || rng.Intn(3) == 0):
			i := rng.Intn(len(live))
			buf := live[i]
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
			h.Free(buf)
			atomic.AddInt64(&stats.frees, 1)

		case rng.Intn(5) == 0 && len(live) > 0:
			i := rng.Intn(len(live))
			newSize := minAlloc + rng.Intn(maxAlloc-minAlloc+1)
			resized := h.Reallocate(live[i], newSize)
			if resized == nil {
				atomic.AddInt64(&stats.oom, 1)
				live[i] = live[len(live)-1]
				live = live[:len(live)-1]
				continue
			}
			live[i] = resized
			atomic.AddInt64(&stats.reallocs, 1)

		default:
			size := minAlloc + rng.Intn(maxAlloc-minAlloc+1)
			buf := h.Allocate(size)
			if buf == nil {
				atomic.AddInt64(&stats.oom, 1)
				continue
			}
			for j := range buf {
				buf[j] = byte(j)
			}
			live = append(live, buf)
			atomic.AddInt64(&stats.allocs, 1)
			atomic.AddInt64(&stats.bytes, int64(len(buf)))
		}
	}

	if len(live) > 0 {
		log.Printf("brkstress: worker exiting, sample live buffer: %q", ptrutil.PreviewString(live[0], 8))
	}
	for _, buf := range live {
		h.Free(buf)
		atomic.AddInt64(&stats.frees, 1)
	}
}
