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

// Package workerpool runs a fixed set of long-lived worker goroutines, each
// owning its own *alloc.Heap for the lifetime of the pool. This differs
// from an elastic goroutine-per-task pool: a heap accumulates chunks and
// free lists across jobs, so a worker has to keep the same Heap instance
// for every job it ever runs rather than being torn down between tasks.
package workerpool

import (
	"log"
	"runtime/debug"
	"sync"

	"github.com/brkheap/brkheap/alloc"
)

// Job is a unit of work handed to a worker. h is that worker's own Heap;
// it must never be shared with another goroutine.
type Job func(h *alloc.Heap)

// Pool is a fixed-size set of workers reading from a shared job queue.
type Pool struct {
	jobs         chan Job
	panicHandler func(r interface{})
	wg           sync.WaitGroup
}

// New starts a Pool of n workers, each backed by its own alloc.New() heap,
// reading from a queue buffered to queueDepth entries. Submit blocks once
// the queue is full, applying natural backpressure instead of the
// fall-back-to-a-bare-goroutine behavior an elastic pool would use — here
// there is no cheap "spin up a disposable worker", since every worker must
// carry a real heap.
func New(n, queueDepth int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{jobs: make(chan Job, queueDepth)}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.runWorker()
	}
	return p
}

// SetPanicHandler overrides the default log.Printf-and-continue behavior
// for a job that panics.
func (p *Pool) SetPanicHandler(f func(r interface{})) { p.panicHandler = f }

// Submit enqueues a job. It blocks if every worker is busy and the queue is
// full.
func (p *Pool) Submit(j Job) { p.jobs <- j }

// Close stops accepting new jobs and waits for every queued job to finish.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	h := alloc.New()
	for j := range p.jobs {
		p.runJob(h, j)
	}
}

func (p *Pool) runJob(h *alloc.Heap, j Job) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			} else {
				log.Printf("workerpool: panic in job: %v: %s", r, debug.Stack())
			}
		}
	}()
	j(h)
}
