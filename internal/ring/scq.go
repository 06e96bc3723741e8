// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// SCQ is an FAA-based multi-producer multi-consumer ring.
//
// Scalable Circular Queue (Nikolaev, DISC 2019): positions are claimed with
// Fetch-And-Add, so 2n physical slots back a capacity of n. Each slot
// records the cycle (position / capacity) it was last written in, which
// makes stale slots detectable without ABA hazards.
//
// A threshold counter bounds how long failing poppers keep claiming
// positions. While it is exhausted Pop reports empty even if pushes are in
// flight; call Drain once producers are done to pop everything that is left.
type SCQ[T any] struct {
	_         pad
	tail      atomix.Uint64
	_         pad
	head      atomix.Uint64
	_         pad
	threshold atomix.Int64
	_         pad
	draining  atomix.Bool
	_         pad
	slots     []scqSlot[T]
	capacity  uint64
	size      uint64
	mask      uint64
}

type scqSlot[T any] struct {
	cycle atomix.Uint64
	data  T
	_     padShort
}

// NewSCQ creates an FAA-based ring with at least the given capacity.
func NewSCQ[T any](capacity int) *SCQ[T] {
	n := mustCapacity(capacity)
	size := n * 2

	r := &SCQ[T]{
		slots:    make([]scqSlot[T], size),
		capacity: n,
		size:     size,
		mask:     size - 1,
	}
	r.resetThreshold()
	for i := uint64(0); i < size; i++ {
		r.slots[i].cycle.StoreRelaxed(i / n)
	}
	return r
}

func (r *SCQ[T]) resetThreshold() {
	r.threshold.StoreRelaxed(3*int64(r.capacity) - 1)
}

// Push adds an element. Returns ErrWouldBlock if the ring is full.
func (r *SCQ[T]) Push(elem *T) error {
	sw := spin.Wait{}
	for {
		tail := r.tail.LoadAcquire()
		if tail >= r.head.LoadAcquire()+r.capacity {
			return errWouldBlock
		}

		pos := r.tail.AddAcqRel(1) - 1
		slot := &r.slots[pos&r.mask]
		want := pos / r.capacity

		cycle := slot.cycle.LoadAcquire()
		if cycle == want {
			slot.data = *elem
			slot.cycle.StoreRelease(want + 1)
			r.resetThreshold()
			return nil
		}
		if int64(cycle) < int64(want) {
			return errWouldBlock
		}
		sw.Once()
	}
}

// Pop removes the oldest element. Returns ErrWouldBlock if the ring is empty.
func (r *SCQ[T]) Pop() (T, error) {
	var zero T
	if !r.draining.LoadAcquire() && r.threshold.LoadRelaxed() < 0 {
		return zero, errWouldBlock
	}

	sw := spin.Wait{}
	for {
		pos := r.head.AddAcqRel(1) - 1
		slot := &r.slots[pos&r.mask]
		want := pos/r.capacity + 1
		next := (pos + r.size) / r.capacity

		cycle := slot.cycle.LoadAcquire()
		if cycle == want {
			elem := slot.data
			slot.data = zero
			slot.cycle.StoreRelease(next)
			return elem, nil
		}

		if int64(cycle) < int64(want) {
			// Repair the stale slot so the producer that owns it skips ahead.
			slot.cycle.CompareAndSwapAcqRel(cycle, next)

			tail := r.tail.LoadAcquire()
			if tail <= pos+1 {
				r.catchup(tail, pos+1)
				r.threshold.AddAcqRel(-1)
				return zero, errWouldBlock
			}
			if r.threshold.AddAcqRel(-1) <= 0 && !r.draining.LoadAcquire() {
				return zero, errWouldBlock
			}
		}
		sw.Once()
	}
}

func (r *SCQ[T]) catchup(tail, head uint64) {
	for tail < head {
		if r.tail.CompareAndSwapRelaxed(tail, head) {
			return
		}
		tail = r.tail.LoadRelaxed()
		head = r.head.LoadRelaxed()
	}
}

// Drain tells poppers that no more pushes will happen.
func (r *SCQ[T]) Drain() {
	r.draining.StoreRelease(true)
}

// Cap returns the usable capacity.
func (r *SCQ[T]) Cap() int {
	return int(r.capacity)
}
