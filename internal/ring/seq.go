// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Seq is a CAS-based multi-producer multi-consumer ring.
//
// Every slot carries a sequence number: a producer may fill slot i at
// position p when seq == p, a consumer may empty it when seq == p+1.
// Uses n slots for capacity n and never reports empty while an element
// is committed.
type Seq[T any] struct {
	_        pad
	tail     atomix.Uint64
	_        pad
	head     atomix.Uint64
	_        pad
	slots    []seqSlot[T]
	mask     uint64
	capacity uint64
}

type seqSlot[T any] struct {
	seq  atomix.Uint64
	data T
	_    padShort
}

// NewSeq creates a CAS-based ring with at least the given capacity.
func NewSeq[T any](capacity int) *Seq[T] {
	n := mustCapacity(capacity)
	r := &Seq[T]{
		slots:    make([]seqSlot[T], n),
		mask:     n - 1,
		capacity: n,
	}
	for i := uint64(0); i < n; i++ {
		r.slots[i].seq.StoreRelaxed(i)
	}
	return r
}

// Push adds an element. Returns ErrWouldBlock if the ring is full.
func (r *Seq[T]) Push(elem *T) error {
	sw := spin.Wait{}
	for {
		tail := r.tail.LoadAcquire()
		slot := &r.slots[tail&r.mask]
		switch diff := int64(slot.seq.LoadAcquire()) - int64(tail); {
		case diff == 0:
			if r.tail.CompareAndSwapAcqRel(tail, tail+1) {
				slot.data = *elem
				slot.seq.StoreRelease(tail + 1)
				return nil
			}
		case diff < 0:
			return errWouldBlock
		}
		sw.Once()
	}
}

// Pop removes the oldest element. Returns ErrWouldBlock if the ring is empty.
func (r *Seq[T]) Pop() (T, error) {
	var zero T
	sw := spin.Wait{}
	for {
		head := r.head.LoadAcquire()
		slot := &r.slots[head&r.mask]
		switch diff := int64(slot.seq.LoadAcquire()) - int64(head+1); {
		case diff == 0:
			if r.head.CompareAndSwapAcqRel(head, head+1) {
				elem := slot.data
				slot.data = zero
				slot.seq.StoreRelease(head + r.capacity)
				return elem, nil
			}
		case diff < 0:
			return zero, errWouldBlock
		}
		sw.Once()
	}
}

// Cap returns the usable capacity.
func (r *Seq[T]) Cap() int {
	return int(r.capacity)
}
