// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "code.hybscloud.com/atomix"

// Lamport is a single-producer single-consumer ring buffer.
//
// Each side caches the other side's index and only reloads it when the
// cached value says the ring is full (producer) or empty (consumer).
//
// Exactly one goroutine may Push and exactly one may Pop.
type Lamport[T any] struct {
	_          pad
	head       atomix.Uint64
	_          pad
	cachedTail uint64
	_          pad
	tail       atomix.Uint64
	_          pad
	cachedHead uint64
	_          pad
	buf        []T
	mask       uint64
}

// NewLamport creates an SPSC ring with at least the given capacity.
func NewLamport[T any](capacity int) *Lamport[T] {
	n := mustCapacity(capacity)
	return &Lamport[T]{
		buf:  make([]T, n),
		mask: n - 1,
	}
}

// Push adds an element (producer only).
func (r *Lamport[T]) Push(elem *T) error {
	tail := r.tail.LoadRelaxed()
	if tail-r.cachedHead > r.mask {
		r.cachedHead = r.head.LoadAcquire()
		if tail-r.cachedHead > r.mask {
			return errWouldBlock
		}
	}
	r.buf[tail&r.mask] = *elem
	r.tail.StoreRelease(tail + 1)
	return nil
}

// Pop removes the oldest element (consumer only).
func (r *Lamport[T]) Pop() (T, error) {
	var zero T
	head := r.head.LoadRelaxed()
	if head >= r.cachedTail {
		r.cachedTail = r.tail.LoadAcquire()
		if head >= r.cachedTail {
			return zero, errWouldBlock
		}
	}
	elem := r.buf[head&r.mask]
	r.buf[head&r.mask] = zero
	r.head.StoreRelease(head + 1)
	return elem, nil
}

// Cap returns the usable capacity.
func (r *Lamport[T]) Cap() int {
	return int(r.mask + 1)
}
