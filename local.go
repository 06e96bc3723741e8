// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import (
	"time"
	"unsafe"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/bq/internal/ring"
)

// DefaultSlots is the slot count of an in-process queue when none is set.
const DefaultSlots = 4096

// Local is the in-process transport.
//
// Items live in a lock-free slot ring. Two bounds apply: the ring's slot
// count and CapBytes of payload, as charged by the queue's Sizer. Byte
// occupancy is reserved before an item enters the ring and released when
// it leaves, so the byte bound is never exceeded.
//
// Items are stored by value and never serialized.
type Local[T any] struct {
	_      pad
	used   atomix.Int64 // reserved payload bytes
	_      pad
	count  atomix.Int64 // buffered items
	_      pad
	closed atomix.Bool
	_      pad
	ring   ring.Ring[localEntry[T]]
	size   Sizer[T]
	cap    int64
}

type localEntry[T any] struct {
	item T
	size int64
}

var _ Channel[int] = (*Local[int])(nil)

// NewLocal creates an in-process transport holding at most capacityBytes
// of payload in at most slots items (rounded up to a power of 2).
//
// kind selects the ring algorithm; a nil sizer means SizeOf[T].
// Panics if capacityBytes < 1 or slots < 2.
func NewLocal[T any](capacityBytes, slots int, kind ring.Kind, sizer Sizer[T]) *Local[T] {
	if capacityBytes < 1 {
		panic("bq: capacity must be >= 1 byte")
	}
	if sizer == nil {
		sizer = SizeOf[T]
	}
	return &Local[T]{
		ring: ring.New[localEntry[T]](kind, slots),
		size: sizer,
		cap:  int64(capacityBytes),
	}
}

// Put enqueues one item.
func (q *Local[T]) Put(item T, block bool, timeout time.Duration) error {
	if q.closed.LoadAcquire() {
		return ErrClosed
	}
	e := localEntry[T]{item: item, size: int64(max(q.size(item), 0))}
	if e.size > q.cap {
		return ErrTooLarge
	}
	return poll(block, timeout, q.Closed, func() error {
		return q.tryPut(&e)
	})
}

func (q *Local[T]) tryPut(e *localEntry[T]) error {
	if q.closed.LoadAcquire() {
		return ErrClosed
	}
	if !q.reserve(e.size) {
		return ErrWouldBlock
	}
	if err := q.ring.Push(e); err != nil {
		q.used.AddAcqRel(-e.size)
		return err
	}
	q.count.AddAcqRel(1)
	return nil
}

// reserve claims n payload bytes, failing when they do not fit.
// A failed claim is rolled back, so concurrent reservations may briefly
// see each other's overshoot and report full.
func (q *Local[T]) reserve(n int64) bool {
	if q.used.AddAcqRel(n) <= q.cap {
		return true
	}
	q.used.AddAcqRel(-n)
	return false
}

// Get dequeues one item.
func (q *Local[T]) Get(block bool, timeout time.Duration) (T, error) {
	var item T
	err := poll(block, timeout, q.Closed, func() error {
		e, err := q.ring.Pop()
		if err != nil {
			return err
		}
		q.count.AddAcqRel(-1)
		q.used.AddAcqRel(-e.size)
		item = e.item
		return nil
	})
	return item, emptyError(err, q.Closed())
}

// emptyError turns a would-block Get result into ErrEmpty, or ErrClosed
// when the queue is closed and therefore will stay empty.
func emptyError(err error, closed bool) error {
	if !IsWouldBlock(err) {
		return err
	}
	if closed {
		return ErrClosed
	}
	return ErrEmpty
}

// Len returns the number of buffered items.
func (q *Local[T]) Len() int {
	return int(max(q.count.Load(), 0))
}

// Empty reports whether no items are buffered.
func (q *Local[T]) Empty() bool {
	return q.Len() == 0
}

// Full reports whether either the slot or the byte bound is reached.
func (q *Local[T]) Full() bool {
	return q.Len() >= q.ring.Cap() || q.used.Load() >= q.cap
}

// CapBytes returns the payload capacity in bytes.
func (q *Local[T]) CapBytes() int {
	return int(q.cap)
}

// Slots returns the slot capacity of the ring.
func (q *Local[T]) Slots() int {
	return q.ring.Cap()
}

// UsedBytes returns the payload bytes currently charged.
func (q *Local[T]) UsedBytes() int {
	return int(max(q.used.Load(), 0))
}

// Close marks the queue closed. Buffered items remain available to Get.
func (q *Local[T]) Close() error {
	q.closed.StoreRelease(true)
	if d, ok := q.ring.(ring.Drainer); ok {
		d.Drain()
	}
	return nil
}

// Closed reports whether Close was called.
func (q *Local[T]) Closed() bool {
	return q.closed.LoadAcquire()
}

// SizeOf is the default Sizer.
//
//	[]byte, string  length
//	Sized           Size()
//	otherwise       unsafe.Sizeof the value
func SizeOf[T any](item T) int {
	switch v := any(item).(type) {
	case []byte:
		return len(v)
	case string:
		return len(v)
	case Sized:
		return v.Size()
	}
	return int(unsafe.Sizeof(item))
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte
