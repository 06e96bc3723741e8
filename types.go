// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import "time"

// Channel is the single-item transport a queue is built on.
//
// A Channel is a bounded FIFO shared by any number of producers and
// consumers. It is the sole serialization point: every implementation
// provides mutual exclusion for all operations on the same instance,
// whether the callers are goroutines or separate processes.
//
// Blocking contract for Put and Get:
//
//	block == false   one attempt; ErrWouldBlock (Put) or ErrEmpty (Get)
//	timeout  < 0     wait without deadline, until success or Close
//	timeout == 0     one attempt; ErrTimeout on failure
//	timeout  > 0     wait up to timeout; ErrTimeout on expiry
//
// Implementations in this package: [Local], [Shared], [Redis].
type Channel[T any] interface {
	// Put enqueues one item.
	// Returns ErrClosed after Close, ErrTooLarge if the item can never fit.
	Put(item T, block bool, timeout time.Duration) error

	// Get dequeues one item. Items buffered before Close stay available;
	// once a closed queue is drained Get returns ErrClosed.
	Get(block bool, timeout time.Duration) (T, error)

	// Len returns the number of buffered items. Under concurrency the
	// value is a snapshot and may be stale on return.
	Len() int

	// Empty reports whether no items are buffered.
	Empty() bool

	// Full reports whether a Put would currently block.
	Full() bool

	// CapBytes returns the capacity in bytes of buffered payload.
	CapBytes() int

	// Close marks the channel closed. It is one-way and idempotent.
	Close() error

	// Closed reports whether Close was called.
	Closed() bool
}

// Queue is a Channel with batch operations.
//
// The batch operations compose the channel's single-item operations. They
// are not atomic: a failed PutMany leaves its prefix enqueued, and GetMany
// returns whatever was drained.
//
// Example:
//
//	q, _ := bq.CreateQueue[string](1 << 20)
//
//	n, err := q.PutMany([]string{"a", "b", "c"}, true, time.Second)
//	if err != nil {
//	    // n items were enqueued before the failure
//	}
//
//	msgs, err := q.GetMany(true, time.Second, 100)
//	if bq.IsRetryable(err) {
//	    // nothing arrived in time
//	}
type Queue[T any] interface {
	Channel[T]

	// PutNowait is Put(item, false, 0).
	PutNowait(item T) error

	// GetNowait is Get(false, 0).
	GetNowait() (T, error)

	// PutMany enqueues items in order against one overall deadline and
	// reports how many were enqueued. See [Batched.PutMany].
	PutMany(items []T, block bool, timeout time.Duration) (int, error)

	// PutManyNowait is PutMany(items, false, 0).
	PutManyNowait(items []T) (int, error)

	// GetMany waits for one item, then drains up to maxItems-1 more
	// without waiting. See [Batched.GetMany].
	GetMany(block bool, timeout time.Duration, maxItems int) ([]T, error)

	// GetManyNowait drains up to maxItems buffered items without waiting.
	// Returns an empty batch and a nil error when nothing is buffered.
	GetManyNowait(maxItems int) ([]T, error)
}

// Sizer reports the number of payload bytes an item occupies.
type Sizer[T any] func(item T) int

// Sized is implemented by items that know their own payload size.
type Sized interface {
	Size() int
}
