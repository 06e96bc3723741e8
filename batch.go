// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout is the timeout used by callers that have no better one.
	DefaultTimeout = 1000 * time.Second

	// DefaultMaxMessages bounds GetMany when maxItems <= 0.
	DefaultMaxMessages = 1_000_000_000

	// NoTimeout makes a blocking operation wait until it succeeds or the
	// queue is closed.
	NoTimeout time.Duration = -1
)

// Batched adds batch operations to any Channel.
//
// This is the only implementation of the batch contract; every backend is
// wrapped by it, so PutMany and GetMany behave identically whether the
// transport is in-process, shared memory, or Redis.
type Batched[T any] struct {
	Channel[T]
	log *zap.Logger
}

var _ Queue[int] = (*Batched[int])(nil)

// Wrap returns ch with batch operations.
// A nil logger disables logging.
func Wrap[T any](ch Channel[T], log *zap.Logger) *Batched[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Batched[T]{Channel: ch, log: log}
}

// Unwrap returns the underlying channel.
func (q *Batched[T]) Unwrap() Channel[T] {
	return q.Channel
}

// PutNowait enqueues one item without waiting.
func (q *Batched[T]) PutNowait(item T) error {
	return q.Put(item, false, 0)
}

// GetNowait dequeues one item without waiting.
func (q *Batched[T]) GetNowait() (T, error) {
	return q.Get(false, 0)
}

// PutMany enqueues items in order against one overall deadline.
//
// The clock is read once on entry. Each item gets what is left of the
// timeout: max(0, timeout - elapsed). Total wall-clock cost is therefore
// about timeout, not len(items)*timeout. A negative timeout never expires.
//
// The first failing Put stops the batch. PutMany returns the number of
// items enqueued before it and that Put's error. Enqueued items stay
// enqueued: the batch is a prefix transfer, not a transaction.
//
// The deadline is checked between items only; an item's Put is never
// interrupted.
func (q *Batched[T]) PutMany(items []T, block bool, timeout time.Duration) (int, error) {
	b := newBudget(timeout)
	for i := range items {
		if err := q.Put(items[i], block, b.remaining()); err != nil {
			if ce := q.log.Check(zap.DebugLevel, "bq: partial batch put"); ce != nil {
				ce.Write(zap.Int("placed", i), zap.Int("batch", len(items)), zap.Error(err))
			}
			return i, err
		}
	}
	return len(items), nil
}

// PutManyNowait enqueues items until the first one that does not fit now.
func (q *Batched[T]) PutManyNowait(items []T) (int, error) {
	return q.PutMany(items, false, 0)
}

// GetMany dequeues up to maxItems items.
//
// Only the first item waits: Get(block, timeout). Once it arrives, more
// items are taken with non-blocking Gets until maxItems is reached or one comes
// back empty or closed, which ends the batch normally. The drain is not
// bounded by timeout since non-blocking Gets never wait.
//
// If the first item is not obtained, GetMany returns a nil batch and the
// error: ErrEmpty (block == false), ErrTimeout (block == true), or ErrClosed
// (queue closed and drained). It never returns an empty batch with a nil
// error.
//
// Any other error during the drain, such as a decode failure or
// ErrCorrupted, stops the batch: GetMany returns the items taken before it
// together with that error. Like PutMany, a partial batch may come with a
// non-nil error.
//
// maxItems <= 0 means DefaultMaxMessages.
func (q *Batched[T]) GetMany(block bool, timeout time.Duration, maxItems int) ([]T, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxMessages
	}

	first, err := q.Get(block, timeout)
	if err != nil {
		return nil, err
	}

	// Preallocate from a Len snapshot, capped so a huge backlog or a huge
	// maxItems does not allocate up front.
	out := make([]T, 1, min(maxItems, max(q.Len(), 0)+1, 1024))
	out[0] = first
	for len(out) < maxItems {
		item, err := q.Get(false, 0)
		if IsWouldBlock(err) || IsClosed(err) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// GetManyNowait dequeues up to maxItems buffered items without waiting.
//
// Unlike GetMany, an empty queue yields an empty batch and a nil error:
// "nothing right now" is not a failure here. ErrClosed is returned only
// once the queue is closed and drained.
func (q *Batched[T]) GetManyNowait(maxItems int) ([]T, error) {
	out, err := q.GetMany(false, 0, maxItems)
	if IsWouldBlock(err) {
		return []T{}, nil
	}
	return out, err
}
