// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bq provides a batched bounded FIFO queue that works the same
// whether producers and consumers share a goroutine pool, a machine, or
// only a Redis server.
//
// A queue is a [Channel], the single-item transport, wrapped by [Batched],
// which adds batch transfer on top:
//
//	Local[T]   in-process, lock-free slot ring
//	Shared[T]  cross-process, byte ring in a memory-mapped file
//	Redis[T]   networked, Redis list updated by Lua scripts
//
// # Quick Start
//
//	q, err := bq.CreateQueue[[]byte](1 << 20) // 1 MiB of payload
//	if err != nil {
//	    return err
//	}
//	defer q.Close()
//
//	n, err := q.PutMany(frames, true, time.Second)
//	batch, err := q.GetMany(true, time.Second, 64)
//
// The builder selects the backend:
//
//	q, err := bq.Build[Event](bq.New(1 << 20).SingleProducer().SingleConsumer())
//	q, err := bq.Build[[]byte](bq.New(1 << 20).CrossProcess("frames"))
//	q, err := bq.Build[Task](bq.New(1 << 20).Redis(client, "tasks"))
//
// # Blocking and Timeouts
//
// Every operation takes block and timeout:
//
//	block == false   one attempt, never waits
//	timeout  < 0     wait until success or Close ([NoTimeout])
//	timeout >= 0     wait at most timeout, then ErrTimeout
//
// Waiting polls the transport with [iox.Backoff]. Close wakes every waiter:
// blocked producers fail with [ErrClosed], blocked consumers first drain
// what is buffered.
//
// # Batch Semantics
//
// PutMany puts items one at a time against a single deadline taken once on
// entry; each item gets what is left of it. The first failure stops the
// batch and PutMany reports how many items went in. There is no rollback:
//
//	n, err := q.PutMany(items, true, 100*time.Millisecond)
//	if bq.IsTimeout(err) {
//	    retry := items[n:] // items[:n] are already queued
//	}
//
// GetMany waits only for the first item, then takes whatever else is
// already buffered without waiting, up to maxItems. It returns either a
// non-empty batch and nil, or nil and an error. GetManyNowait turns "nothing
// buffered" into an empty batch and a nil error.
//
// # Capacity
//
// Capacity is measured in bytes of buffered payload, not items. Local
// charges each item [SizeOf] unless a Sizer is configured, and is also
// bounded by its slot count ([DefaultSlots]). Shared and Redis charge the
// encoded size produced by the queue's [Codec]. An item larger than the
// whole capacity fails with [ErrTooLarge] instead of blocking forever.
//
// # Error Handling
//
//	bq.IsWouldBlock(err)  // ErrWouldBlock or ErrEmpty: try again later
//	bq.IsTimeout(err)     // a blocking call ran out of time
//	bq.IsClosed(err)      // closed, and for Get also drained
//	bq.IsRetryable(err)   // any of the first two
//
// [ErrWouldBlock] is [iox.ErrWouldBlock], so the iox classifiers
// ([IsSemantic], [IsNonFailure]) apply as well.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors and
// backoff, [code.hybscloud.com/atomix] for atomics with explicit memory
// ordering, [code.hybscloud.com/spin] for CPU pause, zap for logging and
// go-redis for the networked backend.
package bq
