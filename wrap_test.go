// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"code.hybscloud.com/bq"
)

// call records the arguments of one Put or Get.
type call struct {
	block   bool
	timeout time.Duration
}

// scriptedChannel is an unbounded Channel that records every call, takes
// delay per Put, and fails Puts once it holds limit items. The failGet-th
// Get (1-based) consumes its item, if any, and returns getErr instead.
type scriptedChannel struct {
	mu      sync.Mutex
	buf     []int
	limit   int
	delay   time.Duration
	puts    []call
	gets    []call
	failGet int
	getErr  error
	closed  bool
}

func (c *scriptedChannel) Put(item int, block bool, timeout time.Duration) error {
	c.mu.Lock()
	c.puts = append(c.puts, call{block, timeout})
	full := c.limit > 0 && len(c.buf) >= c.limit
	c.mu.Unlock()

	if full {
		if !block {
			return bq.ErrWouldBlock
		}
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return bq.ErrTimeout
	}
	time.Sleep(c.delay)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, item)
	return nil
}

func (c *scriptedChannel) Get(block bool, timeout time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets = append(c.gets, call{block, timeout})
	if c.failGet > 0 && len(c.gets) == c.failGet {
		if len(c.buf) > 0 {
			c.buf = c.buf[1:]
		}
		return 0, c.getErr
	}
	if len(c.buf) == 0 {
		if block {
			return 0, bq.ErrTimeout
		}
		return 0, bq.ErrEmpty
	}
	v := c.buf[0]
	c.buf = c.buf[1:]
	return v, nil
}

func (c *scriptedChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

func (c *scriptedChannel) Empty() bool   { return c.Len() == 0 }
func (c *scriptedChannel) Full() bool    { return c.limit > 0 && c.Len() >= c.limit }
func (c *scriptedChannel) CapBytes() int { return c.limit * 8 }
func (c *scriptedChannel) Closed() bool  { return c.closed }

func (c *scriptedChannel) Close() error {
	c.closed = true
	return nil
}

func TestPutManyDegradesTimeout(t *testing.T) {
	const timeout = 100 * time.Millisecond
	ch := &scriptedChannel{delay: 5 * time.Millisecond}
	q := bq.Wrap[int](ch, nil)

	n, err := q.PutMany([]int{1, 2, 3, 4, 5}, true, timeout)
	if err != nil || n != 5 {
		t.Fatalf("PutMany: %d, %v", n, err)
	}

	if len(ch.puts) != 5 {
		t.Fatalf("got %d Puts, want 5", len(ch.puts))
	}
	if first := ch.puts[0].timeout; first > timeout || first < timeout-ch.delay {
		t.Fatalf("first Put timeout %v, want about %v", first, timeout)
	}
	for i := 1; i < len(ch.puts); i++ {
		prev, cur := ch.puts[i-1].timeout, ch.puts[i].timeout
		if cur > prev-ch.delay {
			t.Fatalf("Put %d timeout %v, want at most %v", i, cur, prev-ch.delay)
		}
		if !ch.puts[i].block {
			t.Fatalf("Put %d: block not forwarded", i)
		}
	}
}

func TestPutManyBudgetExhausted(t *testing.T) {
	const timeout = 30 * time.Millisecond
	ch := &scriptedChannel{delay: 20 * time.Millisecond}
	q := bq.Wrap[int](ch, nil)

	// Later items are offered a zero timeout once the budget is spent
	q.PutMany([]int{1, 2, 3, 4}, true, timeout)
	last := ch.puts[len(ch.puts)-1]
	if last.timeout != 0 {
		t.Fatalf("last Put timeout %v, want 0", last.timeout)
	}
	for _, c := range ch.puts {
		if c.timeout < 0 {
			t.Fatalf("Put got negative timeout %v from a bounded budget", c.timeout)
		}
	}
}

func TestPutManyNoTimeout(t *testing.T) {
	ch := &scriptedChannel{}
	q := bq.Wrap[int](ch, nil)

	if _, err := q.PutMany([]int{1, 2, 3}, true, bq.NoTimeout); err != nil {
		t.Fatalf("PutMany: %v", err)
	}
	for i, c := range ch.puts {
		if c.timeout != bq.NoTimeout {
			t.Fatalf("Put %d timeout %v, want NoTimeout", i, c.timeout)
		}
	}
}

func TestPutManyStopsAtFirstFailure(t *testing.T) {
	ch := &scriptedChannel{limit: 2}
	q := bq.Wrap[int](ch, nil)

	start := time.Now()
	n, err := q.PutMany([]int{1, 2, 3, 4, 5, 6}, true, 40*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, bq.ErrTimeout) || n != 2 {
		t.Fatalf("PutMany: %d, %v; want 2, ErrTimeout", n, err)
	}
	if len(ch.puts) != 3 {
		t.Fatalf("got %d Puts, want 3: items after the failure must not be tried", len(ch.puts))
	}
	if elapsed > 200*time.Millisecond {
		t.Fatalf("PutMany took %v", elapsed)
	}
}

func TestGetManyCallPattern(t *testing.T) {
	ch := &scriptedChannel{buf: []int{1, 2, 3, 4, 5}}
	q := bq.Wrap[int](ch, nil)

	got, err := q.GetMany(true, time.Second, 3)
	if err != nil || len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("GetMany: %v, %v", got, err)
	}
	want := []call{{true, time.Second}, {false, 0}, {false, 0}}
	if len(ch.gets) != len(want) {
		t.Fatalf("got %d Gets, want %d", len(ch.gets), len(want))
	}
	for i := range want {
		if ch.gets[i] != want[i] {
			t.Fatalf("Get %d: got %+v, want %+v", i, ch.gets[i], want[i])
		}
	}

	// Drain stops at the first empty Get without an error
	ch.gets = nil
	got, err = q.GetMany(false, 0, 0)
	if err != nil || len(got) != 2 {
		t.Fatalf("GetMany: %v, %v", got, err)
	}
	if len(ch.gets) != 3 {
		t.Fatalf("got %d Gets, want 3", len(ch.gets))
	}
}

func TestGetManyDrainError(t *testing.T) {
	errDecode := errors.New("decode failed")
	ch := &scriptedChannel{buf: []int{1, 2, 3}, failGet: 2, getErr: errDecode}
	q := bq.Wrap[int](ch, nil)

	got, err := q.GetMany(true, time.Second, 10)
	if !errors.Is(err, errDecode) {
		t.Fatalf("GetMany: got %v, want the drain error", err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("GetMany: got %v, want [1]", got)
	}
	if len(ch.gets) != 2 {
		t.Fatalf("got %d Gets, want 2: the batch stops at the failing Get", len(ch.gets))
	}

	// The item after the failure is still queued
	if v, err := q.GetNowait(); err != nil || v != 3 {
		t.Fatalf("GetNowait: %d, %v", v, err)
	}

	ch = &scriptedChannel{buf: []int{1, 2}, failGet: 2, getErr: bq.ErrCorrupted}
	q = bq.Wrap[int](ch, nil)
	if got, err := q.GetManyNowait(0); !errors.Is(err, bq.ErrCorrupted) || len(got) != 1 {
		t.Fatalf("GetManyNowait: %v, %v; want [1], ErrCorrupted", got, err)
	}
}

// A drain that reaches a closed queue ends the batch without an error.
func TestGetManyDrainClosed(t *testing.T) {
	ch := &scriptedChannel{buf: []int{1, 2}, failGet: 3, getErr: bq.ErrClosed}
	q := bq.Wrap[int](ch, nil)

	got, err := q.GetMany(false, 0, 0)
	if err != nil || len(got) != 2 {
		t.Fatalf("GetMany: %v, %v; want 2 items and nil", got, err)
	}
}

func TestWrapUnwrap(t *testing.T) {
	ch := &scriptedChannel{}
	q := bq.Wrap[int](ch, nil)
	if q.Unwrap() != bq.Channel[int](ch) {
		t.Fatal("Unwrap did not return the wrapped channel")
	}
	if err := q.PutNowait(7); err != nil {
		t.Fatalf("PutNowait: %v", err)
	}
	if ch.puts[0] != (call{false, 0}) {
		t.Fatalf("PutNowait called Put%+v", ch.puts[0])
	}
	if v, err := q.GetNowait(); err != nil || v != 7 {
		t.Fatalf("GetNowait: %d, %v", v, err)
	}
	if ch.gets[0] != (call{false, 0}) {
		t.Fatalf("GetNowait called Get%+v", ch.gets[0])
	}
}

func TestPartialPutIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ch := &scriptedChannel{limit: 1}
	q := bq.Wrap[int](ch, zap.New(core))

	q.PutManyNowait([]int{1, 2, 3})

	entries := logs.FilterMessage("bq: partial batch put").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["placed"] != int64(1) || fields["batch"] != int64(3) {
		t.Fatalf("log fields: %v", fields)
	}
}
