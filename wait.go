// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import (
	"time"

	"code.hybscloud.com/iox"
)

// budget is a timeout measured from one monotonic clock reading.
// time.Now carries a monotonic reading, so elapsed time is immune to
// wall-clock steps.
type budget struct {
	start   time.Time
	timeout time.Duration
}

func newBudget(timeout time.Duration) budget {
	return budget{start: time.Now(), timeout: timeout}
}

// unbounded reports whether the budget has no deadline.
func (b budget) unbounded() bool {
	return b.timeout < 0
}

// remaining returns max(0, timeout - elapsed), or the negative timeout
// unchanged when the budget is unbounded.
func (b budget) remaining() time.Duration {
	if b.unbounded() {
		return b.timeout
	}
	return max(0, b.timeout-time.Since(b.start))
}

func (b budget) expired() bool {
	return !b.unbounded() && time.Since(b.start) >= b.timeout
}

// poll runs try until it reports anything other than ErrWouldBlock.
//
// With block == false try runs once and its ErrWouldBlock is returned as
// is. Otherwise try is retried with iox.Backoff until the timeout elapses,
// which turns the last ErrWouldBlock into ErrTimeout. closed is checked
// between attempts so waiters do not outlive Close.
func poll(block bool, timeout time.Duration, closed func() bool, try func() error) error {
	b := newBudget(timeout)
	err := try()
	if !block || !IsWouldBlock(err) {
		return err
	}

	backoff := iox.Backoff{}
	for {
		if closed() {
			// One last attempt: a closed queue may still hold items.
			if err = try(); IsWouldBlock(err) {
				return ErrClosed
			}
			return err
		}
		if b.expired() {
			return ErrTimeout
		}
		backoff.Wait()
		if err = try(); !IsWouldBlock(err) {
			return err
		}
	}
}
