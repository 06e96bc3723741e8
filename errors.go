// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"

	"code.hybscloud.com/bq/internal/shm"
)

// ErrWouldBlock indicates a non-blocking operation cannot proceed now.
//
// For Put: the queue is full (backpressure).
// For Get: see [ErrEmpty], which wraps ErrWouldBlock.
//
// ErrWouldBlock is a control flow signal, not a failure. Retry later or
// treat it as a no-op for this tick.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

var (
	// ErrEmpty is returned by a non-blocking Get on an empty queue, and by
	// GetMany when its first item is not available without waiting.
	// errors.Is(ErrEmpty, ErrWouldBlock) is true.
	ErrEmpty = fmt.Errorf("bq: queue is empty: %w", ErrWouldBlock)

	// ErrTimeout is returned when a blocking operation's deadline elapses.
	ErrTimeout = errors.New("bq: operation timed out")

	// ErrClosed is returned by Put on a closed queue, and by Get once a
	// closed queue has been drained.
	ErrClosed = errors.New("bq: queue is closed")

	// ErrTooLarge is returned by Put when one item is larger than the
	// queue's whole capacity and can never fit.
	ErrTooLarge = errors.New("bq: item larger than queue capacity")

	// ErrUnsupported is returned at construction when the selected backend
	// cannot run on this platform.
	ErrUnsupported = errors.New("bq: backend not supported on this platform")

	// ErrCorrupted reports a transport whose shared state fails validation.
	// It is a transport fault, not a queue condition.
	ErrCorrupted = errors.New("bq: transport state is corrupted")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("bq: invalid configuration")
)

// IsWouldBlock reports whether err indicates the operation would block.
// True for ErrWouldBlock and ErrEmpty.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err is nil, ErrWouldBlock or iox.ErrMore.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}

// IsTimeout reports whether err is ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsClosed reports whether err is ErrClosed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsRetryable reports whether retrying the same operation later may succeed:
// ErrWouldBlock, ErrEmpty and ErrTimeout.
func IsRetryable(err error) bool {
	return IsWouldBlock(err) || IsTimeout(err)
}

// shmError maps internal/shm sentinels onto the package taxonomy.
func shmError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shm.ErrClosed):
		return ErrClosed
	case errors.Is(err, shm.ErrTooLarge):
		return ErrTooLarge
	case errors.Is(err, shm.ErrCorrupted):
		return ErrCorrupted
	case errors.Is(err, shm.ErrUnsupported):
		return ErrUnsupported
	}
	return err
}
