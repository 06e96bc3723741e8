// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring provides the bounded lock-free slot rings that back the
// in-process queue transport.
//
// Three algorithms are available, all with the same non-blocking contract:
//
//	NewSCQ[T]     - FAA-based MPMC (2n slots), default
//	NewSeq[T]     - CAS-based MPMC with per-slot sequences (n slots)
//	NewLamport[T] - single-producer single-consumer ring buffer
//
// Push and Pop never wait. They return [iox.ErrWouldBlock] when the ring is
// full or empty and the caller decides how to wait.
//
// Capacity rounds up to the next power of 2. Panics if capacity < 2.
package ring

import "code.hybscloud.com/iox"

// Ring is a bounded FIFO of T values.
type Ring[T any] interface {
	// Push copies *elem into the ring.
	// Returns iox.ErrWouldBlock if the ring is full.
	Push(elem *T) error

	// Pop removes the oldest element.
	// Returns (zero-value, iox.ErrWouldBlock) if the ring is empty.
	Pop() (T, error)

	// Cap returns the number of usable slots.
	Cap() int
}

// Drainer is implemented by rings whose Pop may report empty while
// elements remain, until told that no more pushes will happen.
type Drainer interface {
	Drain()
}

// Kind selects a ring algorithm.
type Kind uint8

const (
	// KindSCQ is the FAA-based multi-producer multi-consumer ring.
	KindSCQ Kind = iota
	// KindSeq is the CAS-based compact multi-producer multi-consumer ring.
	KindSeq
	// KindLamport is the single-producer single-consumer ring.
	KindLamport
)

// String returns the algorithm name.
func (k Kind) String() string {
	switch k {
	case KindSCQ:
		return "scq"
	case KindSeq:
		return "seq"
	case KindLamport:
		return "lamport"
	default:
		return "unknown"
	}
}

// New creates a ring of the given kind.
func New[T any](kind Kind, capacity int) Ring[T] {
	switch kind {
	case KindSeq:
		return NewSeq[T](capacity)
	case KindLamport:
		return NewLamport[T](capacity)
	default:
		return NewSCQ[T](capacity)
	}
}

var errWouldBlock = iox.ErrWouldBlock

// RoundToPow2 rounds n up to the next power of 2 (minimum 2).
func RoundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

func mustCapacity(capacity int) uint64 {
	if capacity < 2 {
		panic("ring: capacity must be >= 2")
	}
	return uint64(RoundToPow2(capacity))
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padShort fills the cache line after an 8-byte field.
type padShort [64 - 8]byte
