// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shm provides a byte-record ring laid out in shared memory, safe
// for any number of producer and consumer processes.
//
// Layout:
//
//	[0, HeaderSize)              header (magic, capacity, lock, positions)
//	[HeaderSize, HeaderSize+cap) records
//
// A record is an 8-byte header {length uint32, magic uint32} followed by
// the payload padded to 8 bytes. When a record does not fit before the end
// of the buffer, a pad record fills the remainder and the data record
// starts again at offset 0.
//
// All record and position updates happen under a spinlock word stored in
// the header, so the ring is MPMC across processes. A process that dies
// while holding the lock leaves the ring locked.
package shm

import (
	"encoding/binary"
	"errors"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

const (
	// HeaderSize is the number of bytes reserved for the ring header.
	HeaderSize = 128

	// RecordHeaderSize is the per-record overhead before alignment.
	RecordHeaderSize = 8

	// MinCapacity is the smallest usable record area.
	MinCapacity = 2 * RecordHeaderSize

	ringMagic   = 0x6271_7368_6d00_0001 // "bqshm" v1
	recordData  = 0xDA7A0001
	recordPad   = 0xDA7A0002
	lockSpins   = 64
	lockHeld    = 1
	lockFree    = 0
	closedState = 1
)

var (
	// ErrTooLarge reports a record that can never fit in the ring.
	ErrTooLarge = errors.New("shm: record larger than ring capacity")

	// ErrClosed reports a put on a closed ring.
	ErrClosed = errors.New("shm: ring is closed")

	// ErrCorrupted reports a header or record that fails validation.
	ErrCorrupted = errors.New("shm: ring memory is corrupted")

	// ErrUnsupported reports a platform without shared memory support.
	ErrUnsupported = errors.New("shm: shared memory is not supported on this platform")
)

type header struct {
	magic    atomix.Uint64
	capacity atomix.Uint64
	lock     atomix.Uint64
	closed   atomix.Uint64
	writePos atomix.Uint64
	readPos  atomix.Uint64
	count    atomix.Uint64
}

// The header must fit in its reserved bytes.
var _ [HeaderSize - unsafe.Sizeof(header{})]byte

// Ring is a view of a shared-memory record ring.
// Several Ring values, in one or many processes, may view the same memory.
type Ring struct {
	hdr *header
	buf []byte
	cap uint64
}

// RegionSize returns the mapping size needed for a ring of capacity bytes.
func RegionSize(capacity int) int {
	return HeaderSize + align8(capacity)
}

// RecordSize returns the ring bytes consumed by a payload of n bytes.
func RecordSize(n int) int {
	return RecordHeaderSize + align8(n)
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// Format initializes mem as an empty ring and returns a view of it.
// len(mem) must be at least HeaderSize+MinCapacity.
func Format(mem []byte) (*Ring, error) {
	if len(mem) < HeaderSize+MinCapacity {
		return nil, ErrCorrupted
	}
	capacity := uint64((len(mem) - HeaderSize) &^ 7)
	clear(mem[:HeaderSize])

	r := view(mem, capacity)
	r.hdr.capacity.StoreRelaxed(capacity)
	// Publish last: attachers only trust the header once magic is set.
	r.hdr.magic.StoreRelease(ringMagic)
	return r, nil
}

// Attach returns a view of a ring previously initialized by Format.
func Attach(mem []byte) (*Ring, error) {
	if len(mem) < HeaderSize+MinCapacity {
		return nil, ErrCorrupted
	}
	hdr := (*header)(unsafe.Pointer(&mem[0]))
	if hdr.magic.LoadAcquire() != ringMagic {
		return nil, ErrCorrupted
	}
	capacity := hdr.capacity.LoadRelaxed()
	if capacity < MinCapacity || capacity%8 != 0 || capacity > uint64(len(mem)-HeaderSize) {
		return nil, ErrCorrupted
	}
	return view(mem, capacity), nil
}

func view(mem []byte, capacity uint64) *Ring {
	return &Ring{
		hdr: (*header)(unsafe.Pointer(&mem[0])),
		buf: mem[HeaderSize : HeaderSize+capacity],
		cap: capacity,
	}
}

func (r *Ring) lock() {
	sw := spin.Wait{}
	backoff := iox.Backoff{}
	for i := 0; !r.hdr.lock.CompareAndSwapAcqRel(lockFree, lockHeld); i++ {
		if i < lockSpins {
			sw.Once()
			continue
		}
		backoff.Wait()
	}
}

func (r *Ring) unlock() {
	r.hdr.lock.StoreRelease(lockFree)
}

// TryPut appends one record holding p.
// Returns iox.ErrWouldBlock when there is not enough free space,
// ErrTooLarge when p can never fit, ErrClosed when the ring is closed.
func (r *Ring) TryPut(p []byte) error {
	need := uint64(RecordSize(len(p)))
	if need > r.cap || uint64(len(p)) > uint64(^uint32(0)) {
		return ErrTooLarge
	}

	r.lock()
	defer r.unlock()

	if r.hdr.closed.LoadAcquire() == closedState {
		return ErrClosed
	}

	w := r.hdr.writePos.LoadRelaxed()
	rd := r.hdr.readPos.LoadRelaxed()
	if w == rd && w%r.cap != 0 {
		// Empty: rewind both positions to offset 0 so a record of up to
		// cap bytes always fits in an empty ring.
		w += r.cap - w%r.cap
		r.hdr.readPos.StoreRelease(w)
		rd = w
	}

	free := r.cap - (w - rd)
	off := w % r.cap
	toEnd := r.cap - off
	if toEnd < need {
		if free < toEnd+need {
			return iox.ErrWouldBlock
		}
		r.putHeader(off, uint32(toEnd-RecordHeaderSize), recordPad)
		w += toEnd
		off = 0
	} else if free < need {
		return iox.ErrWouldBlock
	}

	r.putHeader(off, uint32(len(p)), recordData)
	copy(r.buf[off+RecordHeaderSize:], p)

	r.hdr.writePos.StoreRelease(w + need)
	r.hdr.count.AddAcqRel(1)
	return nil
}

// TryGet removes the oldest record and returns a copy of its payload.
// Returns iox.ErrWouldBlock when the ring is empty.
func (r *Ring) TryGet() ([]byte, error) {
	r.lock()
	defer r.unlock()

	rd := r.hdr.readPos.LoadRelaxed()
	w := r.hdr.writePos.LoadRelaxed()
	for rd != w {
		off := rd % r.cap
		n, magic := r.getHeader(off)
		switch magic {
		case recordPad:
			rd += RecordHeaderSize + uint64(n)
			continue
		case recordData:
		default:
			return nil, ErrCorrupted
		}

		size := uint64(RecordSize(int(n)))
		if off+size > r.cap {
			return nil, ErrCorrupted
		}
		p := make([]byte, n)
		copy(p, r.buf[off+RecordHeaderSize:])

		r.hdr.readPos.StoreRelease(rd + size)
		r.hdr.count.AddAcqRel(^uint64(0))
		return p, nil
	}
	// Only pad records were left: consume them.
	r.hdr.readPos.StoreRelease(rd)
	return nil, iox.ErrWouldBlock
}

func (r *Ring) putHeader(off uint64, n uint32, magic uint32) {
	binary.NativeEndian.PutUint32(r.buf[off:], n)
	binary.NativeEndian.PutUint32(r.buf[off+4:], magic)
}

func (r *Ring) getHeader(off uint64) (n uint32, magic uint32) {
	return binary.NativeEndian.Uint32(r.buf[off:]), binary.NativeEndian.Uint32(r.buf[off+4:])
}

// Len returns the number of buffered records.
func (r *Ring) Len() int {
	return int(r.hdr.count.LoadAcquire())
}

// Used returns the number of ring bytes held by buffered records.
func (r *Ring) Used() int {
	rd := r.hdr.readPos.LoadAcquire()
	w := r.hdr.writePos.LoadAcquire()
	if w < rd {
		return 0
	}
	return int(w - rd)
}

// Cap returns the record area size in bytes.
func (r *Ring) Cap() int {
	return int(r.cap)
}

// Full reports whether not even an empty record fits.
func (r *Ring) Full() bool {
	return r.Cap()-r.Used() < RecordHeaderSize
}

// Empty reports whether no record is buffered.
func (r *Ring) Empty() bool {
	return r.Len() == 0
}

// Close marks the ring closed for every process viewing it.
func (r *Ring) Close() {
	r.hdr.closed.StoreRelease(closedState)
}

// Closed reports whether any process closed the ring.
func (r *Ring) Closed() bool {
	return r.hdr.closed.LoadAcquire() == closedState
}
