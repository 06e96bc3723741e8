// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"code.hybscloud.com/bq/internal/shm"
)

// Shared is the cross-process transport.
//
// The queue lives in a named memory-mapped file that every participating
// process maps. Items are encoded with the queue's Codec and stored as
// length-prefixed records in a byte ring, so CapBytes is the exact size of
// the record area. The ring serializes all operations with a lock word in
// the shared header; no Go memory is shared between processes.
//
// One process creates the queue with [CreateShared]; the others attach
// with [OpenShared]. Close is seen by every process. Detach releases this
// process's mapping and Unlink removes the file.
type Shared[T any] struct {
	region *shm.Region
	ring   *shm.Ring
	codec  Codec[T]
	log    *zap.Logger
}

var _ Channel[int] = (*Shared[int])(nil)

// SharedSupported reports whether the cross-process backend runs on this
// platform.
const SharedSupported = shm.Supported

// SharedPath returns the file path used for a shared queue name.
// An empty dir selects /dev/shm where available, the temp dir otherwise.
func SharedPath(dir, name string) string {
	if dir == "" {
		dir = shm.DefaultDir()
	}
	return filepath.Join(dir, "bq-"+name)
}

// CreateShared creates a shared queue file at path holding capacityBytes of
// records, replacing any previous file.
func CreateShared[T any](path string, capacityBytes int, codec Codec[T], log *zap.Logger) (*Shared[T], error) {
	if !shm.Supported {
		return nil, ErrUnsupported
	}
	capacityBytes = max(capacityBytes, shm.MinCapacity)
	region, err := shm.Create(path, shm.RegionSize(capacityBytes))
	if err != nil {
		return nil, err
	}
	r, err := shm.Format(region.Bytes())
	if err != nil {
		region.Close()
		return nil, errors.Wrapf(shmError(err), "bq: format %s", path)
	}
	q := newShared(region, r, codec, log)
	q.log.Info("bq: shared queue created", zap.String("path", path), zap.Int("capacity", r.Cap()))
	return q, nil
}

// OpenShared attaches to a shared queue created by another process.
func OpenShared[T any](path string, codec Codec[T], log *zap.Logger) (*Shared[T], error) {
	if !shm.Supported {
		return nil, ErrUnsupported
	}
	region, err := shm.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := shm.Attach(region.Bytes())
	if err != nil {
		region.Close()
		return nil, errors.Wrapf(shmError(err), "bq: attach %s", path)
	}
	q := newShared(region, r, codec, log)
	q.log.Info("bq: shared queue attached", zap.String("path", path), zap.Int("capacity", r.Cap()))
	return q, nil
}

func newShared[T any](region *shm.Region, r *shm.Ring, codec Codec[T], log *zap.Logger) *Shared[T] {
	if codec == nil {
		codec = DefaultCodec[T]()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Shared[T]{region: region, ring: r, codec: codec, log: log}
}

// Put encodes and enqueues one item.
func (q *Shared[T]) Put(item T, block bool, timeout time.Duration) error {
	if q.Closed() {
		return ErrClosed
	}
	data, err := q.codec.Marshal(item)
	if err != nil {
		return err
	}
	if shm.RecordSize(len(data)) > q.ring.Cap() {
		return ErrTooLarge
	}
	return poll(block, timeout, q.Closed, func() error {
		return shmError(q.ring.TryPut(data))
	})
}

// Get dequeues and decodes one item.
func (q *Shared[T]) Get(block bool, timeout time.Duration) (T, error) {
	var data []byte
	err := poll(block, timeout, q.Closed, func() error {
		p, err := q.ring.TryGet()
		data = p
		return shmError(err)
	})
	if err = emptyError(err, q.Closed()); err != nil {
		var zero T
		if errors.Is(err, ErrCorrupted) {
			q.log.Error("bq: shared ring corrupted", zap.String("path", q.region.Path()))
		}
		return zero, err
	}
	return q.codec.Unmarshal(data)
}

// Len returns the number of buffered items across all processes.
func (q *Shared[T]) Len() int {
	return q.ring.Len()
}

// Empty reports whether no items are buffered.
func (q *Shared[T]) Empty() bool {
	return q.ring.Empty()
}

// Full reports whether not even an empty record fits.
func (q *Shared[T]) Full() bool {
	return q.ring.Full()
}

// CapBytes returns the record area size in bytes.
func (q *Shared[T]) CapBytes() int {
	return q.ring.Cap()
}

// UsedBytes returns the record bytes currently buffered.
func (q *Shared[T]) UsedBytes() int {
	return q.ring.Used()
}

// Close marks the queue closed for every attached process.
func (q *Shared[T]) Close() error {
	if !q.ring.Closed() {
		q.ring.Close()
		q.log.Debug("bq: shared queue closed", zap.String("path", q.region.Path()))
	}
	return nil
}

// Closed reports whether any process closed the queue.
func (q *Shared[T]) Closed() bool {
	return q.ring.Closed()
}

// Path returns the backing file path.
func (q *Shared[T]) Path() string {
	return q.region.Path()
}

// Detach unmaps the queue from this process. The queue must not be used
// afterwards by this process; other processes are unaffected.
func (q *Shared[T]) Detach() error {
	return q.region.Close()
}

// Unlink removes the backing file. Processes that already mapped it keep
// working; new OpenShared calls fail.
func (q *Shared[T]) Unlink() error {
	return shm.Unlink(q.region.Path())
}
