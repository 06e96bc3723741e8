// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package shm

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Region is a file-backed shared memory mapping.
//
// Every process that maps the same path sees the same bytes. On Linux the
// default directory is /dev/shm, so the file never touches a disk.
type Region struct {
	path string
	mem  []byte
}

// Create creates a fresh file at path of size bytes and maps it.
//
// An existing file at path is unlinked first, never truncated: processes
// that still map it keep their pages and no longer share with the new one.
func Create(path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, errors.Errorf("shm: invalid region size %d", size)
	}
	if err := Unlink(path); err != nil {
		return nil, err
	}
	// O_EXCL reports a creator racing on the same path.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "shm: create %s", path)
	}
	defer f.Close()

	if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
		return nil, errors.Wrapf(err, "shm: truncate %s to %d bytes", path, size)
	}
	return mapFile(f, path, size)
}

// Open maps an existing file created by Create.
// The whole file is mapped; the caller validates its contents.
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "shm: open %s", path)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "shm: stat %s", path)
	}
	// A zero-length file means the creator has not truncated it yet.
	if st.Size() == 0 {
		return nil, errors.Errorf("shm: %s is empty (creator still initializing?)", path)
	}
	return mapFile(f, path, int(st.Size()))
}

func mapFile(f *os.File, path string, size int) (*Region, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "shm: mmap %s", path)
	}
	return &Region{path: path, mem: mem}, nil
}

// Bytes returns the mapped memory. It is invalid after Close.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Path returns the backing file path.
func (r *Region) Path() string {
	return r.path
}

// Close unmaps the region. The backing file is left in place.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	mem := r.mem
	r.mem = nil
	return errors.Wrapf(unix.Munmap(mem), "shm: munmap %s", r.path)
}

// Unlink removes the backing file. Existing mappings stay valid.
func Unlink(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "shm: unlink %s", path)
	}
	return nil
}

// DefaultDir returns the directory used for region files when none is given.
func DefaultDir() string {
	if st, err := os.Stat("/dev/shm"); err == nil && st.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Supported reports whether shared memory regions work on this platform.
const Supported = true
