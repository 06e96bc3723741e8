// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !unix

package shm

import "os"

// Region is unavailable on this platform.
type Region struct{}

// Create always fails with ErrUnsupported.
func Create(path string, size int) (*Region, error) { return nil, ErrUnsupported }

// Open always fails with ErrUnsupported.
func Open(path string) (*Region, error) { return nil, ErrUnsupported }

func (r *Region) Bytes() []byte { return nil }

func (r *Region) Path() string { return "" }

func (r *Region) Close() error { return nil }

// Unlink always fails with ErrUnsupported.
func Unlink(path string) error { return ErrUnsupported }

// DefaultDir returns the temporary directory.
func DefaultDir() string { return os.TempDir() }

// Supported reports whether shared memory regions work on this platform.
const Supported = false
