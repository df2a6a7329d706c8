// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mmap wraps a single read-write shared mapping of a regular file.
//
// It is intentionally tiny: one (fd, length) in, one []byte view out. Callers
// that need to grow or shrink the mapped region unmap the old view and Map a
// new one rather than asking this package to resize anything in place.
package mmap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// View is a single MAP_SHARED mapping of the first length bytes of a file.
type View struct {
	data []byte
}

// Map creates a new shared mapping of the first length bytes of f.
//
// length == 0 is allowed and returns an empty, harmless View so that callers
// don't need to special-case a yet-unsized header region.
func Map(fd uintptr, length int64) (*View, error) {
	if length == 0 {
		return &View{}, nil
	}
	data, err := unix.Mmap(int(fd), 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &View{data: data}, nil
}

// Bytes returns the mapped region. The slice is valid until Unmap is called.
func (v *View) Bytes() []byte {
	if v == nil {
		return nil
	}
	return v.data
}

// Sync forces the mapped pages to durable storage, synchronously.
func (v *View) Sync() error {
	if v == nil || len(v.data) == 0 {
		return nil
	}
	if err := unix.Msync(v.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w", err)
	}
	return nil
}

// Unmap releases the mapping. The View must not be used afterward.
func (v *View) Unmap() error {
	if v == nil || len(v.data) == 0 {
		return nil
	}
	data := v.data
	v.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// Remap unmaps the current view (if any) and maps length bytes of fd in its
// place, returning the new view. Used whenever the backing file's length
// changes (growth, shrink, clear).
func Remap(old *View, fd uintptr, length int64) (*View, error) {
	if old != nil {
		if err := old.Unmap(); err != nil {
			return nil, err
		}
	}
	return Map(fd, length)
}
