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

// Package filequeue implements a crash-safe, file-backed FIFO byte-record
// queue: a single regular file holds a fixed header followed by a ring
// buffer of length-prefixed, checksummed elements. It is single-threaded and
// unsynchronized; callers that share a QueueFile across goroutines must
// provide their own mutual exclusion.
package filequeue

import (
	"errors"
	"os"

	"github.com/cloudwego/filequeue/internal/mmap"
	"go.uber.org/zap"
)

// QueueFile is a single open queue file. The zero value is not usable; use
// Open.
type QueueFile struct {
	file       *os.File
	headerView *mmap.View
	dataView   *mmap.View

	hdr header

	first element
	last  element

	maxSize  int64
	modCount uint64
	closed   bool

	cfg Config
}

// Open opens path, creating a new empty queue file if it does not already
// exist. maxSize bounds how large the backing file is ever allowed to grow
// and must be at least 4096 bytes.
func Open(path string, maxSize int64, opts ...Option) (*QueueFile, error) {
	if maxSize < minFileLength {
		return nil, ErrInvalidMaxSize
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	q := &QueueFile{file: f, maxSize: maxSize, cfg: cfg}

	if info.Size() == 0 {
		err = q.initializeNew()
	} else {
		err = q.openExisting(info.Size())
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return q, nil
}

// initializeNew lays out a brand-new, empty queue file at the minimum legal
// length (spec §4.1).
func (q *QueueFile) initializeNew() error {
	length := int64(minFileLength)
	if length > q.maxSize {
		length = q.maxSize
	}

	if err := q.file.Truncate(length); err != nil {
		return err
	}
	if err := q.file.Sync(); err != nil {
		return err
	}

	hv, err := mmap.Map(q.file.Fd(), headerLength)
	if err != nil {
		return err
	}
	q.headerView = hv

	dv, err := mmap.Map(q.file.Fd(), length)
	if err != nil {
		hv.Unmap()
		return err
	}
	q.dataView = dv

	if err := q.commitHeader(emptyHeader(length)); err != nil {
		return err
	}
	q.first = zeroElement
	q.last = zeroElement
	return nil
}

// openExisting parses and validates the header of a pre-existing file, then
// reconstructs the first/last element descriptors (spec §4.1/§7).
func (q *QueueFile) openExisting(actualSize int64) error {
	hv, err := mmap.Map(q.file.Fd(), headerLength)
	if err != nil {
		return err
	}
	q.headerView = hv

	h, storedChecksum := decodeHeader(hv.Bytes())
	if h.version != currentVersion {
		return q.fail(corruptionf(ReasonBadVersion, 0))
	}
	if h.checksum() != storedChecksum {
		return q.fail(corruptionf(ReasonHeaderChecksum, 0))
	}
	if h.fileLength > actualSize {
		return q.fail(corruptionf(ReasonTruncated, 0))
	}
	if h.fileLength > q.maxSize {
		return &invalidMaxSizeError{stored: h.fileLength, maxSize: q.maxSize}
	}

	dv, err := mmap.Map(q.file.Fd(), h.fileLength)
	if err != nil {
		return err
	}
	q.dataView = dv
	q.hdr = h

	if h.elementCount == 0 {
		q.first = zeroElement
		q.last = zeroElement
		return nil
	}

	if !q.positionInRange(h.firstPosition) {
		return q.fail(corruptionf(ReasonPositionOutOfRange, h.firstPosition))
	}
	if !q.positionInRange(h.lastPosition) {
		return q.fail(corruptionf(ReasonPositionOutOfRange, h.lastPosition))
	}

	firstLen, err := q.readLengthAt(h.firstPosition)
	if err != nil {
		return q.fail(err)
	}
	lastLen, err := q.readLengthAt(h.lastPosition)
	if err != nil {
		return q.fail(err)
	}
	q.first = element{position: h.firstPosition, length: firstLen}
	q.last = element{position: h.lastPosition, length: lastLen}
	return nil
}

func (q *QueueFile) positionInRange(pos int64) bool {
	return pos >= headerLength && pos < q.hdr.fileLength
}

// readLengthAt reads and validates the 5-byte element header at pos,
// returning the stored payload length.
func (q *QueueFile) readLengthAt(pos int64) (int32, error) {
	var buf [elementHeaderLength]byte
	q.ringRead(pos, buf[:])
	return decodeElementHeader(buf[:], pos)
}

// fail marks the queue file permanently closed, unmaps whatever views
// were already established and closes the file handle. Used whenever
// corruption is detected: the engine never attempts repair (spec §7).
func (q *QueueFile) fail(err error) error {
	q.closed = true
	if q.headerView != nil {
		q.headerView.Unmap()
	}
	if q.dataView != nil {
		q.dataView.Unmap()
	}
	if q.file != nil {
		q.file.Close()
	}
	q.cfg.logger.Error("filequeue: closing queue file after corruption", zap.Error(err))
	return err
}

// IsEmpty reports whether the queue currently holds zero elements.
func (q *QueueFile) IsEmpty() bool {
	return q.hdr.elementCount == 0
}

// Size returns the number of elements currently stored.
func (q *QueueFile) Size() int {
	return int(q.hdr.elementCount)
}

// FileSize returns the current length of the backing file, including the
// 36-byte header.
func (q *QueueFile) FileSize() int64 {
	return q.hdr.fileLength
}

// UsedBytes returns how many of FileSize's bytes are actually occupied by
// the header plus live ring contents (spec §4.3).
func (q *QueueFile) UsedBytes() int64 {
	return q.usedBytes()
}

func (q *QueueFile) usedBytes() int64 {
	if q.hdr.elementCount == 0 {
		return headerLength
	}
	dataRegionSize := q.hdr.fileLength - headerLength
	diff := nextAfter(q.last, q.hdr.fileLength) - q.first.position
	if diff <= 0 {
		diff += dataRegionSize
	}
	return headerLength + diff
}

// Peek returns a ReadStream over the head element, without removing it.
func (q *QueueFile) Peek() (*ReadStream, error) {
	if q.closed {
		return nil, ErrClosed
	}
	if q.hdr.elementCount == 0 {
		return nil, ErrNotFound
	}
	return newReadStream(q, q.first), nil
}

// ElementOutputStream opens a new WriteStream over one or more elements to
// be appended past the current tail. The batch is committed atomically when
// the stream is closed (spec §4.5).
func (q *QueueFile) ElementOutputStream() (*WriteStream, error) {
	if q.closed {
		return nil, ErrClosed
	}
	return newWriteStream(q), nil
}

// Remove discards the first n elements from the head of the queue. Removing
// all remaining elements is equivalent to Clear.
func (q *QueueFile) Remove(n int) error {
	if q.closed {
		return ErrClosed
	}
	if n < 0 {
		return ErrNegativeCount
	}
	if n == 0 {
		return nil
	}
	if n > int(q.hdr.elementCount) {
		return ErrNotFound
	}
	if n == int(q.hdr.elementCount) {
		return q.Clear()
	}

	pos := q.first.position
	for i := 0; i < n; i++ {
		length, err := q.readLengthAt(pos)
		if err != nil {
			return q.fail(err)
		}
		pos = nextAfter(element{position: pos, length: length}, q.hdr.fileLength)
	}

	newHdr := q.hdr
	newHdr.elementCount -= int32(n)
	newHdr.firstPosition = pos
	q.modCount++
	if err := q.commitHeader(newHdr); err != nil {
		return err
	}

	newFirstLen, err := q.readLengthAt(pos)
	if err != nil {
		return q.fail(err)
	}
	q.first = element{position: pos, length: newFirstLen}

	q.shrinkIfPossible()
	return nil
}

// Clear discards every element and shrinks the backing file back to its
// minimum length (spec §4.4).
func (q *QueueFile) Clear() error {
	if q.closed {
		return ErrClosed
	}

	newLength := int64(minFileLength)
	if newLength > q.maxSize {
		newLength = q.maxSize
	}

	if newLength != q.hdr.fileLength {
		if err := q.file.Truncate(newLength); err != nil {
			return err
		}
		if err := q.file.Sync(); err != nil {
			return err
		}
		ndv, err := mmap.Remap(q.dataView, q.file.Fd(), newLength)
		if err != nil {
			return err
		}
		q.dataView = ndv
	}

	q.modCount++
	if err := q.commitHeader(emptyHeader(newLength)); err != nil {
		return err
	}
	q.first = zeroElement
	q.last = zeroElement
	return nil
}

// Close unmaps the file and releases the underlying file descriptor. Safe
// to call more than once.
func (q *QueueFile) Close() error {
	if q.closed {
		return nil
	}
	q.closed = true

	var errs []error
	if err := q.headerView.Unmap(); err != nil {
		errs = append(errs, err)
	}
	if err := q.dataView.Unmap(); err != nil {
		errs = append(errs, err)
	}
	if err := q.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stats is a point-in-time snapshot of a queue file's occupancy.
type Stats struct {
	ElementCount int
	FileSize     int64
	UsedBytes    int64
}

// Stats returns a snapshot of the queue's current element count, file size,
// and used-byte occupancy.
func (q *QueueFile) Stats() Stats {
	return Stats{
		ElementCount: int(q.hdr.elementCount),
		FileSize:     q.hdr.fileLength,
		UsedBytes:    q.usedBytes(),
	}
}
