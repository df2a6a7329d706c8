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

package filequeue

import (
	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/cloudwego/filequeue/bufiox"
)

// ReadStream exposes one element's payload as a byte sequence of exactly
// element.length bytes (spec §4.6). It implements bufiox.Reader so it can be
// driven the same way the rest of the pack drives zero-copy buffered reads.
//
// No data checksum is verified here; only the 5-byte element header was
// checksummed (spec §3/§4.1).
type ReadStream struct {
	qf             *QueueFile
	elem           element
	cursor         int64 // next unread byte, already wrapped
	readLen        int
	modCountAtOpen uint64
	toFree         [][]byte
	released       bool
}

var _ bufiox.Reader = (*ReadStream)(nil)

func newReadStream(q *QueueFile, e element) *ReadStream {
	return &ReadStream{
		qf:             q,
		elem:           e,
		cursor:         wrap(e.position+elementHeaderLength, q.hdr.fileLength),
		modCountAtOpen: q.modCount,
	}
}

// Len returns the total payload length of this element.
func (r *ReadStream) Len() int { return int(r.elem.length) }

func (r *ReadStream) remaining() int { return int(r.elem.length) - r.readLen }

func (r *ReadStream) checkModCount() error {
	if r.qf.modCount != r.modCountAtOpen {
		return ErrConcurrentModification
	}
	return nil
}

// Next reads the next n bytes of the payload. The returned slice is always a
// pooled copy (whether or not the span crosses the data region's wrap
// boundary), and must not be used after Release.
func (r *ReadStream) Next(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if err := r.checkModCount(); err != nil {
		return nil, err
	}
	if n > r.remaining() {
		return nil, ErrNoSuchElement
	}
	if n == 0 {
		return nil, nil
	}
	buf := mcache.Malloc(n)
	r.toFree = append(r.toFree, buf)
	r.qf.ringRead(r.cursor, buf)
	r.cursor = wrap(r.cursor+int64(n), r.qf.hdr.fileLength)
	r.readLen += n
	return buf, nil
}

// Peek behaves like Next but does not advance the stream.
func (r *ReadStream) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if err := r.checkModCount(); err != nil {
		return nil, err
	}
	if n > r.remaining() {
		return nil, ErrNoSuchElement
	}
	if n == 0 {
		return nil, nil
	}
	buf := mcache.Malloc(n)
	r.toFree = append(r.toFree, buf)
	r.qf.ringRead(r.cursor, buf)
	return buf, nil
}

// Skip advances the stream by n bytes without returning them.
func (r *ReadStream) Skip(n int) error {
	if n < 0 {
		return ErrNegativeCount
	}
	if err := r.checkModCount(); err != nil {
		return err
	}
	if n > r.remaining() {
		return ErrNoSuchElement
	}
	r.cursor = wrap(r.cursor+int64(n), r.qf.hdr.fileLength)
	r.readLen += n
	return nil
}

// ReadBinary copies into bs directly (always a copy, per bufiox.Reader).
func (r *ReadStream) ReadBinary(bs []byte) (int, error) {
	if err := r.checkModCount(); err != nil {
		return 0, err
	}
	n := len(bs)
	var err error
	if n > r.remaining() {
		n = r.remaining()
		err = ErrNoSuchElement
	}
	if n > 0 {
		r.qf.ringRead(r.cursor, bs[:n])
		r.cursor = wrap(r.cursor+int64(n), r.qf.hdr.fileLength)
		r.readLen += n
	}
	return n, err
}

// ReadLen returns how many payload bytes have been consumed so far. Release
// does not reset it: the count always runs from the start of the element.
func (r *ReadStream) ReadLen() int { return r.readLen }

// Bytes reads the whole remainder of the element's payload in one call, a
// convenience for callers that don't want to drive Next/ReadBinary
// themselves (used by QueueFile.ForEach).
func (r *ReadStream) Bytes() ([]byte, error) {
	n := r.remaining()
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := r.ReadBinary(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Release frees any pooled buffers handed out by Next/Peek. Safe to call
// more than once; e is accepted (and ignored) to match bufiox.Reader, which
// lets callers release on an error path.
func (r *ReadStream) Release(e error) error {
	if r.released {
		return nil
	}
	for i := range r.toFree {
		mcache.Free(r.toFree[i])
		r.toFree[i] = nil
	}
	r.toFree = nil
	r.released = true
	return nil
}
