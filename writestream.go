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
	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/cloudwego/filequeue/bufiox"
)

// WriteStream buffers one or more new elements past the current tail and
// commits them as a single batch on Close, per spec §4.5. It implements
// bufiox.Writer so it can be driven through the same buffered-write contract
// the rest of the teacher's pack uses for user-space zero-copy writes.
type WriteStream struct {
	qf *QueueFile

	cursor           int64 // next byte to write, already wrapped
	elementHeaderPos int64 // position of the current element's 5-byte placeholder
	headerReserved   bool
	curLen           int32

	// pending holds buffers handed out by Malloc, not yet copied into the
	// ring; they are copied in at the next NextElement/Flush, once the
	// caller is done writing into them.
	pending []pendingRingCopy

	newFirst *element // set only if the queue is empty when this stream finalizes its first element
	newLast  *element
	elementsWritten int
	bytesPending    int64

	closed bool
}

// pendingRingCopy is a detached buffer handed out by Malloc that still
// needs to be copied into the ring at pos.
type pendingRingCopy struct {
	pos int64
	buf []byte
}

var _ bufiox.Writer = (*WriteStream)(nil)

func newWriteStream(q *QueueFile) *WriteStream {
	var cursor int64
	if q.hdr.elementCount == 0 {
		cursor = headerLength
	} else {
		cursor = nextAfter(q.last, q.hdr.fileLength)
	}
	return &WriteStream{qf: q, cursor: cursor, elementHeaderPos: cursor}
}

// reserveHeader ensures room for the current element's 5-byte placeholder
// header and writes it, advancing the cursor past it. No-op if already
// reserved for the element in progress.
//
// The placeholder (like the real header written in NextElement) is written
// with ringWrite, which wraps mid-copy exactly like a payload write would:
// an element header is allowed to straddle the end of the data region the
// same way its payload can. See DESIGN.md for why this deviates from a
// strict single-contiguous-span reading of the header, and why it is still
// safe.
func (w *WriteStream) reserveHeader() error {
	if w.headerReserved {
		return nil
	}
	if err := w.qf.ensureCapacity(elementHeaderLength, w); err != nil {
		return err
	}
	w.elementHeaderPos = w.cursor
	var zero [elementHeaderLength]byte
	w.qf.ringWrite(zero[:], w.cursor)
	w.cursor = wrap(w.cursor+elementHeaderLength, w.qf.hdr.fileLength)
	w.bytesPending += elementHeaderLength
	w.headerReserved = true
	return nil
}

// Write appends p to the payload of the current (not yet finalized) element,
// growing the backing file first if necessary. Always a copy into the ring.
func (w *WriteStream) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.reserveHeader(); err != nil {
		return 0, err
	}
	if err := w.qf.ensureCapacity(int64(len(p)), w); err != nil {
		return 0, err
	}
	w.qf.ringWrite(p, w.cursor)
	w.cursor = wrap(w.cursor+int64(len(p)), w.qf.hdr.fileLength)
	w.curLen += int32(len(p))
	w.bytesPending += int64(len(p))
	return len(p), nil
}

// WriteByte appends a single byte to the current element's payload.
func (w *WriteStream) WriteByte(b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// Malloc reserves n bytes of the current element's payload and returns them
// as a slice the caller writes into directly, matching bufiox.Writer's
// zero-copy contract. The returned buffer is never aliased directly into
// the mapped ring: a later Malloc/Write on this same stream can trigger
// growth, which unmaps and remaps the ring out from under any slice still
// referencing the old mapping. Instead, Malloc hands back a freshly
// allocated buffer and records where it belongs; the actual copy into the
// ring happens in NextElement/Flush, once the caller can no longer be
// writing into it (the same constraint bufiox.Writer already places on
// Malloc'd buffers once Flush is called).
func (w *WriteStream) Malloc(n int) ([]byte, error) {
	if w.closed {
		return nil, ErrClosed
	}
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if n == 0 {
		return nil, nil
	}
	if err := w.reserveHeader(); err != nil {
		return nil, err
	}
	if err := w.qf.ensureCapacity(int64(n), w); err != nil {
		return nil, err
	}

	buf := dirtmake.Bytes(n, n)
	w.pending = append(w.pending, pendingRingCopy{pos: w.cursor, buf: buf})

	w.cursor = wrap(w.cursor+int64(n), w.qf.hdr.fileLength)
	w.curLen += int32(n)
	w.bytesPending += int64(n)
	return buf, nil
}

// flushPending copies every still-detached Malloc'd buffer into the ring.
func (w *WriteStream) flushPending() {
	for _, p := range w.pending {
		w.qf.ringWrite(p.buf, p.pos)
	}
	w.pending = w.pending[:0]
}

// WriteBinary copies bs into the current element's payload. Always a copy,
// matching bufiox.Writer's contract.
func (w *WriteStream) WriteBinary(bs []byte) (int, error) {
	return w.Write(bs)
}

// WrittenLen returns the number of payload+header bytes buffered for this
// batch so far, across every element written through this stream. A
// successful Flush resets it.
func (w *WriteStream) WrittenLen() int {
	return int(w.bytesPending)
}

// NextElement finalizes the current element (writing its real element
// header over the zero-filled placeholder) and starts a fresh one. Calling
// it with no bytes written since the last call (or since the stream was
// created) is a no-op: the element is simply not counted (spec §4.5).
func (w *WriteStream) NextElement() error {
	if w.closed {
		return ErrClosed
	}
	if w.curLen == 0 {
		return nil
	}

	w.flushPending()

	var hdrBuf [elementHeaderLength]byte
	encodeElementHeader(w.curLen, hdrBuf[:])
	w.qf.ringWrite(hdrBuf[:], w.elementHeaderPos)

	finalized := element{position: w.elementHeaderPos, length: w.curLen}
	w.newLast = &finalized
	if w.qf.hdr.elementCount == 0 && w.newFirst == nil {
		first := finalized
		w.newFirst = &first
	}
	w.elementsWritten++

	w.curLen = 0
	w.headerReserved = false
	w.elementHeaderPos = w.cursor
	return nil
}

// Flush finalizes any pending element and commits the whole batch, making
// it visible to future Opens and to this QueueFile's registry. Safe to call
// more than once.
func (w *WriteStream) Flush() error {
	if w.closed {
		return nil
	}
	if err := w.NextElement(); err != nil {
		return err
	}
	if w.elementsWritten == 0 {
		return nil
	}

	if err := w.qf.dataView.Sync(); err != nil {
		return err
	}

	newHdr := w.qf.hdr
	newHdr.elementCount += int32(w.elementsWritten)
	newHdr.lastPosition = w.newLast.position
	if w.newFirst != nil {
		newHdr.firstPosition = w.newFirst.position
	}

	w.qf.modCount++
	if err := w.qf.commitHeader(newHdr); err != nil {
		return err
	}

	w.qf.last = *w.newLast
	if w.newFirst != nil {
		w.qf.first = *w.newFirst
	}
	w.elementsWritten = 0
	// The committed bytes are now counted by usedBytes; only a header
	// reserved for a still-empty element remains pending.
	w.bytesPending = 0
	if w.headerReserved {
		w.bytesPending = elementHeaderLength
	}
	return nil
}

// Close finalizes the batch (as Flush does) and marks the stream unusable
// for further writes. Idempotent, per spec §4.5/§8.
func (w *WriteStream) Close() error {
	if w.closed {
		return nil
	}
	err := w.Flush()
	w.closed = true
	return err
}
