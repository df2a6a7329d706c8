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

import "encoding/binary"

const (
	// headerLength is the fixed width of the file header: version(4) +
	// fileLength(8) + elementCount(4) + firstPosition(8) + lastPosition(8) +
	// headerChecksum(4).
	headerLength = 36

	// elementHeaderLength is dataLength(4) + elementChecksum(1).
	elementHeaderLength = 5

	// minFileLength is the smallest legal file length, and the length a
	// freshly created or fully-cleared queue file is set to.
	minFileLength = 4096

	currentVersion uint32 = 1
)

// header is the in-memory image of the 36-byte file header.
type header struct {
	version       uint32
	fileLength    int64
	elementCount  int32
	firstPosition int64
	lastPosition  int64
}

// checksum hashes the five header fields the way spec §4.1 defines: seed
// with version, then wrapping-multiply-add the other four fields truncated
// to 32 bits, in field order.
func (h header) checksum() uint32 {
	sum := h.version
	sum = 31*sum + uint32(h.fileLength)
	sum = 31*sum + uint32(h.elementCount)
	sum = 31*sum + uint32(h.firstPosition)
	sum = 31*sum + uint32(h.lastPosition)
	return sum
}

// encode serializes h into a 36-byte big-endian block including the trailing
// checksum.
func (h header) encode(buf []byte) {
	_ = buf[headerLength-1]
	binary.BigEndian.PutUint32(buf[0:4], h.version)
	binary.BigEndian.PutUint64(buf[4:12], uint64(h.fileLength))
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.elementCount))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.firstPosition))
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.lastPosition))
	binary.BigEndian.PutUint32(buf[32:36], h.checksum())
}

// decodeHeader parses a 36-byte big-endian block into a header, without
// validating the checksum (callers compare h.checksum() against the returned
// storedChecksum themselves).
func decodeHeader(buf []byte) (h header, storedChecksum uint32) {
	_ = buf[headerLength-1]
	h.version = binary.BigEndian.Uint32(buf[0:4])
	h.fileLength = int64(binary.BigEndian.Uint64(buf[4:12]))
	h.elementCount = int32(binary.BigEndian.Uint32(buf[12:16]))
	h.firstPosition = int64(binary.BigEndian.Uint64(buf[16:24]))
	h.lastPosition = int64(binary.BigEndian.Uint64(buf[24:32]))
	storedChecksum = binary.BigEndian.Uint32(buf[32:36])
	return h, storedChecksum
}

func emptyHeader(fileLength int64) header {
	return header{version: currentVersion, fileLength: fileLength}
}

// commitHeader writes h into the header view and forces it to durable
// storage. This is the sole point, per spec §4.1/§5, at which a structural
// change becomes visible to a future Open.
func (q *QueueFile) commitHeader(h header) error {
	buf := q.headerView.Bytes()
	h.encode(buf)
	if err := q.headerView.Sync(); err != nil {
		return err
	}
	q.hdr = h
	return nil
}
