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

// wrap normalizes a logical position that may have advanced past the end of
// the data region back into [headerLength, fileLength), per spec §4.2.
func wrap(pos, fileLength int64) int64 {
	if pos < fileLength {
		return pos
	}
	return headerLength + (pos - fileLength)
}

// nextAfter returns the position immediately following e's payload, already
// wrapped back into the data region.
func nextAfter(e element, fileLength int64) int64 {
	return wrap(e.position+int64(elementHeaderLength)+int64(e.length), fileLength)
}

// ringRead copies n bytes starting at wrap(pos) out of the data region into
// dst. Both element headers and payloads are read through it, and either
// may straddle the end of the data region (see WriteStream.reserveHeader).
//
// Only ever splits into at most two contiguous spans: the ring wraps at most
// once per call because the caller never asks for more bytes than the data
// region holds (spec §4.2).
func (q *QueueFile) ringRead(pos int64, dst []byte) {
	data := q.dataView.Bytes()
	start := wrap(pos, q.hdr.fileLength)
	n := len(dst)
	firstSpan := n
	if int64(firstSpan) > q.hdr.fileLength-start {
		firstSpan = int(q.hdr.fileLength - start)
	}
	copy(dst[:firstSpan], data[start:start+int64(firstSpan)])
	if firstSpan < n {
		copy(dst[firstSpan:], data[headerLength:headerLength+int64(n-firstSpan)])
	}
}

// ringWrite is the mirror of ringRead: it copies src into the data region
// starting at wrap(pos), splitting across the boundary if necessary.
func (q *QueueFile) ringWrite(src []byte, pos int64) {
	data := q.dataView.Bytes()
	start := wrap(pos, q.hdr.fileLength)
	n := len(src)
	firstSpan := n
	if int64(firstSpan) > q.hdr.fileLength-start {
		firstSpan = int(q.hdr.fileLength - start)
	}
	copy(data[start:start+int64(firstSpan)], src[:firstSpan])
	if firstSpan < n {
		copy(data[headerLength:headerLength+int64(n-firstSpan)], src[firstSpan:])
	}
}
