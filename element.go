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

// element is a descriptor for one stored record: the file offset of its
// 5-byte element header, and its payload length. It never holds payload
// bytes itself.
type element struct {
	position int64
	length   int32
}

// zeroElement is the sentinel written into first/last when the queue is
// empty (spec §3: "firstPosition == lastPosition == 0").
var zeroElement = element{}

// elementChecksum folds the four bytes of dataLength (most significant byte
// first) into a single byte. This corrects the parenthesization quirk noted
// in spec §9: every byte, including the first, is folded by the same
// `r = (31*r + b) & 0xFF` step starting from r = 17.
func elementChecksum(dataLength int32) byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(dataLength))
	r := byte(17)
	for _, v := range b {
		r = byte(31*uint32(r)+uint32(v)) & 0xFF
	}
	return r
}

// encodeElementHeader serializes an element header (dataLength + checksum)
// into a 5-byte buffer.
func encodeElementHeader(dataLength int32, buf []byte) {
	_ = buf[elementHeaderLength-1]
	binary.BigEndian.PutUint32(buf[0:4], uint32(dataLength))
	buf[4] = elementChecksum(dataLength)
}

// decodeElementHeader parses a 5-byte element header and validates its
// checksum, returning a CorruptionError if it doesn't match.
func decodeElementHeader(buf []byte, offset int64) (dataLength int32, err error) {
	_ = buf[elementHeaderLength-1]
	n := int32(binary.BigEndian.Uint32(buf[0:4]))
	want := elementChecksum(n)
	if buf[4] != want {
		return 0, corruptionf(ReasonElementChecksum, offset)
	}
	return n, nil
}
