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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestElementHeaderRoundTrip(t *testing.T) {
	for _, length := range []int32{0, 1, 255, 256, 65535, 1 << 20} {
		var buf [elementHeaderLength]byte
		encodeElementHeader(length, buf[:])

		got, err := decodeElementHeader(buf[:], 0)
		require.NoError(t, err)
		require.Equal(t, length, got)
	}
}

func TestElementHeaderChecksumMismatch(t *testing.T) {
	var buf [elementHeaderLength]byte
	encodeElementHeader(42, buf[:])
	buf[4] ^= 0x01

	_, err := decodeElementHeader(buf[:], 123)
	require.Error(t, err)

	var ce *CorruptionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, ReasonElementChecksum, ce.Reason)
	require.Equal(t, int64(123), ce.Offset)
}

func TestElementChecksumUniformFold(t *testing.T) {
	// Every byte position participates in the fold identically; changing
	// any single byte of dataLength must change the checksum.
	base := elementChecksum(0x01020304)
	require.NotEqual(t, base, elementChecksum(0x00020304))
	require.NotEqual(t, base, elementChecksum(0x01020305))
}
