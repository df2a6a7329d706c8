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
	"github.com/cloudwego/filequeue/cache/mempool"
	"github.com/cloudwego/filequeue/internal/mmap"
	"go.uber.org/zap"
)

// ensureCapacity grows the backing file until usedBytes()+ws.bytesPending+
// additional fits within fileLength, per spec §4.4. ws is the in-flight
// write stream whose cursor (and, if set, in-progress element header
// position) must be adjusted if growth triggers an in-place compaction.
func (q *QueueFile) ensureCapacity(additional int64, ws *WriteStream) error {
	for {
		needed := q.usedBytes() + ws.bytesPending + additional
		if needed <= q.hdr.fileLength {
			return nil
		}

		oldLength := q.hdr.fileLength
		newLength := q.cfg.growthFunc(oldLength, needed)
		if newLength > q.maxSize {
			newLength = q.maxSize
		}
		if newLength <= oldLength || needed > newLength {
			return ErrCapacityExceeded
		}

		if err := q.growFile(newLength, ws); err != nil {
			return err
		}
	}
}

// growFile extends the backing file to newLength, remaps the data view, and
// compacts the ring if the write stream's cursor has wrapped past the
// committed head while the new tail was being written.
func (q *QueueFile) growFile(newLength int64, ws *WriteStream) error {
	oldLength := q.hdr.fileLength

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

	wrapped := q.hdr.elementCount > 0 && ws.cursor <= q.first.position
	if wrapped {
		moveLen := ws.cursor - headerLength
		if moveLen > 0 {
			if err := q.compact(oldLength, moveLen); err != nil {
				return err
			}
			delta := oldLength - headerLength
			boundary := ws.cursor // exclusive upper bound of the moved span, pre-shift
			if ws.headerReserved && ws.elementHeaderPos < boundary {
				ws.elementHeaderPos += delta
			}
			if ws.newFirst != nil && ws.newFirst.position < boundary {
				ws.newFirst.position += delta
			}
			if ws.newLast != nil && ws.newLast.position < boundary {
				ws.newLast.position += delta
			}
			for i := range ws.pending {
				if ws.pending[i].pos < boundary {
					ws.pending[i].pos += delta
				}
			}
			ws.cursor += delta
			q.modCount++
		}
	}

	q.cfg.logger.Debug("filequeue: grew queue file",
		zap.Int64("oldLength", oldLength), zap.Int64("newLength", newLength), zap.Bool("compacted", wrapped))

	newHdr := q.hdr
	newHdr.fileLength = newLength
	return q.commitHeader(newHdr)
}

// compact moves the moveLen bytes at [headerLength, headerLength+moveLen)
// to [oldLength, oldLength+moveLen), using a pooled staging buffer so the
// move is correct even though the two spans could in principle overlap for
// a very small oldLength.
func (q *QueueFile) compact(oldLength, moveLen int64) error {
	data := q.dataView.Bytes()
	staging := mempool.Malloc(int(moveLen))
	defer mempool.Free(staging)
	copy(staging, data[headerLength:headerLength+moveLen])
	copy(data[oldLength:oldLength+moveLen], staging)
	return nil
}

// shrinkIfPossible is evaluated opportunistically after Remove, per spec
// §4.4. It is best-effort: any failure here does not fail the Remove call.
func (q *QueueFile) shrinkIfPossible() {
	if q.hdr.elementCount > 0 && q.last.position < q.first.position {
		// ring is wrapped; shrink is only evaluated when contiguous.
		return
	}

	var usedNow, ringEnd int64
	if q.hdr.elementCount == 0 {
		usedNow = headerLength
		ringEnd = headerLength
	} else {
		usedNow = q.usedBytes()
		ringEnd = nextAfter(q.last, q.hdr.fileLength)
	}
	if ringEnd > q.maxSize {
		return
	}

	goal := q.hdr.fileLength / 2
	accepted := q.hdr.fileLength
	for goal >= minFileLength {
		if ringEnd > goal {
			break
		}
		if usedNow > goal/2 {
			break
		}
		accepted = goal
		goal /= 2
	}

	if accepted >= q.hdr.fileLength {
		return
	}

	oldLength := q.hdr.fileLength
	if err := q.file.Truncate(accepted); err != nil {
		q.cfg.logger.Debug("filequeue: shrink truncate failed, skipping", zap.Error(err))
		return
	}
	if err := q.file.Sync(); err != nil {
		q.cfg.logger.Debug("filequeue: shrink sync failed, skipping", zap.Error(err))
		return
	}
	ndv, err := mmap.Remap(q.dataView, q.file.Fd(), accepted)
	if err != nil {
		q.cfg.logger.Debug("filequeue: shrink remap failed, queue file left open at larger size", zap.Error(err))
		return
	}
	q.dataView = ndv

	newHdr := q.hdr
	newHdr.fileLength = accepted
	if err := q.commitHeader(newHdr); err != nil {
		q.cfg.logger.Debug("filequeue: shrink header commit failed, skipping", zap.Error(err))
		return
	}
	q.cfg.logger.Debug("filequeue: shrank queue file", zap.Int64("oldLength", oldLength), zap.Int64("newLength", accepted))
}
