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

import "github.com/cloudwego/filequeue/container/ring"

// Iterator yields a ReadStream per element, head to tail (spec §4.3). It
// snapshots every element descriptor up front into a fixed-size Ring, the
// same GC-friendly, single-malloc container the teacher's generic ring uses
// for any fixed sequence walked start-to-end; there is no removal through
// the iterator.
//
// Any structural change to the QueueFile after the iterator is created
// (append commit, remove, clear, growth compaction) is detected via modCount
// and surfaces as ErrConcurrentModification on the next call to Next.
type Iterator struct {
	qf             *QueueFile
	items          *ring.Ring[element]
	idx            int
	started        bool
	remaining      int
	modCountAtOpen uint64
}

// Iterator returns a new Iterator positioned before the head element.
func (q *QueueFile) Iterator() (*Iterator, error) {
	if q.closed {
		return nil, ErrClosed
	}

	n := int(q.hdr.elementCount)
	it := &Iterator{qf: q, remaining: n, modCountAtOpen: q.modCount}
	if n == 0 {
		return it, nil
	}

	descriptors := make([]element, n)
	pos := q.first.position
	for i := 0; i < n; i++ {
		var hdrBuf [elementHeaderLength]byte
		q.ringRead(pos, hdrBuf[:])
		length, err := decodeElementHeader(hdrBuf[:], pos)
		if err != nil {
			return nil, q.fail(err)
		}
		descriptors[i] = element{position: pos, length: length}
		pos = nextAfter(descriptors[i], q.hdr.fileLength)
	}
	it.items = ring.NewFromSlice(descriptors)
	return it, nil
}

// HasNext reports whether another element remains to be visited.
func (it *Iterator) HasNext() bool {
	return it.remaining > 0
}

// Next returns a ReadStream over the next element in head-to-tail order.
func (it *Iterator) Next() (*ReadStream, error) {
	if it.qf.modCount != it.modCountAtOpen {
		return nil, ErrConcurrentModification
	}
	if it.remaining == 0 {
		return nil, ErrNoSuchElement
	}

	var item *ring.Item[element]
	if !it.started {
		item = it.items.Head()
		it.started = true
	} else {
		item, _ = it.items.Next(it.idx)
	}
	it.idx = item.Index()
	it.remaining--
	return newReadStream(it.qf, item.Value()), nil
}

// ForEach visits every element from head to tail, calling fn with each
// element's full payload. fn returns keepGoing=false to stop early. This is
// a convenience over Iterator, mirroring the teacher's Ring.Do(f func(v *V)).
func (q *QueueFile) ForEach(fn func(payload []byte) (keepGoing bool, err error)) error {
	it, err := q.Iterator()
	if err != nil {
		return err
	}
	for it.HasNext() {
		rs, err := it.Next()
		if err != nil {
			return err
		}
		payload, err := rs.Bytes()
		if err != nil {
			_ = rs.Release(err)
			return err
		}
		keepGoing, err := fn(payload)
		_ = rs.Release(err)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}
