// Copyright 2026 The kvengine Authors
// This file is part of kvengine.
//
// kvengine is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// kvengine is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with kvengine. If not, see <http://www.gnu.org/licenses/>.

// Package blob manages variable-sized record payloads linked from the B+tree (spec.md §4.3). A
// blob occupies a contiguous run of pages allocated from the pager; its id is the first page's
// id. Record compression, when configured, is applied to the whole payload before it is split
// across pages.
package blob

import (
	"encoding/binary"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv/codec"
	"github.com/erigontech/kvengine/kv/page"
	"github.com/erigontech/kvengine/kv/pager"
)

// lengthPrefixSize is the (rawLen, storedLen) uint64 pair stored at the head of a blob's first
// page, ahead of its payload bytes.
const lengthPrefixSize = 16

// ID identifies a blob by its first page.
type ID = uint64

// NoBlob is the zero value: "no blob referenced".
const NoBlob ID = 0

// Manager allocates, reads, overwrites and frees blobs.
type Manager struct {
	pager *pager.Pager
	codec codec.Transform
}

func New(p *pager.Pager, c codec.Transform) *Manager {
	if c == nil {
		c = mustNone()
	}
	return &Manager{pager: p, codec: c}
}

func mustNone() codec.Transform {
	t, _ := codec.Resolve("")
	return t
}

func (m *Manager) payloadCap() int { return int(m.pager.PageSize()) - page.HeaderSize }

// pagesNeeded returns how many pages a stored payload of n bytes (the length prefix counted
// against the first page's capacity) requires.
func (m *Manager) pagesNeeded(n int) uint64 {
	cap0 := m.payloadCap() - lengthPrefixSize
	if cap0 <= 0 {
		cap0 = 1
	}
	if n <= cap0 {
		return 1
	}
	rest := n - cap0
	capN := m.payloadCap()
	return 1 + uint64((rest+capN-1)/capN)
}

// Put compresses (if configured) and stores raw as a new blob owned by owner, returning its id.
func (m *Manager) Put(owner uint16, raw []byte) (ID, error) {
	stored := m.codec.Encode(nil, raw)
	n := m.pagesNeeded(len(stored))
	frames, err := m.pager.AllocRun(n, page.TypeBlob, owner)
	if err != nil {
		return NoBlob, err
	}
	id := frames[0].ID
	m.writePayload(frames, uint64(len(raw)), uint64(len(stored)), stored)
	for _, f := range frames {
		m.pager.MarkDirty(f.ID)
		m.pager.Unpin(f.ID)
	}
	return id, nil
}

func (m *Manager) writePayload(frames []*pager.Frame, rawLen, storedLen uint64, stored []byte) {
	first := frames[0].Buf
	binary.LittleEndian.PutUint64(first[page.HeaderSize:page.HeaderSize+8], rawLen)
	binary.LittleEndian.PutUint64(first[page.HeaderSize+8:page.HeaderSize+lengthPrefixSize], storedLen)

	remaining := stored
	cap0 := m.payloadCap() - lengthPrefixSize
	n0 := cap0
	if n0 > len(remaining) {
		n0 = len(remaining)
	}
	copy(first[page.HeaderSize+lengthPrefixSize:], remaining[:n0])
	remaining = remaining[n0:]

	for i := 1; i < len(frames) && len(remaining) > 0; i++ {
		buf := frames[i].Buf
		capN := m.payloadCap()
		n := capN
		if n > len(remaining) {
			n = len(remaining)
		}
		copy(buf[page.HeaderSize:], remaining[:n])
		remaining = remaining[n:]
	}
}

// Get reads and decompresses the blob at id.
func (m *Manager) Get(id ID) ([]byte, error) {
	first, err := m.pager.Fetch(id)
	if err != nil {
		return nil, err
	}
	defer m.pager.Unpin(id)

	rawLen := binary.LittleEndian.Uint64(first.Buf[page.HeaderSize : page.HeaderSize+8])
	storedLen := binary.LittleEndian.Uint64(first.Buf[page.HeaderSize+8 : page.HeaderSize+lengthPrefixSize])

	stored := make([]byte, 0, storedLen)
	cap0 := m.payloadCap() - lengthPrefixSize
	n0 := cap0
	if uint64(n0) > storedLen {
		n0 = int(storedLen)
	}
	stored = append(stored, first.Buf[page.HeaderSize+lengthPrefixSize:page.HeaderSize+lengthPrefixSize+n0]...)

	remaining := storedLen - uint64(n0)
	pageID := id + 1
	for remaining > 0 {
		f, err := m.pager.Fetch(pageID)
		if err != nil {
			return nil, err
		}
		capN := m.payloadCap()
		n := capN
		if uint64(n) > remaining {
			n = int(remaining)
		}
		stored = append(stored, f.Buf[page.HeaderSize:page.HeaderSize+n]...)
		m.pager.Unpin(pageID)
		remaining -= uint64(n)
		pageID++
	}

	out, err := m.codec.Decode(make([]byte, 0, rawLen), stored)
	if err != nil {
		return nil, kverrors.Wrap("blob.Get", kverrors.KindIntegrityViolated, err)
	}
	return out, nil
}

// Len reports a blob's page-run length, needed by callers (e.g. Free) that did not allocate it.
func (m *Manager) Len(id ID) (uint64, error) {
	first, err := m.pager.Fetch(id)
	if err != nil {
		return 0, err
	}
	defer m.pager.Unpin(id)
	storedLen := binary.LittleEndian.Uint64(first.Buf[page.HeaderSize+8 : page.HeaderSize+lengthPrefixSize])
	return m.pagesNeeded(int(storedLen)), nil
}

// Overwrite replaces the blob at id with raw, reusing the existing run in place when it still
// fits and reallocating (freeing the old run) otherwise.
func (m *Manager) Overwrite(id ID, owner uint16, raw []byte) (ID, error) {
	oldPages, err := m.Len(id)
	if err != nil {
		return NoBlob, err
	}
	stored := m.codec.Encode(nil, raw)
	newPages := m.pagesNeeded(len(stored))
	if newPages <= oldPages {
		frames := make([]*pager.Frame, newPages)
		for i := uint64(0); i < newPages; i++ {
			f, err := m.pager.Fetch(id + i)
			if err != nil {
				return NoBlob, err
			}
			frames[i] = f
		}
		m.writePayload(frames, uint64(len(raw)), uint64(len(stored)), stored)
		for _, f := range frames {
			m.pager.MarkDirty(f.ID)
			m.pager.Unpin(f.ID)
		}
		if newPages < oldPages {
			m.pager.FreeRun(id+newPages, oldPages-newPages)
		}
		return id, nil
	}
	if err := m.Free(id); err != nil {
		return NoBlob, err
	}
	return m.Put(owner, raw)
}

// Free returns a blob's pages to the freelist.
func (m *Manager) Free(id ID) error {
	n, err := m.Len(id)
	if err != nil {
		return err
	}
	m.pager.FreeRun(id, n)
	return nil
}
