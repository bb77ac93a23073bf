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

package device

import "sync"

// MemDevice is a growable in-memory arena used when kvcfg.WithInMemory is set. All state is
// lost on Close, per spec.md §6.
type MemDevice struct {
	mu  sync.RWMutex
	buf []byte
}

func NewMem() *MemDevice { return &MemDevice{} }

func (m *MemDevice) ReadAt(p []byte, offset int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset < 0 || offset > int64(len(m.buf)) {
		return 0, nil
	}
	n := copy(p, m.buf[offset:])
	return n, nil
}

func (m *MemDevice) WriteAt(p []byte, offset int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := offset + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[offset:end], p)
	return n, nil
}

func (m *MemDevice) Truncate(length int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if length <= int64(len(m.buf)) {
		m.buf = m.buf[:length]
		return nil
	}
	grown := make([]byte, length)
	copy(grown, m.buf)
	m.buf = grown
	return nil
}

func (m *MemDevice) Flush(bool) error { return nil }

func (m *MemDevice) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.buf)), nil
}

func (m *MemDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = nil
	return nil
}

// MapRegion never succeeds for MemDevice: callers already hold the arena directly through
// ReadAt/WriteAt, and the pager never evicts pages of an in-memory Environment (spec.md §4.1),
// so a separate mapped view offers nothing.
func (m *MemDevice) MapRegion(int64, int64) ([]byte, bool) { return nil, false }
