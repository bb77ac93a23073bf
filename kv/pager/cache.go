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

package pager

import "sync"

// Frame is a resident page: the cache's unit of pinning and dirty-tracking. Grounded on
// _examples/other_examples's tinySQL pager.go PageFrame (pin count + dirty flag + intrusive
// LRU list) and the calvinalkan-agent-task slotcache package's pin/evict bookkeeping.
type Frame struct {
	ID     uint64
	Buf    []byte
	dirty  bool
	pinned int
	prev   *Frame
	next   *Frame
}

func (f *Frame) Dirty() bool { return f.dirty }

// cache is an associative map from page-id to resident Frame implementing an LRU-with-pinning
// eviction policy: pinned pages are never evicted; unpinned clean pages are preferred victims;
// dirty pages require a flush before eviction (spec.md §4.1).
type cache struct {
	mu       sync.Mutex
	capacity int // 0 = unbounded
	strict   bool
	frames   map[uint64]*Frame
	head     *Frame // most recently used
	tail     *Frame // least recently used
}

func newCache(capacity int, strict bool) *cache {
	return &cache{capacity: capacity, strict: strict, frames: make(map[uint64]*Frame)}
}

func (c *cache) get(id uint64) (*Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.frames[id]
	if ok {
		c.unlinkLocked(f)
		c.pushFrontLocked(f)
	}
	return f, ok
}

// insert adds a freshly fetched/allocated frame, evicting to stay within capacity first. A
// strict cache returns false if capacity is full and nothing could be evicted (all frames pinned
// or dirty); a non-strict cache inserts anyway and grows past capacity.
func (c *cache) insert(f *Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capacity > 0 {
		for len(c.frames) >= c.capacity {
			if !c.evictOneLocked() {
				if c.strict {
					return false
				}
				break // soft cap: let the resident set grow past capacity rather than fail
			}
		}
	}
	c.frames[f.ID] = f
	c.pushFrontLocked(f)
	return true
}

func (c *cache) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.frames[id]
	if !ok {
		return
	}
	c.unlinkLocked(f)
	delete(c.frames, id)
}

func (c *cache) pin(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.frames[id]; ok {
		f.pinned++
	}
}

func (c *cache) unpin(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.frames[id]; ok && f.pinned > 0 {
		f.pinned--
	}
}

func (c *cache) markDirty(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.frames[id]; ok {
		f.dirty = true
	}
}

func (c *cache) clearDirty(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.frames[id]; ok {
		f.dirty = false
	}
}

// dirtyPages returns every currently-dirty frame, in no particular order; callers sort by
// dependency before writing them out.
func (c *cache) dirtyPages() []*Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Frame
	for _, f := range c.frames {
		if f.dirty {
			out = append(out, f)
		}
	}
	return out
}

func (c *cache) evictOneLocked() bool {
	for f := c.tail; f != nil; f = f.prev {
		if f.pinned == 0 && !f.dirty {
			c.unlinkLocked(f)
			delete(c.frames, f.ID)
			return true
		}
	}
	return false
}

func (c *cache) moveToFront(f *Frame) {
	c.mu.Lock()
	c.unlinkLocked(f)
	c.pushFrontLocked(f)
	c.mu.Unlock()
}

func (c *cache) pushFrontLocked(f *Frame) {
	f.prev = nil
	f.next = c.head
	if c.head != nil {
		c.head.prev = f
	}
	c.head = f
	if c.tail == nil {
		c.tail = f
	}
}

func (c *cache) unlinkLocked(f *Frame) {
	if f.prev != nil {
		f.prev.next = f.next
	} else if c.head == f {
		c.head = f.next
	}
	if f.next != nil {
		f.next.prev = f.prev
	} else if c.tail == f {
		c.tail = f.prev
	}
	f.prev, f.next = nil, nil
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}
