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

// Package pager implements the page-oriented storage manager: it fetches pages through the
// cache, verifies/decrypts them on the way in, encrypts/checksums them on the way out, and
// tracks free space via Freelist. See spec.md §4.1.
package pager

import (
	"sync"
	"sync/atomic"

	tbtree "github.com/tidwall/btree"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/internal/kvlog"
	"github.com/erigontech/kvengine/kv/device"
	"github.com/erigontech/kvengine/kv/page"
)

// Options configures a Pager.
type Options struct {
	PageSize   uint32
	CRC32      bool
	Cipher     *page.Cipher // nil disables encryption
	CacheSize  int          // max resident pages; 0 = unbounded
	CacheStrict bool
	InMemory   bool // in-memory Environments never evict (spec.md §4.1)
	Log        *kvlog.Logger
}

// Pager is the central page-oriented storage manager: device + cache + freelist + page codec.
type Pager struct {
	dev      device.Device
	opts     Options
	cache    *cache
	free     *Freelist
	nextPage uint64 // one past the highest page-id ever allocated (file growth watermark)
	mu       sync.Mutex
	log      *kvlog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

func New(dev device.Device, opts Options) *Pager {
	if opts.PageSize == 0 {
		opts.PageSize = page.DefaultPageSize
	}
	capacity := opts.CacheSize
	if opts.InMemory {
		capacity = 0 // unbounded: never evict
	}
	log := opts.Log
	if log == nil {
		log = kvlog.Nop()
	}
	return &Pager{
		dev:      dev,
		opts:     opts,
		cache:    newCache(capacity, opts.CacheStrict && !opts.InMemory),
		free:     NewFreelist(),
		nextPage: 1, // page 0 is reserved for the file header
		log:      log.Named("pager"),
	}
}

func (p *Pager) PageSize() uint32   { return p.opts.PageSize }
func (p *Pager) Freelist() *Freelist { return p.free }
func (p *Pager) CacheLen() int      { return p.cache.len() }

// Fetch returns the page identified by id, pinned once. The caller must Unpin it when done.
// On a cache miss, Fetch reads the page, verifies its CRC32 (if enabled), and decrypts it (if
// enabled) before handing it to the cache — spec.md §4.1's fetch contract.
func (p *Pager) Fetch(id uint64) (*Frame, error) {
	if f, ok := p.cache.get(id); ok {
		p.cache.pin(id)
		p.hits.Add(1)
		return f, nil
	}
	p.misses.Add(1)
	buf := make([]byte, p.opts.PageSize)
	off := int64(id) * int64(p.opts.PageSize)
	if _, err := p.dev.ReadAt(buf, off); err != nil {
		return nil, kverrors.Wrap("pager.Fetch", kverrors.KindIOError, err)
	}
	if err := page.Verify(buf, p.opts.CRC32); err != nil {
		return nil, err
	}
	if p.opts.Cipher != nil {
		if err := p.opts.Cipher.Decrypt(buf, id); err != nil {
			return nil, kverrors.Wrap("pager.Fetch", kverrors.KindIntegrityViolated, err)
		}
	}
	f := &Frame{ID: id, Buf: buf}
	if !p.cache.insert(f) {
		return nil, kverrors.New("pager.Fetch", kverrors.KindOutOfMemory)
	}
	p.cache.pin(id)
	return f, nil
}

// Unpin releases one pin on id.
func (p *Pager) Unpin(id uint64) { p.cache.unpin(id) }

// MarkDirty flags id's frame as dirty (newer bytes than disk).
func (p *Pager) MarkDirty(id uint64) { p.cache.markDirty(id) }

// allocIDLocked returns a fresh run of n contiguous page-ids, preferring the freelist.
func (p *Pager) allocIDLocked(n uint64) uint64 {
	if start, ok := p.free.Alloc(n); ok {
		return start
	}
	start := p.nextPage
	p.nextPage += n
	return start
}

// AllocPage allocates a single fresh page of the given type/owner, pinned once and dirty.
func (p *Pager) AllocPage(typ page.Type, owner uint16) (*Frame, error) {
	frames, err := p.AllocRun(1, typ, owner)
	if err != nil {
		return nil, err
	}
	return frames[0], nil
}

// AllocRun allocates n contiguous fresh pages (used for multi-page blobs), each pinned once and
// dirty, all sharing the given type/owner tag in their headers.
func (p *Pager) AllocRun(n uint64, typ page.Type, owner uint16) ([]*Frame, error) {
	if n == 0 {
		return nil, kverrors.New("pager.AllocRun", kverrors.KindInvalidParameter)
	}
	p.mu.Lock()
	start := p.allocIDLocked(n)
	p.mu.Unlock()

	frames := make([]*Frame, n)
	for i := uint64(0); i < n; i++ {
		id := start + i
		buf := make([]byte, p.opts.PageSize)
		page.Header{Type: typ, SelfID: id, Owner: owner}.Encode(buf)
		f := &Frame{ID: id, Buf: buf, dirty: true}
		if !p.cache.insert(f) {
			return nil, kverrors.New("pager.AllocRun", kverrors.KindOutOfMemory)
		}
		p.cache.pin(id)
		frames[i] = f
	}
	return frames, nil
}

// Free returns a single page to the freelist immediately; it does not wait for the page's
// owning transaction to commit — callers (txn layer) are responsible for deferring the call
// until commit when the erase is transactional (spec.md §4.1).
func (p *Pager) Free(id uint64) { p.FreeRun(id, 1) }

// FreeRun returns [id, id+n) to the freelist and drops it from the cache.
func (p *Pager) FreeRun(id, n uint64) {
	for i := uint64(0); i < n; i++ {
		p.cache.remove(id + i)
	}
	p.free.Free(id, n)
}

// Flush writes every dirty page to the device. deps(id, buf) must return the page-ids that
// page id directly references (child pointers); Flush performs a post-order walk of this
// dependency graph so that no page referencing a target page is persisted before the target
// page itself (spec.md §4.1's flush-ordering invariant). Pages with no entry in deps (leaves of
// the dependency graph) are written as soon as the walk reaches them, which is not necessarily
// before unrelated pages that do have dependencies.
func (p *Pager) Flush(fsync bool, deps func(id uint64, buf []byte) []uint64) error {
	dirty := p.cache.dirtyPages()
	if len(dirty) == 0 {
		return p.dev.Flush(fsync)
	}

	// byID is a page-id-ordered index of the dirty set: the post-order walk below starts from
	// the lowest page-id first, and the ordering also gives Flush a deterministic write order
	// for pages that share no dependency edge (helpful for reproducing a flush in tests).
	var byID tbtree.Map[uint64, *Frame]
	for _, f := range dirty {
		byID.Set(f.ID, f)
	}

	visited := make(map[uint64]bool, len(dirty))
	order := make([]*Frame, 0, len(dirty))
	var visit func(f *Frame)
	visit = func(f *Frame) {
		if visited[f.ID] {
			return
		}
		visited[f.ID] = true
		for _, childID := range deps(f.ID, f.Buf) {
			if child, ok := byID.Get(childID); ok {
				visit(child)
			}
		}
		order = append(order, f)
	}
	byID.Scan(func(_ uint64, f *Frame) bool {
		visit(f)
		return true
	})

	for _, f := range order {
		if err := p.writeFrame(f); err != nil {
			return err
		}
	}
	return p.dev.Flush(fsync)
}

func (p *Pager) writeFrame(f *Frame) error {
	out := f.Buf
	if p.opts.Cipher != nil {
		out = append([]byte(nil), f.Buf...)
		if err := p.opts.Cipher.Encrypt(out, f.ID); err != nil {
			return kverrors.Wrap("pager.Flush", kverrors.KindInternalError, err)
		}
	}
	h, err := page.Decode(out)
	if err != nil {
		return err
	}
	page.Seal(out, h, p.opts.CRC32)
	off := int64(f.ID) * int64(p.opts.PageSize)
	if _, err := p.dev.WriteAt(out, off); err != nil {
		return kverrors.Wrap("pager.Flush", kverrors.KindIOError, err)
	}
	p.cache.clearDirty(f.ID)
	return nil
}

// Grow ensures the backing device is at least enough to hold every page-id allocated so far.
func (p *Pager) Grow() error {
	p.mu.Lock()
	n := p.nextPage
	p.mu.Unlock()
	return p.dev.Truncate(int64(n) * int64(p.opts.PageSize))
}

// NextPageWatermark reports one past the highest page-id ever allocated; used to persist/restore
// file-growth state across an open/close cycle.
func (p *Pager) NextPageWatermark() uint64 { p.mu.Lock(); defer p.mu.Unlock(); return p.nextPage }

func (p *Pager) SetNextPageWatermark(n uint64) {
	p.mu.Lock()
	p.nextPage = n
	p.mu.Unlock()
}

func (p *Pager) Stats() (hits, misses int64) { return p.hits.Load(), p.misses.Load() }
