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

import (
	"encoding/binary"
	"sync"

	"github.com/google/btree"

	"github.com/erigontech/kvengine/kv/page"
)

// run is a contiguous span of free page-ids [Start, Start+Length).
type run struct {
	Start  uint64
	Length uint64
}

// byLength orders runs for best-fit lookup: shortest-sufficient run first, ties broken by
// lowest start (spec.md §4.1: "Allocation prefers best-fit contiguous ranges for multi-page
// blobs; otherwise returns the lowest free id").
func byLength(a, b run) bool {
	if a.Length != b.Length {
		return a.Length < b.Length
	}
	return a.Start < b.Start
}

// Freelist is the persistent, page-resident set of free page-ids (spec.md §3, §4.1). The
// in-memory mirror is a google/btree-ordered index of free runs for O(log n) best-fit
// allocation, grounded on the teacher's own use of google/btree for ordered in-memory indices.
type Freelist struct {
	mu        sync.Mutex
	byLen     *btree.BTreeG[run]
	byStart   map[uint64]run // start -> run, for coalescing on Free
	byEnd     map[uint64]run // end (Start+Length) -> run, for coalescing on Free
	dirty     bool
	headPage  uint64 // first page of the persisted freelist chain; 0 if empty/not yet allocated
}

func NewFreelist() *Freelist {
	return &Freelist{
		byLen:   btree.NewG(32, byLength),
		byStart: make(map[uint64]run),
		byEnd:   make(map[uint64]run),
	}
}

func (fl *Freelist) insertLocked(r run) {
	fl.byLen.ReplaceOrInsert(r)
	fl.byStart[r.Start] = r
	fl.byEnd[r.Start+r.Length] = r
}

func (fl *Freelist) removeLocked(r run) {
	fl.byLen.Delete(r)
	delete(fl.byStart, r.Start)
	delete(fl.byEnd, r.Start+r.Length)
}

// Alloc reserves the best-fit run of n contiguous pages and returns its starting page-id. It
// returns ok=false if no run of at least n pages is free.
func (fl *Freelist) Alloc(n uint64) (start uint64, ok bool) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	var found run
	has := false
	fl.byLen.AscendGreaterOrEqual(run{Length: n}, func(r run) bool {
		found = r
		has = true
		return false // first match is the shortest sufficient run (best fit)
	})
	if !has {
		return 0, false
	}
	fl.removeLocked(found)
	if found.Length > n {
		rest := run{Start: found.Start + n, Length: found.Length - n}
		fl.insertLocked(rest)
	}
	fl.dirty = true
	return found.Start, true
}

// Free returns [start, start+n) to the freelist, coalescing with adjacent free runs so the
// freelist invariant ("every free page appears in exactly one freelist entry") holds without
// fragmenting into many 1-page entries over time.
func (fl *Freelist) Free(start, n uint64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	r := run{Start: start, Length: n}
	if before, ok := fl.byEnd[start]; ok {
		fl.removeLocked(before)
		r = run{Start: before.Start, Length: before.Length + r.Length}
	}
	if after, ok := fl.byStart[r.Start+r.Length]; ok {
		fl.removeLocked(after)
		r.Length += after.Length
	}
	fl.insertLocked(r)
	fl.dirty = true
}

// Count returns the total number of free pages tracked.
func (fl *Freelist) Count() uint64 {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	var total uint64
	fl.byLen.Ascend(func(r run) bool {
		total += r.Length
		return true
	})
	return total
}

// runRecordSize is the on-disk size of one (start, length) run entry.
const runRecordSize = 16

// entriesPerPage returns how many run records fit in a freelist page of the given size, after
// its header and a trailing 8-byte next-page-id pointer.
func entriesPerPage(pageSize uint32) int {
	return (int(pageSize) - page.HeaderSize - 8) / runRecordSize
}

// Serialize packs every free run into a sequence of freelist-page payloads (header and
// next-page-id link left to the caller, which owns page allocation); each returned slice holds
// only the run records for one page, in runRecordSize-byte entries.
func (fl *Freelist) Serialize(pageSize uint32) [][]run {
	fl.mu.Lock()
	var all []run
	fl.byLen.Ascend(func(r run) bool {
		all = append(all, r)
		return true
	})
	fl.mu.Unlock()

	perPage := entriesPerPage(pageSize)
	if perPage <= 0 {
		return nil
	}
	var pages [][]run
	for len(all) > 0 {
		n := perPage
		if n > len(all) {
			n = len(all)
		}
		pages = append(pages, all[:n])
		all = all[n:]
	}
	return pages
}

// EncodeRuns writes runs as runRecordSize-byte (start, length) pairs into dst.
func EncodeRuns(dst []byte, runs []run) {
	for i, r := range runs {
		off := i * runRecordSize
		binary.LittleEndian.PutUint64(dst[off:off+8], r.Start)
		binary.LittleEndian.PutUint64(dst[off+8:off+16], r.Length)
	}
}

// DecodeRuns reads n runs from src.
func DecodeRuns(src []byte, n int) []run {
	out := make([]run, n)
	for i := 0; i < n; i++ {
		off := i * runRecordSize
		out[i] = run{
			Start:  binary.LittleEndian.Uint64(src[off : off+8]),
			Length: binary.LittleEndian.Uint64(src[off+8 : off+16]),
		}
	}
	return out
}

// Load replaces the freelist's contents with runs (used when rebuilding from the persisted
// chain at Environment open).
func (fl *Freelist) Load(runs []run) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.byLen = btree.NewG(32, byLength)
	fl.byStart = make(map[uint64]run, len(runs))
	fl.byEnd = make(map[uint64]run, len(runs))
	for _, r := range runs {
		fl.insertLocked(r)
	}
	fl.dirty = false
}

func (fl *Freelist) SetHeadPage(id uint64) { fl.mu.Lock(); fl.headPage = id; fl.mu.Unlock() }
func (fl *Freelist) HeadPage() uint64      { fl.mu.Lock(); defer fl.mu.Unlock(); return fl.headPage }
func (fl *Freelist) Dirty() bool           { fl.mu.Lock(); defer fl.mu.Unlock(); return fl.dirty }
func (fl *Freelist) ClearDirty()           { fl.mu.Lock(); fl.dirty = false; fl.mu.Unlock() }
