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

package txn

import (
	"bytes"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv"
)

// Cursor implements kv.Cursor/RwCursor/CursorDupSort/RwCursorDupSort over a dbBinding, merging
// the committed btree's ordering with the transaction's overlay on every step (spec.md §4.4's
// cursor/txn coordination): Next/Prev silently skip keys contested by another open writer, while
// First/Last/Find/Seek surface the same condition as ErrTxnConflict.
type Cursor struct {
	tx *Txn
	b  *dbBinding

	key    []byte
	vals   [][]byte
	idx    int
	valid  bool
	closed bool
}

func (c *Cursor) clear() {
	c.valid = false
	c.key = nil
	c.vals = nil
	c.idx = 0
}

func (c *Cursor) currentLocked() (k, v []byte, err error) {
	if !c.valid {
		return nil, nil, kverrors.ErrCursorIsNil
	}
	return c.key, c.vals[c.idx], nil
}

// settle loads key's effective value list as the cursor's new position; forward selects the
// first duplicate, !forward the last (matching the direction the caller arrived from).
func (c *Cursor) settle(key []byte, forward bool) (k, v []byte, err error) {
	vals, ok, err := c.b.effective(key)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		c.clear()
		return nil, nil, nil
	}
	c.key = append([]byte(nil), key...)
	c.vals = vals
	if forward {
		c.idx = 0
	} else {
		c.idx = len(vals) - 1
	}
	c.valid = true
	return c.currentLocked()
}

// nextOverlayKey/prevOverlayKey return the overlay's nearest key strictly beyond after (nil
// after means "from either end"), regardless of whether that key is a live value or a tombstone
// — tombstone filtering happens one level up, in nextKey.
func (b *dbBinding) nextOverlayKey(after []byte) (*overlayEntry, bool) {
	var found *overlayEntry
	visit := func(e *overlayEntry) bool {
		if after != nil && bytes.Equal(e.key, after) {
			return true
		}
		found = e
		return false
	}
	if after == nil {
		b.overlay.Ascend(visit)
	} else {
		b.overlay.AscendGreaterOrEqual(&overlayEntry{key: after}, visit)
	}
	return found, found != nil
}

func (b *dbBinding) prevOverlayKey(after []byte) (*overlayEntry, bool) {
	var found *overlayEntry
	visit := func(e *overlayEntry) bool {
		if after != nil && bytes.Equal(e.key, after) {
			return true
		}
		found = e
		return false
	}
	if after == nil {
		b.overlay.Descend(visit)
	} else {
		b.overlay.DescendLessOrEqual(&overlayEntry{key: after}, visit)
	}
	return found, found != nil
}

// nextKey returns the smallest effective (non-tombstoned) key strictly greater than after when
// forward is true, or the largest strictly less than after when forward is false; after == nil
// means "from either end of the keyspace". It merges the committed tree's ordering with the
// overlay's, the overlay taking precedence on an exact key match since it reflects this
// transaction's own pending writes (read-your-own-writes).
func (b *dbBinding) nextKey(after []byte, forward bool) ([]byte, bool, error) {
	bound := after
	cur := b.tree.NewCursor()
	for {
		var cKey []byte
		var err error
		switch {
		case bound == nil && forward:
			err = cur.First()
		case bound == nil && !forward:
			err = cur.Last()
		case forward:
			err = cur.Find(bound, kv.FindGT)
		default:
			err = cur.Find(bound, kv.FindLT)
		}
		if err != nil && !kverrors.Is(err, kverrors.KindKeyNotFound) {
			return nil, false, err
		}
		if !cur.IsNil() {
			k, _, cerr := cur.Current()
			if cerr != nil {
				return nil, false, cerr
			}
			cKey = k
		}

		var oe *overlayEntry
		var hasOE bool
		if forward {
			oe, hasOE = b.nextOverlayKey(bound)
		} else {
			oe, hasOE = b.prevOverlayKey(bound)
		}

		var candidate []byte
		switch {
		case cKey == nil && !hasOE:
			return nil, false, nil
		case cKey == nil:
			candidate = oe.key
		case !hasOE:
			candidate = cKey
		default:
			cmp := b.tree.Compare(cKey, oe.key)
			if forward == (cmp <= 0) {
				candidate = cKey
			} else {
				candidate = oe.key
			}
		}

		if _, exists, err := b.effective(candidate); err != nil {
			return nil, false, err
		} else if exists {
			return candidate, true, nil
		}
		bound = candidate // tombstoned by this or another committed transaction; keep scanning
	}
}

// seekForward/seekBackward locate the nearest effective key at-or-beyond (inclusive=true) or
// strictly beyond (inclusive=false) key, used to implement FindGE/FindGT/FindLE/FindLT.
func (b *dbBinding) seekForward(key []byte, inclusive bool) ([]byte, bool, error) {
	if inclusive {
		if _, ok, err := b.effective(key); err != nil {
			return nil, false, err
		} else if ok {
			return key, true, nil
		}
	}
	return b.nextKey(key, true)
}

func (b *dbBinding) seekBackward(key []byte, inclusive bool) ([]byte, bool, error) {
	if inclusive {
		if _, ok, err := b.effective(key); err != nil {
			return nil, false, err
		} else if ok {
			return key, true, nil
		}
	}
	return b.nextKey(key, false)
}

// --- kv.Cursor ---

func (c *Cursor) First() (k, v []byte, err error) { return c.firstOrLast(true) }
func (c *Cursor) Last() (k, v []byte, err error)  { return c.firstOrLast(false) }

func (c *Cursor) firstOrLast(forward bool) (k, v []byte, err error) {
	key, ok, err := c.b.nextKey(nil, forward)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		c.clear()
		return nil, nil, nil
	}
	if c.tx.mgr.contested(c.b.id, key, c.tx.id) {
		c.clear()
		return nil, nil, kverrors.ErrTxnConflict
	}
	return c.settle(key, forward)
}

// Next/Prev first exhaust the current key's duplicate group before moving to the next key, and
// silently skip any key contested by another open writer (spec.md §4.4).
func (c *Cursor) Next() (k, v []byte, err error) {
	if c.valid && c.idx+1 < len(c.vals) {
		c.idx++
		return c.currentLocked()
	}
	return c.moveScan(true)
}

func (c *Cursor) Prev() (k, v []byte, err error) {
	if c.valid && c.idx > 0 {
		c.idx--
		return c.currentLocked()
	}
	return c.moveScan(false)
}

func (c *Cursor) moveScan(forward bool) (k, v []byte, err error) {
	bound := c.key
	for {
		key, ok, err := c.b.nextKey(bound, forward)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			c.clear()
			return nil, nil, nil
		}
		if c.tx.mgr.contested(c.b.id, key, c.tx.id) {
			bound = key
			continue
		}
		return c.settle(key, forward)
	}
}

func (c *Cursor) Current() (k, v []byte, err error) { return c.currentLocked() }

func (c *Cursor) Seek(seek []byte) (k, v []byte, err error) { return c.locate(seek, kv.FindGE) }

func (c *Cursor) SeekExact(key []byte) (v []byte, err error) {
	_, v, err = c.locate(key, kv.FindExact)
	return v, err
}

func (c *Cursor) Find(key []byte, flags kv.FindFlags) (k, v []byte, err error) {
	return c.locate(key, flags)
}

// locate implements Seek/SeekExact/Find: a positional operation, so a contested target key
// surfaces ErrTxnConflict rather than being silently skipped (spec.md §4.4).
func (c *Cursor) locate(key []byte, flag kv.FindFlags) (k, v []byte, err error) {
	var target []byte
	var ok bool
	switch flag {
	case kv.FindExact:
		_, ok, err = c.b.effective(key)
		target = key
	case kv.FindGE:
		target, ok, err = c.b.seekForward(key, true)
	case kv.FindGT:
		target, ok, err = c.b.seekForward(key, false)
	case kv.FindLE:
		target, ok, err = c.b.seekBackward(key, true)
	case kv.FindLT:
		target, ok, err = c.b.seekBackward(key, false)
	case kv.FindNear:
		target, ok, err = c.findNear(key)
	default:
		return nil, nil, kverrors.New("txn.Cursor.Find", kverrors.KindInvalidParameter)
	}
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		c.clear()
		if flag == kv.FindExact {
			return nil, nil, kverrors.ErrKeyNotFound
		}
		return nil, nil, nil
	}
	if c.tx.mgr.contested(c.b.id, target, c.tx.id) {
		c.clear()
		return nil, nil, kverrors.ErrTxnConflict
	}
	return c.settle(target, true)
}

// findNear implements spec.md §4.2's "near": the upper neighbor is preferred when neither side
// is an exact match (documented indeterminism, matching btree.Cursor.Find's choice).
func (c *Cursor) findNear(key []byte) ([]byte, bool, error) {
	if _, exists, err := c.b.effective(key); err != nil {
		return nil, false, err
	} else if exists {
		return key, true, nil
	}
	if up, ok, err := c.b.seekForward(key, false); err != nil {
		return nil, false, err
	} else if ok {
		return up, true, nil
	}
	return c.b.seekBackward(key, false)
}

// Clone duplicates the cursor's current position into a new, independent Cursor bound to the
// same transaction (SPEC_FULL.md §3's upscaledb-derived ham_cursor_clone addition).
func (c *Cursor) Clone() (kv.Cursor, error) {
	clone := &Cursor{
		tx:    c.tx,
		b:     c.b,
		key:   append([]byte(nil), c.key...),
		vals:  append([][]byte(nil), c.vals...),
		idx:   c.idx,
		valid: c.valid,
	}
	c.tx.openCursors++
	return clone, nil
}

// Count reports the total number of (key, duplicate) entries visible to this transaction across
// the whole database; a plain (non-dup) database's count equals its key count.
func (c *Cursor) Count() (uint64, error) {
	scan := &Cursor{tx: c.tx, b: c.b}
	var n uint64
	k, _, err := scan.First()
	for k != nil {
		if err != nil {
			return 0, err
		}
		n += uint64(len(scan.vals))
		k, _, err = scan.Next()
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.tx.closeCursor()
}

// --- kv.RwCursor ---

func (c *Cursor) Put(k, v []byte) error {
	if !c.tx.writable {
		return kverrors.ErrWriteProtected
	}
	if err := c.tx.putInto(c.b, k, v); err != nil {
		return err
	}
	_, _, err := c.locate(k, kv.FindExact)
	return err
}

// Append is Put without the dedicated append-fast-path spec.md §4.2 describes for the tree's own
// insert: the txn overlay always resolves a key through its ordered index regardless, so there is
// no extra search step to skip at this layer.
func (c *Cursor) Append(k, v []byte) error { return c.Put(k, v) }

func (c *Cursor) Delete(k []byte) error {
	if !c.tx.writable {
		return kverrors.ErrWriteProtected
	}
	if err := c.tx.deleteKey(c.b, k); err != nil {
		return err
	}
	if c.valid && bytes.Equal(c.key, k) {
		c.clear()
	}
	return nil
}

func (c *Cursor) DeleteCurrent() error {
	if !c.tx.writable {
		return kverrors.ErrWriteProtected
	}
	if !c.valid {
		return kverrors.ErrCursorIsNil
	}
	key := append([]byte(nil), c.key...)
	if len(c.vals) > 1 {
		if err := c.tx.deleteValue(c.b, key, c.vals[c.idx]); err != nil {
			return err
		}
	} else if err := c.tx.deleteKey(c.b, key); err != nil {
		return err
	}
	vals, ok, err := c.b.effective(key)
	if err != nil {
		return err
	}
	if !ok || len(vals) == 0 {
		c.clear()
		return nil
	}
	c.vals = vals
	if c.idx >= len(vals) {
		c.idx = len(vals) - 1
	}
	return nil
}

// --- kv.CursorDupSort ---

func (c *Cursor) SeekBothExact(key, value []byte) (k, v []byte, err error) {
	if _, _, err := c.locate(key, kv.FindExact); err != nil {
		return nil, nil, err
	}
	for i, val := range c.vals {
		if bytes.Equal(val, value) {
			c.idx = i
			return c.key, val, nil
		}
	}
	c.clear()
	return nil, nil, kverrors.ErrKeyNotFound
}

func (c *Cursor) SeekBothRange(key, value []byte) (v []byte, err error) {
	if _, _, err := c.locate(key, kv.FindExact); err != nil {
		if kverrors.Is(err, kverrors.KindKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	for i, val := range c.vals {
		if bytes.Compare(val, value) >= 0 {
			c.idx = i
			return val, nil
		}
	}
	return nil, nil
}

func (c *Cursor) FirstDup() (v []byte, err error) {
	if !c.valid {
		return nil, kverrors.ErrCursorIsNil
	}
	if len(c.vals) == 0 {
		return nil, nil
	}
	c.idx = 0
	return c.vals[0], nil
}

func (c *Cursor) LastDup() (v []byte, err error) {
	if !c.valid {
		return nil, kverrors.ErrCursorIsNil
	}
	if len(c.vals) == 0 {
		return nil, nil
	}
	c.idx = len(c.vals) - 1
	return c.vals[c.idx], nil
}

func (c *Cursor) NextDup() (k, v []byte, err error) {
	if !c.valid {
		return nil, nil, kverrors.ErrCursorIsNil
	}
	if c.idx+1 >= len(c.vals) {
		return nil, nil, nil
	}
	c.idx++
	return c.currentLocked()
}

func (c *Cursor) PrevDup() (k, v []byte, err error) {
	if !c.valid {
		return nil, nil, kverrors.ErrCursorIsNil
	}
	if c.idx <= 0 {
		return nil, nil, nil
	}
	c.idx--
	return c.currentLocked()
}

func (c *Cursor) NextNoDup() (k, v []byte, err error) { return c.moveScan(true) }
func (c *Cursor) PrevNoDup() (k, v []byte, err error) { return c.moveScan(false) }

func (c *Cursor) CountDuplicates() (uint64, error) {
	if !c.valid {
		return 0, kverrors.ErrCursorIsNil
	}
	return uint64(len(c.vals)), nil
}

// --- kv.RwCursorDupSort ---

func (c *Cursor) PutDup(key, value []byte, mode kv.DupInsertMode) error {
	if !c.tx.writable {
		return kverrors.ErrWriteProtected
	}
	if err := c.tx.putDup(c.b, key, value, mode); err != nil {
		return err
	}
	_, _, err := c.locate(key, kv.FindExact)
	return err
}

func (c *Cursor) DeleteCurrentDuplicates() error {
	if !c.tx.writable {
		return kverrors.ErrWriteProtected
	}
	if !c.valid {
		return kverrors.ErrCursorIsNil
	}
	key := append([]byte(nil), c.key...)
	if err := c.tx.deleteKey(c.b, key); err != nil {
		return err
	}
	c.clear()
	return nil
}
