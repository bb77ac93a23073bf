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

package btree

import (
	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv"
)

// Cursor walks a Tree's committed leaf chain. It holds either a valid (leaf, slot, duplicate)
// position or no position at all (spec.md §3's "may be nil"). Cursor is not safe for concurrent
// use by multiple goroutines; the Environment-level write lock (spec.md §5) is what serializes
// cursor mutation against tree mutation in practice.
type Cursor struct {
	tree   *Tree
	leaf   *Node
	idx    int
	dupIdx int
	dups   []dupRecord // cached duplicate records when the current entry is a dup table
	nilPos bool
}

func (t *Tree) NewCursor() *Cursor { return &Cursor{tree: t, nilPos: true} }

// Clone duplicates the cursor's current position without re-walking the tree (SPEC_FULL.md §3's
// upscaledb-derived ham_cursor_clone addition).
func (c *Cursor) Clone() *Cursor {
	clone := *c
	clone.dups = append([]dupRecord(nil), c.dups...)
	return &clone
}

func (c *Cursor) Close() { *c = Cursor{tree: c.tree, nilPos: true} }

func (t *Tree) leftmostLeaf() (*Node, error) {
	cur := t.root
	for {
		n, err := t.loadNode(cur)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf {
			return n, nil
		}
		cur = n.LeftmostChild
	}
}

func (t *Tree) rightmostLeaf() (*Node, error) {
	cur := t.root
	for {
		n, err := t.loadNode(cur)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf {
			return n, nil
		}
		if len(n.Entries) == 0 {
			cur = n.LeftmostChild
			continue
		}
		cur = n.Entries[len(n.Entries)-1].Child
	}
}

// First positions the cursor at the lowest key (and first duplicate).
func (c *Cursor) First() error {
	leaf, err := c.tree.leftmostLeaf()
	if err != nil {
		return err
	}
	return c.settle(leaf, 0, true)
}

// Last positions the cursor at the highest key (and last duplicate).
func (c *Cursor) Last() error {
	leaf, err := c.tree.rightmostLeaf()
	if err != nil {
		return err
	}
	return c.settle(leaf, len(leaf.Entries)-1, false)
}

// settle loads leaf/idx as the cursor's position, scanning forward (fromFront=true) or
// backward across sibling leaves to find a non-empty slot, and loads the duplicate group if the
// landed entry is a dup table.
func (c *Cursor) settle(leaf *Node, idx int, fromFront bool) error {
	for {
		if idx >= 0 && idx < len(leaf.Entries) {
			c.leaf, c.idx, c.nilPos = leaf, idx, false
			return c.loadDupGroup(fromFront)
		}
		var next uint64
		if fromFront {
			next = leaf.RightSibling
		} else {
			next = leaf.LeftSibling
		}
		if next == 0 {
			c.nilPos = true
			return nil
		}
		n, err := c.tree.loadNode(next)
		if err != nil {
			return err
		}
		leaf = n
		if fromFront {
			idx = 0
		} else {
			idx = len(leaf.Entries) - 1
		}
	}
}

func (c *Cursor) loadDupGroup(fromFront bool) error {
	e := c.leaf.Entries[c.idx]
	c.dups = nil
	c.dupIdx = 0
	if e.RecKind != RecordDupTable {
		return nil
	}
	dt, err := loadDupTable(c.tree.pager, e.DupTable)
	if err != nil {
		return err
	}
	c.dups = dt.Records
	if !fromFront {
		c.dupIdx = len(c.dups) - 1
	}
	return nil
}

// Next advances to the next duplicate, or the next key if the current key's duplicates are
// exhausted.
func (c *Cursor) Next() error {
	if c.nilPos {
		return kverrors.ErrCursorIsNil
	}
	if c.dups != nil && c.dupIdx+1 < len(c.dups) {
		c.dupIdx++
		return nil
	}
	return c.settle(c.leaf, c.idx+1, true)
}

// Prev moves to the previous duplicate, or the previous key.
func (c *Cursor) Prev() error {
	if c.nilPos {
		return kverrors.ErrCursorIsNil
	}
	if c.dups != nil && c.dupIdx > 0 {
		c.dupIdx--
		return nil
	}
	return c.settle(c.leaf, c.idx-1, false)
}

// Find positions the cursor per flags (spec.md §4.2's exact/near matching).
func (c *Cursor) Find(key []byte, flags kv.FindFlags) error {
	path, err := c.tree.descend(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1].node
	idx, found := c.tree.leafSearch(leaf.Entries, key)

	switch flags {
	case kv.FindExact:
		if !found {
			c.nilPos = true
			return kverrors.ErrKeyNotFound
		}
		return c.settle(leaf, idx, true)
	case kv.FindGE:
		return c.settle(leaf, idx, true)
	case kv.FindGT:
		if found {
			idx++
		}
		return c.settle(leaf, idx, true)
	case kv.FindLE:
		if found {
			return c.settle(leaf, idx, false)
		}
		return c.settle(leaf, idx-1, false)
	case kv.FindLT:
		return c.settle(leaf, idx-1, false)
	case kv.FindNear:
		if found {
			return c.settle(leaf, idx, true)
		}
		// Prefer the upper neighbor; documented indeterminism (spec.md §4.2).
		if idx < len(leaf.Entries) {
			return c.settle(leaf, idx, true)
		}
		return c.settle(leaf, idx-1, false)
	default:
		return kverrors.New("btree.Cursor.Find", kverrors.KindInvalidParameter)
	}
}

// Current returns the key and (first/positioned duplicate) record at the cursor's position.
func (c *Cursor) Current() (key, record []byte, err error) {
	if c.nilPos {
		return nil, nil, kverrors.ErrCursorIsNil
	}
	e := c.leaf.Entries[c.idx]
	if e.RecKind != RecordDupTable {
		rec, err := c.tree.firstRecord(e)
		return e.Key, rec, err
	}
	if len(c.dups) == 0 {
		return nil, nil, kverrors.New("btree.Cursor.Current", kverrors.KindInternalError)
	}
	rec, err := c.tree.materializeDup(c.dups[c.dupIdx])
	return e.Key, rec, err
}

// DupIndex reports the cursor's position within the current key's duplicate group.
func (c *Cursor) DupIndex() int { return c.dupIdx }

func (c *Cursor) IsNil() bool { return c.nilPos }
