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

// Package btree implements the disk-resident B+tree index: node search, insert with split
// propagation, erase with merge/redistribute, extended-key overflow, duplicate tables, and
// cursor traversal (spec.md §4.2). Tree mutation records the root-to-leaf page path on an
// explicit stack during descent; split propagation walks that stack iteratively, while erase
// rebalancing (rebalance) recurses up it, one call per level.
package btree

import (
	"sync"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/blob"
	"github.com/erigontech/kvengine/kv/page"
	"github.com/erigontech/kvengine/kv/pager"
)

// Tree is one Database's B+tree index.
type Tree struct {
	mu    sync.RWMutex
	pager *pager.Pager
	blobs *blob.Manager
	owner uint16
	cmp   CompareFunc
	opts  kv.DBOptions

	layout       Layout
	fixedKeySize uint16
	fixedValSize uint16
	dupEnabled   bool

	root uint64

	// OnRootChange is invoked (outside the tree's own lock) whenever the root page id changes,
	// so the owning Environment can persist the new root in the database directory page.
	OnRootChange func(newRoot uint64)
}

// Open constructs a Tree over an existing (or freshly allocated, if root==0) root page.
func Open(p *pager.Pager, blobs *blob.Manager, owner uint16, root uint64, opts kv.DBOptions) (*Tree, error) {
	cmp, err := ResolveCompare(opts)
	if err != nil {
		return nil, err
	}
	t := &Tree{
		pager:      p,
		blobs:      blobs,
		owner:      owner,
		cmp:        cmp,
		opts:       opts,
		dupEnabled: opts.Flags&kv.DBFlagDuplicates != 0,
		root:       root,
	}
	if ks, ok := FixedKeySize(opts); ok && !t.dupEnabled {
		t.layout = LayoutCompact
		t.fixedKeySize = ks
		t.fixedValSize = compactValueSize(opts)
	} else {
		t.layout = LayoutGeneral
	}
	if root == 0 {
		f, err := p.AllocPage(page.TypeIndexLeaf, owner)
		if err != nil {
			return nil, err
		}
		n := &Node{PageID: f.ID, Layout: t.layout, IsLeaf: true, FixedKeySize: t.fixedKeySize, FixedValSize: t.fixedValSize}
		if err := t.saveNode(n); err != nil {
			return nil, err
		}
		p.Unpin(f.ID)
		t.root = f.ID
	}
	return t, nil
}

// compactValueSize returns the fixed per-entry value width for the compact layout, or 0 if
// values must be stored as 8-byte blob ids (binary-variable records, or fixed records too large
// to pack alongside the key without starving fanout).
func compactValueSize(opts kv.DBOptions) uint16 {
	const maxInlineCompact = 64
	switch opts.RecordType {
	case kv.RecordTypeUint8:
		return 1
	case kv.RecordTypeUint16:
		return 2
	case kv.RecordTypeUint32, kv.RecordTypeReal32:
		return 4
	case kv.RecordTypeUint64, kv.RecordTypeReal64:
		return 8
	case kv.RecordTypeBinaryFixed:
		if opts.RecordSize > 0 && opts.RecordSize <= maxInlineCompact {
			return uint16(opts.RecordSize)
		}
		return 0
	default:
		return 0
	}
}

func (t *Tree) Root() uint64 { return t.root }

// Compare orders two keys using the tree's resolved comparator.
func (t *Tree) Compare(a, b []byte) int { return t.cmp(a, b) }

// DupEnabled reports whether this tree's database allows duplicate keys.
func (t *Tree) DupEnabled() bool { return t.dupEnabled }

// Options returns the schema/flags this tree was opened with.
func (t *Tree) Options() kv.DBOptions { return t.opts }

func (t *Tree) setRoot(id uint64) {
	t.root = id
	if t.OnRootChange != nil {
		t.OnRootChange(id)
	}
}

// ChildPageIDs decodes a raw page buffer already known to belong to this tree (buf is not
// fetched through the pager, so this never blocks or touches the device) and returns the child
// page ids an internal node points at: the leftmost-child pointer followed by every entry's
// Child field, in order. Leaf pages (and anything that fails to decode as a node at all) return
// nil — Pager.Flush's dependency walk treats a nil result as "no known dependents", the safe
// default. Extended-key overflow blobs are never dereferenced (blobs: nil) since only child
// pointers, not key material, are needed here.
func (t *Tree) ChildPageIDs(id uint64, buf []byte) []uint64 {
	n, err := DecodeNode(id, buf, t.fixedKeySize, t.fixedValSize, nil)
	if err != nil || n.IsLeaf {
		return nil
	}
	ids := make([]uint64, 0, len(n.Entries)+1)
	if n.LeftmostChild != 0 {
		ids = append(ids, n.LeftmostChild)
	}
	for _, e := range n.Entries {
		if e.Child != 0 {
			ids = append(ids, e.Child)
		}
	}
	return ids
}

func (t *Tree) loadNode(id uint64) (*Node, error) {
	f, err := t.pager.Fetch(id)
	if err != nil {
		return nil, err
	}
	n, err := DecodeNode(id, f.Buf, t.fixedKeySize, t.fixedValSize, t.blobs)
	t.pager.Unpin(id)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (t *Tree) saveNode(n *Node) error {
	f, err := t.pager.Fetch(n.PageID)
	if err != nil {
		return err
	}
	if err := EncodeNode(f.Buf, n, t.owner, t.blobs); err != nil {
		t.pager.Unpin(n.PageID)
		return err
	}
	t.pager.MarkDirty(n.PageID)
	t.pager.Unpin(n.PageID)
	return nil
}

func (t *Tree) allocNode(isLeaf bool) (*Node, error) {
	typ := page.TypeIndexInternal
	if isLeaf {
		typ = page.TypeIndexLeaf
	}
	f, err := t.pager.AllocPage(typ, t.owner)
	if err != nil {
		return nil, err
	}
	n := &Node{PageID: f.ID, Layout: t.layout, IsLeaf: isLeaf, FixedKeySize: t.fixedKeySize, FixedValSize: t.fixedValSize}
	t.pager.Unpin(f.ID)
	return n, nil
}

func (t *Tree) freeNode(id uint64) { t.pager.Free(id) }

// entrySize returns the on-page footprint of e, matching what encodeGeneralEntries would write.
func (t *Tree) entrySize(e Entry, isLeaf bool) int {
	if t.layout == LayoutCompact {
		return entryStride(t.fixedKeySize, t.fixedValSize, isLeaf)
	}
	extended := e.Extended || isExtendedKey(e.Key)
	size := 1
	if extended {
		size += extKeyPrefixLen + 8
	} else {
		size += 4 + len(e.Key)
	}
	if isLeaf {
		switch e.RecKind {
		case RecordInline:
			size += 4 + len(e.Inline)
		case RecordBlob, RecordDupTable:
			size += 8
		}
	} else {
		size += 8
	}
	return size
}

func (t *Tree) nodeByteSize(n *Node) int {
	total := 0
	for _, e := range n.Entries {
		total += t.entrySize(e, n.IsLeaf)
	}
	return total
}

func (t *Tree) capacity() int { return NodeCapacity(t.pager.PageSize()) }

// stackFrame records one step of a root-to-leaf descent: the node visited and the child index
// that was followed (0 == LeftmostChild).
type stackFrame struct {
	node      *Node
	childIdx  int
}

func childAt(n *Node, idx int) uint64 {
	if idx == 0 {
		return n.LeftmostChild
	}
	return n.Entries[idx-1].Child
}

// upperBound returns the number of entries whose key is <= target (i.e. the child index to
// descend into for a search on target).
func (t *Tree) upperBound(entries []Entry, target []byte) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(entries[mid].Key, target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// leafSearch returns the index of an exact match, or the insertion point, for target within a
// leaf's entries.
func (t *Tree) leafSearch(entries []Entry, target []byte) (idx int, found bool) {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		c := t.cmp(entries[mid].Key, target)
		switch {
		case c < 0:
			lo = mid + 1
		case c > 0:
			hi = mid
		default:
			return mid, true
		}
	}
	return lo, false
}

// descend walks from the root to the leaf that would contain key, returning the full path
// (root first, leaf last).
func (t *Tree) descend(key []byte) ([]stackFrame, error) {
	var path []stackFrame
	cur := t.root
	for {
		n, err := t.loadNode(cur)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf {
			path = append(path, stackFrame{node: n})
			return path, nil
		}
		idx := t.upperBound(n.Entries, key)
		path = append(path, stackFrame{node: n, childIdx: idx})
		cur = childAt(n, idx)
	}
}

// Get returns the first (or only) record for key.
func (t *Tree) Get(key []byte) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	path, err := t.descend(key)
	if err != nil {
		return nil, err
	}
	leaf := path[len(path)-1].node
	idx, found := t.leafSearch(leaf.Entries, key)
	if !found {
		return nil, kverrors.New("btree.Get", kverrors.KindKeyNotFound)
	}
	return t.firstRecord(leaf.Entries[idx])
}

func (t *Tree) firstRecord(e Entry) ([]byte, error) {
	switch e.RecKind {
	case RecordInline:
		return e.Inline, nil
	case RecordBlob:
		return t.blobs.Get(e.BlobID)
	case RecordDupTable:
		dt, err := loadDupTable(t.pager, e.DupTable)
		if err != nil {
			return nil, err
		}
		if len(dt.Records) == 0 {
			return nil, kverrors.New("btree.firstRecord", kverrors.KindInternalError)
		}
		return t.materializeDup(dt.Records[0])
	default:
		return nil, kverrors.New("btree.firstRecord", kverrors.KindInternalError)
	}
}

func (t *Tree) materializeDup(r dupRecord) ([]byte, error) {
	if r.Kind == RecordBlob {
		return t.blobs.Get(r.BlobID)
	}
	return r.Inline, nil
}

// GetAll returns every duplicate record for key, in stored order.
func (t *Tree) GetAll(key []byte) ([][]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	path, err := t.descend(key)
	if err != nil {
		return nil, err
	}
	leaf := path[len(path)-1].node
	idx, found := t.leafSearch(leaf.Entries, key)
	if !found {
		return nil, kverrors.New("btree.GetAll", kverrors.KindKeyNotFound)
	}
	e := leaf.Entries[idx]
	if e.RecKind != RecordDupTable {
		rec, err := t.firstRecord(e)
		if err != nil {
			return nil, err
		}
		return [][]byte{rec}, nil
	}
	dt, err := loadDupTable(t.pager, e.DupTable)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(dt.Records))
	for _, r := range dt.Records {
		v, err := t.materializeDup(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *Tree) recKindFor(record []byte) (RecordKind, []byte, blob.ID, error) {
	inlineCap := t.inlineRecordCap()
	if len(record) <= inlineCap {
		return RecordInline, record, 0, nil
	}
	id, err := t.blobs.Put(t.owner, record)
	if err != nil {
		return 0, nil, 0, err
	}
	return RecordBlob, nil, id, nil
}

func (t *Tree) inlineRecordCap() int {
	if t.layout == LayoutCompact {
		if t.fixedValSize == 0 {
			return 0
		}
		return int(t.fixedValSize)
	}
	return t.capacity() / 8 // leave room for several entries per leaf
}

// Put inserts or overwrites key's single record (non-duplicate databases), or appends/positions
// a duplicate (duplicate-enabled databases) per mode.
func (t *Tree) Put(key, record []byte, mode kv.DupInsertMode, overwrite bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	path, err := t.descend(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1].node
	idx, found := t.leafSearch(leaf.Entries, key)

	if !found {
		kind, inline, bid, err := t.recKindFor(record)
		if err != nil {
			return err
		}
		e := Entry{Key: append([]byte(nil), key...), RecKind: kind, Inline: inline, BlobID: bid}
		leaf.Entries = append(leaf.Entries, Entry{})
		copy(leaf.Entries[idx+1:], leaf.Entries[idx:])
		leaf.Entries[idx] = e
		return t.afterLeafInsert(path)
	}

	existing := leaf.Entries[idx]
	if !t.dupEnabled {
		if !overwrite {
			return kverrors.New("btree.Put", kverrors.KindDuplicateKey)
		}
		if existing.RecKind == RecordBlob {
			_ = t.blobs.Free(existing.BlobID)
		}
		kind, inline, bid, err := t.recKindFor(record)
		if err != nil {
			return err
		}
		leaf.Entries[idx].RecKind, leaf.Entries[idx].Inline, leaf.Entries[idx].BlobID = kind, inline, bid
		return t.saveNode(leaf)
	}

	// Duplicate-enabled: promote to a dup table on the second record for this key (see
	// DESIGN.md for why DupThreshold isn't honored as a deferred-promotion point).
	var dt *dupTable
	if existing.RecKind == RecordDupTable {
		dt, err = loadDupTable(t.pager, existing.DupTable)
		if err != nil {
			return err
		}
	} else {
		dt, err = newDupTable(t.pager, t.owner)
		if err != nil {
			return err
		}
		first, ferr := t.firstRecord(existing)
		if ferr != nil {
			return ferr
		}
		dt.Records = append(dt.Records, toDupRecord(existing.RecKind, first, existing.BlobID))
		leaf.Entries[idx] = Entry{Key: existing.Key, RecKind: RecordDupTable, DupTable: dt.PageID}
	}

	kind, inline, bid, err := t.recKindFor(record)
	if err != nil {
		return err
	}
	rec := dupRecord{Kind: kind}
	if kind == RecordInline {
		rec.Inline = inline
	} else {
		rec.BlobID = bid
	}
	insertAt := len(dt.Records)
	switch mode {
	case kv.DupInsertFirst:
		insertAt = 0
	case kv.DupInsertLast:
		insertAt = len(dt.Records)
	case kv.DupOverwrite:
		if len(dt.Records) > 0 {
			dt.Records[0] = rec
			if err := dt.save(t.pager, t.owner); err != nil {
				return err
			}
			return t.saveNode(leaf)
		}
	}
	dt.InsertAt(insertAt, rec)
	if err := dt.save(t.pager, t.owner); err != nil {
		return err
	}
	return t.saveNode(leaf)
}

func toDupRecord(kind RecordKind, inline []byte, bid blob.ID) dupRecord {
	if kind == RecordBlob {
		return dupRecord{Kind: RecordBlob, BlobID: bid}
	}
	return dupRecord{Kind: RecordInline, Inline: inline}
}

// afterLeafInsert persists the modified leaf, splitting it (and propagating up the stack) if it
// now exceeds page capacity.
func (t *Tree) afterLeafInsert(path []stackFrame) error {
	leaf := path[len(path)-1].node
	if t.nodeByteSize(leaf) <= t.capacity() {
		return t.saveNode(leaf)
	}
	return t.splitAndPropagate(path)
}

func (t *Tree) splitAndPropagate(path []stackFrame) error {
	i := len(path) - 1
	node := path[i].node
	sepKey, rightID, err := t.splitNode(node)
	if err != nil {
		return err
	}
	if err := t.saveNode(node); err != nil {
		return err
	}
	for i > 0 {
		i--
		parent := path[i].node
		at := path[i].childIdx
		parent.Entries = append(parent.Entries, Entry{})
		copy(parent.Entries[at+1:], parent.Entries[at:])
		parent.Entries[at] = Entry{Key: sepKey, Child: rightID}
		if t.nodeByteSize(parent) <= t.capacity() {
			return t.saveNode(parent)
		}
		sepKey, rightID, err = t.splitNode(parent)
		if err != nil {
			return err
		}
		if err := t.saveNode(parent); err != nil {
			return err
		}
	}
	// Root split: allocate a fresh root pointing at the old root (now left) and the new right.
	newRoot, err := t.allocNode(false)
	if err != nil {
		return err
	}
	newRoot.LeftmostChild = path[0].node.PageID
	newRoot.Entries = []Entry{{Key: sepKey, Child: rightID}}
	if err := t.saveNode(newRoot); err != nil {
		return err
	}
	t.setRoot(newRoot.PageID)
	return nil
}

// splitNode splits node in place (node keeps the left half) and returns the separator key to
// promote plus the new right sibling's page id.
func (t *Tree) splitNode(node *Node) ([]byte, uint64, error) {
	right, err := t.allocNode(node.IsLeaf)
	if err != nil {
		return nil, 0, err
	}
	mid := len(node.Entries) / 2
	if node.IsLeaf {
		right.Entries = append(right.Entries, node.Entries[mid:]...)
		node.Entries = node.Entries[:mid:mid]
		right.RightSibling = node.RightSibling
		right.LeftSibling = node.PageID
		node.RightSibling = right.PageID
		if right.RightSibling != 0 {
			sib, err := t.loadNode(right.RightSibling)
			if err != nil {
				return nil, 0, err
			}
			sib.LeftSibling = right.PageID
			if err := t.saveNode(sib); err != nil {
				return nil, 0, err
			}
		}
		sep := append([]byte(nil), right.Entries[0].Key...)
		if err := t.saveNode(right); err != nil {
			return nil, 0, err
		}
		return sep, right.PageID, nil
	}

	sep := append([]byte(nil), node.Entries[mid].Key...)
	right.LeftmostChild = node.Entries[mid].Child
	right.Entries = append(right.Entries, node.Entries[mid+1:]...)
	node.Entries = node.Entries[:mid:mid]
	if err := t.saveNode(right); err != nil {
		return nil, 0, err
	}
	return sep, right.PageID, nil
}

// Erase removes key and all of its duplicates.
func (t *Tree) Erase(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	path, err := t.descend(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1].node
	idx, found := t.leafSearch(leaf.Entries, key)
	if !found {
		return kverrors.New("btree.Erase", kverrors.KindKeyNotFound)
	}
	e := leaf.Entries[idx]
	switch e.RecKind {
	case RecordBlob:
		_ = t.blobs.Free(e.BlobID)
	case RecordDupTable:
		dt, err := loadDupTable(t.pager, e.DupTable)
		if err == nil {
			for _, r := range dt.Records {
				if r.Kind == RecordBlob {
					_ = t.blobs.Free(r.BlobID)
				}
			}
		}
		t.pager.Free(e.DupTable)
	}
	leaf.Entries = append(leaf.Entries[:idx], leaf.Entries[idx+1:]...)
	return t.afterLeafErase(path)
}

// EraseDup removes a single duplicate at position idx within key's duplicate group.
func (t *Tree) EraseDup(key []byte, idx int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	path, err := t.descend(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1].node
	leafIdx, found := t.leafSearch(leaf.Entries, key)
	if !found {
		return kverrors.New("btree.EraseDup", kverrors.KindKeyNotFound)
	}
	e := leaf.Entries[leafIdx]
	if e.RecKind != RecordDupTable {
		// A single-record key: remove the whole entry here, since Erase would take t.mu again.
		if e.RecKind == RecordBlob {
			_ = t.blobs.Free(e.BlobID)
		}
		leaf.Entries = append(leaf.Entries[:leafIdx], leaf.Entries[leafIdx+1:]...)
		return t.afterLeafErase(path)
	}
	dt, err := loadDupTable(t.pager, e.DupTable)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(dt.Records) {
		return kverrors.New("btree.EraseDup", kverrors.KindInvalidParameter)
	}
	if dt.Records[idx].Kind == RecordBlob {
		_ = t.blobs.Free(dt.Records[idx].BlobID)
	}
	dt.RemoveAt(idx)
	if len(dt.Records) == 0 {
		t.pager.Free(e.DupTable)
		leaf.Entries = append(leaf.Entries[:leafIdx], leaf.Entries[leafIdx+1:]...)
		return t.afterLeafErase(path)
	}
	if len(dt.Records) == 1 {
		rec := dt.Records[0]
		t.pager.Free(e.DupTable)
		leaf.Entries[leafIdx] = Entry{Key: e.Key, RecKind: rec.Kind, Inline: rec.Inline, BlobID: rec.BlobID}
		return t.saveNode(leaf)
	}
	return dt.save(t.pager, t.owner)
}

// afterLeafErase persists the modified leaf, rebalancing (redistribute or merge) when it has
// fallen below half-full, then propagating any resulting parent shrinkage up the stack.
func (t *Tree) afterLeafErase(path []stackFrame) error {
	return t.rebalance(path, len(path)-1)
}

// rebalance ensures path[i].node is within its occupancy bound, redistributing or merging with
// a sibling (using path[i-1] to locate siblings) and recursing upward as needed. i==0 is the
// root, which has no minimum-occupancy requirement.
func (t *Tree) rebalance(path []stackFrame, i int) error {
	node := path[i].node
	if i == 0 {
		if !node.IsLeaf && len(node.Entries) == 0 {
			t.setRoot(node.LeftmostChild)
			t.freeNode(node.PageID)
			return nil
		}
		return t.saveNode(node)
	}
	if t.nodeByteSize(node) >= t.capacity()/2 {
		return t.saveNode(node)
	}

	parent := path[i-1].node
	childIdx := path[i-1].childIdx

	if childIdx > 0 {
		leftID := childAt(parent, childIdx-1)
		left, err := t.loadNode(leftID)
		if err != nil {
			return err
		}
		if t.nodeByteSize(left)-t.entrySize(left.Entries[len(left.Entries)-1], left.IsLeaf) >= t.capacity()/2 {
			t.redistributeFromLeft(parent, childIdx, left, node)
			if err := t.saveNode(left); err != nil {
				return err
			}
			if err := t.saveNode(node); err != nil {
				return err
			}
			return t.saveNode(parent)
		}
		t.mergeInto(left, node, parent.Entries[childIdx-1].Key, node.IsLeaf)
		if node.IsLeaf {
			left.RightSibling = node.RightSibling
			if node.RightSibling != 0 {
				sib, err := t.loadNode(node.RightSibling)
				if err == nil {
					sib.LeftSibling = left.PageID
					_ = t.saveNode(sib)
				}
			}
		}
		if err := t.saveNode(left); err != nil {
			return err
		}
		t.freeNode(node.PageID)
		parent.Entries = append(parent.Entries[:childIdx-1], parent.Entries[childIdx:]...)
		return t.rebalance(path, i-1)
	}

	if childIdx < len(parent.Entries) {
		rightID := childAt(parent, childIdx+1)
		right, err := t.loadNode(rightID)
		if err != nil {
			return err
		}
		if t.nodeByteSize(right)-t.entrySize(right.Entries[0], right.IsLeaf) >= t.capacity()/2 {
			t.redistributeFromRight(parent, childIdx, node, right)
			if err := t.saveNode(node); err != nil {
				return err
			}
			if err := t.saveNode(right); err != nil {
				return err
			}
			return t.saveNode(parent)
		}
		t.mergeInto(node, right, parent.Entries[childIdx].Key, node.IsLeaf)
		if node.IsLeaf {
			node.RightSibling = right.RightSibling
			if right.RightSibling != 0 {
				sib, err := t.loadNode(right.RightSibling)
				if err == nil {
					sib.LeftSibling = node.PageID
					_ = t.saveNode(sib)
				}
			}
		}
		if err := t.saveNode(node); err != nil {
			return err
		}
		t.freeNode(right.PageID)
		parent.Entries = append(parent.Entries[:childIdx], parent.Entries[childIdx+1:]...)
		return t.rebalance(path, i-1)
	}

	return t.saveNode(node)
}

func (t *Tree) redistributeFromLeft(parent *Node, childIdx int, left, node *Node) {
	last := left.Entries[len(left.Entries)-1]
	left.Entries = left.Entries[:len(left.Entries)-1]
	if node.IsLeaf {
		node.Entries = append([]Entry{last}, node.Entries...)
		parent.Entries[childIdx-1].Key = append([]byte(nil), node.Entries[0].Key...)
	} else {
		oldSep := parent.Entries[childIdx-1].Key
		node.Entries = append([]Entry{{Key: oldSep, Child: node.LeftmostChild}}, node.Entries...)
		node.LeftmostChild = last.Child
		parent.Entries[childIdx-1].Key = last.Key
	}
}

func (t *Tree) redistributeFromRight(parent *Node, childIdx int, node, right *Node) {
	first := right.Entries[0]
	right.Entries = right.Entries[1:]
	if node.IsLeaf {
		node.Entries = append(node.Entries, first)
		parent.Entries[childIdx].Key = append([]byte(nil), right.Entries[0].Key...)
	} else {
		oldSep := parent.Entries[childIdx].Key
		node.Entries = append(node.Entries, Entry{Key: oldSep, Child: right.LeftmostChild})
		right.LeftmostChild = first.Child
		parent.Entries[childIdx].Key = first.Key
	}
}

// mergeInto appends right's contents onto left; sep is the parent separator between them,
// needed to rebuild a lost internal separator.
func (t *Tree) mergeInto(left, right *Node, sep []byte, isLeaf bool) {
	if isLeaf {
		left.Entries = append(left.Entries, right.Entries...)
		return
	}
	left.Entries = append(left.Entries, Entry{Key: sep, Child: right.LeftmostChild})
	left.Entries = append(left.Entries, right.Entries...)
}
