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
	"context"
	"sync"

	gbtree "github.com/google/btree"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/internal/kvlog"
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/btree"
)

// Manager owns the environment's transaction lifecycle: id assignment, the single-writer
// serialization spec.md's "write lock" describes, and the contested-key bookkeeping that lets a
// reader racing the open writer skip or conflict on keys it has touched.
type Manager struct {
	catalog Catalog
	log     *kvlog.Logger

	mu     sync.Mutex
	nextID uint64
	open   map[uint64]*Txn

	writeMu sync.Mutex // held for the lifetime of the single open RwTx

	contestMu sync.RWMutex
	writerID  uint64
	touched   map[uint16]map[string]struct{}
}

func NewManager(catalog Catalog, log *kvlog.Logger) *Manager {
	if log == nil {
		log = kvlog.Nop()
	}
	return &Manager{catalog: catalog, log: log.Named("txn"), open: make(map[uint64]*Txn)}
}

// BeginRo starts a read-only transaction. It never blocks on the write lock: readers observe
// the last-committed tree state plus, for keys the single open writer has touched, the
// contested-key signal rather than a private view of the writer's uncommitted data.
func (m *Manager) BeginRo(ctx context.Context) (*Txn, error) {
	return m.begin(ctx, false)
}

// BeginRw starts a read-write transaction, blocking until any other open RwTx commits or rolls
// back (spec.md's embedded single-writer model; see DESIGN.md).
func (m *Manager) BeginRw(ctx context.Context) (*Txn, error) {
	m.writeMu.Lock()
	t, err := m.begin(ctx, true)
	if err != nil {
		m.writeMu.Unlock()
		return nil, err
	}
	m.contestMu.Lock()
	m.writerID = t.id
	m.touched = make(map[uint16]map[string]struct{})
	m.contestMu.Unlock()
	return t, nil
}

func (m *Manager) begin(ctx context.Context, writable bool) (*Txn, error) {
	if writable && m.catalog.ReadOnly() {
		return nil, kverrors.ErrWriteProtected
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	t := &Txn{
		mgr:      m,
		ctx:      ctx,
		id:       id,
		writable: writable,
	}
	m.open[id] = t
	m.mu.Unlock()
	return t, nil
}

func (m *Manager) forget(id uint64) {
	m.mu.Lock()
	delete(m.open, id)
	m.mu.Unlock()
}

// markTouched records that the open writer txn id has written key in db, so concurrent readers
// can apply the contested-key rule. No-op for a txn that is not the current writer (defensive;
// only the writer ever calls this).
func (m *Manager) markTouched(writerID uint64, dbID uint16, key []byte) {
	m.contestMu.Lock()
	defer m.contestMu.Unlock()
	if m.writerID != writerID {
		return
	}
	set := m.touched[dbID]
	if set == nil {
		set = make(map[string]struct{})
		m.touched[dbID] = set
	}
	set[string(key)] = struct{}{}
}

// contested reports whether key in db has been written by an open writer other than readerID.
func (m *Manager) contested(dbID uint16, key []byte, readerID uint64) bool {
	m.contestMu.RLock()
	defer m.contestMu.RUnlock()
	if m.writerID == 0 || m.writerID == readerID {
		return false
	}
	set, ok := m.touched[dbID]
	if !ok {
		return false
	}
	_, ok = set[string(key)]
	return ok
}

func (m *Manager) releaseWriter(id uint64) {
	m.contestMu.Lock()
	if m.writerID == id {
		m.writerID = 0
		m.touched = nil
	}
	m.contestMu.Unlock()
	m.writeMu.Unlock()
}

// opKind tags one entry in a transaction's replay log.
type opKind uint8

const (
	opPutSingle opKind = iota
	opPutDup
	opDeleteKey
	opDeleteValue
	opIncrSeq
)

type rawOp struct {
	dbID   uint16
	kind   opKind
	key    []byte
	val    []byte
	mode   kv.DupInsertMode
	amount uint64
}

// overlayEntry is one key's pending effective state within a transaction: either a full
// replacement value list (binary-variable/dup databases may hold several) or a tombstone.
type overlayEntry struct {
	key     []byte
	deleted bool
	values  [][]byte
}

// dbBinding is a transaction's lazily-opened handle to one database: the underlying Tree plus
// this transaction's private overlay of uncommitted reads/writes against it.
type dbBinding struct {
	id   uint16
	tree *btree.Tree

	overlay  *gbtree.BTreeG[*overlayEntry]
	seqDelta uint64
}

func newDBBinding(id uint16, tree *btree.Tree) *dbBinding {
	less := func(a, b *overlayEntry) bool { return tree.Compare(a.key, b.key) < 0 }
	return &dbBinding{id: id, tree: tree, overlay: gbtree.NewG(32, less)}
}

func (b *dbBinding) lookup(key []byte) (*overlayEntry, bool) {
	e, ok := b.overlay.Get(&overlayEntry{key: key})
	return e, ok
}

// ensure returns key's overlay entry, seeding it from the underlying tree on first touch.
func (b *dbBinding) ensure(key []byte) (*overlayEntry, error) {
	if e, ok := b.lookup(key); ok {
		return e, nil
	}
	base, err := b.tree.GetAll(key)
	if err != nil && !kverrors.Is(err, kverrors.KindKeyNotFound) {
		return nil, err
	}
	e := &overlayEntry{key: append([]byte(nil), key...), values: base}
	b.overlay.ReplaceOrInsert(e)
	return e, nil
}

// effective returns key's currently-visible value list (overlay if touched, else the tree's),
// and whether the key exists at all.
func (b *dbBinding) effective(key []byte) ([][]byte, bool, error) {
	if e, ok := b.lookup(key); ok {
		if e.deleted || len(e.values) == 0 {
			return nil, false, nil
		}
		return e.values, true, nil
	}
	vals, err := b.tree.GetAll(key)
	if kverrors.Is(err, kverrors.KindKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return vals, true, nil
}

func removeValue(values [][]byte, v []byte) [][]byte {
	for i, cur := range values {
		if bytes.Equal(cur, v) {
			out := append([][]byte(nil), values[:i]...)
			return append(out, values[i+1:]...)
		}
	}
	return values
}
