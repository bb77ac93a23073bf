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
	"context"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/btree"
	"github.com/erigontech/kvengine/kv/journal"
)

// Txn implements kv.Tx and kv.RwTx over a Manager. It is not safe for concurrent use by more
// than one goroutine, matching kv.Tx's documented contract.
type Txn struct {
	mgr      *Manager
	ctx      context.Context
	id       uint64
	writable bool
	done     bool

	dbs []dbEntry
	log []rawOp

	openCursors int
}

type dbEntry struct {
	name string
	b    *dbBinding
}

func (tx *Txn) ID() uint64 { return tx.id }

// bind resolves db's string name to its binding, opening/creating it on first use.
func (tx *Txn) bind(db string, autoCreate bool) (*dbBinding, error) {
	for _, e := range tx.dbs {
		if e.name == db {
			return e.b, nil
		}
	}
	id, tree, err := tx.mgr.catalog.Tree(db, autoCreate && tx.writable)
	if err != nil {
		return nil, err
	}
	b := newDBBinding(id, tree)
	tx.dbs = append(tx.dbs, dbEntry{name: db, b: b})
	return b, nil
}

// --- Getter ---

func (tx *Txn) Has(db string, key []byte) (bool, error) {
	b, err := tx.bind(db, false)
	if err != nil {
		return false, err
	}
	if tx.mgr.contested(b.id, key, tx.id) {
		return false, kverrors.ErrTxnConflict
	}
	_, ok, err := b.effective(key)
	return ok, err
}

func (tx *Txn) GetOne(db string, key []byte) ([]byte, error) {
	b, err := tx.bind(db, false)
	if err != nil {
		return nil, err
	}
	if tx.mgr.contested(b.id, key, tx.id) {
		return nil, kverrors.ErrTxnConflict
	}
	vals, ok, err := b.effective(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, kverrors.ErrKeyNotFound
	}
	return vals[0], nil
}

func (tx *Txn) ForEach(db string, fromPrefix []byte, walker func(k, v []byte) error) error {
	c, err := tx.Cursor(db)
	if err != nil {
		return err
	}
	defer c.Close()
	var k, v []byte
	if len(fromPrefix) == 0 {
		k, v, err = c.First()
	} else {
		k, v, err = c.Seek(fromPrefix)
	}
	for ; k != nil; k, v, err = c.Next() {
		if err != nil {
			return err
		}
		if err := walker(k, v); err != nil {
			return err
		}
	}
	return err
}

func (tx *Txn) ReadSequence(db string) (uint64, error) {
	b, err := tx.bind(db, false)
	if err != nil {
		return 0, err
	}
	base, err := tx.mgr.catalog.ReadSequence(b.id)
	if err != nil {
		return 0, err
	}
	return base + b.seqDelta, nil
}

// --- Putter/Deleter (writable only) ---

func (tx *Txn) Put(db string, k, v []byte) error {
	if !tx.writable {
		return kverrors.ErrWriteProtected
	}
	b, err := tx.bind(db, true)
	if err != nil {
		return err
	}
	return tx.putInto(b, k, v)
}

// putInto is Put's body, factored out so Cursor.Put (which already holds a *dbBinding) does not
// need to re-resolve it by name.
func (tx *Txn) putInto(b *dbBinding, k, v []byte) error {
	e, err := b.ensure(k)
	if err != nil {
		return err
	}
	mode := kv.DupInsertLast
	val := append([]byte(nil), v...)
	if b.tree.DupEnabled() {
		e.values = append(e.values, val)
		e.deleted = false
		tx.log = append(tx.log, rawOp{dbID: b.id, kind: opPutDup, key: k, val: v, mode: mode})
	} else {
		e.values = [][]byte{val}
		e.deleted = false
		tx.log = append(tx.log, rawOp{dbID: b.id, kind: opPutSingle, key: k, val: v})
	}
	tx.mgr.markTouched(tx.id, b.id, k)
	return nil
}

// putDup inserts a duplicate at the position mode selects. Before/After are approximated as
// Last (append) and Overwrite replaces the first duplicate, since the overlay does not track a
// cursor's position within the duplicate group.
func (tx *Txn) putDup(b *dbBinding, key, val []byte, mode kv.DupInsertMode) error {
	e, err := b.ensure(key)
	if err != nil {
		return err
	}
	cp := append([]byte(nil), val...)
	switch mode {
	case kv.DupInsertFirst:
		e.values = append([][]byte{cp}, e.values...)
	case kv.DupOverwrite:
		if len(e.values) > 0 {
			e.values[0] = cp
		} else {
			e.values = [][]byte{cp}
		}
	default:
		e.values = append(e.values, cp)
	}
	e.deleted = false
	tx.log = append(tx.log, rawOp{dbID: b.id, kind: opPutDup, key: key, val: val, mode: mode})
	tx.mgr.markTouched(tx.id, b.id, key)
	return nil
}

func (tx *Txn) Delete(db string, k []byte) error {
	if !tx.writable {
		return kverrors.ErrWriteProtected
	}
	b, err := tx.bind(db, false)
	if err != nil {
		return err
	}
	return tx.deleteKey(b, k)
}

func (tx *Txn) deleteKey(b *dbBinding, key []byte) error {
	e, err := b.ensure(key)
	if err != nil {
		return err
	}
	e.deleted = true
	e.values = nil
	tx.log = append(tx.log, rawOp{dbID: b.id, kind: opDeleteKey, key: key})
	tx.mgr.markTouched(tx.id, b.id, key)
	return nil
}

// deleteValue removes a single duplicate matching val from key's group, leaving the rest.
func (tx *Txn) deleteValue(b *dbBinding, key, val []byte) error {
	e, err := b.ensure(key)
	if err != nil {
		return err
	}
	if e.deleted {
		return nil
	}
	e.values = removeValue(e.values, val)
	if len(e.values) == 0 {
		e.deleted = true
	}
	tx.log = append(tx.log, rawOp{dbID: b.id, kind: opDeleteValue, key: key, val: val})
	tx.mgr.markTouched(tx.id, b.id, key)
	return nil
}

func (tx *Txn) IncrementSequence(db string, amount uint64) (uint64, error) {
	if !tx.writable {
		return 0, kverrors.ErrWriteProtected
	}
	b, err := tx.bind(db, true)
	if err != nil {
		return 0, err
	}
	base, err := tx.mgr.catalog.ReadSequence(b.id)
	if err != nil {
		return 0, err
	}
	prior := base + b.seqDelta
	b.seqDelta += amount
	tx.log = append(tx.log, rawOp{dbID: b.id, kind: opIncrSeq, amount: amount})
	return prior, nil
}

// --- BucketMigrator ---

func (tx *Txn) CreateDatabase(name uint16, opts kv.DBOptions) error {
	if !tx.writable {
		return kverrors.ErrWriteProtected
	}
	return tx.mgr.catalog.CreateDatabase(name, opts)
}

func (tx *Txn) DropDatabase(name uint16) error {
	if !tx.writable {
		return kverrors.ErrWriteProtected
	}
	return tx.mgr.catalog.DropDatabase(name)
}

func (tx *Txn) ExistsDatabase(name uint16) (bool, error) { return tx.mgr.catalog.ExistsDatabase(name) }
func (tx *Txn) ListDatabases() ([]uint16, error)         { return tx.mgr.catalog.ListDatabases() }

// --- Cursor ---

func (tx *Txn) Cursor(db string) (kv.Cursor, error) { return tx.newCursor(db, false) }
func (tx *Txn) CursorDupSort(db string) (kv.CursorDupSort, error) {
	c, err := tx.newCursor(db, true)
	if err != nil {
		return nil, err
	}
	return c, nil
}
func (tx *Txn) RwCursor(db string) (kv.RwCursor, error) { return tx.newCursor(db, false) }
func (tx *Txn) RwCursorDupSort(db string) (kv.RwCursorDupSort, error) {
	return tx.newCursor(db, true)
}

func (tx *Txn) newCursor(db string, dupSort bool) (*Cursor, error) {
	b, err := tx.bind(db, false)
	if err != nil {
		return nil, err
	}
	if dupSort && !b.tree.DupEnabled() {
		return nil, kverrors.New("txn.CursorDupSort", kverrors.KindInvalidParameter)
	}
	c := &Cursor{tx: tx, b: b}
	tx.openCursors++
	return c, nil
}

func (tx *Txn) closeCursor() {
	if tx.openCursors > 0 {
		tx.openCursors--
	}
}

// --- lifecycle ---

func (tx *Txn) Commit() error {
	if tx.done {
		return kverrors.New("txn.Commit", kverrors.KindTxnStillOpen)
	}
	if tx.openCursors > 0 {
		return kverrors.ErrCursorStillOpen
	}
	if tx.writable {
		if err := tx.applyLog(); err != nil {
			return err
		}
	}
	tx.finish()
	return nil
}

func (tx *Txn) Rollback() error {
	if tx.done {
		return nil
	}
	tx.finish()
	return nil
}

func (tx *Txn) finish() {
	tx.done = true
	tx.mgr.forget(tx.id)
	if tx.writable {
		tx.mgr.releaseWriter(tx.id)
	}
}

// Entries returns the transaction's write log as journal-ready entries, in issue order, for the
// Environment to append to its write-ahead log before the commit that produced them is
// acknowledged. Call only after Commit has returned successfully but before any later
// transaction begins writing; a read-only Txn always returns nil.
func (tx *Txn) Entries() []journal.Entry {
	if !tx.writable || len(tx.log) == 0 {
		return nil
	}
	out := make([]journal.Entry, 0, len(tx.log))
	for _, op := range tx.log {
		e := journal.Entry{DBID: op.dbID, Key: op.key, Val: op.val, Amount: op.amount}
		switch op.kind {
		case opPutSingle:
			e.Kind = journal.EntryPut
		case opPutDup:
			e.Kind = journal.EntryPutDup
			e.Mode = op.mode
		case opDeleteKey:
			e.Kind = journal.EntryDeleteKey
		case opDeleteValue:
			e.Kind = journal.EntryDeleteValue
		case opIncrSeq:
			e.Kind = journal.EntryIncrSequence
		}
		out = append(out, e)
	}
	return out
}

// applyLog replays the transaction's write log onto the real committed trees, in issue order,
// so the tree's own split/merge/duplicate-table logic produces exactly the state a non-
// transactional caller making the same calls in the same order would have produced. It shares
// its per-op logic with ApplyRecoveredEntry so a recovered database and a normally-committed one
// are produced by identical tree operations.
func (tx *Txn) applyLog() error {
	treeByID := make(map[uint16]*dbBinding, len(tx.dbs))
	for _, e := range tx.dbs {
		treeByID[e.b.id] = e.b
	}
	for _, op := range tx.log {
		b := treeByID[op.dbID]
		e := journal.Entry{DBID: op.dbID, Key: op.key, Val: op.val, Mode: op.mode, Amount: op.amount}
		switch op.kind {
		case opPutSingle:
			e.Kind = journal.EntryPut
		case opPutDup:
			e.Kind = journal.EntryPutDup
		case opDeleteKey:
			e.Kind = journal.EntryDeleteKey
		case opDeleteValue:
			e.Kind = journal.EntryDeleteValue
		case opIncrSeq:
			e.Kind = journal.EntryIncrSequence
		}
		var tree *btree.Tree
		if b != nil {
			tree = b.tree
		}
		if err := ApplyRecoveredEntry(tree, tx.mgr.catalog, e); err != nil {
			return err
		}
	}
	return nil
}
