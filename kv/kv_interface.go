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

// Package kv defines the public handle surface of the storage engine: an Environment hosting
// named Databases, transactions over them, and cursors positioned within a Database.
//
// Variable naming:
//
//	env  - Environment
//	db   - Database
//	tx   - Transaction
//	k, v - key, record (value) bytes
//	RoTx - read-only transaction
//	RwTx - read-write transaction
package kv

import "context"

// Has indicates whether a key exists in the database.
type Has interface {
	Has(db string, key []byte) (bool, error)
}

// Getter wraps the database read operations.
type Getter interface {
	Has

	// GetOne returns the record for key, or ErrKeyNotFound. The returned slice is a borrowed
	// view: valid until the next operation on the same transaction (or database, if
	// transactions are disabled).
	GetOne(db string, key []byte) (val []byte, err error)

	// ForEach iterates over entries with keys greater than or equal to fromPrefix, in the
	// database's comparator order, calling walker for each. Iteration stops at the first
	// error returned by walker.
	ForEach(db string, fromPrefix []byte, walker func(k, v []byte) error) error
}

// Putter wraps the database write operations.
type Putter interface {
	// Put inserts or overwrites the record for key.
	Put(db string, k, v []byte) error
}

// Deleter wraps the database delete operations.
type Deleter interface {
	// Delete removes the entry for k. If the database allows duplicates, Delete removes every
	// duplicate for k; see RwCursor.DeleteCurrent to remove a single duplicate.
	Delete(db string, k []byte) error
}

// Closer releases the resources held by a Tx, Database, or Environment handle.
type Closer interface {
	Close() error
}

// StatelessReadTx is the read-only half of a transaction's operation surface; it composes into
// both Tx and the implicit per-call transaction the Environment wraps single operations in.
type StatelessReadTx interface {
	Getter

	// ReadSequence returns the current value of a record-number database's auto-increment
	// counter without advancing it.
	ReadSequence(db string) (uint64, error)
}

// StatelessWriteTx is the write half.
type StatelessWriteTx interface {
	Putter
	Deleter

	// IncrementSequence advances db's auto-increment counter by amount and returns the prior
	// value (the first id assigned is ReadSequence()+1 ... +amount).
	IncrementSequence(db string, amount uint64) (uint64, error)
}

// Tx is a transaction bound to an Environment. A Tx and the cursors opened from it must only be
// used from the goroutine that created them.
type Tx interface {
	StatelessReadTx

	// ID returns the transaction's identifier, assigned at Begin.
	ID() uint64

	// Cursor opens a cursor over db, positioned nil (no current entry).
	Cursor(db string) (Cursor, error)
	// CursorDupSort opens a cursor over a duplicate-enabled db.
	CursorDupSort(db string) (CursorDupSort, error)

	// Commit applies the transaction's effects and ends its lifetime. Cursors opened from this
	// Tx must be closed first, or Commit returns ErrCursorStillOpen.
	Commit() error
	// Rollback discards the transaction's effects and ends its lifetime.
	Rollback() error
}

// RwTx is a read-write transaction.
type RwTx interface {
	Tx
	StatelessWriteTx
	BucketMigrator

	RwCursor(db string) (RwCursor, error)
	RwCursorDupSort(db string) (RwCursorDupSort, error)
}

// BucketMigrator creates and drops Databases; used by Environment.Update/CreateDatabase paths.
type BucketMigrator interface {
	CreateDatabase(name uint16, opts DBOptions) error
	DropDatabase(name uint16) error
	ExistsDatabase(name uint16) (bool, error)
	ListDatabases() ([]uint16, error)
}

// Cursor iterates over a Database in comparator order.
//
// If a positioning method returns an error, the returned key is nil; otherwise a nil key marks
// the cursor as exhausted. Typical use:
//
//	c, _ := tx.Cursor("db")
//	defer c.Close()
//	for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
//	    if err != nil { return err }
//	    ...
//	}
type Cursor interface {
	First() (k, v []byte, err error)
	Last() (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	Current() (k, v []byte, err error)

	// Seek positions at the first key >= seek.
	Seek(seek []byte) (k, v []byte, err error)
	// SeekExact positions at key if it exists, else returns ErrKeyNotFound and a nil key.
	SeekExact(key []byte) (v []byte, err error)
	// Find positions per flags (FindLT/FindLE/FindGE/FindGT/FindNear) relative to key.
	Find(key []byte, flags FindFlags) (k, v []byte, err error)

	// Clone duplicates the cursor's current position into a new, independent Cursor.
	Clone() (Cursor, error)

	Count() (uint64, error)

	Close()
}

// RwCursor adds mutation through a positioned cursor.
type RwCursor interface {
	Cursor

	// Put inserts or overwrites k/v and positions the cursor there.
	Put(k, v []byte) error
	// Append inserts k/v which must sort after every existing key; skips the search step.
	Append(k, v []byte) error
	// Delete removes k (and, for dup-sort databases, all its duplicates).
	Delete(k []byte) error
	// DeleteCurrent removes the entry the cursor is positioned on. The cursor stays on the key
	// while it still has duplicates and becomes nil once the key has none left.
	DeleteCurrent() error
}

// CursorDupSort adds duplicate-key navigation.
type CursorDupSort interface {
	Cursor

	SeekBothExact(key, value []byte) (k, v []byte, err error)
	SeekBothRange(key, value []byte) (v []byte, err error)
	FirstDup() (v []byte, err error)
	NextDup() (k, v []byte, err error)
	NextNoDup() (k, v []byte, err error)
	PrevDup() (k, v []byte, err error)
	PrevNoDup() (k, v []byte, err error)
	LastDup() (v []byte, err error)

	CountDuplicates() (uint64, error)
}

// RwCursorDupSort is the read-write counterpart.
type RwCursorDupSort interface {
	CursorDupSort
	RwCursor

	// PutDup inserts a duplicate record as mode selects: first or last in the group, or, for
	// DupOverwrite, in place of the group's first duplicate. DupInsertBefore and DupInsertAfter
	// append like DupInsertLast; the cursor's duplicate position is not used.
	PutDup(key, value []byte, mode DupInsertMode) error
	// DeleteCurrentDuplicates removes every duplicate of the current key.
	DeleteCurrentDuplicates() error
}

// RoDB is the read-only view of an Environment.
type RoDB interface {
	Closer
	ReadOnly() bool
	View(ctx context.Context, f func(tx Tx) error) error
	BeginRo(ctx context.Context) (Tx, error)
	PageSize() uint32
}

// RwDB is the full read-write view of an Environment.
//
// Short-lived pattern:
//
//	err := db.Update(ctx, func(tx kv.RwTx) error { ... ; return nil })
//
// Long-lived pattern:
//
//	tx, err := db.BeginRw(ctx)
//	defer tx.Rollback()
//	...
//	err = tx.Commit()
type RwDB interface {
	RoDB

	Update(ctx context.Context, f func(tx RwTx) error) error
	BeginRw(ctx context.Context) (RwTx, error)
}
