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

// Package txn layers kv's public Tx/RwTx/Cursor surface over a set of kv/btree Trees: a
// per-transaction operation log gives read-your-own-writes and deferred commit application,
// and a lightweight contested-key tracker gives the "modified by another open transaction" read
// semantics spec.md §4.2 describes for cursors racing a concurrent writer.
package txn

import (
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/btree"
)

// Catalog is the Environment-side hook the transaction layer depends on: resolving a database's
// human name to its numeric id and B+tree index, and administering the database directory.
// kvengine.go's Environment implements this; txn never touches pages directly.
type Catalog interface {
	// Tree resolves name to its engine-internal id and index. If the database does not exist
	// yet and autoCreate is true, it is created with default options (spec.md's
	// binary-variable/binary-variable, no duplicates) the way a bare Put on an unknown bucket
	// name works in the teacher's kv interface.
	Tree(name string, autoCreate bool) (id uint16, tree *btree.Tree, err error)

	CreateDatabase(name uint16, opts kv.DBOptions) error
	DropDatabase(name uint16) error
	ExistsDatabase(name uint16) (bool, error)
	ListDatabases() ([]uint16, error)

	// ReadSequence/IncrementSequence back a database's record-number auto-increment counter.
	// IncrementSequence returns the counter's value before the increment.
	ReadSequence(id uint16) (uint64, error)
	IncrementSequence(id uint16, amount uint64) (uint64, error)

	ReadOnly() bool
}
