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
	"github.com/erigontech/kvengine/kv/btree"
	"github.com/erigontech/kvengine/kv/journal"
)

// ApplyRecoveredEntry replays one journal.Entry from a committed-but-unflushed transaction
// against tree (the database the entry's DBID was resolved to before logging, by the
// Environment's own directory lookup), during recovery. It runs the identical tree operations
// applyLog runs at ordinary commit time, so a recovered database ends up indistinguishable from
// one that never crashed.
//
// For EntryIncrSequence, tree is unused and catalog.IncrementSequence is called directly; pass a
// nil tree for that case if convenient.
func ApplyRecoveredEntry(tree *btree.Tree, catalog Catalog, e journal.Entry) error {
	switch e.Kind {
	case journal.EntryPut:
		return tree.Put(e.Key, e.Val, kv.DupInsertLast, true)
	case journal.EntryPutDup:
		return tree.Put(e.Key, e.Val, e.Mode, true)
	case journal.EntryDeleteKey:
		if err := tree.Erase(e.Key); err != nil && !kverrors.Is(err, kverrors.KindKeyNotFound) {
			return err
		}
		return nil
	case journal.EntryDeleteValue:
		vals, err := tree.GetAll(e.Key)
		if err != nil {
			if kverrors.Is(err, kverrors.KindKeyNotFound) {
				return nil
			}
			return err
		}
		idx := -1
		for i, v := range vals {
			if bytes.Equal(v, e.Val) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		return tree.EraseDup(e.Key, idx)
	case journal.EntryIncrSequence:
		_, err := catalog.IncrementSequence(e.DBID, e.Amount)
		return err
	}
	return nil
}
