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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/journal"
)

func TestPutReadsBackWithinSameTxn(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)
	tx, err := mgr.BeginRw(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Put("widgets", []byte("k"), []byte("v")))
	v, err := tx.GetOne("widgets", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestCommitAppliesWritesToUnderlyingTree(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)

	tx, err := mgr.BeginRw(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put("widgets", []byte("k"), []byte("v")))
	require.NoError(t, tx.Commit())

	ro, err := mgr.BeginRo(ctx)
	require.NoError(t, err)
	defer ro.Rollback()
	v, err := ro.GetOne("widgets", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestRollbackDiscardsOverlayWithoutTouchingTree(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)

	tx, err := mgr.BeginRw(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put("widgets", []byte("k"), []byte("v")))
	require.NoError(t, tx.Rollback())

	ro, err := mgr.BeginRo(ctx)
	require.NoError(t, err)
	defer ro.Rollback()
	_, err = ro.GetOne("widgets", []byte("k"))
	require.True(t, kverrors.Is(err, kverrors.KindKeyNotFound))
}

func TestDeleteThenGetReportsKeyNotFound(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)

	require.NoError(t, func() error {
		tx, err := mgr.BeginRw(ctx)
		if err != nil {
			return err
		}
		if err := tx.Put("widgets", []byte("k"), []byte("v")); err != nil {
			return err
		}
		return tx.Commit()
	}())

	tx, err := mgr.BeginRw(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Delete("widgets", []byte("k")))
	_, err = tx.GetOne("widgets", []byte("k"))
	require.True(t, kverrors.Is(err, kverrors.KindKeyNotFound))
	require.NoError(t, tx.Commit())
}

func TestCommitRejectedWithOpenCursor(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)

	require.NoError(t, func() error {
		seed, err := mgr.BeginRw(ctx)
		if err != nil {
			return err
		}
		if err := seed.Put("widgets", []byte("seed"), []byte("v")); err != nil {
			return err
		}
		return seed.Commit()
	}())

	tx, err := mgr.BeginRw(ctx)
	require.NoError(t, err)

	c, err := tx.Cursor("widgets")
	require.NoError(t, err)

	err = tx.Commit()
	require.True(t, kverrors.Is(err, kverrors.KindCursorStillOpen))

	c.Close()
	require.NoError(t, tx.Commit())
}

func TestReadOnlyTxnRejectsWrites(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)
	tx, err := mgr.BeginRo(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.Put("widgets", []byte("k"), []byte("v"))
	require.True(t, kverrors.Is(err, kverrors.KindWriteProtected))
}

func TestEntriesReturnsJournalReadyOpsInIssueOrder(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)
	tx, err := mgr.BeginRw(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Put("widgets", []byte("k1"), []byte("v1")))
	require.NoError(t, tx.Put("widgets", []byte("k2"), []byte("v2")))
	require.NoError(t, tx.Delete("widgets", []byte("k1")))
	require.NoError(t, tx.Commit())

	entries := tx.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, journal.EntryPut, entries[0].Kind)
	require.Equal(t, []byte("k1"), entries[0].Key)
	require.Equal(t, journal.EntryPut, entries[1].Kind)
	require.Equal(t, []byte("k2"), entries[1].Key)
	require.Equal(t, journal.EntryDeleteKey, entries[2].Kind)
	require.Equal(t, []byte("k1"), entries[2].Key)
}

func TestEntriesIsNilForReadOnlyTxn(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)
	tx, err := mgr.BeginRo(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	require.Nil(t, tx.Entries())
}

func TestIncrementSequenceReturnsPriorValue(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)
	tx, err := mgr.BeginRw(ctx)
	require.NoError(t, err)

	prior, err := tx.IncrementSequence("widgets", 5)
	require.NoError(t, err)
	require.Equal(t, uint64(0), prior)

	prior, err = tx.IncrementSequence("widgets", 5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), prior)

	require.NoError(t, tx.Commit())

	ro, err := mgr.BeginRo(ctx)
	require.NoError(t, err)
	defer ro.Rollback()
	seq, err := ro.ReadSequence("widgets")
	require.NoError(t, err)
	require.Equal(t, uint64(10), seq)
}

func TestCursorDupSortOrdersInsertions(t *testing.T) {
	ctx := context.Background()
	cat := newFakeCatalog(t)
	require.NoError(t, cat.CreateDatabase(2000, kv.DBOptions{
		KeyType:    kv.KeyTypeBinaryVariable,
		RecordType: kv.RecordTypeBinaryVariable,
		Flags:      kv.DBFlagDuplicates,
	}))
	cat.byName["dups"] = 2000
	mgr := NewManager(cat, nil)

	tx, err := mgr.BeginRw(ctx)
	require.NoError(t, err)
	c, err := tx.RwCursorDupSort("dups")
	require.NoError(t, err)
	require.NoError(t, c.PutDup([]byte("k"), []byte("b"), kv.DupInsertLast))
	require.NoError(t, c.PutDup([]byte("k"), []byte("c"), kv.DupInsertLast))
	require.NoError(t, c.PutDup([]byte("k"), []byte("a"), kv.DupInsertFirst))
	c.Close()
	require.NoError(t, tx.Commit())

	ro, err := mgr.BeginRo(ctx)
	require.NoError(t, err)
	defer ro.Rollback()
	cur, err := ro.CursorDupSort("dups")
	require.NoError(t, err)
	defer cur.Close()

	var got []string
	k, v, err := cur.First()
	require.NoError(t, err)
	for k != nil {
		got = append(got, string(v))
		_, v, err = cur.NextDup()
		require.NoError(t, err)
		if v == nil {
			break
		}
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestForEachWalksKeysInOrder(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeCatalog(t), nil)
	require.NoError(t, func() error {
		tx, err := mgr.BeginRw(ctx)
		if err != nil {
			return err
		}
		for _, k := range []string{"b", "a", "c"} {
			if err := tx.Put("widgets", []byte(k), []byte(k+"-val")); err != nil {
				return err
			}
		}
		return tx.Commit()
	}())

	ro, err := mgr.BeginRo(ctx)
	require.NoError(t, err)
	defer ro.Rollback()

	var got []string
	require.NoError(t, ro.ForEach("widgets", nil, func(k, v []byte) error {
		got = append(got, string(k))
		return nil
	}))
	require.Equal(t, []string{"a", "b", "c"}, got)
}
