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

package kvengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/kvcfg"
)

func TestOpenRoundTripsBinaryKeysAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "env.kve")

	env, err := Open(path)
	require.NoError(t, err)

	entries := map[string]string{"alpha": "1", "beta": "22", "gamma": "333"}
	require.NoError(t, env.Update(ctx, func(tx kv.RwTx) error {
		for k, v := range entries {
			if err := tx.Put("fruits", []byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, env.Close())

	env2, err := Open(path)
	require.NoError(t, err)
	defer env2.Close()

	require.NoError(t, env2.View(ctx, func(tx kv.Tx) error {
		for k, v := range entries {
			got, err := tx.GetOne("fruits", []byte(k))
			if err != nil {
				return err
			}
			require.Equal(t, v, string(got))
		}
		return nil
	}))
}

// TestCorruptedPageDetectedOnReopen exercises spec.md §8's "flip a byte in a committed page,
// reopen, and observe the integrity violation" scenario. The corrupted byte lands inside the
// directory page's payload (page 1, always present after bootstrap), so it is independent of how
// many pages the tree itself ends up allocating.
func TestCorruptedPageDetectedOnReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "env.kve")

	env, err := Open(path, kvcfg.WithCRC32(), kvcfg.WithPageSize(1024))
	require.NoError(t, err)
	require.NoError(t, env.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put("widgets", []byte("k"), []byte("v"))
	}))
	require.NoError(t, env.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, 1024+40)
	require.NoError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf, 1024+40)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path, kvcfg.WithCRC32(), kvcfg.WithPageSize(1024))
	require.Error(t, err)
	require.Equal(t, kverrors.KindIntegrityViolated, kverrors.KindOf(err))
}

func TestEncryptionRoundTripAndWrongKeyRejected(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "env.kve")

	keyA := make([]byte, 16)
	for i := range keyA {
		keyA[i] = byte(i + 1)
	}
	keyB := make([]byte, 16)
	for i := range keyB {
		keyB[i] = byte(255 - i)
	}

	env, err := Open(path, kvcfg.WithEncryptionKey(keyA))
	require.NoError(t, err)
	require.NoError(t, env.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put("secrets", []byte("k"), []byte("top secret value"))
	}))
	require.NoError(t, env.Close())

	reopened, err := Open(path, kvcfg.WithEncryptionKey(keyA))
	require.NoError(t, err)
	var got []byte
	require.NoError(t, reopened.View(ctx, func(tx kv.Tx) error {
		got, err = tx.GetOne("secrets", []byte("k"))
		return err
	}))
	require.Equal(t, "top secret value", string(got))
	require.NoError(t, reopened.Close())

	_, err = Open(path, kvcfg.WithEncryptionKey(keyB))
	require.Error(t, err)
	require.Equal(t, kverrors.KindInvalidFileHeader, kverrors.KindOf(err))

	_, err = Open(path)
	require.Error(t, err)
	require.Equal(t, kverrors.KindInvalidFileHeader, kverrors.KindOf(err))
}

// TestJournalRecoversUnflushedCommit simulates a process crash: a transaction commits (its
// journal entries are fsynced) but the Environment is torn down before flushLocked ever runs, so
// the committed page changes never reach the backing file. Reopening with auto-recovery must
// replay the journal and reproduce the same state a clean shutdown would have left behind.
func TestJournalRecoversUnflushedCommit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "env.kve")

	base, err := Open(path, kvcfg.WithTransactions(), kvcfg.WithFsync(), kvcfg.WithAutoRecovery())
	require.NoError(t, err)
	require.NoError(t, base.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put("ledger", []byte("first"), []byte("committed-before-crash"))
	}))
	require.NoError(t, base.Close())

	live, err := Open(path, kvcfg.WithTransactions(), kvcfg.WithFsync(), kvcfg.WithAutoRecovery())
	require.NoError(t, err)
	require.NoError(t, live.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put("ledger", []byte("second"), []byte("lost-without-recovery"))
	}))

	// Simulate an unclean crash: drop the file handle and release the advisory lock without
	// ever calling flushLocked, so "second"'s page changes exist only in the journal.
	require.NoError(t, live.dev.Close())
	live.releaseLock()

	recovered, err := Open(path, kvcfg.WithTransactions(), kvcfg.WithFsync(), kvcfg.WithAutoRecovery())
	require.NoError(t, err)
	defer recovered.Close()

	require.NoError(t, recovered.View(ctx, func(tx kv.Tx) error {
		v, err := tx.GetOne("ledger", []byte("first"))
		if err != nil {
			return err
		}
		require.Equal(t, "committed-before-crash", string(v))
		v, err = tx.GetOne("ledger", []byte("second"))
		if err != nil {
			return err
		}
		require.Equal(t, "lost-without-recovery", string(v))
		return nil
	}))
}

func TestRollbackDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "env.kve")
	env, err := Open(path, kvcfg.WithTransactions())
	require.NoError(t, err)
	defer env.Close()

	require.NoError(t, env.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put("rolledback", []byte("k"), []byte("v"))
	}))

	tx, err := env.BeginRw(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put("rolledback", []byte("k2"), []byte("v2")))
	require.NoError(t, tx.Rollback())

	require.NoError(t, env.View(ctx, func(tx kv.Tx) error {
		v, err := tx.GetOne("rolledback", []byte("k"))
		if err != nil {
			return err
		}
		require.Equal(t, "v", string(v))
		_, err = tx.GetOne("rolledback", []byte("k2"))
		require.True(t, kverrors.Is(err, kverrors.KindKeyNotFound))
		return nil
	}))
}

// TestDuplicateKeyOrderingThroughCursorDupSort exercises spec.md §8's duplicate-ordering scenario
// end-to-end, through the public kv.RwTx/kv.CursorDupSort surface rather than the lower-level
// btree.Tree API (already covered in kv/btree's own tests).
func TestDuplicateKeyOrderingThroughCursorDupSort(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "env.kve")
	env, err := Open(path, kvcfg.WithTransactions())
	require.NoError(t, err)
	defer env.Close()

	const dbName uint16 = 2000
	require.NoError(t, env.CreateDatabase(dbName, kv.DBOptions{
		KeyType:    kv.KeyTypeBinaryVariable,
		RecordType: kv.RecordTypeBinaryVariable,
		Flags:      kv.DBFlagDuplicates,
	}))
	label := "2000"

	tx, err := env.BeginRw(ctx)
	require.NoError(t, err)
	c, err := tx.RwCursorDupSort(label)
	require.NoError(t, err)
	require.NoError(t, c.PutDup([]byte("k"), []byte("b"), kv.DupInsertLast))
	require.NoError(t, c.PutDup([]byte("k"), []byte("c"), kv.DupInsertLast))
	require.NoError(t, c.PutDup([]byte("k"), []byte("a"), kv.DupInsertFirst))
	c.Close()
	require.NoError(t, tx.Commit())

	require.NoError(t, env.View(ctx, func(tx kv.Tx) error {
		c, err := tx.CursorDupSort(label)
		if err != nil {
			return err
		}
		defer c.Close()

		var got []string
		k, v, err := c.First()
		require.NoError(t, err)
		for k != nil {
			got = append(got, string(v))
			_, v, err = c.NextDup()
			if err != nil {
				return err
			}
			if v == nil {
				break
			}
		}
		require.Equal(t, []string{"a", "b", "c"}, got)
		return nil
	}))
}

// TestConcurrentWriterBlocksReaderOnContestedKey exercises spec.md §8's transaction-conflict
// scenario: a concurrent reader touching a key an open writer has already put sees ErrTxnConflict
// until the writer commits, after which the same read succeeds.
func TestConcurrentWriterBlocksReaderOnContestedKey(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "env.kve")
	env, err := Open(path, kvcfg.WithTransactions())
	require.NoError(t, err)
	defer env.Close()

	// Seed the database so the reader below can bind to it without auto-creating it itself.
	require.NoError(t, env.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put("accounts", []byte("seed"), []byte("0"))
	}))

	writer, err := env.BeginRw(ctx)
	require.NoError(t, err)
	require.NoError(t, writer.Put("accounts", []byte("balance"), []byte("100")))

	reader, err := env.BeginRo(ctx)
	require.NoError(t, err)
	_, err = reader.GetOne("accounts", []byte("balance"))
	require.True(t, kverrors.Is(err, kverrors.KindTxnConflict))
	require.NoError(t, reader.Rollback())

	require.NoError(t, writer.Commit())

	reader2, err := env.BeginRo(ctx)
	require.NoError(t, err)
	v, err := reader2.GetOne("accounts", []byte("balance"))
	require.NoError(t, err)
	require.Equal(t, "100", string(v))
	require.NoError(t, reader2.Rollback())
}

func TestDatabaseLifecycle(t *testing.T) {
	env, err := Open("", kvcfg.WithInMemory())
	require.NoError(t, err)
	defer env.Close()

	const dbName uint16 = 2001
	exists, err := env.ExistsDatabase(dbName)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, env.CreateDatabase(dbName, kv.DBOptions{
		KeyType:    kv.KeyTypeBinaryVariable,
		RecordType: kv.RecordTypeBinaryVariable,
	}))
	require.Error(t, env.CreateDatabase(dbName, kv.DBOptions{}))

	exists, err = env.ExistsDatabase(dbName)
	require.NoError(t, err)
	require.True(t, exists)

	names, err := env.ListDatabases()
	require.NoError(t, err)
	require.Contains(t, names, dbName)

	require.NoError(t, env.DropDatabase(dbName))
	exists, err = env.ExistsDatabase(dbName)
	require.NoError(t, err)
	require.False(t, exists)
	require.Error(t, env.DropDatabase(dbName))
}

func TestSequenceIncrementsAndReads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "env.kve")
	env, err := Open(path, kvcfg.WithTransactions())
	require.NoError(t, err)
	defer env.Close()

	require.NoError(t, env.Update(ctx, func(tx kv.RwTx) error {
		prior, err := tx.IncrementSequence("orders", 3)
		if err != nil {
			return err
		}
		require.Equal(t, uint64(0), prior)
		prior, err = tx.IncrementSequence("orders", 2)
		if err != nil {
			return err
		}
		require.Equal(t, uint64(3), prior)
		return nil
	}))

	require.NoError(t, env.View(ctx, func(tx kv.Tx) error {
		v, err := tx.ReadSequence("orders")
		if err != nil {
			return err
		}
		require.Equal(t, uint64(5), v)
		return nil
	}))
}

func TestParamReportsConfiguredValues(t *testing.T) {
	env, err := Open("", kvcfg.WithInMemory(), kvcfg.WithPageSize(4096))
	require.NoError(t, err)
	defer env.Close()

	v, ok := env.Param(kv.ParamPageSize)
	require.True(t, ok)
	require.Equal(t, uint64(4096), v)

	_, ok = env.Param(kv.ParamKind(0xFF))
	require.False(t, ok)
}

func TestReadOnlyEnvironmentRejectsWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "env.kve")

	env, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, env.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put("readonly", []byte("k"), []byte("v"))
	}))
	require.NoError(t, env.Close())

	ro, err := Open(path, kvcfg.WithReadOnly())
	require.NoError(t, err)
	defer ro.Close()
	require.True(t, ro.ReadOnly())

	_, err = ro.BeginRw(ctx)
	require.Error(t, err)

	require.NoError(t, ro.View(ctx, func(tx kv.Tx) error {
		v, err := tx.GetOne("readonly", []byte("k"))
		if err != nil {
			return err
		}
		require.Equal(t, "v", string(v))
		return nil
	}))
}

func TestEnvAlreadyOpenRejectsSecondLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.kve")
	env, err := Open(path)
	require.NoError(t, err)
	defer env.Close()

	_, err = Open(path)
	require.Error(t, err)
	require.Equal(t, kverrors.KindEnvironmentAlreadyOpen, kverrors.KindOf(err))
}
