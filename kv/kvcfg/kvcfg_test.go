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

package kvcfg

import (
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func TestApplyZeroValueMatchesDocumentedDefaults(t *testing.T) {
	c := Apply()
	require.Equal(t, Config{}, c)
	require.False(t, c.EnableCRC32)
	require.False(t, c.InMemory)
	require.Equal(t, Codec(""), c.JournalCodec)
}

func TestApplyFoldsOptionsInOrder(t *testing.T) {
	c := Apply(
		WithPageSize(8192),
		WithCacheSize(64*datasize.MB),
		WithFsync(),
		WithTransactions(),
		WithAutoRecovery(),
		WithCRC32(),
		WithJournalCompression(CodecZstd),
		WithEncryptionKey([]byte("0123456789abcdef")),
	)

	require.Equal(t, uint32(8192), c.PageSize)
	require.Equal(t, 64*datasize.MB, c.CacheSize)
	require.True(t, c.EnableFsync)
	require.True(t, c.EnableTxn)
	require.True(t, c.AutoRecovery)
	require.True(t, c.EnableCRC32)
	require.Equal(t, CodecZstd, c.JournalCodec)
	require.Equal(t, []byte("0123456789abcdef"), c.EncryptionKey)
}

func TestWithEncryptionKeyCopiesInput(t *testing.T) {
	key := []byte("0123456789abcdef")
	c := Apply(WithEncryptionKey(key))
	key[0] = 'X'
	require.Equal(t, byte('0'), c.EncryptionKey[0])
}

func TestResolvedLoggerDefaultsToNop(t *testing.T) {
	c := Apply()
	require.NotNil(t, c.ResolvedLogger())
}

func TestApplyDBFoldsOptions(t *testing.T) {
	c := ApplyDB(WithRecordCompression(CodecSnappy), WithKeyCompression(CodecZstd))
	require.Equal(t, CodecSnappy, c.RecordCodec)
	require.Equal(t, CodecZstd, c.KeyCodec)
}
