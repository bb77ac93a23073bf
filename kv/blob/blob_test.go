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

package blob

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/kvengine/kv/codec"
	"github.com/erigontech/kvengine/kv/device"
	"github.com/erigontech/kvengine/kv/kvcfg"
	"github.com/erigontech/kvengine/kv/pager"
)

func newTestManager(t *testing.T, pageSize uint32, c codec.Transform) *Manager {
	t.Helper()
	dev := device.NewMem()
	p := pager.New(dev, pager.Options{PageSize: pageSize, CRC32: true})
	return New(p, c)
}

func TestPutGetSmallPayloadFitsSinglePage(t *testing.T) {
	m := newTestManager(t, 1024, nil)

	id, err := m.Put(2, []byte("hello blob"))
	require.NoError(t, err)

	got, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello blob"), got)
}

func TestPutGetLargePayloadSpansMultiplePages(t *testing.T) {
	m := newTestManager(t, 256, nil)

	raw := make([]byte, 4096)
	for i := range raw {
		raw[i] = byte(i)
	}

	id, err := m.Put(2, raw)
	require.NoError(t, err)

	n, err := m.Len(id)
	require.NoError(t, err)
	require.Greater(t, n, uint64(1))

	got, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestOverwriteShrinksInPlaceAndFreesTail(t *testing.T) {
	m := newTestManager(t, 256, nil)

	raw := make([]byte, 2000)
	id, err := m.Put(2, raw)
	require.NoError(t, err)
	oldPages, err := m.Len(id)
	require.NoError(t, err)

	smaller := []byte("small")
	newID, err := m.Overwrite(id, 2, smaller)
	require.NoError(t, err)
	require.Equal(t, id, newID)

	newPages, err := m.Len(newID)
	require.NoError(t, err)
	require.Less(t, newPages, oldPages)

	got, err := m.Get(newID)
	require.NoError(t, err)
	require.Equal(t, smaller, got)
}

func TestOverwriteGrowsByReallocating(t *testing.T) {
	m := newTestManager(t, 256, nil)

	id, err := m.Put(2, []byte("tiny"))
	require.NoError(t, err)

	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i % 251)
	}
	newID, err := m.Overwrite(id, 2, big)
	require.NoError(t, err)

	got, err := m.Get(newID)
	require.NoError(t, err)
	require.Equal(t, big, got)
}

func TestFreeReturnsRunToFreelist(t *testing.T) {
	m := newTestManager(t, 256, nil)

	id, err := m.Put(2, make([]byte, 2000))
	require.NoError(t, err)
	n, err := m.Len(id)
	require.NoError(t, err)

	require.NoError(t, m.Free(id))
	require.Equal(t, n, m.pager.Freelist().Count())
}

func TestCompressedCodecRoundTrips(t *testing.T) {
	zstd, err := codec.Resolve(kvcfg.CodecZstd)
	require.NoError(t, err)
	m := newTestManager(t, 512, zstd)

	raw := make([]byte, 10000)
	for i := range raw {
		raw[i] = byte('a' + i%4)
	}

	id, err := m.Put(2, raw)
	require.NoError(t, err)

	got, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}
