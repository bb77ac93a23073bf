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

package pager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/kvengine/kv/device"
	"github.com/erigontech/kvengine/kv/page"
)

func TestAllocFetchMarkDirtyFlush(t *testing.T) {
	dev := device.NewMem()
	p := New(dev, Options{PageSize: 1024, CRC32: true})

	f, err := p.AllocPage(page.TypeIndexLeaf, 3)
	require.NoError(t, err)
	copy(f.Buf[page.HeaderSize:], []byte("hello"))
	p.MarkDirty(f.ID)
	p.Unpin(f.ID)

	require.NoError(t, p.Flush(false, func(uint64, []byte) []uint64 { return nil }))

	got, err := p.Fetch(f.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got.Buf[page.HeaderSize:page.HeaderSize+5])
	p.Unpin(got.ID)
}

func TestFreeRunReturnsPagesToFreelist(t *testing.T) {
	dev := device.NewMem()
	p := New(dev, Options{PageSize: 1024})

	frames, err := p.AllocRun(4, page.TypeBlob, 1)
	require.NoError(t, err)
	for _, f := range frames {
		p.Unpin(f.ID)
	}
	p.FreeRun(frames[0].ID, 4)
	require.Equal(t, uint64(4), p.Freelist().Count())

	start, ok := p.Freelist().Alloc(4)
	require.True(t, ok)
	require.Equal(t, frames[0].ID, start)
}

func TestAllocPrefersFreelistOverGrowth(t *testing.T) {
	dev := device.NewMem()
	p := New(dev, Options{PageSize: 1024})

	first, err := p.AllocPage(page.TypeIndexLeaf, 1)
	require.NoError(t, err)
	p.Unpin(first.ID)
	p.Free(first.ID)

	watermarkBefore := p.NextPageWatermark()
	second, err := p.AllocPage(page.TypeIndexLeaf, 1)
	require.NoError(t, err)
	p.Unpin(second.ID)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, watermarkBefore, p.NextPageWatermark())
}

// recordingDevice wraps a Device and records the offset of every WriteAt, in call order.
type recordingDevice struct {
	device.Device
	writes []int64
}

func (d *recordingDevice) WriteAt(p []byte, offset int64) (int, error) {
	d.writes = append(d.writes, offset)
	return d.Device.WriteAt(p, offset)
}

func TestFlushOrdersByDependency(t *testing.T) {
	dev := &recordingDevice{Device: device.NewMem()}
	p := New(dev, Options{PageSize: 1024, CRC32: true})

	// The parent gets the lower page id, so ascending-id order alone would write it first.
	parent, err := p.AllocPage(page.TypeIndexInternal, 1)
	require.NoError(t, err)
	p.MarkDirty(parent.ID)
	p.Unpin(parent.ID)

	child, err := p.AllocPage(page.TypeIndexLeaf, 1)
	require.NoError(t, err)
	p.MarkDirty(child.ID)
	p.Unpin(child.ID)

	var depCalls []uint64
	require.NoError(t, p.Flush(false, func(id uint64, buf []byte) []uint64 {
		depCalls = append(depCalls, id)
		if id == parent.ID {
			return []uint64{child.ID}
		}
		return nil
	}))
	require.NotEmpty(t, depCalls)
	require.Equal(t, []int64{int64(child.ID) * 1024, int64(parent.ID) * 1024}, dev.writes)
}

func TestStatsTracksHitsAndMisses(t *testing.T) {
	dev := device.NewMem()
	p := New(dev, Options{PageSize: 1024})

	f, err := p.AllocPage(page.TypeIndexLeaf, 1)
	require.NoError(t, err)
	p.MarkDirty(f.ID)
	p.Unpin(f.ID)
	require.NoError(t, p.Flush(false, func(uint64, []byte) []uint64 { return nil }))
	p.cache.remove(f.ID)

	_, err = p.Fetch(f.ID)
	require.NoError(t, err)
	p.Unpin(f.ID)

	hits, misses := p.Stats()
	require.GreaterOrEqual(t, misses, int64(1))
	require.GreaterOrEqual(t, hits+misses, int64(1))
}
