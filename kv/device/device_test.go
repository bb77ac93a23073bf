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

package device

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDevices(t *testing.T) map[string]Device {
	t.Helper()
	fd, err := OpenFile(FileOptions{Path: filepath.Join(t.TempDir(), "dev.kve")})
	require.NoError(t, err)
	t.Cleanup(func() { fd.Close() })

	return map[string]Device{
		"mem":  NewMem(),
		"file": fd,
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	for name, dev := range testDevices(t) {
		t.Run(name, func(t *testing.T) {
			payload := []byte("the quick brown fox jumps over the lazy dog")
			n, err := dev.WriteAt(payload, 128)
			require.NoError(t, err)
			require.Equal(t, len(payload), n)

			got := make([]byte, len(payload))
			n, err = dev.ReadAt(got, 128)
			require.NoError(t, err)
			require.Equal(t, len(payload), n)
			require.Equal(t, payload, got)
		})
	}
}

func TestReadBeyondWrittenRangeReadsZeroes(t *testing.T) {
	for name, dev := range testDevices(t) {
		t.Run(name, func(t *testing.T) {
			_, err := dev.WriteAt([]byte("hi"), 0)
			require.NoError(t, err)

			buf := make([]byte, 16)
			_, _ = dev.ReadAt(buf, 4096)
			for _, b := range buf {
				require.Equal(t, byte(0), b)
			}
		})
	}
}

func TestTruncateGrowsAndShrinks(t *testing.T) {
	for name, dev := range testDevices(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, dev.Truncate(4096))
			sz, err := dev.Size()
			require.NoError(t, err)
			require.Equal(t, int64(4096), sz)

			_, err = dev.WriteAt([]byte{1, 2, 3, 4}, 4092)
			require.NoError(t, err)

			require.NoError(t, dev.Truncate(2048))
			sz, err = dev.Size()
			require.NoError(t, err)
			require.Equal(t, int64(2048), sz)
		})
	}
}

func TestFlushIsHarmless(t *testing.T) {
	for name, dev := range testDevices(t) {
		t.Run(name, func(t *testing.T) {
			_, err := dev.WriteAt([]byte("data"), 0)
			require.NoError(t, err)
			require.NoError(t, dev.Flush(true))
			require.NoError(t, dev.Flush(false))
		})
	}
}
