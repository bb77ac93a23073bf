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

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/kvengine/kv/kvcfg"
)

func TestResolveKnownCodecs(t *testing.T) {
	for _, name := range []kvcfg.Codec{kvcfg.CodecNone, kvcfg.CodecSnappy, kvcfg.CodecZstd} {
		tr, err := Resolve(name)
		require.NoError(t, err)
		require.Equal(t, name, tr.Name())
	}
}

func TestResolveUnknownCodec(t *testing.T) {
	_, err := Resolve(kvcfg.Codec("bogus"))
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i * 7 % 251)
	}

	for _, name := range []kvcfg.Codec{kvcfg.CodecNone, kvcfg.CodecSnappy, kvcfg.CodecZstd} {
		tr, err := Resolve(name)
		require.NoError(t, err)

		encoded := tr.Encode(nil, payload)
		decoded, err := tr.Decode(nil, encoded)
		require.NoError(t, err, "codec %s", name)
		require.Equal(t, payload, decoded, "codec %s", name)
	}
}

func TestSnappyDecodeRejectsGarbage(t *testing.T) {
	tr, err := Resolve(kvcfg.CodecSnappy)
	require.NoError(t, err)
	_, err = tr.Decode(nil, []byte{0xff, 0xff, 0xff, 0xff, 0xff})
	require.Error(t, err)
}

func TestZstdDecodeRejectsGarbage(t *testing.T) {
	tr, err := Resolve(kvcfg.CodecZstd)
	require.NoError(t, err)
	_, err = tr.Decode(nil, []byte{0x00, 0x01, 0x02, 0x03})
	require.Error(t, err)
}
