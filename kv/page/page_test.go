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

package page

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/erigontech/kvengine/internal/kverrors"
)

func TestValidPageSize(t *testing.T) {
	require.True(t, ValidPageSize(1024))
	require.True(t, ValidPageSize(2048))
	require.True(t, ValidPageSize(DefaultPageSize))
	require.False(t, ValidPageSize(1023))
	require.False(t, ValidPageSize(3072)) // multiple of 2048 but not a power of two
	require.False(t, ValidPageSize(512))
}

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	h := Header{Type: TypeIndexLeaf, SelfID: 0x1122334455, Owner: 7}
	h.Encode(buf)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, h.Type, got.Type)
	require.Equal(t, h.SelfID, got.SelfID)
	require.Equal(t, h.Owner, got.Owner)
}

// TestHeaderRoundTripProperty is spec.md §8's "for every ToBuf(x) followed by Parse, the
// resulting value equals x" applied to page framing: Encode then Decode must reproduce every
// field Decode is responsible for (CRC32 is intentionally excluded — Seal, not Encode, owns it).
func TestHeaderRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := Header{
			Type:   Type(rapid.Uint8().Draw(rt, "type")),
			SelfID: rapid.Uint64().Draw(rt, "self_id"),
			Owner:  rapid.Uint16().Draw(rt, "owner"),
		}
		buf := make([]byte, HeaderSize)
		h.Encode(buf)

		got, err := Decode(buf)
		require.NoError(rt, err)
		require.Equal(rt, h.Type, got.Type)
		require.Equal(rt, h.SelfID, got.SelfID)
		require.Equal(rt, h.Owner, got.Owner)
	})
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	require.Error(t, err)
	require.Equal(t, kverrors.KindInvalidPageSize, kverrors.KindOf(err))
}

func TestSealAndVerify(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	h := Header{Type: TypeIndexLeaf, SelfID: 42, Owner: 3}
	Seal(buf, h, true)
	require.NoError(t, Verify(buf, true))

	// Verify is a no-op when CRC is disabled, even over the same (CRC-sealed) buffer.
	require.NoError(t, Verify(buf, false))
}

func TestVerifyDetectsCorruption(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	h := Header{Type: TypeBlob, SelfID: 1, Owner: 1}
	Seal(buf, h, true)

	buf[HeaderSize+5] ^= 0xFF // flip a payload byte after the header
	err := Verify(buf, true)
	require.Error(t, err)
	require.Equal(t, kverrors.KindIntegrityViolated, kverrors.KindOf(err))
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "index-leaf", TypeIndexLeaf.String())
	require.Equal(t, "unknown", Type(0xFF).String())
}

func TestCipherRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	salt := []byte("environment-salt")
	c, err := NewCipher(key, salt)
	require.NoError(t, err)

	buf := make([]byte, DefaultPageSize)
	h := Header{Type: TypeIndexLeaf, SelfID: 99, Owner: 1}
	h.Encode(buf)
	for i := HeaderSize; i < len(buf); i++ {
		buf[i] = byte(i)
	}
	plain := append([]byte(nil), buf...)

	require.NoError(t, c.Encrypt(buf, 99))
	require.NotEqual(t, plain[HeaderSize:], buf[HeaderSize:])
	// The header itself is never touched by Encrypt.
	require.Equal(t, plain[:HeaderSize], buf[:HeaderSize])

	require.NoError(t, c.Decrypt(buf, 99))
	require.Equal(t, plain, buf)
}

func TestCipherDifferentPagesDifferentCiphertext(t *testing.T) {
	key := make([]byte, KeySize)
	salt := []byte("salt")
	c, err := NewCipher(key, salt)
	require.NoError(t, err)

	mk := func(id uint64) []byte {
		buf := make([]byte, DefaultPageSize)
		Header{Type: TypeIndexLeaf, SelfID: id}.Encode(buf)
		require.NoError(t, c.Encrypt(buf, id))
		return buf[HeaderSize:]
	}

	require.NotEqual(t, mk(1), mk(2))
}

func TestNewCipherRejectsBadKeySize(t *testing.T) {
	_, err := NewCipher(make([]byte, KeySize-1), []byte("salt"))
	require.Error(t, err)
}
