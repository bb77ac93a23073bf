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

// Package page defines the fixed-size on-disk page: its header, CRC32 verification, and the
// AES-128-CBC cipher applied to a page's payload when encryption is enabled.
package page

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/erigontech/kvengine/internal/kverrors"
)

// Type tags what a page holds.
type Type uint8

const (
	TypeHeader Type = iota
	TypeIndexInternal
	TypeIndexLeaf
	TypeBlob
	TypeFreelist
	TypeDuptable
)

func (t Type) String() string {
	switch t {
	case TypeHeader:
		return "header"
	case TypeIndexInternal:
		return "index-internal"
	case TypeIndexLeaf:
		return "index-leaf"
	case TypeBlob:
		return "blob"
	case TypeFreelist:
		return "freelist"
	case TypeDuptable:
		return "duptable"
	default:
		return "unknown"
	}
}

// Page size constraints (spec.md §6).
const (
	MinPageSize     = 1024
	DefaultPageSize = 16 * 1024
)

// ValidPageSize reports whether n is a legal page size: 1024, or a multiple of 2048 that is
// also a power of two.
func ValidPageSize(n uint32) bool {
	if n == MinPageSize {
		return true
	}
	if n < MinPageSize || n%2048 != 0 {
		return false
	}
	return n&(n-1) == 0
}

// HeaderSize is the fixed on-page header: type(1) + reserved(3) + self-id(8) + crc32(4) +
// owner-database back-pointer(2) + reserved(6) = 24 bytes.
const HeaderSize = 24

// Header is the fixed-layout prefix of every page.
type Header struct {
	Type  Type
	SelfID uint64
	CRC32 uint32
	Owner uint16 // back-pointer: the Database this page belongs to
}

// Encode writes h into the first HeaderSize bytes of buf.
func (h Header) Encode(buf []byte) {
	_ = buf[HeaderSize-1]
	buf[0] = byte(h.Type)
	buf[1], buf[2], buf[3] = 0, 0, 0
	binary.LittleEndian.PutUint64(buf[4:12], h.SelfID)
	binary.LittleEndian.PutUint32(buf[12:16], h.CRC32)
	binary.LittleEndian.PutUint16(buf[16:18], h.Owner)
	for i := 18; i < HeaderSize; i++ {
		buf[i] = 0
	}
}

// Decode reads a Header from the first HeaderSize bytes of buf.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, kverrors.New("page.Decode", kverrors.KindInvalidPageSize)
	}
	return Header{
		Type:   Type(buf[0]),
		SelfID: binary.LittleEndian.Uint64(buf[4:12]),
		CRC32:  binary.LittleEndian.Uint32(buf[12:16]),
		Owner:  binary.LittleEndian.Uint16(buf[16:18]),
	}, nil
}

// ComputeCRC32 checksums everything in buf after the CRC32 field itself (bytes [0:12] and
// [16:end)), so the checksum is stable across rewrites of the CRC field.
func ComputeCRC32(buf []byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write(buf[:12])
	crc.Write(buf[16:])
	return crc.Sum32()
}

// Seal finalizes buf's header: writes h (with CRC32 left as given) then, if crcEnabled,
// computes and writes the real CRC32 over the plaintext-on-disk representation. Per spec.md
// §4.1, CRC is computed over the page bytes as they will actually be persisted — i.e. after
// encryption, when encryption is enabled — so the caller must encrypt the payload before
// calling Seal when both are enabled.
func Seal(buf []byte, h Header, crcEnabled bool) {
	h.CRC32 = 0
	h.Encode(buf)
	if crcEnabled {
		h.CRC32 = ComputeCRC32(buf)
		h.Encode(buf)
	}
}

// Verify checks buf's CRC32 against its header, if crcEnabled. It returns ErrIntegrityViolated
// on mismatch; verification failure is never silently repaired (spec.md's invariant).
func Verify(buf []byte, crcEnabled bool) error {
	if !crcEnabled {
		return nil
	}
	h, err := Decode(buf)
	if err != nil {
		return err
	}
	want := h.CRC32
	got := ComputeCRC32(buf)
	if want != got {
		return kverrors.New("page.Verify", kverrors.KindIntegrityViolated)
	}
	return nil
}
