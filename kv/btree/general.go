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

package btree

import (
	"encoding/binary"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv/blob"
)

// General layout: a flag byte per entry followed by a variable-width key region and, for
// leaves, a variable-width record region (spec.md §4.2's "slot index... variable-width key
// region and... record region", realized here as a sequential variable-length encoding rather
// than an indirect slot array — see DESIGN.md).
const (
	geFlagExtended uint8 = 1 << 0
	geKindShift          = 1 // bits [1:3) hold RecordKind for leaf entries
)

func decodeGeneralEntries(body []byte, count int, isLeaf bool) ([]Entry, error) {
	entries := make([]Entry, count)
	pos := 0
	for i := 0; i < count; i++ {
		if pos >= len(body) {
			return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
		}
		flag := body[pos]
		pos++
		e := Entry{}
		if flag&geFlagExtended != 0 {
			if pos+extKeyPrefixLen+8 > len(body) {
				return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
			}
			e.Extended = true
			e.Key = append([]byte(nil), body[pos:pos+extKeyPrefixLen]...) // prefix; replaced by full key once materialized
			pos += extKeyPrefixLen
			e.Overflow = binary.LittleEndian.Uint64(body[pos : pos+8])
			pos += 8
		} else {
			if pos+4 > len(body) {
				return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
			}
			klen := binary.LittleEndian.Uint32(body[pos : pos+4])
			pos += 4
			if pos+int(klen) > len(body) {
				return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
			}
			e.Key = append([]byte(nil), body[pos:pos+int(klen)]...)
			pos += int(klen)
		}

		if isLeaf {
			e.RecKind = RecordKind((flag >> geKindShift) & 0x3)
			switch e.RecKind {
			case RecordInline:
				if pos+4 > len(body) {
					return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
				}
				rlen := binary.LittleEndian.Uint32(body[pos : pos+4])
				pos += 4
				if pos+int(rlen) > len(body) {
					return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
				}
				e.Inline = append([]byte(nil), body[pos:pos+int(rlen)]...)
				pos += int(rlen)
			case RecordBlob:
				if pos+8 > len(body) {
					return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
				}
				e.BlobID = binary.LittleEndian.Uint64(body[pos : pos+8])
				pos += 8
			case RecordDupTable:
				if pos+8 > len(body) {
					return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
				}
				e.DupTable = binary.LittleEndian.Uint64(body[pos : pos+8])
				pos += 8
			default:
				return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
			}
		} else {
			if pos+8 > len(body) {
				return nil, kverrors.New("btree.decodeGeneralEntries", kverrors.KindIntegrityViolated)
			}
			e.Child = binary.LittleEndian.Uint64(body[pos : pos+8])
			pos += 8
		}
		entries[i] = e
	}
	return entries, nil
}

// encodeGeneralEntries writes entries sequentially into body, spilling any key whose length
// exceeds the extended-key threshold to a blob first.
func encodeGeneralEntries(body []byte, entries []Entry, isLeaf bool, owner uint16, blobs *blob.Manager) error {
	pos := 0
	put := func(b []byte) error {
		if pos+len(b) > len(body) {
			return kverrors.New("btree.encodeGeneralEntries", kverrors.KindOutOfMemory)
		}
		copy(body[pos:], b)
		pos += len(b)
		return nil
	}
	var u32 [4]byte
	var u64 [8]byte

	for _, e := range entries {
		extended := e.Extended || isExtendedKey(e.Key)
		flag := uint8(0)
		if extended {
			flag |= geFlagExtended
		}
		if isLeaf {
			flag |= uint8(e.RecKind) << geKindShift
		}
		if err := put([]byte{flag}); err != nil {
			return err
		}
		if extended {
			overflow := e.Overflow
			if overflow == 0 {
				id, err := blobs.Put(owner, e.Key)
				if err != nil {
					return err
				}
				overflow = id
			}
			prefix := e.Key
			if len(prefix) > extKeyPrefixLen {
				prefix = prefix[:extKeyPrefixLen]
			}
			var padded [extKeyPrefixLen]byte
			copy(padded[:], prefix)
			if err := put(padded[:]); err != nil {
				return err
			}
			binary.LittleEndian.PutUint64(u64[:], overflow)
			if err := put(u64[:]); err != nil {
				return err
			}
		} else {
			binary.LittleEndian.PutUint32(u32[:], uint32(len(e.Key)))
			if err := put(u32[:]); err != nil {
				return err
			}
			if err := put(e.Key); err != nil {
				return err
			}
		}

		if isLeaf {
			switch e.RecKind {
			case RecordInline:
				binary.LittleEndian.PutUint32(u32[:], uint32(len(e.Inline)))
				if err := put(u32[:]); err != nil {
					return err
				}
				if err := put(e.Inline); err != nil {
					return err
				}
			case RecordBlob:
				binary.LittleEndian.PutUint64(u64[:], e.BlobID)
				if err := put(u64[:]); err != nil {
					return err
				}
			case RecordDupTable:
				binary.LittleEndian.PutUint64(u64[:], e.DupTable)
				if err := put(u64[:]); err != nil {
					return err
				}
			}
		} else {
			binary.LittleEndian.PutUint64(u64[:], e.Child)
			if err := put(u64[:]); err != nil {
				return err
			}
		}
	}
	return nil
}
