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
)

// Compact layout: fixed-width keys, duplicates disabled, parallel arrays with no per-entry flag
// byte (spec.md §4.2). valSize == 0 means values are stored as an 8-byte blob id instead of
// inline bytes (chosen once per Database from the record schema, never per entry).
func entryStride(keySize, valSize uint16, isLeaf bool) int {
	if isLeaf {
		if valSize == 0 {
			return int(keySize) + 8
		}
		return int(keySize) + int(valSize)
	}
	return int(keySize) + 8 // child pointer
}

// decodeCompactEntriesWithSchema decodes count fixed-stride entries once the tree layer has
// supplied this database's fixed key/value sizes.
func decodeCompactEntriesWithSchema(body []byte, count int, isLeaf bool, keySize, valSize uint16) ([]Entry, error) {
	stride := entryStride(keySize, valSize, isLeaf)
	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		off := i * stride
		if off+stride > len(body) {
			return nil, kverrors.New("btree.decodeCompactEntriesWithSchema", kverrors.KindIntegrityViolated)
		}
		e := Entry{Key: append([]byte(nil), body[off:off+int(keySize)]...)}
		rest := body[off+int(keySize) : off+stride]
		if isLeaf {
			if valSize == 0 {
				e.RecKind = RecordBlob
				e.BlobID = binary.LittleEndian.Uint64(rest[:8])
			} else {
				e.RecKind = RecordInline
				e.Inline = append([]byte(nil), rest...)
			}
		} else {
			e.Child = binary.LittleEndian.Uint64(rest[:8])
		}
		entries[i] = e
	}
	return entries, nil
}

func encodeCompactEntries(body []byte, entries []Entry, isLeaf bool, keySize, valSize uint16) error {
	stride := entryStride(keySize, valSize, isLeaf)
	if len(entries)*stride > len(body) {
		return kverrors.New("btree.encodeCompactEntries", kverrors.KindOutOfMemory)
	}
	for i, e := range entries {
		off := i * stride
		copy(body[off:off+int(keySize)], e.Key)
		rest := body[off+int(keySize) : off+stride]
		if isLeaf {
			if valSize == 0 {
				binary.LittleEndian.PutUint64(rest[:8], e.BlobID)
			} else {
				copy(rest, e.Inline)
			}
		} else {
			binary.LittleEndian.PutUint64(rest[:8], e.Child)
		}
	}
	return nil
}
