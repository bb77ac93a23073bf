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
	"bytes"
	"encoding/binary"
	"math"

	"github.com/holiman/uint256"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/comparator"
)

// CompareFunc orders two encoded keys; see comparator.CompareFunc.
type CompareFunc = comparator.CompareFunc

// ResolveCompare derives the comparator for a database's fixed key schema, consulting the
// process-wide comparator registry for KeyTypeCustom (spec.md §9).
func ResolveCompare(opts kv.DBOptions) (CompareFunc, error) {
	switch opts.KeyType {
	case kv.KeyTypeBinaryVariable, kv.KeyTypeBinaryFixed:
		return bytes.Compare, nil
	case kv.KeyTypeUint8:
		return func(a, b []byte) int { return bytes.Compare(a[:1], b[:1]) }, nil
	case kv.KeyTypeUint16:
		return compareUint(binary.BigEndian.Uint16, 2), nil
	case kv.KeyTypeUint32:
		return compareUint(binary.BigEndian.Uint32, 4), nil
	case kv.KeyTypeUint64:
		return compareUint256, nil
	case kv.KeyTypeReal32:
		return compareReal32, nil
	case kv.KeyTypeReal64:
		return compareReal64, nil
	case kv.KeyTypeCustom:
		fn, ok := comparator.Resolve(opts.CompareName)
		if !ok {
			if opts.IgnoreMissingCmp {
				return bytes.Compare, nil
			}
			return nil, kverrors.New("btree.ResolveCompare", kverrors.KindNotReady)
		}
		return fn, nil
	default:
		return nil, kverrors.New("btree.ResolveCompare", kverrors.KindInvalidParameter)
	}
}

// compareUint builds a CompareFunc for a fixed-width unsigned integer key stored big-endian (so
// that memcmp order equals numeric order, matching the teacher's wire-format convention for
// sortable numeric keys).
func compareUint[T uint16 | uint32 | uint64](decode func([]byte) T, width int) CompareFunc {
	return func(a, b []byte) int {
		av, bv := decode(a[:width]), decode(b[:width])
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
}

// compareUint256 orders two big-endian uint64 keys via uint256.Int.Cmp. Record-number
// databases (spec.md §4.2) are the main user of KeyTypeUint64 and need a comparator that keeps
// the same representation the engine uses elsewhere for wide unsigned integers.
func compareUint256(a, b []byte) int {
	av := new(uint256.Int).SetBytes(a[:8])
	bv := new(uint256.Int).SetBytes(b[:8])
	return av.Cmp(bv)
}

func compareReal32(a, b []byte) int {
	av := math.Float32frombits(binary.BigEndian.Uint32(a[:4]))
	bv := math.Float32frombits(binary.BigEndian.Uint32(b[:4]))
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

func compareReal64(a, b []byte) int {
	av := math.Float64frombits(binary.BigEndian.Uint64(a[:8]))
	bv := math.Float64frombits(binary.BigEndian.Uint64(b[:8]))
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// FixedKeySize returns the on-disk key size for schemas with a statically known width, and
// false for binary-variable or variable-length custom keys.
func FixedKeySize(opts kv.DBOptions) (uint16, bool) {
	switch opts.KeyType {
	case kv.KeyTypeUint8:
		return 1, true
	case kv.KeyTypeUint16:
		return 2, true
	case kv.KeyTypeUint32, kv.KeyTypeReal32:
		return 4, true
	case kv.KeyTypeUint64, kv.KeyTypeReal64:
		return 8, true
	case kv.KeyTypeBinaryFixed:
		return opts.KeySize, true
	case kv.KeyTypeCustom:
		if opts.KeySize > 0 {
			return opts.KeySize, true
		}
		return 0, false
	default:
		return 0, false
	}
}
