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

import "sync/atomic"

// extKeyPrefixLen is how much of an extended key's content is kept inline for fast comparison;
// the rest lives in the overflow blob (spec.md §4.2).
const extKeyPrefixLen = 16

// extKeyThreshold is the process-wide, non-persisted "encoded key length beyond which a key
// spills to an overflow blob" tunable (spec.md §4.2, §9: "a process-wide tunable ... not
// persisted").
var extKeyThreshold atomic.Int64

func init() { extKeyThreshold.Store(240) }

// SetExtendedKeyThreshold overrides the default spill threshold; exported for tests and tuning.
func SetExtendedKeyThreshold(n int) { extKeyThreshold.Store(int64(n)) }

func isExtendedKey(key []byte) bool {
	return len(key) > int(extKeyThreshold.Load())
}
