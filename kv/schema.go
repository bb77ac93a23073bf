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

package kv

// KeyType fixes a Database's key schema at creation time.
type KeyType uint8

const (
	KeyTypeBinaryVariable KeyType = iota // binary-variable: unbounded byte string, memcmp order
	KeyTypeBinaryFixed                   // binary-fixed(N): fixed-width byte string, memcmp order
	KeyTypeCustom                        // custom(N or variable, user-compare): name resolved via comparator registry
	KeyTypeUint8
	KeyTypeUint16
	KeyTypeUint32
	KeyTypeUint64
	KeyTypeReal32
	KeyTypeReal64
)

// RecordType fixes a Database's record schema at creation time.
type RecordType uint8

const (
	RecordTypeBinaryVariable RecordType = iota // binary-variable(unlimited)
	RecordTypeBinaryFixed                      // binary-fixed(N)
	RecordTypeUint8
	RecordTypeUint16
	RecordTypeUint32
	RecordTypeUint64
	RecordTypeReal32
	RecordTypeReal64
)

// DBFlags are the per-database flags fixed at creation time.
type DBFlags uint32

const (
	DBFlagDuplicates        DBFlags = 1 << iota // duplicate-keys-enabled
	DBFlagRecordNumber32                        // record-number-32: auto-incrementing uint32 keys
	DBFlagRecordNumber64                        // record-number-64: auto-incrementing uint64 keys
	DBFlagForceRecordsInline                    // force-records-inline
)

// Database name range. Names below MinUserDatabase are reserved for engine bookkeeping (the
// freelist directory and the default/unnamed database), matching spec.md's "16-bit numeric name
// (reserved range excluded)".
const (
	DatabaseNameFreelist  uint16 = 0
	DatabaseNameDirectory uint16 = 1
	MinUserDatabase       uint16 = 2
	MaxUserDatabase       uint16 = 0xFFFE
	InvalidDatabaseName   uint16 = 0xFFFF
)

// DBOptions describes a Database's fixed schema and flags at creation time.
type DBOptions struct {
	KeyType          KeyType
	KeySize          uint16 // only meaningful for KeyTypeBinaryFixed / KeyTypeCustom with fixed size
	RecordType       RecordType
	RecordSize       uint32 // only meaningful for RecordTypeBinaryFixed
	Flags            DBFlags
	CompareName      string // names a comparator in the registry; required iff KeyType == KeyTypeCustom
	IgnoreMissingCmp bool   // skip the "not-ready" failure when CompareName is unregistered at open
}

// FindFlags directs Cursor.Find's approximate-match behavior (spec.md §4.2's "near").
type FindFlags uint8

const (
	FindExact FindFlags = iota
	FindLT              // strictly less than key
	FindLE              // less than or equal to key
	FindGT              // strictly greater than key
	FindGE              // greater than or equal to key
	FindNear            // key itself if present, else the next greater key, else the next smaller key
)

// DupInsertMode controls where a new duplicate record lands within its key's duplicate group.
type DupInsertMode uint8

const (
	DupInsertLast DupInsertMode = iota // default: after the last duplicate
	DupInsertFirst
	DupInsertBefore // appends after the last duplicate, as DupInsertLast; no cursor position is used
	DupInsertAfter  // appends after the last duplicate, as DupInsertLast; no cursor position is used
	DupOverwrite    // replaces the group's first duplicate; no cursor position is used
)

// ParamKind names a read-only Environment/Database introspection parameter, the Go-idiomatic
// equivalent of upscaledb's ham_env_get_parameters / ham_db_get_parameters (see SPEC_FULL.md
// §3, "Supplemented from original_source/").
type ParamKind uint8

const (
	ParamPageSize ParamKind = iota
	ParamCacheSize
	ParamMaxDatabases
	ParamOpenDatabaseCount
)
