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

// Package journal implements the write-ahead log spec.md §4.5 describes: two rotating files per
// Environment, a length-prefixed type-tagged record stream grouped implicitly by transaction id,
// and the redo-only recovery scan that reconstructs and commits every transaction whose commit
// record made it to disk.
package journal

import (
	"encoding/binary"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/codec"
	"github.com/erigontech/kvengine/kv/kvcfg"
)

// Type tags a journal record.
type Type uint8

const (
	TypeBegin Type = iota
	TypeEntry
	TypeCommit
	TypeAbort
	TypeCheckpoint
	TypePageImage
)

// EntryKind mirrors kv/txn's private opKind: a journal Entry must carry enough information to
// replay the exact tree/catalog operation a committed transaction issued, not just "key went in"
// or "key went out" (a dup database's single-duplicate erase, or a sequence bump, are neither).
type EntryKind uint8

const (
	EntryPut EntryKind = iota
	EntryPutDup
	EntryDeleteKey
	EntryDeleteValue
	EntryIncrSequence
)

// Entry is one effect of a transaction, scoped to a database by numeric id, replayed verbatim
// against the same kv/btree.Tree operation that produced it during the original commit.
type Entry struct {
	DBID   uint16
	Kind   EntryKind
	Key    []byte
	Val    []byte
	Mode   kv.DupInsertMode
	Amount uint64
}

// record is the in-memory form of one on-disk journal record: [totalLen:4][type:1][txnID:8]
// [compressed:1][payload...], little-endian, matching spec.md §6's "records are length-prefixed
// and little-endian".
type record struct {
	typ      Type
	txnID    uint64
	payload  []byte // already compressed, if codec != none
	compressed bool
}

const recordHeaderSize = 4 + 1 + 8 + 1 // totalLen, type, txnID, compressed flag

func (r record) encode() []byte {
	buf := make([]byte, recordHeaderSize+len(r.payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(recordHeaderSize-4+len(r.payload)))
	buf[4] = byte(r.typ)
	binary.LittleEndian.PutUint64(buf[5:13], r.txnID)
	if r.compressed {
		buf[13] = 1
	}
	copy(buf[recordHeaderSize:], r.payload)
	return buf
}

// decodeRecord reads one record starting at buf[0]; it returns the record, the number of bytes
// it consumed, and ok=false if buf does not hold a complete record (a torn write at the tail of
// an unflushed file, which recovery treats as "nothing more to read", not as corruption).
func decodeRecord(buf []byte) (r record, n int, ok bool) {
	if len(buf) < 4 {
		return record{}, 0, false
	}
	total := int(binary.LittleEndian.Uint32(buf[0:4]))
	if total < recordHeaderSize-4 || len(buf) < 4+total {
		return record{}, 0, false
	}
	r.typ = Type(buf[4])
	r.txnID = binary.LittleEndian.Uint64(buf[5:13])
	r.compressed = buf[13] != 0
	r.payload = append([]byte(nil), buf[recordHeaderSize:4+total]...)
	return r, 4 + total, true
}

// encodeEntryPayload serializes an Entry into the uncompressed wire form: [dbID:2][kind:1]
// [mode:1][amount:8][keyLen:4][key][valLen:4][val]. Key/val are always length-prefixed (valLen=0
// for an entry with no value, e.g. EntryDeleteKey) so decode never needs an isInsert hint.
func encodeEntryPayload(e Entry) []byte {
	size := 2 + 1 + 1 + 8 + 4 + len(e.Key) + 4 + len(e.Val)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], e.DBID)
	buf[2] = byte(e.Kind)
	buf[3] = byte(e.Mode)
	binary.LittleEndian.PutUint64(buf[4:12], e.Amount)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(e.Key)))
	off := 16
	copy(buf[off:], e.Key)
	off += len(e.Key)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(e.Val)))
	off += 4
	copy(buf[off:], e.Val)
	return buf
}

func decodeEntryPayload(buf []byte) (Entry, error) {
	if len(buf) < 16 {
		return Entry{}, kverrors.New("journal.decodeEntryPayload", kverrors.KindLogInvalidFileHeader)
	}
	var e Entry
	e.DBID = binary.LittleEndian.Uint16(buf[0:2])
	e.Kind = EntryKind(buf[2])
	e.Mode = kv.DupInsertMode(buf[3])
	e.Amount = binary.LittleEndian.Uint64(buf[4:12])
	keyLen := int(binary.LittleEndian.Uint32(buf[12:16]))
	off := 16
	if off+keyLen+4 > len(buf) {
		return Entry{}, kverrors.New("journal.decodeEntryPayload", kverrors.KindLogInvalidFileHeader)
	}
	e.Key = append([]byte(nil), buf[off:off+keyLen]...)
	off += keyLen
	valLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	if off+valLen > len(buf) {
		return Entry{}, kverrors.New("journal.decodeEntryPayload", kverrors.KindLogInvalidFileHeader)
	}
	e.Val = append([]byte(nil), buf[off:off+valLen]...)
	return e, nil
}

// buildRecord compresses payload with codecT (a no-op for codec.Resolve(kvcfg.CodecNone)),
// prefixing the raw length so decode can size its output buffer.
func buildRecord(typ Type, txnID uint64, payload []byte, codecT codec.Transform) record {
	if codecT == nil || codecT.Name() == kvcfg.CodecNone {
		return record{typ: typ, txnID: txnID, payload: payload}
	}
	compressed := codecT.Encode(nil, payload)
	wrapped := make([]byte, 4+len(compressed))
	binary.LittleEndian.PutUint32(wrapped[0:4], uint32(len(payload)))
	copy(wrapped[4:], compressed)
	return record{typ: typ, txnID: txnID, payload: wrapped, compressed: true}
}

func (r record) entryPayload(codecT codec.Transform) ([]byte, error) {
	if !r.compressed {
		return r.payload, nil
	}
	if len(r.payload) < 4 {
		return nil, kverrors.New("journal.record.entryPayload", kverrors.KindLogInvalidFileHeader)
	}
	rawLen := binary.LittleEndian.Uint32(r.payload[0:4])
	out, err := codecT.Decode(make([]byte, 0, rawLen), r.payload[4:])
	if err != nil {
		return nil, kverrors.Wrap("journal.record.entryPayload", kverrors.KindIntegrityViolated, err)
	}
	return out, nil
}
