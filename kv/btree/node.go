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
	"github.com/erigontech/kvengine/kv/page"
)

// Layout selects a node's on-page encoding, resolved once per Database at open time from its
// key/record schema (spec.md §4.2, §9: "tagged-variant node representation ... monomorphised").
// Go realizes the "two concrete types" the spec describes as a single Node type carrying a
// Layout tag checked once per method, rather than two interface implementers — same absence of
// per-call dynamic dispatch, less duplicated logic to keep consistent by hand (see DESIGN.md).
type Layout uint8

const (
	LayoutGeneral Layout = iota
	LayoutCompact
)

// RecordKind tags how a leaf entry's value is stored.
type RecordKind uint8

const (
	RecordInline RecordKind = iota
	RecordBlob
	RecordDupTable
)

// nodeMetaSize is the fixed node header following the 24-byte page.Header: flags(1) +
// reserved(3) + count(2) + reserved(2) + leftSibling(8) + rightSibling(8) + leftmostChild(8)
// = 32 bytes. leftSibling/rightSibling form a doubly-linked leaf chain (0 = none); internal
// nodes leave both zero.
const nodeMetaSize = 32

const (
	flagIsLeaf uint8 = 1 << 0
	flagLayout uint8 = 1 << 1 // set => LayoutCompact
)

// Entry is one in-memory node entry: a key plus either a child pointer (internal) or a record
// reference (leaf). Extended keys are always materialized to their full Key on decode; see
// DESIGN.md for why the prefix-first comparison optimization was traded for this simplicity.
type Entry struct {
	Key      []byte
	Extended bool
	Overflow blob.ID // valid iff Extended

	// Leaf fields.
	RecKind  RecordKind
	Inline   []byte
	BlobID   blob.ID
	DupTable uint64

	// Internal field.
	Child uint64
}

// Node is one decoded B+tree page.
type Node struct {
	PageID        uint64
	Layout        Layout
	IsLeaf        bool
	LeftSibling   uint64 // leaf chain; 0 = none
	RightSibling  uint64 // leaf chain; 0 = none
	LeftmostChild uint64 // internal only
	Entries       []Entry

	// Compact-layout schema, needed to re-encode.
	FixedKeySize uint16
	FixedValSize uint16 // 0 => values stored as 8-byte blob ids instead of inline bytes
}

func payloadOffset() int { return page.HeaderSize }

// DecodeNode parses buf (a full page buffer) into a Node, materializing any extended keys by
// fetching their overflow blob via blobs. keySize/valSize are the Database's fixed compact-layout
// schema; they are ignored when the page turns out to carry the general layout.
func DecodeNode(pageID uint64, buf []byte, keySize, valSize uint16, blobs *blob.Manager) (*Node, error) {
	off := payloadOffset()
	if len(buf) < off+nodeMetaSize {
		return nil, kverrors.New("btree.DecodeNode", kverrors.KindInvalidPageSize)
	}
	flags := buf[off]
	count := binary.LittleEndian.Uint16(buf[off+4 : off+6])
	left := binary.LittleEndian.Uint64(buf[off+8 : off+16])
	right := binary.LittleEndian.Uint64(buf[off+16 : off+24])
	leftmost := binary.LittleEndian.Uint64(buf[off+24 : off+32])

	n := &Node{
		PageID:        pageID,
		IsLeaf:        flags&flagIsLeaf != 0,
		LeftSibling:   left,
		RightSibling:  right,
		LeftmostChild: leftmost,
	}
	if flags&flagLayout != 0 {
		n.Layout = LayoutCompact
	} else {
		n.Layout = LayoutGeneral
	}

	body := buf[off+nodeMetaSize:]
	var entries []Entry
	var err error
	if n.Layout == LayoutGeneral {
		entries, err = decodeGeneralEntries(body, int(count), n.IsLeaf)
	} else {
		n.FixedKeySize, n.FixedValSize = keySize, valSize
		entries, err = decodeCompactEntriesWithSchema(body, int(count), n.IsLeaf, keySize, valSize)
	}
	if err != nil {
		return nil, err
	}
	if blobs != nil {
		for i := range entries {
			if entries[i].Extended {
				full, ferr := blobs.Get(entries[i].Overflow)
				if ferr != nil {
					return nil, ferr
				}
				entries[i].Key = full
			}
		}
	}
	n.Entries = entries
	return n, nil
}

// EncodeNode writes n into buf (sized to the page), spilling any newly-extended keys to blobs
// first. Pages are sealed (header/CRC) by the caller (pager.Flush's writeFrame).
func EncodeNode(buf []byte, n *Node, owner uint16, blobs *blob.Manager) error {
	off := payloadOffset()
	flags := uint8(0)
	if n.IsLeaf {
		flags |= flagIsLeaf
	}
	if n.Layout == LayoutCompact {
		flags |= flagLayout
	}
	buf[off] = flags
	buf[off+1], buf[off+2], buf[off+3] = 0, 0, 0
	binary.LittleEndian.PutUint16(buf[off+4:off+6], uint16(len(n.Entries)))
	buf[off+6], buf[off+7] = 0, 0
	binary.LittleEndian.PutUint64(buf[off+8:off+16], n.LeftSibling)
	binary.LittleEndian.PutUint64(buf[off+16:off+24], n.RightSibling)
	binary.LittleEndian.PutUint64(buf[off+24:off+32], n.LeftmostChild)

	body := buf[off+nodeMetaSize:]
	if n.Layout == LayoutGeneral {
		return encodeGeneralEntries(body, n.Entries, n.IsLeaf, owner, blobs)
	}
	return encodeCompactEntries(body, n.Entries, n.IsLeaf, n.FixedKeySize, n.FixedValSize)
}

// NodeCapacity estimates how many bytes of payload a page has for entries.
func NodeCapacity(pageSize uint32) int { return int(pageSize) - payloadOffset() - nodeMetaSize }
