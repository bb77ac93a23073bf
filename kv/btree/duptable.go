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
	"github.com/erigontech/kvengine/kv/page"
	"github.com/erigontech/kvengine/kv/pager"
)

// DupThreshold is a process-wide, non-persisted duplicate count. Tree.Put does not consult it: a
// key's duplicates move to an external duplicate table as soon as the key has a second record, so
// there is no inline multi-record group. Tree.EraseDup frees the table and turns the entry back
// into a plain leaf record once a single record remains.
const DupThreshold = 8

// dupRecord is one entry in a duplicate table: either inline bytes or a blob id.
type dupRecord struct {
	Kind   RecordKind // RecordInline or RecordBlob
	Inline []byte
	BlobID uint64
}

// dupTable is a single-page ordered list of records for one key (spec.md §4.2's overflow
// duplicate table); entries beyond one page's capacity are not supported in this implementation —
// a Database with very large duplicate groups of large inline records should rely on blob
// references, which keep each record's footprint to 8 bytes.
type dupTable struct {
	PageID  uint64
	Records []dupRecord
}

func loadDupTable(p *pager.Pager, id uint64) (*dupTable, error) {
	f, err := p.Fetch(id)
	if err != nil {
		return nil, err
	}
	defer p.Unpin(id)
	buf := f.Buf[page.HeaderSize:]
	count := binary.LittleEndian.Uint32(buf[0:4])
	pos := 4
	records := make([]dupRecord, count)
	for i := uint32(0); i < count; i++ {
		kind := RecordKind(buf[pos])
		pos++
		switch kind {
		case RecordInline:
			l := binary.LittleEndian.Uint32(buf[pos : pos+4])
			pos += 4
			records[i] = dupRecord{Kind: RecordInline, Inline: append([]byte(nil), buf[pos:pos+int(l)]...)}
			pos += int(l)
		case RecordBlob:
			records[i] = dupRecord{Kind: RecordBlob, BlobID: binary.LittleEndian.Uint64(buf[pos : pos+8])}
			pos += 8
		default:
			return nil, kverrors.New("btree.loadDupTable", kverrors.KindIntegrityViolated)
		}
	}
	return &dupTable{PageID: id, Records: records}, nil
}

func (d *dupTable) save(p *pager.Pager, owner uint16) error {
	f, err := p.Fetch(d.PageID)
	if err != nil {
		return err
	}
	buf := f.Buf[page.HeaderSize:]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(d.Records)))
	pos := 4
	for _, r := range d.Records {
		if pos+1 > len(buf) {
			p.Unpin(d.PageID)
			return kverrors.New("btree.dupTable.save", kverrors.KindOutOfMemory)
		}
		buf[pos] = byte(r.Kind)
		pos++
		switch r.Kind {
		case RecordInline:
			binary.LittleEndian.PutUint32(buf[pos:pos+4], uint32(len(r.Inline)))
			pos += 4
			copy(buf[pos:], r.Inline)
			pos += len(r.Inline)
		case RecordBlob:
			binary.LittleEndian.PutUint64(buf[pos:pos+8], r.BlobID)
			pos += 8
		}
	}
	p.MarkDirty(d.PageID)
	p.Unpin(d.PageID)
	return nil
}

func newDupTable(p *pager.Pager, owner uint16) (*dupTable, error) {
	f, err := p.AllocPage(page.TypeDuptable, owner)
	if err != nil {
		return nil, err
	}
	id := f.ID
	p.Unpin(id)
	return &dupTable{PageID: id}, nil
}

// InsertAt inserts rec at position idx (DupInsertFirst => 0, DupInsertLast => len, etc.), per
// spec.md §4.2's duplicate insert modes.
func (d *dupTable) InsertAt(idx int, rec dupRecord) {
	d.Records = append(d.Records, dupRecord{})
	copy(d.Records[idx+1:], d.Records[idx:])
	d.Records[idx] = rec
}

func (d *dupTable) RemoveAt(idx int) {
	d.Records = append(d.Records[:idx], d.Records[idx+1:]...)
}
