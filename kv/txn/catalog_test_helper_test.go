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

package txn

import (
	"testing"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/blob"
	"github.com/erigontech/kvengine/kv/btree"
	"github.com/erigontech/kvengine/kv/device"
	"github.com/erigontech/kvengine/kv/pager"
)

// fakeCatalog is a minimal in-memory Catalog double, standing in for kvengine.go's Environment
// the way tree_test.go stands in for a full Environment when exercising kv/btree in isolation.
type fakeCatalog struct {
	pager    *pager.Pager
	blobs    *blob.Manager
	readOnly bool

	byName map[string]uint16
	byID   map[uint16]*btree.Tree
	seq    map[uint16]uint64
	nextID uint16
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	t.Helper()
	dev := device.NewMem()
	p := pager.New(dev, pager.Options{PageSize: 1024, CRC32: true})
	return &fakeCatalog{
		pager:  p,
		blobs:  blob.New(p, nil),
		byName: make(map[string]uint16),
		byID:   make(map[uint16]*btree.Tree),
		seq:    make(map[uint16]uint64),
		nextID: 1,
	}
}

func (c *fakeCatalog) createLocked(name uint16, opts kv.DBOptions) error {
	if _, exists := c.byID[name]; exists {
		return kverrors.New("fakeCatalog.CreateDatabase", kverrors.KindDatabaseAlreadyExists)
	}
	tree, err := btree.Open(c.pager, c.blobs, name, 0, opts)
	if err != nil {
		return err
	}
	c.byID[name] = tree
	return nil
}

func (c *fakeCatalog) Tree(name string, autoCreate bool) (uint16, *btree.Tree, error) {
	if id, ok := c.byName[name]; ok {
		return id, c.byID[id], nil
	}
	if !autoCreate {
		return 0, nil, kverrors.New("fakeCatalog.Tree", kverrors.KindDatabaseNotFound)
	}
	id := c.nextID
	c.nextID++
	opts := kv.DBOptions{KeyType: kv.KeyTypeBinaryVariable, RecordType: kv.RecordTypeBinaryVariable}
	if err := c.createLocked(id, opts); err != nil {
		return 0, nil, err
	}
	c.byName[name] = id
	return id, c.byID[id], nil
}

func (c *fakeCatalog) CreateDatabase(name uint16, opts kv.DBOptions) error {
	return c.createLocked(name, opts)
}

func (c *fakeCatalog) DropDatabase(name uint16) error {
	if _, ok := c.byID[name]; !ok {
		return kverrors.New("fakeCatalog.DropDatabase", kverrors.KindDatabaseNotFound)
	}
	delete(c.byID, name)
	for n, id := range c.byName {
		if id == name {
			delete(c.byName, n)
		}
	}
	return nil
}

func (c *fakeCatalog) ExistsDatabase(name uint16) (bool, error) {
	_, ok := c.byID[name]
	return ok, nil
}

func (c *fakeCatalog) ListDatabases() ([]uint16, error) {
	out := make([]uint16, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	return out, nil
}

func (c *fakeCatalog) ReadSequence(id uint16) (uint64, error) { return c.seq[id], nil }

func (c *fakeCatalog) IncrementSequence(id uint16, amount uint64) (uint64, error) {
	prior := c.seq[id]
	c.seq[id] = prior + amount
	return prior, nil
}

func (c *fakeCatalog) ReadOnly() bool { return c.readOnly }
