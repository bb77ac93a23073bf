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

// Package kvengine hosts Environment, the top-level handle an application opens: one backing
// file (or in-memory arena) holding a file header, a database directory, a shared freelist, and
// any number of named Databases, each its own B+tree index over the shared page store. Environment
// wires every subsystem in kv/* together and implements kv.RoDB/kv.RwDB and kv/txn.Catalog.
package kvengine

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pbnjay/memory"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/internal/kvlog"
	"github.com/erigontech/kvengine/kv"
	"github.com/erigontech/kvengine/kv/blob"
	"github.com/erigontech/kvengine/kv/btree"
	"github.com/erigontech/kvengine/kv/codec"
	"github.com/erigontech/kvengine/kv/device"
	"github.com/erigontech/kvengine/kv/journal"
	"github.com/erigontech/kvengine/kv/kvcfg"
	"github.com/erigontech/kvengine/kv/page"
	"github.com/erigontech/kvengine/kv/pager"
	"github.com/erigontech/kvengine/kv/txn"
)

const (
	fileMagic      = 0x6b766531 // "kve1"
	formatVersion  = 1
	headerPageID   = 0 // reserved, never allocated through Pager; always plaintext (see readHeader)
	directoryOwner = kv.DatabaseNameDirectory
	freelistOwner  = kv.DatabaseNameFreelist
)

// Environment is kvengine's top-level handle: one Device, one Pager/cache/freelist, one shared
// Blob manager, one database directory, one Txn Manager, and (unless disabled) one journal
// Writer. It implements kv.RoDB, kv.RwDB, and kv/txn.Catalog — the transaction layer never
// touches pages directly, only ever calling back into Environment through the latter.
type Environment struct {
	mu sync.RWMutex

	cfg    kvcfg.Config
	log    *kvlog.Logger
	path   string
	dev    device.Device
	pager  *pager.Pager
	blobs  *blob.Manager
	cipher *page.Cipher
	lock   *flock.Flock // advisory single-writer-process guard; nil for in-memory Environments

	pageSize     uint32
	maxDatabases uint16
	salt         []byte
	dirHead      uint64
	freelistHead uint64

	dbs     map[uint16]*dbHandle
	byLabel map[string]uint16
	nextID  uint16

	journalW *journal.Writer
	mgr      *txn.Manager
	readOnly bool

	metrics envMetrics
}

type dbHandle struct {
	id    uint16
	label string
	opts  kv.DBOptions
	tree  *btree.Tree
	seq   uint64

	rootHint uint64 // decoded root page id, consumed once by loadDirectory's btree.Open call
}

type envMetrics struct {
	cacheHits, cacheMisses prometheus.Counter
	pageFlushes            prometheus.Counter
	journalSwitches        prometheus.Counter
}

func newEnvMetrics() envMetrics {
	return envMetrics{
		cacheHits:       prometheus.NewCounter(prometheus.CounterOpts{Name: "kvengine_cache_hits_total"}),
		cacheMisses:     prometheus.NewCounter(prometheus.CounterOpts{Name: "kvengine_cache_misses_total"}),
		pageFlushes:     prometheus.NewCounter(prometheus.CounterOpts{Name: "kvengine_page_flushes_total"}),
		journalSwitches: prometheus.NewCounter(prometheus.CounterOpts{Name: "kvengine_journal_switches_total"}),
	}
}

// Open creates (if necessary) and opens the Environment at path. path is ignored when
// cfg.InMemory is set, in which case Environment never touches disk at all.
func Open(path string, opts ...kvcfg.Option) (*Environment, error) {
	cfg := kvcfg.Apply(opts...)
	log := cfg.ResolvedLogger().Named("env")

	env := &Environment{
		cfg:      cfg,
		log:      log,
		path:     path,
		dbs:      make(map[uint16]*dbHandle),
		byLabel:  make(map[string]uint16),
		nextID:   kv.MinUserDatabase,
		readOnly: cfg.ReadOnly,
		metrics:  newEnvMetrics(),
	}

	if !cfg.InMemory {
		l := flock.New(path + ".lock")
		locked, err := lockFile(l, cfg.ReadOnly)
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, kverrors.ErrEnvAlreadyOpen
		}
		env.lock = l
	}

	var err error
	if cfg.InMemory {
		env.dev = device.NewMem()
	} else {
		env.dev, err = device.OpenFile(device.FileOptions{Path: path, ReadOnly: cfg.ReadOnly, DisableMmap: cfg.DisableMmap})
	}
	if err != nil {
		env.releaseLock()
		return nil, err
	}

	size, err := env.dev.Size()
	if err != nil {
		env.cleanupFailedOpen()
		return nil, err
	}

	isNew := size == 0
	if isNew {
		err = env.bootstrap()
	} else {
		err = env.readHeader()
	}
	if err != nil {
		env.cleanupFailedOpen()
		return nil, err
	}

	if len(cfg.EncryptionKey) > 0 {
		env.cipher, err = page.NewCipher(cfg.EncryptionKey, env.salt)
		if err != nil {
			env.cleanupFailedOpen()
			return nil, err
		}
	}

	// The pager must exist before any page other than the raw, unencrypted file header (written
	// directly through env.dev by bootstrap/writeHeaderPage) is touched: bootstrap's initial
	// directory page is written through the pager below, and readHeader never needs one at all.
	env.pager = pager.New(env.dev, pager.Options{
		PageSize:    env.pageSize,
		CRC32:       cfg.EnableCRC32,
		Cipher:      env.cipher,
		CacheSize:   resolveCacheCapacity(cfg, env.pageSize),
		CacheStrict: cfg.CacheStrict,
		InMemory:    cfg.InMemory,
		Log:         log,
	})
	sizeAfter, err := env.dev.Size()
	if err != nil {
		env.cleanupFailedOpen()
		return nil, err
	}
	env.pager.SetNextPageWatermark(env.nextPageWatermark(sizeAfter))

	if isNew {
		// env.dirHead is still 0 here, so writeDirectoryPage allocates a fresh page through the
		// now-live pager instead of trying to reuse a chain that was never written.
		if err := env.writeDirectoryPage(nil); err != nil {
			env.cleanupFailedOpen()
			return nil, err
		}
	}

	recCodec, err := codec.Resolve(kvcfg.CodecNone)
	if err != nil {
		env.cleanupFailedOpen()
		return nil, err
	}
	env.blobs = blob.New(env.pager, recCodec)

	if err := env.loadFreelist(); err != nil {
		env.cleanupFailedOpen()
		return nil, err
	}

	if err := env.loadDirectory(); err != nil {
		env.cleanupFailedOpen()
		return nil, err
	}

	if cfg.EnableTxn && !cfg.InMemory && !cfg.DisableRecovery {
		if err := env.recover(); err != nil {
			env.cleanupFailedOpen()
			return nil, err
		}
	}

	if cfg.EnableTxn && !cfg.ReadOnly && !cfg.InMemory {
		jcodec, jerr := codec.Resolve(cfg.JournalCodec)
		if jerr != nil {
			env.cleanupFailedOpen()
			return nil, jerr
		}
		dir := cfg.LogDirectory
		base := filepath.Base(path)
		if dir == "" {
			dir = filepath.Dir(path)
		}
		w, werr := journal.Open(journal.Options{Dir: dir, BaseName: base, Codec: jcodec, Log: log})
		if werr != nil {
			env.cleanupFailedOpen()
			return nil, werr
		}
		env.journalW = w
	}

	env.mgr = txn.NewManager(env, log)
	return env, nil
}

func lockFile(l *flock.Flock, readOnly bool) (bool, error) {
	if readOnly {
		ok, err := l.TryRLock()
		return ok, wrapLockErr(err)
	}
	ok, err := l.TryLock()
	return ok, wrapLockErr(err)
}

func wrapLockErr(err error) error {
	if err == nil {
		return nil
	}
	return kverrors.Wrap("kvengine.Open", kverrors.KindIOError, err)
}

func (env *Environment) releaseLock() {
	if env.lock != nil {
		_ = env.lock.Unlock()
	}
}

func (env *Environment) cleanupFailedOpen() {
	if env.dev != nil {
		_ = env.dev.Close()
	}
	env.releaseLock()
}

// resolveCacheCapacity turns a configured byte budget into a page count; a zero configured size
// defaults to a fraction of total system memory (spec.md's "cache-size(bytes) == 0" default),
// sized via pbnjay/memory the way the teacher sizes its own caches from system RAM.
func resolveCacheCapacity(cfg kvcfg.Config, pageSize uint32) int {
	if cfg.CacheUnlimited {
		return 0
	}
	budget := uint64(cfg.CacheSize)
	if budget == 0 {
		budget = memory.TotalMemory() / 32
		if budget == 0 {
			budget = 64 << 20
		}
	}
	n := int(budget / uint64(pageSize))
	if n < 16 {
		n = 16
	}
	return n
}

func (env *Environment) nextPageWatermark(fileSize int64) uint64 {
	n := uint64(fileSize) / uint64(env.pageSize)
	if n < 1 {
		n = 1
	}
	return n
}

// --- file header ---

// bootstrap initializes a brand-new Environment: writes the plaintext file header at page 0.
// The header is never encrypted — it must be legible before any encryption key is supplied,
// matching the salt-then-key bootstrap every page cipher needs. dirHead/freelistHead are left at
// their zero value; Open writes the initial (empty) directory page itself, once the pager (which
// bootstrap does not have access to yet) exists.
func (env *Environment) bootstrap() error {
	env.pageSize = env.cfg.PageSize
	if env.pageSize == 0 {
		env.pageSize = page.DefaultPageSize
	}
	if !page.ValidPageSize(env.pageSize) {
		return kverrors.New("kvengine.Open", kverrors.KindInvalidPageSize)
	}
	env.maxDatabases = uint16(kv.MaxUserDatabase - kv.MinUserDatabase)
	env.salt = make([]byte, page.KeySize)
	if _, err := rand.Read(env.salt); err != nil {
		return kverrors.Wrap("kvengine.Open", kverrors.KindInternalError, err)
	}

	if err := env.dev.Truncate(int64(env.pageSize)); err != nil {
		return err
	}
	return env.writeHeaderPage()
}

func (env *Environment) writeHeaderPage() error {
	buf := make([]byte, env.pageSize)
	off := page.HeaderSize
	putU32(buf[off:], fileMagic)
	putU32(buf[off+4:], formatVersion)
	putU32(buf[off+8:], env.pageSize)
	putU16(buf[off+12:], env.maxDatabases)
	copy(buf[off+14:off+14+page.KeySize], env.salt)
	putU64(buf[off+14+page.KeySize:], env.dirHead)
	putU64(buf[off+14+page.KeySize+8:], env.freelistHead)
	h := page.Header{Type: page.TypeHeader, SelfID: headerPageID, Owner: directoryOwner}
	page.Seal(buf, h, env.cfg.EnableCRC32)
	_, err := env.dev.WriteAt(buf, 0)
	if err != nil {
		return kverrors.Wrap("kvengine.Open", kverrors.KindIOError, err)
	}
	return nil
}

func (env *Environment) readHeader() error {
	probe := make([]byte, page.MinPageSize)
	if _, err := env.dev.ReadAt(probe, 0); err != nil {
		return kverrors.Wrap("kvengine.Open", kverrors.KindIOError, err)
	}
	off := page.HeaderSize
	if getU32(probe[off:]) != fileMagic {
		return kverrors.New("kvengine.Open", kverrors.KindInvalidFileHeader)
	}
	if getU32(probe[off+4:]) != formatVersion {
		return kverrors.New("kvengine.Open", kverrors.KindInvalidFileVersion)
	}
	env.pageSize = getU32(probe[off+8:])
	if !page.ValidPageSize(env.pageSize) {
		return kverrors.New("kvengine.Open", kverrors.KindInvalidPageSize)
	}
	full := make([]byte, env.pageSize)
	if _, err := env.dev.ReadAt(full, 0); err != nil {
		return kverrors.Wrap("kvengine.Open", kverrors.KindIOError, err)
	}
	if err := page.Verify(full, env.cfg.EnableCRC32); err != nil {
		return err
	}
	env.maxDatabases = getU16(full[off+12:])
	env.salt = append([]byte(nil), full[off+14:off+14+page.KeySize]...)
	env.dirHead = getU64(full[off+14+page.KeySize:])
	env.freelistHead = getU64(full[off+14+page.KeySize+8:])
	return nil
}

func putU16(b []byte, v uint16) { b[0], b[1] = byte(v), byte(v>>8) }
func getU16(b []byte) uint16    { return uint16(b[0]) | uint16(b[1])<<8 }
func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func getU32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// --- freelist persistence: a linked chain of pages rooted at freelistHead, owner tag
// freelistOwner. The in-memory Freelist (kv/pager) tracks no dirty bit of its own, so every
// flush re-serializes it in full; at kvengine's target database sizes the free-run count stays
// small enough that this costs one short chain write per Close/Flush, not a scalability problem.

func (env *Environment) persistFreelist() error {
	groups := env.pager.Freelist().Serialize(env.pageSize)
	var blobBytes []byte
	cnt := make([]byte, 4)
	putU32(cnt, uint32(len(groups)))
	blobBytes = append(blobBytes, cnt...)
	for _, g := range groups {
		n := make([]byte, 4)
		putU32(n, uint32(len(g)))
		blobBytes = append(blobBytes, n...)
		buf := make([]byte, len(g)*16)
		pager.EncodeRuns(buf, g)
		blobBytes = append(blobBytes, buf...)
	}
	head, err := env.writeChainBlob(freelistOwner, page.TypeFreelist, blobBytes, env.freelistHead)
	if err != nil {
		return err
	}
	env.freelistHead = head
	return env.writeHeaderPage()
}

func (env *Environment) loadFreelist() error {
	if env.freelistHead == 0 {
		return nil
	}
	blobBytes, err := env.readChain(env.freelistHead)
	if err != nil {
		return err
	}
	if len(blobBytes) < 4 {
		return nil
	}
	groupCount := int(getU32(blobBytes))
	off := 4
	all := pager.DecodeRuns(nil, 0)
	for i := 0; i < groupCount; i++ {
		if off+4 > len(blobBytes) {
			return kverrors.New("kvengine.loadFreelist", kverrors.KindInvalidFileHeader)
		}
		n := int(getU32(blobBytes[off:]))
		off += 4
		if off+n*16 > len(blobBytes) {
			return kverrors.New("kvengine.loadFreelist", kverrors.KindInvalidFileHeader)
		}
		all = append(all, pager.DecodeRuns(blobBytes[off:], n)...)
		off += n * 16
	}
	env.pager.Freelist().Load(all)
	return nil
}

// --- database directory: a linked chain of pages rooted at dirHead, owner tag directoryOwner ---

func (env *Environment) writeDirectoryPage(metas []*dbHandle) error {
	sorted := append([]*dbHandle(nil), metas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })
	var blobBytes []byte
	cnt := make([]byte, 4)
	putU32(cnt, uint32(len(sorted)))
	blobBytes = append(blobBytes, cnt...)
	for _, h := range sorted {
		blobBytes = append(blobBytes, encodeDBMeta(h)...)
	}
	head, err := env.writeChainBlob(directoryOwner, page.TypeHeader, blobBytes, env.dirHead)
	if err != nil {
		return err
	}
	env.dirHead = head
	return env.writeHeaderPage()
}

func (env *Environment) loadDirectory() error {
	if env.dirHead == 0 {
		return nil
	}
	blobBytes, err := env.readChain(env.dirHead)
	if err != nil {
		return err
	}
	if len(blobBytes) < 4 {
		return nil
	}
	count := int(getU32(blobBytes))
	off := 4
	for i := 0; i < count; i++ {
		h, n, err := decodeDBMeta(blobBytes[off:])
		if err != nil {
			return err
		}
		off += n
		tree, err := btree.Open(env.pager, env.blobs, h.id, h.rootHint, h.opts)
		if err != nil {
			return err
		}
		h.tree = tree
		env.attachRootPersist(h)
		env.dbs[h.id] = h
		env.byLabel[h.label] = h.id
		if h.id >= env.nextID {
			env.nextID = h.id + 1
		}
	}
	return nil
}

func (env *Environment) attachRootPersist(h *dbHandle) {
	h.tree.OnRootChange = func(newRoot uint64) {
		env.mu.Lock()
		defer env.mu.Unlock()
		_ = env.writeDirectoryPage(env.handleList())
	}
}

func (env *Environment) handleList() []*dbHandle {
	out := make([]*dbHandle, 0, len(env.dbs))
	for _, h := range env.dbs {
		out = append(out, h)
	}
	return out
}

// encodeDBMeta/decodeDBMeta: [id:2][root:8][seq:8][keyType:1][keySize:2][recType:1][recSize:4]
// [flags:4][cmpLen:2][cmp][labelLen:2][label].
func encodeDBMeta(h *dbHandle) []byte {
	opts := h.opts
	cmp := []byte(opts.CompareName)
	label := []byte(h.label)
	buf := make([]byte, 2+8+8+1+2+1+4+4+2+len(cmp)+2+len(label))
	off := 0
	putU16(buf[off:], h.id)
	off += 2
	putU64(buf[off:], h.tree.Root())
	off += 8
	putU64(buf[off:], h.seq)
	off += 8
	buf[off] = byte(opts.KeyType)
	off++
	putU16(buf[off:], opts.KeySize)
	off += 2
	buf[off] = byte(opts.RecordType)
	off++
	putU32(buf[off:], opts.RecordSize)
	off += 4
	putU32(buf[off:], uint32(opts.Flags))
	off += 4
	putU16(buf[off:], uint16(len(cmp)))
	off += 2
	off += copy(buf[off:], cmp)
	putU16(buf[off:], uint16(len(label)))
	off += 2
	off += copy(buf[off:], label)
	return buf
}

func decodeDBMeta(buf []byte) (*dbHandle, int, error) {
	if len(buf) < 2+8+8+1+2+1+4+4+2 {
		return nil, 0, kverrors.New("kvengine.decodeDBMeta", kverrors.KindInvalidFileHeader)
	}
	h := &dbHandle{}
	off := 0
	h.id = getU16(buf[off:])
	off += 2
	root := getU64(buf[off:])
	off += 8
	h.seq = getU64(buf[off:])
	off += 8
	h.opts.KeyType = kv.KeyType(buf[off])
	off++
	h.opts.KeySize = getU16(buf[off:])
	off += 2
	h.opts.RecordType = kv.RecordType(buf[off])
	off++
	h.opts.RecordSize = getU32(buf[off:])
	off += 4
	h.opts.Flags = kv.DBFlags(getU32(buf[off:]))
	off += 4
	cmpLen := int(getU16(buf[off:]))
	off += 2
	if off+cmpLen+2 > len(buf) {
		return nil, 0, kverrors.New("kvengine.decodeDBMeta", kverrors.KindInvalidFileHeader)
	}
	h.opts.CompareName = string(buf[off : off+cmpLen])
	off += cmpLen
	labelLen := int(getU16(buf[off:]))
	off += 2
	if off+labelLen > len(buf) {
		return nil, 0, kverrors.New("kvengine.decodeDBMeta", kverrors.KindInvalidFileHeader)
	}
	h.label = string(buf[off : off+labelLen])
	off += labelLen
	h.rootHint = root
	return h, off, nil
}

// --- generic linked-page blob chain, shared by the directory and the freelist ---

func (env *Environment) chainCapacity() int {
	return int(env.pageSize) - page.HeaderSize - 8 // trailing next-page-id pointer
}

// writeChainBlob (re)writes blobBytes across a chain of pages tagged typ/owner, reusing existing
// pages in oldHead's chain where possible and freeing any surplus; it returns the (possibly
// unchanged) head page id.
func (env *Environment) writeChainBlob(owner uint16, typ page.Type, blobBytes []byte, oldHead uint64) (uint64, error) {
	cap := env.chainCapacity()
	if cap <= 0 {
		return 0, kverrors.New("kvengine.writeChainBlob", kverrors.KindInvalidPageSize)
	}
	var chunks [][]byte
	for len(blobBytes) > 0 {
		n := cap
		if n > len(blobBytes) {
			n = len(blobBytes)
		}
		chunks = append(chunks, blobBytes[:n])
		blobBytes = blobBytes[n:]
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	var oldIDs []uint64
	for id := oldHead; id != 0; {
		oldIDs = append(oldIDs, id)
		f, err := env.pager.Fetch(id)
		if err != nil {
			break
		}
		next := getU64(f.Buf[len(f.Buf)-8:])
		env.pager.Unpin(id)
		id = next
	}

	ids := make([]uint64, len(chunks))
	for i := range chunks {
		if i < len(oldIDs) {
			ids[i] = oldIDs[i]
		} else {
			frame, err := env.pager.AllocPage(typ, owner)
			if err != nil {
				return 0, err
			}
			ids[i] = frame.ID
			env.pager.Unpin(frame.ID)
		}
	}
	for i, extra := range oldIDs[min(len(ids), len(oldIDs)):] {
		_ = extra
		env.pager.Free(oldIDs[len(ids)+i])
	}

	for i, chunk := range chunks {
		f, err := env.pager.Fetch(ids[i])
		if err != nil {
			return 0, err
		}
		page.Header{Type: typ, SelfID: ids[i], Owner: owner}.Encode(f.Buf)
		copy(f.Buf[page.HeaderSize:len(f.Buf)-8], chunk)
		for j := page.HeaderSize + len(chunk); j < len(f.Buf)-8; j++ {
			f.Buf[j] = 0
		}
		var next uint64
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		putU64(f.Buf[len(f.Buf)-8:], next)
		env.pager.MarkDirty(ids[i])
		env.pager.Unpin(ids[i])
	}
	return ids[0], nil
}

func (env *Environment) readChain(head uint64) ([]byte, error) {
	var out []byte
	for id := head; id != 0; {
		f, err := env.pager.Fetch(id)
		if err != nil {
			return nil, err
		}
		out = append(out, f.Buf[page.HeaderSize:len(f.Buf)-8]...)
		next := getU64(f.Buf[len(f.Buf)-8:])
		env.pager.Unpin(id)
		id = next
	}
	return out, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// --- Database lifecycle (kv/txn.Catalog) ---

func (env *Environment) allocID() (uint16, error) {
	for i := 0; i < int(kv.MaxUserDatabase-kv.MinUserDatabase); i++ {
		id := env.nextID
		env.nextID++
		if env.nextID > kv.MaxUserDatabase {
			env.nextID = kv.MinUserDatabase
		}
		if _, used := env.dbs[id]; !used {
			return id, nil
		}
	}
	return 0, kverrors.ErrLimitsReached
}

func defaultDBOptions() kv.DBOptions {
	return kv.DBOptions{KeyType: kv.KeyTypeBinaryVariable, RecordType: kv.RecordTypeBinaryVariable}
}

// Tree implements kv/txn.Catalog: resolves a string-labeled database, auto-creating a
// binary-variable/binary-variable database on first use the way an ordinary Put against an
// unknown bucket name works, while CreateDatabase (below) remains the explicit, schema-fixing
// entry point addressed by spec.md's 16-bit numeric database name.
func (env *Environment) Tree(label string, autoCreate bool) (uint16, *btree.Tree, error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	if id, ok := env.byLabel[label]; ok {
		return id, env.dbs[id].tree, nil
	}
	if !autoCreate {
		return 0, nil, kverrors.ErrDatabaseNotFound
	}
	id, err := env.allocID()
	if err != nil {
		return 0, nil, err
	}
	h, err := env.createLocked(id, label, defaultDBOptions())
	if err != nil {
		return 0, nil, err
	}
	return id, h.tree, nil
}

func (env *Environment) createLocked(id uint16, label string, opts kv.DBOptions) (*dbHandle, error) {
	tree, err := btree.Open(env.pager, env.blobs, id, 0, opts)
	if err != nil {
		return nil, err
	}
	h := &dbHandle{id: id, label: label, opts: opts, tree: tree}
	env.attachRootPersist(h)
	env.dbs[id] = h
	env.byLabel[label] = id
	if err := env.writeDirectoryPage(env.handleList()); err != nil {
		return nil, err
	}
	return h, nil
}

func (env *Environment) CreateDatabase(name uint16, opts kv.DBOptions) error {
	env.mu.Lock()
	defer env.mu.Unlock()
	if name < kv.MinUserDatabase || name > kv.MaxUserDatabase {
		return kverrors.New("kvengine.CreateDatabase", kverrors.KindInvalidParameter)
	}
	if _, exists := env.dbs[name]; exists {
		return kverrors.ErrDatabaseExists
	}
	_, err := env.createLocked(name, fmt.Sprintf("%d", name), opts)
	return err
}

// DropDatabase removes name from the directory. Reclaiming the dropped tree's own pages requires
// walking its internal nodes, which kv/btree.Tree does not expose to callers; the dropped tree's
// pages are left allocated-but-unreachable rather than attempting an unsafe external walk. See
// DESIGN.md.
func (env *Environment) DropDatabase(name uint16) error {
	env.mu.Lock()
	defer env.mu.Unlock()
	h, ok := env.dbs[name]
	if !ok {
		return kverrors.ErrDatabaseNotFound
	}
	delete(env.dbs, name)
	delete(env.byLabel, h.label)
	return env.writeDirectoryPage(env.handleList())
}

func (env *Environment) ExistsDatabase(name uint16) (bool, error) {
	env.mu.RLock()
	defer env.mu.RUnlock()
	_, ok := env.dbs[name]
	return ok, nil
}

func (env *Environment) ListDatabases() ([]uint16, error) {
	env.mu.RLock()
	defer env.mu.RUnlock()
	out := make([]uint16, 0, len(env.dbs))
	for id := range env.dbs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// DatabaseNames returns every open database's string label alongside its numeric name, the
// Go-idiomatic surface SPEC_FULL.md's "Supplemented from original_source/" section adds in place
// of upscaledb's ham_env_get_database_names (which only returns the numeric array).
func (env *Environment) DatabaseNames() (map[uint16]string, error) {
	env.mu.RLock()
	defer env.mu.RUnlock()
	out := make(map[uint16]string, len(env.dbs))
	for id, h := range env.dbs {
		out[id] = h.label
	}
	return out, nil
}

func (env *Environment) ReadSequence(id uint16) (uint64, error) {
	env.mu.RLock()
	defer env.mu.RUnlock()
	h, ok := env.dbs[id]
	if !ok {
		return 0, kverrors.ErrDatabaseNotFound
	}
	return h.seq, nil
}

func (env *Environment) IncrementSequence(id uint16, amount uint64) (uint64, error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	h, ok := env.dbs[id]
	if !ok {
		return 0, kverrors.ErrDatabaseNotFound
	}
	prior := h.seq
	h.seq += amount
	return prior, nil
}

func (env *Environment) ReadOnly() bool { return env.readOnly }

// Param implements the upscaledb-derived read-only introspection surface SPEC_FULL.md's
// "Supplemented from original_source/" section adds (ham_env_get_parameters).
func (env *Environment) Param(kind kv.ParamKind) (uint64, bool) {
	env.mu.RLock()
	defer env.mu.RUnlock()
	switch kind {
	case kv.ParamPageSize:
		return uint64(env.pageSize), true
	case kv.ParamMaxDatabases:
		return uint64(env.maxDatabases), true
	case kv.ParamOpenDatabaseCount:
		return uint64(len(env.dbs)), true
	case kv.ParamCacheSize:
		return uint64(env.pager.CacheLen()) * uint64(env.pageSize), true
	default:
		return 0, false
	}
}

func (env *Environment) PageSize() uint32 { return env.pageSize }

// --- Flush / Close ---

// treeDeps is Pager.Flush's dependency function: for an internal B+tree page it returns the
// child page ids the page points at, so Flush's post-order walk never persists a parent before
// its children (spec.md §4.1). The owning Database's key/value schema is needed to decode a
// compact-layout page correctly; every page's header carries Owner, the database id, as a
// back-pointer (spec.md §3), so it is looked up in env.dbs rather than threaded through Flush's
// signature. flushLocked (treeDeps' only caller, via Pager.Flush) runs under env.mu, or from
// recover during Open before the Environment is returned to any caller, so env.dbs needs no
// extra locking here. Anything that isn't a known database's internal page
// (freelist/directory/blob pages, or a page whose owner was since dropped) reports no
// dependencies, which is Flush's safe default.
func (env *Environment) treeDeps(id uint64, buf []byte) []uint64 {
	h, err := page.Decode(buf)
	if err != nil {
		return nil
	}
	dbh, ok := env.dbs[h.Owner]
	if !ok || dbh.tree == nil {
		return nil
	}
	return dbh.tree.ChildPageIDs(id, buf)
}

func (env *Environment) flushLocked() error {
	if err := env.persistFreelist(); err != nil {
		return err
	}
	if err := env.pager.Flush(env.cfg.EnableFsync, env.treeDeps); err != nil {
		return err
	}
	env.metrics.pageFlushes.Inc()
	if env.journalW != nil {
		if err := env.journalW.Checkpoint(); err != nil {
			return err
		}
	}
	return env.pager.Grow()
}

func (env *Environment) Close() error {
	env.mu.Lock()
	defer env.mu.Unlock()
	if err := env.flushLocked(); err != nil {
		return err
	}
	var first error
	if env.journalW != nil {
		if err := env.journalW.Close(); err != nil {
			first = err
		}
	}
	if err := env.dev.Close(); err != nil && first == nil {
		first = err
	}
	env.releaseLock()
	return first
}

// --- recovery ---

// recover replays every committed-but-possibly-unflushed transaction recorded in the journal
// since the last checkpoint, then flushes and checkpoints so the journal and the btree agree
// again before ordinary operation resumes (spec.md's "auto-recovery" / redo-only model).
func (env *Environment) recover() error {
	jcodec, err := codec.Resolve(env.cfg.JournalCodec)
	if err != nil {
		return err
	}
	dir := env.cfg.LogDirectory
	if dir == "" {
		dir = filepath.Dir(env.path)
	}
	opts := journal.Options{Dir: dir, BaseName: filepath.Base(env.path), Codec: jcodec, Log: env.log}
	applied := false
	_, err = journal.Replay(opts, func(txnID uint64, entries []journal.Entry) error {
		for _, e := range entries {
			var tree *btree.Tree
			if h, ok := env.dbs[e.DBID]; ok {
				tree = h.tree
			}
			if err := txn.ApplyRecoveredEntry(tree, env, e); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		if !env.cfg.AutoRecovery {
			return kverrors.ErrNeedRecovery
		}
		return err
	}
	if applied {
		if err := env.flushLocked(); err != nil {
			return err
		}
		return journal.Truncate(opts)
	}
	return nil
}

// --- kv.RoDB / kv.RwDB ---

func (env *Environment) BeginRo(ctx context.Context) (kv.Tx, error) {
	return env.mgr.BeginRo(ctx)
}

func (env *Environment) BeginRw(ctx context.Context) (kv.RwTx, error) {
	t, err := env.mgr.BeginRw(ctx)
	if err != nil {
		return nil, err
	}
	return &envRwTx{Txn: t, env: env}, nil
}

func (env *Environment) View(ctx context.Context, f func(tx kv.Tx) error) error {
	tx, err := env.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

func (env *Environment) Update(ctx context.Context, f func(tx kv.RwTx) error) error {
	tx, err := env.BeginRw(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// envRwTx wraps *txn.Txn to splice the Environment's write-ahead journal into the commit path:
// spec.md's "on commit, Journal appends the batch, fsyncs if configured, then changes are
// applied to the B+tree" ordering, which the txn package itself has no journal to write to.
type envRwTx struct {
	*txn.Txn
	env *Environment
}

func (tx *envRwTx) Commit() error {
	entries := tx.Txn.Entries()
	if len(entries) > 0 && tx.env.journalW != nil {
		if err := tx.env.journalW.WriteTxn(tx.Txn.ID(), entries, tx.env.cfg.EnableFsync); err != nil {
			return err
		}
	}
	if err := tx.Txn.Commit(); err != nil {
		return err
	}
	if tx.env.cfg.FlushImmediate {
		tx.env.mu.Lock()
		defer tx.env.mu.Unlock()
		return tx.env.flushLocked()
	}
	return nil
}

var _ kv.RwDB = (*Environment)(nil)
var _ txn.Catalog = (*Environment)(nil)

// osRemoveJournalFiles removes <dir>/<base>.jrn0 and .jrn1, ignoring errors; it is unexported
// and nothing in the module currently calls it.
func osRemoveJournalFiles(dir, base string) {
	_ = os.Remove(filepath.Join(dir, base+".jrn0"))
	_ = os.Remove(filepath.Join(dir, base+".jrn1"))
}
