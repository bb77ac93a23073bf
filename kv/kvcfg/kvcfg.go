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

// Package kvcfg holds the functional-option configuration surface for opening an Environment.
// Parsing these from a config file is an external collaborator (spec.md §1) and out of scope;
// callers build a Config programmatically.
package kvcfg

import (
	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	"github.com/erigontech/kvengine/internal/kvlog"
)

// Fadvise is the posix_fadvise hint passed to the OS for the backing file.
type Fadvise uint8

const (
	FadviseNormal Fadvise = iota
	FadviseRandom
)

// Codec names a pluggable compression transform; see kv/codec.
type Codec string

const (
	CodecNone   Codec = ""
	CodecZstd   Codec = "zstd"
	CodecSnappy Codec = "snappy"
)

// Config is the resolved set of options an Environment is opened with. Zero value is the
// engine's documented default for every field.
type Config struct {
	CacheSize       datasize.ByteSize // 0 = default (sized from system memory, see kvengine's resolveCacheCapacity)
	CacheUnlimited  bool
	CacheStrict     bool
	PageSize        uint32 // file page size at creation; 0 = DefaultPageSize
	FileSizeLimit   datasize.ByteSize // 0 = unlimited
	LogDirectory    string
	Fadvise         Fadvise
	EnableFsync     bool
	DisableMmap     bool
	InMemory        bool
	ReadOnly        bool
	EnableTxn       bool
	DisableRecovery bool
	AutoRecovery    bool
	EnableCRC32     bool
	EncryptionKey   []byte // exactly 16 bytes when set; AES-128-CBC over each page's payload
	JournalCodec    Codec
	FlushImmediate  bool
	Logger          *kvlog.Logger
}

// Option mutates a Config; Apply folds a slice of Options into a Config starting from zero
// value (the engine's documented defaults).
type Option func(*Config)

func Apply(opts ...Option) Config {
	var c Config
	for _, o := range opts {
		o(&c)
	}
	return c
}

func WithCacheSize(n datasize.ByteSize) Option    { return func(c *Config) { c.CacheSize = n } }
func WithCacheUnlimited() Option                   { return func(c *Config) { c.CacheUnlimited = true } }
func WithCacheStrict() Option                      { return func(c *Config) { c.CacheStrict = true } }
func WithPageSize(n uint32) Option                  { return func(c *Config) { c.PageSize = n } }
func WithFileSizeLimit(n datasize.ByteSize) Option { return func(c *Config) { c.FileSizeLimit = n } }
func WithLogDirectory(dir string) Option            { return func(c *Config) { c.LogDirectory = dir } }
func WithFadvise(f Fadvise) Option                  { return func(c *Config) { c.Fadvise = f } }
func WithFsync() Option                             { return func(c *Config) { c.EnableFsync = true } }
func WithDisableMmap() Option                       { return func(c *Config) { c.DisableMmap = true } }
func WithInMemory() Option                          { return func(c *Config) { c.InMemory = true } }
func WithReadOnly() Option                          { return func(c *Config) { c.ReadOnly = true } }
func WithTransactions() Option                      { return func(c *Config) { c.EnableTxn = true } }
func WithDisableRecovery() Option                   { return func(c *Config) { c.DisableRecovery = true } }
func WithAutoRecovery() Option                      { return func(c *Config) { c.AutoRecovery = true } }
func WithCRC32() Option                             { return func(c *Config) { c.EnableCRC32 = true } }
func WithFlushTransactionsImmediately() Option      { return func(c *Config) { c.FlushImmediate = true } }

func WithEncryptionKey(key []byte) Option {
	k := append([]byte(nil), key...)
	return func(c *Config) { c.EncryptionKey = k }
}

func WithJournalCompression(codec Codec) Option {
	return func(c *Config) { c.JournalCodec = codec }
}

// DBConfig holds the per-database configuration options that are orthogonal to the fixed
// schema in kv.DBOptions: record/key compression codecs, both resolved the same way journal
// compression is.
type DBConfig struct {
	RecordCodec Codec
	KeyCodec    Codec
}

type DBOption func(*DBConfig)

func WithRecordCompression(codec Codec) DBOption { return func(c *DBConfig) { c.RecordCodec = codec } }
func WithKeyCompression(codec Codec) DBOption     { return func(c *DBConfig) { c.KeyCodec = codec } }

func ApplyDB(opts ...DBOption) DBConfig {
	var c DBConfig
	for _, o := range opts {
		o(&c)
	}
	return c
}

// WithLogger installs a real logger; the default is a no-op logger.
func WithLogger(z *zap.Logger) Option {
	return func(c *Config) { c.Logger = kvlog.New(z) }
}

// ResolvedLogger returns c.Logger or a no-op logger if none was configured.
func (c Config) ResolvedLogger() *kvlog.Logger {
	if c.Logger == nil {
		return kvlog.Nop()
	}
	return c.Logger
}
