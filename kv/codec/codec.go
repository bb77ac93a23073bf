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

// Package codec wraps the third-party compression libraries used for record, journal, and
// key-page payloads (spec.md §6's record-compression/journal-compression/key-compression
// options). Codecs as *algorithms* are external collaborators per spec.md §1; this package only
// adapts existing ones (klauspost/compress zstd, golang/snappy) to one small Transform
// interface so the rest of the engine never branches on codec identity.
package codec

import (
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/erigontech/kvengine/internal/kverrors"
	"github.com/erigontech/kvengine/kv/kvcfg"
)

// Transform compresses and decompresses a single payload. Implementations must round-trip
// exactly: Decode(Encode(x)) == x.
type Transform interface {
	Name() kvcfg.Codec
	Encode(dst, src []byte) []byte
	Decode(dst, src []byte) ([]byte, error)
}

type noneCodec struct{}

func (noneCodec) Name() kvcfg.Codec                      { return kvcfg.CodecNone }
func (noneCodec) Encode(dst, src []byte) []byte          { return append(dst, src...) }
func (noneCodec) Decode(dst, src []byte) ([]byte, error) { return append(dst, src...), nil }

type snappyCodec struct{}

func (snappyCodec) Name() kvcfg.Codec { return kvcfg.CodecSnappy }

func (snappyCodec) Encode(dst, src []byte) []byte {
	return snappy.Encode(nil, src)
}

func (snappyCodec) Decode(dst, src []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, kverrors.Wrap("codec.snappy.Decode", kverrors.KindIntegrityViolated, err)
	}
	return out, nil
}

// zstdCodec lazily builds its encoder/decoder pair; zstd.NewWriter/NewReader are not cheap and
// this codec is shared process-wide.
type zstdCodec struct {
	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func (z *zstdCodec) Name() kvcfg.Codec { return kvcfg.CodecZstd }

func (z *zstdCodec) encoder() *zstd.Encoder {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.enc == nil {
		z.enc, _ = zstd.NewWriter(nil)
	}
	return z.enc
}

func (z *zstdCodec) decoder() *zstd.Decoder {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.dec == nil {
		z.dec, _ = zstd.NewReader(nil)
	}
	return z.dec
}

func (z *zstdCodec) Encode(dst, src []byte) []byte {
	return z.encoder().EncodeAll(src, dst[:0])
}

func (z *zstdCodec) Decode(dst, src []byte) ([]byte, error) {
	out, err := z.decoder().DecodeAll(src, dst[:0])
	if err != nil {
		return nil, kverrors.Wrap("codec.zstd.Decode", kverrors.KindIntegrityViolated, err)
	}
	return out, nil
}

var (
	none       Transform = noneCodec{}
	snappyImpl Transform = snappyCodec{}
	zstdImpl   Transform = &zstdCodec{}
)

// Resolve returns the Transform for a configured codec name.
func Resolve(name kvcfg.Codec) (Transform, error) {
	switch name {
	case kvcfg.CodecNone:
		return none, nil
	case kvcfg.CodecSnappy:
		return snappyImpl, nil
	case kvcfg.CodecZstd:
		return zstdImpl, nil
	default:
		return nil, kverrors.New(fmt.Sprintf("codec.Resolve(%q)", name), kverrors.KindInvalidParameter)
	}
}
