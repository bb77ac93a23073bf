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

package page

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"

	"golang.org/x/crypto/hkdf"

	"github.com/erigontech/kvengine/internal/kverrors"
)

// KeySize is the AES-128 key length (spec.md: encryption-key(16 bytes)).
const KeySize = 16

// Cipher encrypts/decrypts page payloads in place with AES-128-CBC. Each page derives its own
// IV from the Environment-wide salt and the page's self-id via HKDF, so identical plaintext
// pages never produce identical ciphertext.
type Cipher struct {
	block cipher.Block
	salt  []byte
}

// NewCipher builds a Cipher from a 16-byte key and a per-Environment salt (stored in the file
// header, spec.md §6).
func NewCipher(key, salt []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, kverrors.New("page.NewCipher", kverrors.KindInvalidParameter)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, kverrors.Wrap("page.NewCipher", kverrors.KindInvalidParameter, err)
	}
	return &Cipher{block: block, salt: append([]byte(nil), salt...)}, nil
}

func (c *Cipher) iv(pageID uint64) []byte {
	var idBuf [8]byte
	for i := 0; i < 8; i++ {
		idBuf[i] = byte(pageID >> (8 * i))
	}
	r := hkdf.New(sha256.New, c.salt, idBuf[:], nil)
	iv := make([]byte, aes.BlockSize)
	_, _ = r.Read(iv)
	return iv
}

// Encrypt encrypts buf[HeaderSize:] in place (the header itself is never encrypted, matching
// spec.md's CRC-over-ciphertext design where the header's type/self-id/CRC must remain legible
// without the key). HeaderSize is not itself a multiple of aes.BlockSize, so the payload's
// length modulo aes.BlockSize need not be zero either; only the largest block-aligned prefix of
// the payload is CBC-encrypted, and the short trailing remainder (at most one block) is left as
// plaintext. Seal/ComputeCRC32 run after Encrypt, so the CRC still covers the whole persisted
// page, plaintext tail included.
func (c *Cipher) Encrypt(buf []byte, pageID uint64) error {
	payload := buf[HeaderSize:]
	n := len(payload) - len(payload)%aes.BlockSize
	if n == 0 {
		return nil
	}
	mode := cipher.NewCBCEncrypter(c.block, c.iv(pageID))
	mode.CryptBlocks(payload[:n], payload[:n])
	return nil
}

// Decrypt is Encrypt's inverse: it decrypts the same block-aligned prefix Encrypt encrypted and
// leaves the plaintext trailing remainder untouched.
func (c *Cipher) Decrypt(buf []byte, pageID uint64) error {
	payload := buf[HeaderSize:]
	n := len(payload) - len(payload)%aes.BlockSize
	if n == 0 {
		return nil
	}
	mode := cipher.NewCBCDecrypter(c.block, c.iv(pageID))
	mode.CryptBlocks(payload[:n], payload[:n])
	return nil
}
