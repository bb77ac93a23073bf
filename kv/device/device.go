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

// Package device presents a uniform block-addressable backing store over either a real file
// (optionally memory-mapped) or an in-memory arena, per spec.md §4.1.
package device

// Device is the storage device abstraction every Pager is built on.
type Device interface {
	// ReadAt reads len(p) bytes starting at offset.
	ReadAt(p []byte, offset int64) (int, error)
	// WriteAt writes p starting at offset.
	WriteAt(p []byte, offset int64) (int, error)
	// Truncate grows or shrinks the device to exactly length bytes.
	Truncate(length int64) error
	// Flush pushes buffered writes to stable storage; if fsync is true it additionally forces
	// the data through to disk (fsync/FlushFileBuffers), not just to the OS page cache.
	Flush(fsync bool) error
	// Size returns the device's current length in bytes.
	Size() (int64, error)
	// Close releases the device's resources.
	Close() error

	// MapRegion returns a read/write view over [offset, offset+length) backed by a memory
	// mapping, when mapping is enabled and supported; ok is false otherwise and callers must
	// fall back to ReadAt/WriteAt.
	MapRegion(offset, length int64) (view []byte, ok bool)
}
