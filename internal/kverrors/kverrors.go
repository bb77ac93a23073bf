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

// Package kverrors defines the error-kind taxonomy returned at the kvengine boundary.
// Every operation returns an explicit status: errors are values, never exceptions, and each
// condition maps to exactly one Kind.
package kverrors

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds kvengine returns at its public boundary.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidParameter
	KindInvalidFileHeader
	KindInvalidFileVersion
	KindInvalidPageSize
	KindInvalidKeySize
	KindInvalidRecordSize
	KindOutOfMemory
	KindKeyNotFound
	KindDuplicateKey
	KindIntegrityViolated
	KindInternalError
	KindWriteProtected
	KindIOError
	KindNotImplemented
	KindFileNotFound
	KindWouldBlock
	KindNotReady
	KindLimitsReached
	KindAlreadyInitialized
	KindNeedRecovery
	KindCursorStillOpen
	KindFilterNotFound
	KindTxnConflict
	KindTxnStillOpen
	KindCursorIsNil
	KindDatabaseNotFound
	KindDatabaseAlreadyExists
	KindDatabaseAlreadyOpen
	KindEnvironmentAlreadyOpen
	KindLogInvalidFileHeader
	KindNetworkError
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "success"
	case KindInvalidParameter:
		return "invalid-parameter"
	case KindInvalidFileHeader:
		return "invalid-file-header"
	case KindInvalidFileVersion:
		return "invalid-file-version"
	case KindInvalidPageSize:
		return "invalid-page-size"
	case KindInvalidKeySize:
		return "invalid-key-size"
	case KindInvalidRecordSize:
		return "invalid-record-size"
	case KindOutOfMemory:
		return "out-of-memory"
	case KindKeyNotFound:
		return "key-not-found"
	case KindDuplicateKey:
		return "duplicate-key"
	case KindIntegrityViolated:
		return "integrity-violated"
	case KindInternalError:
		return "internal-error"
	case KindWriteProtected:
		return "write-protected"
	case KindIOError:
		return "io-error"
	case KindNotImplemented:
		return "not-implemented"
	case KindFileNotFound:
		return "file-not-found"
	case KindWouldBlock:
		return "would-block"
	case KindNotReady:
		return "not-ready"
	case KindLimitsReached:
		return "limits-reached"
	case KindAlreadyInitialized:
		return "already-initialized"
	case KindNeedRecovery:
		return "need-recovery"
	case KindCursorStillOpen:
		return "cursor-still-open"
	case KindFilterNotFound:
		return "filter-not-found"
	case KindTxnConflict:
		return "txn-conflict"
	case KindTxnStillOpen:
		return "txn-still-open"
	case KindCursorIsNil:
		return "cursor-is-nil"
	case KindDatabaseNotFound:
		return "database-not-found"
	case KindDatabaseAlreadyExists:
		return "database-already-exists"
	case KindDatabaseAlreadyOpen:
		return "database-already-open"
	case KindEnvironmentAlreadyOpen:
		return "environment-already-open"
	case KindLogInvalidFileHeader:
		return "log-invalid-file-header"
	case KindNetworkError:
		return "network-error"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by kvengine operations. Op names the failing
// operation (e.g. "btree.Insert"), Kind classifies it per the taxonomy above, and Err carries
// the underlying cause when there is one (an I/O error, a codec error, ...).
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error for op/kind with no wrapped cause.
func New(op string, kind Kind) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap constructs an *Error for op/kind wrapping err. If err is nil, Wrap returns nil.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Is reports whether the first *Error in err's chain (the one errors.As finds) has the given
// Kind; a Kind carried only by an *Error wrapped further down the chain is not matched.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or KindNone if err is nil, or KindInternalError if err
// does not carry a recognized Kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalError
}

// Sentinel convenience constructors, one per kind that callers commonly compare against with
// errors.Is — named the way the teacher's kv_interface.go names its package-level sentinels
// (ErrUnknownBucket, ErrAttemptToDeleteNonDeprecatedBucket).
var (
	ErrKeyNotFound         = New("kv", KindKeyNotFound)
	ErrDuplicateKey        = New("kv", KindDuplicateKey)
	ErrTxnConflict         = New("kv", KindTxnConflict)
	ErrCursorStillOpen     = New("kv", KindCursorStillOpen)
	ErrCursorIsNil         = New("kv", KindCursorIsNil)
	ErrNeedRecovery        = New("kv", KindNeedRecovery)
	ErrIntegrityViolated   = New("kv", KindIntegrityViolated)
	ErrDatabaseNotFound    = New("kv", KindDatabaseNotFound)
	ErrDatabaseExists      = New("kv", KindDatabaseAlreadyExists)
	ErrDatabaseAlreadyOpen = New("kv", KindDatabaseAlreadyOpen)
	ErrEnvAlreadyOpen      = New("kv", KindEnvironmentAlreadyOpen)
	ErrWriteProtected      = New("kv", KindWriteProtected)
	ErrNotReady            = New("kv", KindNotReady)
	ErrLimitsReached       = New("kv", KindLimitsReached)
	ErrTxnStillOpen        = New("kv", KindTxnStillOpen)
)
