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

package kverrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAndIs(t *testing.T) {
	err := New("kv.Get", KindKeyNotFound)
	require.True(t, Is(err, KindKeyNotFound))
	require.False(t, Is(err, KindDuplicateKey))
	require.Equal(t, KindKeyNotFound, KindOf(err))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap("pager.Flush", KindIOError, cause)
	require.True(t, Is(err, KindIOError))
	require.ErrorIs(t, err, cause)
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.NoError(t, Wrap("op", KindIOError, nil))
}

func TestKindOfNilAndUnrecognized(t *testing.T) {
	require.Equal(t, KindNone, KindOf(nil))
	require.Equal(t, KindInternalError, KindOf(errors.New("plain")))
}

func TestSentinelsCarryExpectedKind(t *testing.T) {
	cases := map[error]Kind{
		ErrKeyNotFound:         KindKeyNotFound,
		ErrDuplicateKey:        KindDuplicateKey,
		ErrTxnConflict:         KindTxnConflict,
		ErrCursorStillOpen:     KindCursorStillOpen,
		ErrCursorIsNil:         KindCursorIsNil,
		ErrNeedRecovery:        KindNeedRecovery,
		ErrIntegrityViolated:   KindIntegrityViolated,
		ErrDatabaseNotFound:    KindDatabaseNotFound,
		ErrDatabaseExists:      KindDatabaseAlreadyExists,
		ErrDatabaseAlreadyOpen: KindDatabaseAlreadyOpen,
		ErrEnvAlreadyOpen:      KindEnvironmentAlreadyOpen,
		ErrWriteProtected:      KindWriteProtected,
		ErrNotReady:            KindNotReady,
		ErrLimitsReached:       KindLimitsReached,
		ErrTxnStillOpen:        KindTxnStillOpen,
	}
	for err, kind := range cases {
		require.True(t, Is(err, kind))
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap("device.ReadAt", KindIOError, errors.New("boom"))
	require.Contains(t, err.Error(), "device.ReadAt")
	require.Contains(t, err.Error(), "io-error")
	require.Contains(t, err.Error(), "boom")
}

func TestKindStringUnknown(t *testing.T) {
	require.Equal(t, "unknown", Kind(9999).String())
}
