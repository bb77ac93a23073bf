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

package comparator

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterResolveUnregister(t *testing.T) {
	const name = "reverse-bytes"
	t.Cleanup(func() { Unregister(name) })

	_, ok := Resolve(name)
	require.False(t, ok)

	reverse := func(a, b []byte) int { return bytes.Compare(b, a) }
	Register(name, reverse)

	fn, ok := Resolve(name)
	require.True(t, ok)
	require.Equal(t, 1, fn([]byte("a"), []byte("b")))
	require.Equal(t, -1, fn([]byte("b"), []byte("a")))
	require.Equal(t, 0, fn([]byte("a"), []byte("a")))

	Unregister(name)
	_, ok = Resolve(name)
	require.False(t, ok)
}

func TestRegisterReplacesExisting(t *testing.T) {
	const name = "replaceable"
	t.Cleanup(func() { Unregister(name) })

	Register(name, func(a, b []byte) int { return 1 })
	Register(name, func(a, b []byte) int { return bytes.Compare(a, b) })

	fn, ok := Resolve(name)
	require.True(t, ok)
	require.Equal(t, 0, fn([]byte("x"), []byte("x")))
}
