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

// Package comparator is the only required process-wide state in kvengine (spec.md §9): a
// lazily-initialized, lock-protected registry mapping a comparator name to the CompareFunc a
// custom-keyed database resolves it to at open time.
package comparator

import "sync"

// CompareFunc must be deterministic and side-effect-free and return {-1, 0, +1}. It is called
// under the Environment lock (spec.md §5).
type CompareFunc func(a, b []byte) int

var (
	mu       sync.RWMutex
	registry = map[string]CompareFunc{}
)

// Register installs fn under name, replacing any previous registration. Typically called from
// an init() in the package that defines the comparator, before any Environment opens a database
// naming it.
func Register(name string, fn CompareFunc) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// Resolve looks up a previously Registered comparator.
func Resolve(name string) (CompareFunc, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Unregister removes a comparator; used by tests to avoid cross-test leakage.
func Unregister(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(registry, name)
}
