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

// Package kvlog is the structured logging helper shared by every kvengine subsystem. It wraps
// zap the way the rest of the corpus wires its logging dependency, and attaches a caller frame
// to Error-level records via go-stack/stack for diagnostics (page corruption, recovery
// failures) where a stack frame materially helps an operator.
package kvlog

import (
	"github.com/go-stack/stack"
	"go.uber.org/zap"
)

// Logger is the logging surface passed down from Environment to every subsystem.
type Logger struct {
	z *zap.Logger
}

// Nop returns a Logger that discards everything; it is the default when no logger is
// configured via kvcfg.WithLogger.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// New wraps an existing zap.Logger.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Named returns a child logger scoped to a subsystem, e.g. kvlog.Nop().Named("pager").
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.z.Sugar().Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.z.Sugar().Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.z.Sugar().Warnw(msg, kv...) }

// Error logs at error level with the immediate caller frame attached, the way the teacher's
// diagnostic paths (page corruption, recovery failure) want a frame to point at without a full
// stack trace.
func (l *Logger) Error(msg string, kv ...any) {
	frame := stack.Caller(1)
	kv = append(kv, "at", frame.String())
	l.z.Sugar().Errorw(msg, kv...)
}
