// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package logger

import "sync"

// Mock is a Logger that records messages in memory instead of writing
// them out, for use in tests that assert on warning/error text (e.g. the
// exact templates required by §4.D and §7).
type Mock struct {
	mu     sync.Mutex
	debugs []string
	infos  []string
	warns  []string
	errors []string
}

// NewMock returns a Logger suitable for assertions in tests.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Debug(msg string) { m.append(&m.debugs, msg) }
func (m *Mock) Info(msg string)  { m.append(&m.infos, msg) }
func (m *Mock) Warn(msg string)  { m.append(&m.warns, msg) }
func (m *Mock) Error(msg string) { m.append(&m.errors, msg) }
func (m *Mock) Fatal(msg string) { m.append(&m.errors, msg) }

func (m *Mock) append(dst *[]string, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*dst = append(*dst, msg)
}

// Warnings returns every message logged at warning level, in order.
func (m *Mock) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warns...)
}

// Errors returns every message logged at error level, in order.
func (m *Mock) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}

// Infos returns every message logged at info level, in order.
func (m *Mock) Infos() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.infos...)
}
