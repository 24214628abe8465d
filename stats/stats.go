// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats keeps counters of the chunk work performed by a
// process. Workers snapshot their counters and report them to the
// driver, which aggregates them across workers for status display.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// A Counter names a quantity tracked by a Map.
type Counter string

const (
	// Chunks counts chunks that completed successfully.
	Chunks Counter = "chunks"
	// Failed counts chunks that failed, including chunks that were
	// skipped because an earlier chunk in the same batch failed.
	Failed Counter = "failed"
	// Cells counts matrix cells materialized into memory.
	Cells Counter = "cells"
	// Batches counts batches of chunks run by a worker.
	Batches Counter = "batches"
)

// Values is a snapshot of counter values.
type Values map[Counter]int64

// Merge adds all of w's values to v.
func (v Values) Merge(w Values) {
	for k, n := range w {
		v[k] += n
	}
}

// String returns an abbreviated string with the values in this
// snapshot sorted by counter name.
func (v Values) String() string {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, v[Counter(key)])
	}
	return strings.Join(keys, " ")
}

// A Map is a set of counters. The zero Map is ready to use; a nil
// *Map discards all updates.
type Map struct {
	mu     sync.Mutex
	values map[Counter]*int64
}

// NewMap returns a fresh Map.
func NewMap() *Map {
	return new(Map)
}

func (m *Map) counter(c Counter) *int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[Counter]*int64)
	}
	p := m.values[c]
	if p == nil {
		p = new(int64)
		m.values[c] = p
	}
	return p
}

// Add increments counter c by delta.
func (m *Map) Add(c Counter, delta int64) {
	if m == nil {
		return
	}
	atomic.AddInt64(m.counter(c), delta)
}

// Get returns the current value of counter c.
func (m *Map) Get(c Counter) int64 {
	if m == nil {
		return 0
	}
	return atomic.LoadInt64(m.counter(c))
}

// Snapshot returns the current values of all counters in m.
func (m *Map) Snapshot() Values {
	vals := make(Values)
	if m == nil {
		return vals
	}
	m.mu.Lock()
	for k, p := range m.values {
		vals[k] = atomic.LoadInt64(p)
	}
	m.mu.Unlock()
	return vals
}
