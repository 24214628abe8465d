// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"sync"
	"testing"
)

func TestStats(t *testing.T) {
	m := NewMap()
	if got, want := m.Get(Chunks), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	m.Add(Chunks, 123)
	m.Add(Chunks, 123)
	m.Add(Cells, 0)
	if got, want := m.Get(Chunks), int64(123*2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	all := make(Values)
	all.Merge(m.Snapshot())
	all.Merge(m.Snapshot())
	if got, want := len(all), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all[Chunks], int64(123*4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all.String(), "cells:0 chunks:492"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStatsConcurrent(t *testing.T) {
	const N = 64
	var (
		m  Map
		wg sync.WaitGroup
	)
	wg.Add(N)
	for i := 0; i < N; i++ {
		go func() {
			defer wg.Done()
			m.Add(Failed, 1)
		}()
	}
	wg.Wait()
	if got, want := m.Get(Failed), int64(N); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStatsNil(t *testing.T) {
	var m *Map
	m.Add(Chunks, 1)
	if got, want := m.Get(Chunks), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(m.Snapshot()), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
