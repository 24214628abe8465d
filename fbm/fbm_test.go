// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fbm

import (
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func genotypes(r *rand.Rand, rows, cols int) *matrix.Dense {
	m := matrix.New(rows, cols)
	for i := range m.Data {
		if r.Intn(20) == 0 {
			m.Data[i] = math.NaN()
		} else {
			m.Data[i] = float64(r.Intn(3))
		}
	}
	m.RowNames = make([]string, rows)
	for i := range m.RowNames {
		m.RowNames[i] = "s" + string(rune('a'+i%26))
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "fbm")
	defer cleanup()
	r := rand.New(rand.NewSource(1))
	for _, typ := range []Type{Int8, Float64} {
		t.Run(typ.String(), func(t *testing.T) {
			want := genotypes(r, 37, 11)
			if typ == Float64 {
				want.Data[3] = 0.125
			}
			path := filepath.Join(dir, typ.String()+".fbm")
			assert.NoError(t, WriteDense(path, typ, want))
			m, err := Open(path)
			assert.NoError(t, err)
			defer m.Close()
			rows, cols := m.Dim()
			if rows != 37 || cols != 11 {
				t.Fatalf("got %dx%d, want 37x11", rows, cols)
			}
			all := make([]int, rows)
			for i := range all {
				all[i] = i
			}
			allCols := make([]int, cols)
			for j := range allCols {
				allCols[j] = j
			}
			got, err := m.Subset(all, allCols)
			assert.NoError(t, err)
			if !got.Equal(want) {
				t.Errorf("got %v, want %v", got.Data, want.Data)
			}

			sub, err := m.Subset([]int{5, 5, 0}, []int{10, 2})
			assert.NoError(t, err)
			wantSub, err := want.Subset([]int{5, 5, 0}, []int{10, 2})
			assert.NoError(t, err)
			if !sub.Equal(wantSub) {
				t.Errorf("got %v, want %v", sub.Data, wantSub.Data)
			}
		})
	}
}

func TestInt8Range(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "fbm")
	defer cleanup()
	w, err := Create(filepath.Join(dir, "x.fbm"), Header{Dims: []int{1, 3}, Type: Int8})
	assert.NoError(t, err)
	defer w.Close()
	assert.NoError(t, w.Set(0, 0, -127))
	for _, v := range []float64{128, -128, 0.5} {
		if err := w.Set(0, 1, v); !errors.Is(errors.Invalid, err) {
			t.Errorf("%v: expected invalid error, got %v", v, err)
		}
	}
	if err := w.Set(1, 0, 0); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestLocator(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "fbm")
	defer cleanup()
	path := filepath.Join(dir, "x.fbm")
	want := genotypes(rand.New(rand.NewSource(2)), 4, 4)
	assert.NoError(t, WriteDense(path, Int8, want))
	m, err := Open(path)
	assert.NoError(t, err)
	defer m.Close()
	loc, err := m.Locator()
	assert.NoError(t, err)
	expect.EQ(t, loc.Format, Format)

	h, err := matrix.Open(loc)
	assert.NoError(t, err)
	defer h.(*Matrix).Close()
	got, err := h.Subset([]int{0, 1, 2, 3}, []int{0, 1, 2, 3})
	assert.NoError(t, err)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got.Data, want.Data)
	}

	// A replaced file no longer matches the locator.
	want.RowNames[0] = "changed"
	assert.NoError(t, WriteDense(path+".new", Int8, want))
	assert.NoError(t, os.Rename(path+".new", path))
	_, err = matrix.Open(loc)
	if !errors.Is(errors.Integrity, err) {
		t.Errorf("expected integrity error, got %v", err)
	}
}

func TestBadFiles(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "fbm")
	defer cleanup()
	path := filepath.Join(dir, "bad.fbm")
	assert.NoError(t, ioutil.WriteFile(path, []byte("not an fbm file at all"), 0644))
	_, err := Open(path)
	if !errors.Is(errors.Integrity, err) {
		t.Errorf("expected integrity error, got %v", err)
	}

	for _, data := range []string{"", "BGD"} {
		assert.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
		if _, err := Open(path); !errors.Is(errors.Integrity, err) {
			t.Errorf("%q: expected integrity error, got %v", data, err)
		}
	}

	_, err = Create(path, Header{Dims: []int{1, 2, 3}, Type: Int8})
	if !errors.Is(errors.Precondition, err) {
		t.Errorf("expected precondition error, got %v", err)
	}

	// Truncated data.
	assert.NoError(t, WriteDense(path, Float64, matrix.New(10, 10)))
	info, err := os.Stat(path)
	assert.NoError(t, err)
	assert.NoError(t, os.Truncate(path, info.Size()-8))
	_, err = Open(path)
	if !errors.Is(errors.Integrity, err) {
		t.Errorf("expected integrity error, got %v", err)
	}
}

func TestIncompleteWrite(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "fbm")
	defer cleanup()
	path := filepath.Join(dir, "x.fbm")

	w, err := Create(path, Header{Dims: []int{2, 2}, Type: Int8})
	assert.NoError(t, err)
	assert.NoError(t, w.SetRow(0, []float64{1, 2}))
	if _, err := Open(path); err == nil {
		t.Error("matrix visible before close")
	}
	w.Discard()
	w.Discard()
	assert.NoError(t, w.Close())
	if _, err := Open(path); err == nil {
		t.Error("discarded matrix is readable")
	}

	m := matrix.FromRows([][]float64{{0, 1}, {2, 3.5}})
	if err := WriteDense(path, Int8, m); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Error("failed write left a readable matrix")
	}
	infos, err := ioutil.ReadDir(dir)
	assert.NoError(t, err)
	expect.EQ(t, len(infos), 0)
}

func TestConcurrentSubset(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "fbm")
	defer cleanup()
	path := filepath.Join(dir, "x.fbm")
	want := genotypes(rand.New(rand.NewSource(3)), 100, 50)
	assert.NoError(t, WriteDense(path, Int8, want))
	m, err := Open(path)
	assert.NoError(t, err)
	defer m.Close()
	rows := make([]int, 100)
	for i := range rows {
		rows[i] = i
	}
	var wg sync.WaitGroup
	for j := 0; j < 50; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			got, err := m.Subset(rows, []int{j})
			if err != nil {
				t.Error(err)
				return
			}
			wantCol, _ := want.Subset(rows, []int{j})
			if !got.Equal(wantCol) {
				t.Errorf("column %d: got %v, want %v", j, got.Data, wantCol.Data)
			}
		}(j)
	}
	wg.Wait()
}

func TestClosed(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "fbm")
	defer cleanup()
	path := filepath.Join(dir, "x.fbm")
	assert.NoError(t, WriteDense(path, Int8, matrix.New(2, 2)))
	m, err := Open(path)
	assert.NoError(t, err)
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
	_, err = m.Subset([]int{0}, []int{0})
	if !errors.Is(errors.Precondition, err) {
		t.Errorf("expected precondition error, got %v", err)
	}
}
