// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package margin

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/bgdata/value"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func testMatrix() *matrix.Dense {
	m := matrix.FromRows([][]float64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
		{10, 11, 12},
		{13, 14, 15},
	})
	m.RowNames = []string{"s1", "s2", "s3", "s4", "s5"}
	m.ColNames = []string{"m1", "m2", "m3"}
	return m
}

func sum(x value.Vector) (value.Value, error) {
	var s float64
	for _, v := range x.Data {
		s += v
	}
	return value.Scalar(s), nil
}

func double(x value.Vector) (value.Value, error) {
	out := value.Vector{Data: make([]float64, len(x.Data)), Names: x.Names}
	for i, v := range x.Data {
		out.Data[i] = 2 * v
	}
	return out, nil
}

func TestApplyScalar(t *testing.T) {
	m := testMatrix()
	got, err := Apply(m, matrix.Rows, sum)
	assert.NoError(t, err)
	expect.EQ(t, got, value.Vector{
		Data:  []float64{6, 15, 24, 33, 42},
		Names: m.RowNames,
	})

	got, err = Apply(m, matrix.Cols, sum)
	assert.NoError(t, err)
	expect.EQ(t, got, value.Vector{
		Data:  []float64{35, 40, 45},
		Names: m.ColNames,
	})
}

func TestApplyVector(t *testing.T) {
	m := testMatrix()
	got, err := Apply(m, matrix.Rows, double)
	assert.NoError(t, err)
	out := got.(value.Matrix)
	if r, c := out.Dim(); r != 3 || c != 5 {
		t.Fatalf("got %dx%d, want 3x5", r, c)
	}
	for i := 0; i < 5; i++ {
		row := m.Row(i)
		for j := range row {
			row[j] *= 2
		}
		expect.EQ(t, out.Col(i), row)
	}
	expect.EQ(t, out.RowNames, m.ColNames)
	expect.EQ(t, out.ColNames, m.RowNames)
}

func TestApplyList(t *testing.T) {
	m := testMatrix()
	got, err := Apply(m, matrix.Cols, func(x value.Vector) (value.Value, error) {
		return value.List{Elems: []value.Value{value.Scalar(x.Data[0])}}, nil
	})
	assert.NoError(t, err)
	l := got.(value.List)
	if got, want := l.Len(), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	expect.EQ(t, l.Names, m.ColNames)
	expect.EQ(t, l.Elems[2], value.List{Elems: []value.Value{value.Scalar(3)}})
}

func TestApplyTable(t *testing.T) {
	var calls int
	_, err := Apply(testMatrix(), matrix.Rows, func(x value.Vector) (value.Value, error) {
		calls++
		return value.Table{Levels: []string{"0", "1"}, Counts: []int{1, 2}}, nil
	})
	if !errors.Is(errors.NotSupported, err) {
		t.Errorf("expected not supported error, got %v", err)
	}
	if got, want := calls, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestApplyError(t *testing.T) {
	want := errors.E("boom")
	var calls int
	_, err := Apply(testMatrix(), matrix.Cols, func(x value.Vector) (value.Value, error) {
		calls++
		if calls == 2 {
			return nil, want
		}
		return value.Scalar(0), nil
	})
	if err != want {
		t.Errorf("got %v, want %v", err, want)
	}
	if got, want := calls, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestApplyLengthMismatch(t *testing.T) {
	_, err := Apply(testMatrix(), matrix.Rows, func(x value.Vector) (value.Value, error) {
		if x.Data[0] == 1 {
			return value.Vector{Data: []float64{1, 2}}, nil
		}
		return value.Scalar(1), nil
	})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestApplyBadNames(t *testing.T) {
	for _, first := range []bool{true, false} {
		var calls int
		_, err := Apply(testMatrix(), matrix.Cols, func(x value.Vector) (value.Value, error) {
			calls++
			v := value.Vector{Data: []float64{1, 2}, Names: []string{"a", "b"}}
			if first == (calls == 1) {
				v.Names = []string{"a"}
			}
			return v, nil
		})
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("first=%v: expected invalid error, got %v", first, err)
		}
	}
	_, err := Apply(testMatrix(), matrix.Rows, func(x value.Vector) (value.Value, error) {
		return value.Vector{Data: []float64{1}, Names: []string{"a", "b"}}, nil
	})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestApplyEmpty(t *testing.T) {
	m := matrix.New(0, 3)
	got, err := Apply(m, matrix.Rows, func(value.Vector) (value.Value, error) {
		t.Fatal("unexpected call")
		return nil, nil
	})
	assert.NoError(t, err)
	if got, want := got.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
