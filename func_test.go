// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgdata

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/bgdata/value"
	"github.com/grailbio/testutil/assert"
)

var (
	fnTestChunk = Func(func(_ context.Context, m *matrix.Dense, args ...interface{}) (value.Value, error) {
		return value.Scalar(float64(m.NumCols + args[0].(int))), nil
	})
	fnTestVector = Func(VectorFunc(func(x value.Vector, _ ...interface{}) (value.Value, error) {
		return value.Scalar(float64(len(x.Data))), nil
	}))
)

func TestFunc(t *testing.T) {
	if !fnTestChunk.IsChunk() || fnTestChunk.IsVector() {
		t.Error("expected chunk func")
	}
	if !fnTestVector.IsVector() || fnTestVector.IsChunk() {
		t.Error("expected vector func")
	}
	inv := fnTestChunk.Invocation(2)
	f, err := inv.FuncValue()
	assert.NoError(t, err)
	if f != fnTestChunk {
		t.Fatalf("got %v, want %v", f, fnTestChunk)
	}
	v, err := f.CallChunk(context.Background(), matrix.New(1, 3), inv.Args...)
	assert.NoError(t, err)
	if got, want := v, value.Value(value.Scalar(5)); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	_, err = fnTestVector.CallChunk(context.Background(), matrix.New(1, 1))
	if !errors.Is(errors.Precondition, err) {
		t.Errorf("expected precondition error, got %v", err)
	}
	if !strings.HasSuffix(strings.SplitN(fnTestVector.Location(), ":", 2)[0], "func_test.go") {
		t.Errorf("bad location %s", fnTestVector.Location())
	}
}

func TestFuncBadType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Func(func(int) int { return 0 })
}

func TestLookup(t *testing.T) {
	_, err := Lookup(1 << 20)
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("expected not exist error, got %v", err)
	}
	locs := FuncLocations()
	if got, want := locs[fnTestVector.Index()], fnTestVector.Location(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFuncLocationsDiff(t *testing.T) {
	for _, c := range []struct {
		lhs  []string
		rhs  []string
		diff []string
	}{
		{nil, nil, nil},
		{[]string{"a"}, []string{"a"}, nil},
		{
			[]string{},
			[]string{"a"},
			[]string{"+ a"},
		},
		{
			[]string{"a", "b"},
			[]string{"a"},
			[]string{"a", "- b"},
		},
		{
			[]string{"a", "b"},
			[]string{"b"},
			[]string{"- a", "b"},
		},
		{
			[]string{"a"},
			[]string{"a", "b"},
			[]string{"a", "+ b"},
		},
		{
			[]string{"a", "c"},
			[]string{"a", "b", "c", "d"},
			[]string{"a", "+ b", "c", "+ d"},
		},
		{
			[]string{"a", "b", "d"},
			[]string{"a", "c", "d"},
			[]string{"a", "- b", "+ c", "d"},
		},
		{
			[]string{"a", "b", "c"},
			[]string{"a", "c", "d", "e"},
			[]string{"a", "- b", "c", "+ d", "+ e"},
		},
	} {
		if got, want := FuncLocationsDiff(c.lhs, c.rhs), c.diff; !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
