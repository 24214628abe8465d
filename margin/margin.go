// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package margin applies a function to each row or each column of an
// in-memory matrix.
//
// Apply avoids the overhead of a general apply, which would first
// copy every row (column) into a uniform intermediate form and then
// combine the results. Instead, the function is called once on the
// first row (column) as a probe; the probe's result determines the
// shape of a preallocated output, into which the remaining results
// are written directly.
package margin

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/bgdata/value"
)

// A Func computes a value from a single row or column.
type Func func(x value.Vector) (value.Value, error)

// Apply calls fn with each row (along == matrix.Rows) or each column
// (along == matrix.Cols) of m, and assembles the results:
//
//	- if fn returns vectors of length 1, Apply returns a vector with
//	  one entry per row (column), named by the row (column) names;
//	- if fn returns vectors of length L > 1, Apply returns an L-by-n
//	  matrix whose i'th column is the i'th result; row names are the
//	  names of the probe result and column names the row (column)
//	  names of m;
//	- if fn returns lists or matrices, Apply returns a list with one
//	  element per row (column).
//
// Tables are not supported: Apply returns an errors.NotSupported
// error after the first call. Errors returned by fn are returned
// as-is.
func Apply(m *matrix.Dense, along matrix.Axis, fn Func) (value.Value, error) {
	if !along.Valid() {
		return nil, errors.E(errors.Precondition, fmt.Sprintf("invalid configuration: bad margin %v", along))
	}
	var (
		n          = m.NumRows
		names      = m.RowNames
		otherNames = m.ColNames
	)
	if along == matrix.Cols {
		n, names, otherNames = m.NumCols, m.ColNames, m.RowNames
	}
	if n == 0 {
		return value.Vector{Data: []float64{}}, nil
	}
	slice := func(i int) value.Vector {
		if along == matrix.Rows {
			return value.Vector{Data: m.Row(i), Names: otherNames}
		}
		return value.Vector{Data: append([]float64(nil), m.Col(i)...), Names: otherNames}
	}

	sample, err := fn(slice(0))
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, errors.E(errors.Invalid, "function returned no value")
	}
	switch sample.Kind() {
	case value.KindTable:
		return nil, errors.E(errors.NotSupported, "tables are not supported")
	case value.KindList, value.KindMatrix:
		out := value.List{Elems: make([]value.Value, n), Names: names}
		out.Elems[0] = sample
		for i := 1; i < n; i++ {
			if out.Elems[i], err = fn(slice(i)); err != nil {
				return nil, err
			}
		}
		return out, nil
	case value.KindVector:
	default:
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("unknown result kind %s", sample.Kind()))
	}

	vec, err := atomic(sample, len(sample.(value.Vector).Data), 0)
	if err != nil {
		return nil, err
	}
	if len(vec.Data) == 1 {
		out := value.Vector{Data: make([]float64, n), Names: names}
		out.Data[0] = vec.Data[0]
		for i := 1; i < n; i++ {
			x, err := fn(slice(i))
			if err != nil {
				return nil, err
			}
			v, err := atomic(x, 1, i)
			if err != nil {
				return nil, err
			}
			out.Data[i] = v.Data[0]
		}
		return out, nil
	}
	out := matrix.New(len(vec.Data), n)
	out.RowNames = vec.Names
	out.ColNames = names
	copy(out.Col(0), vec.Data)
	for i := 1; i < n; i++ {
		x, err := fn(slice(i))
		if err != nil {
			return nil, err
		}
		v, err := atomic(x, len(vec.Data), i)
		if err != nil {
			return nil, err
		}
		copy(out.Col(i), v.Data)
	}
	return value.Matrix{Dense: out}, nil
}

// Atomic checks that x is a vector of length n, as established by
// the probe call, whose names, if any, match its values.
func atomic(x value.Value, n, i int) (value.Vector, error) {
	if x == nil {
		return value.Vector{}, errors.E(errors.Invalid, fmt.Sprintf("function returned no value for element %d", i))
	}
	v, ok := x.(value.Vector)
	if !ok {
		return value.Vector{}, errors.E(errors.Invalid,
			fmt.Sprintf("shape mismatch: element %d returned a %s, expected a vector", i, x.Kind()))
	}
	if len(v.Data) != n {
		return value.Vector{}, errors.E(errors.Invalid,
			fmt.Sprintf("shape mismatch: element %d returned %d values, expected %d", i, len(v.Data), n))
	}
	if v.Names != nil && len(v.Names) != len(v.Data) {
		return value.Vector{}, errors.E(errors.Invalid,
			fmt.Sprintf("element %d returned %d names for %d values", i, len(v.Names), len(v.Data)))
	}
	return v, nil
}
