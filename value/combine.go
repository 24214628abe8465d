// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package value

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/matrix"
)

// Combine reassembles an ordered list of per-chunk values into a
// single value. The shape is taken from the first value:
//
//	- matrices are bound along the provided axis (matrix.Cols
//	  column-binds, matrix.Rows row-binds), keeping the first chunk's
//	  names on the other axis;
//	- vectors are concatenated, keeping names if any chunk has them;
//	- lists are concatenated, keeping names if any chunk has them.
//
// Values whose kind differs from the first value's, and matrices
// whose extents do not line up, result in an errors.Invalid "shape
// mismatch" error, as do vectors and lists whose names do not match
// their lengths. Tables cannot be combined. An empty input
// combines to an empty vector.
func Combine(vals []Value, along matrix.Axis) (Value, error) {
	if len(vals) == 0 {
		return Vector{Data: []float64{}}, nil
	}
	kind := vals[0].Kind()
	for i, v := range vals {
		if v.Kind() != kind {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("shape mismatch: chunk %d returned a %s, chunk 1 returned a %s", i+1, v.Kind(), kind))
		}
	}
	switch kind {
	case KindMatrix:
		ms := make([]*matrix.Dense, len(vals))
		for i, v := range vals {
			ms[i] = v.(Matrix).Dense
		}
		m, err := matrix.Bind(along, ms...)
		if err != nil {
			return nil, err
		}
		return Matrix{m}, nil
	case KindVector:
		var (
			out   Vector
			named bool
		)
		for i, v := range vals {
			vec := v.(Vector)
			if vec.Names != nil && len(vec.Names) != len(vec.Data) {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("chunk %d returned %d names for %d values", i+1, len(vec.Names), len(vec.Data)))
			}
			out.Data = append(out.Data, vec.Data...)
			named = named || vec.Names != nil
		}
		if out.Data == nil {
			out.Data = []float64{}
		}
		if named {
			out.Names = make([]string, 0, len(out.Data))
			for _, v := range vals {
				vec := v.(Vector)
				if vec.Names != nil {
					out.Names = append(out.Names, vec.Names...)
				} else {
					out.Names = append(out.Names, make([]string, len(vec.Data))...)
				}
			}
		}
		return out, nil
	case KindList:
		var (
			out   List
			named bool
		)
		for i, v := range vals {
			l := v.(List)
			if l.Names != nil && len(l.Names) != len(l.Elems) {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("chunk %d returned %d names for %d elements", i+1, len(l.Names), len(l.Elems)))
			}
			out.Elems = append(out.Elems, l.Elems...)
			named = named || l.Names != nil
		}
		if named {
			for _, v := range vals {
				l := v.(List)
				if l.Names != nil {
					out.Names = append(out.Names, l.Names...)
				} else {
					out.Names = append(out.Names, make([]string, len(l.Elems))...)
				}
			}
		}
		return out, nil
	default:
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("cannot combine values of kind %s", kind))
	}
}
