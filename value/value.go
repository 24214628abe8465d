// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package value defines the values returned by user functions in
// chunked computations, and Combine, which reassembles per-chunk
// values into a single aggregate.
//
// The shape of a user function's result is not declared in advance.
// Instead, every result is a Value: a tagged variant that is either
// an atomic Vector (a scalar is a vector of length 1), a Matrix, a
// List of values, or a Table. Callers branch on Kind to choose how
// to store and combine results.
//
// All value types are registered with encoding/gob so that they can
// be returned from worker processes.
package value

import (
	"encoding/gob"
	"fmt"

	"github.com/grailbio/bgdata/matrix"
)

func init() {
	gob.Register(Vector{})
	gob.Register(Matrix{})
	gob.Register(List{})
	gob.Register(Table{})
}

// Kind is the shape family of a value.
type Kind int

const (
	// KindVector is an atomic vector, possibly of length 1.
	KindVector Kind = iota
	// KindMatrix is a two-dimensional matrix.
	KindMatrix
	// KindList is a list of arbitrary values.
	KindList
	// KindTable is a contingency table.
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindMatrix:
		return "matrix"
	case KindList:
		return "list"
	case KindTable:
		return "table"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// A Value is the result of a user function.
type Value interface {
	// Kind returns the value's shape family.
	Kind() Kind
	// Len returns the number of elements in the value.
	Len() int
}

// Vector is an atomic vector of numbers with optional names.
type Vector struct {
	Data  []float64
	Names []string
}

// Scalar returns a vector of length 1.
func Scalar(v float64) Vector { return Vector{Data: []float64{v}} }

// Kind implements Value.
func (Vector) Kind() Kind { return KindVector }

// Len implements Value.
func (v Vector) Len() int { return len(v.Data) }

// Name returns the name of element i, or "" if v is unnamed.
func (v Vector) Name(i int) string {
	if v.Names == nil {
		return ""
	}
	return v.Names[i]
}

// Matrix is a matrix-valued result.
type Matrix struct {
	*matrix.Dense
}

// Kind implements Value.
func (Matrix) Kind() Kind { return KindMatrix }

// Len implements Value.
func (m Matrix) Len() int { return m.NumRows * m.NumCols }

// List is a list of values with optional names.
type List struct {
	Elems []Value
	Names []string
}

// Kind implements Value.
func (List) Kind() Kind { return KindList }

// Len implements Value.
func (l List) Len() int { return len(l.Elems) }

// Table is a table of counts by level, as produced by tabulating
// categorical data.
type Table struct {
	Levels []string
	Counts []int
}

// Kind implements Value.
func (Table) Kind() Kind { return KindTable }

// Len implements Value.
func (t Table) Len() int { return len(t.Counts) }
