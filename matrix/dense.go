// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package matrix

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
)

// Dense is an in-memory matrix of float64 values stored in
// column-major order. Missing values are represented by NaN.
// RowNames and ColNames are either nil or have one entry per row
// (column).
//
// Dense implements Handle, so that in-memory matrices can be used
// anywhere a file-backed one can.
type Dense struct {
	NumRows, NumCols int
	Data             []float64
	RowNames         []string
	ColNames         []string
}

// New returns a zero-filled rows-by-cols matrix.
func New(rows, cols int) *Dense {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("matrix.New: negative dimensions %dx%d", rows, cols))
	}
	return &Dense{
		NumRows: rows,
		NumCols: cols,
		Data:    make([]float64, rows*cols),
	}
}

// FromRows builds a matrix from a slice of equal-length rows. It is
// mostly useful for tests.
func FromRows(rows [][]float64) *Dense {
	var ncol int
	if len(rows) > 0 {
		ncol = len(rows[0])
	}
	m := New(len(rows), ncol)
	for i, row := range rows {
		if len(row) != ncol {
			panic(fmt.Sprintf("matrix.FromRows: row %d has %d columns, expected %d", i, len(row), ncol))
		}
		for j, v := range row {
			m.Set(i, j, v)
		}
	}
	return m
}

// Dim implements Handle.
func (m *Dense) Dim() (rows, cols int) { return m.NumRows, m.NumCols }

// DimNames implements Handle.
func (m *Dense) DimNames() (rows, cols []string) { return m.RowNames, m.ColNames }

// At returns the value at row i, column j.
func (m *Dense) At(i, j int) float64 { return m.Data[j*m.NumRows+i] }

// Set sets the value at row i, column j.
func (m *Dense) Set(i, j int, v float64) { m.Data[j*m.NumRows+i] = v }

// Col returns column j. The returned slice aliases the matrix data.
func (m *Dense) Col(j int) []float64 {
	return m.Data[j*m.NumRows : (j+1)*m.NumRows : (j+1)*m.NumRows]
}

// Row returns a copy of row i.
func (m *Dense) Row(i int) []float64 {
	row := make([]float64, m.NumCols)
	for j := range row {
		row[j] = m.At(i, j)
	}
	return row
}

// Subset implements Handle.
func (m *Dense) Subset(rows, cols []int) (*Dense, error) {
	if err := CheckIndices(Rows, rows, m.NumRows); err != nil {
		return nil, err
	}
	if err := CheckIndices(Cols, cols, m.NumCols); err != nil {
		return nil, err
	}
	out := New(len(rows), len(cols))
	for j, c := range cols {
		src := m.Col(c)
		dst := out.Col(j)
		for i, r := range rows {
			dst[i] = src[r]
		}
	}
	out.RowNames = pick(m.RowNames, rows)
	out.ColNames = pick(m.ColNames, cols)
	return out, nil
}

// Equal tells whether m and n have the same shape, names, and
// values. NaNs compare equal to each other.
func (m *Dense) Equal(n *Dense) bool {
	if m.NumRows != n.NumRows || m.NumCols != n.NumCols {
		return false
	}
	if !equalNames(m.RowNames, n.RowNames) || !equalNames(m.ColNames, n.ColNames) {
		return false
	}
	for i, v := range m.Data {
		w := n.Data[i]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}

func (m *Dense) String() string {
	return fmt.Sprintf("matrix(%dx%d)", m.NumRows, m.NumCols)
}

// CheckIndices returns an errors.Invalid error if any index in ix is
// outside of [0, extent).
func CheckIndices(axis Axis, ix []int, extent int) error {
	for _, i := range ix {
		if i < 0 || i >= extent {
			return errors.E(errors.Invalid,
				fmt.Sprintf("invalid selector: %s index %d out of range [0, %d)", axis, i, extent))
		}
	}
	return nil
}

// Bind concatenates the provided matrices along the given axis:
// Cols binds columns (all matrices must have the same number of
// rows), Rows binds rows. Names along the bound axis are
// concatenated when any input carries them; names along the other
// axis are taken from the first matrix.
func Bind(along Axis, ms ...*Dense) (*Dense, error) {
	if len(ms) == 0 {
		return New(0, 0), nil
	}
	first := ms[0]
	var n int
	for i, m := range ms {
		switch along {
		case Cols:
			if m.NumRows != first.NumRows {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("shape mismatch: matrix %d has %d rows, expected %d", i, m.NumRows, first.NumRows))
			}
			n += m.NumCols
		case Rows:
			if m.NumCols != first.NumCols {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("shape mismatch: matrix %d has %d columns, expected %d", i, m.NumCols, first.NumCols))
			}
			n += m.NumRows
		default:
			return nil, errors.E(errors.Precondition, fmt.Sprintf("invalid configuration: bad axis %v", along))
		}
	}
	var out *Dense
	if along == Cols {
		out = New(first.NumRows, n)
		out.RowNames = first.RowNames
		var off int
		for _, m := range ms {
			copy(out.Data[off*out.NumRows:], m.Data)
			off += m.NumCols
		}
		out.ColNames = concatNames(ms, func(m *Dense) ([]string, int) { return m.ColNames, m.NumCols })
		return out, nil
	}
	out = New(n, first.NumCols)
	out.ColNames = first.ColNames
	var off int
	for _, m := range ms {
		for j := 0; j < m.NumCols; j++ {
			copy(out.Col(j)[off:], m.Col(j))
		}
		off += m.NumRows
	}
	out.RowNames = concatNames(ms, func(m *Dense) ([]string, int) { return m.RowNames, m.NumRows })
	return out, nil
}

func concatNames(ms []*Dense, names func(*Dense) ([]string, int)) []string {
	var any bool
	for _, m := range ms {
		if nm, _ := names(m); nm != nil {
			any = true
			break
		}
	}
	if !any {
		return nil
	}
	var out []string
	for _, m := range ms {
		nm, n := names(m)
		if nm == nil {
			nm = make([]string, n)
		}
		out = append(out, nm...)
	}
	return out
}

func pick(names []string, ix []int) []string {
	if names == nil {
		return nil
	}
	out := make([]string, len(ix))
	for i, j := range ix {
		out[i] = names[j]
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
