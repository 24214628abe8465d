// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fbm

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/matrix"
)

// A Writer fills in the data of a new fbm file. Elements may be
// written in any order; elements that are never written are zero.
// Data is written to a temporary file next to the destination, which
// is renamed into place by Close, so that an incomplete matrix is
// never visible at the destination path. Writers are not safe for
// concurrent use.
type Writer struct {
	path   string
	tmp    string
	hdr    Header
	f      *os.File
	mapped []byte
	data   []byte
}

// Create creates a new fbm file at path with the provided header,
// sized for the full matrix. The file appears at path once the
// returned writer is closed; Discard abandons it.
func Create(path string, hdr Header) (*Writer, error) {
	if err := hdr.validate(); err != nil {
		return nil, err
	}
	prefix, _, err := encodeHeader(hdr)
	if err != nil {
		return nil, err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("fbm: create %s", path))
	}
	fail := func(err error, op string) (*Writer, error) {
		f.Close()
		os.Remove(tmp)
		return nil, errors.E(err, fmt.Sprintf("fbm: %s %s", op, path))
	}
	size := int64(len(prefix)) + hdr.dataSize()
	if err := f.Truncate(size); err != nil {
		return fail(err, "truncate")
	}
	mapped, err := mmapWritable(f, int(size))
	if err != nil {
		return fail(err, "mmap")
	}
	copy(mapped, prefix)
	return &Writer{
		path:   path,
		tmp:    tmp,
		hdr:    hdr,
		f:      f,
		mapped: mapped,
		data:   mapped[len(prefix):],
	}, nil
}

// Set stores v at row i, column j. NaN is stored as a missing
// value. Int8 matrices accept only integers in [-127, 127].
func (w *Writer) Set(i, j int, v float64) error {
	nrow, ncol := w.hdr.Dims[0], w.hdr.Dims[1]
	if i < 0 || i >= nrow || j < 0 || j >= ncol {
		return errors.E(errors.Invalid, fmt.Sprintf("fbm: element (%d, %d) out of range for %dx%d matrix", i, j, nrow, ncol))
	}
	off := j*nrow + i
	switch w.hdr.Type {
	case Int8:
		if math.IsNaN(v) {
			w.data[off] = byte(0x80)
			return nil
		}
		if v != math.Trunc(v) || v < -127 || v > 127 {
			return errors.E(errors.Invalid, fmt.Sprintf("fbm: value %v at (%d, %d) cannot be stored as int8", v, i, j))
		}
		w.data[off] = byte(int8(v))
	case Float64:
		binary.LittleEndian.PutUint64(w.data[off*8:], math.Float64bits(v))
	}
	return nil
}

// SetRow stores the values of row i.
func (w *Writer) SetRow(i int, row []float64) error {
	if len(row) != w.hdr.Dims[1] {
		return errors.E(errors.Invalid, fmt.Sprintf("fbm: row has %d values, expected %d", len(row), w.hdr.Dims[1]))
	}
	for j, v := range row {
		if err := w.Set(i, j, v); err != nil {
			return err
		}
	}
	return nil
}

// Write stores all of m, which must have the writer's dimensions.
func (w *Writer) Write(m *matrix.Dense) error {
	if m.NumRows != w.hdr.Dims[0] || m.NumCols != w.hdr.Dims[1] {
		return errors.E(errors.Invalid,
			fmt.Sprintf("fbm: matrix is %dx%d, expected %dx%d", m.NumRows, m.NumCols, w.hdr.Dims[0], w.hdr.Dims[1]))
	}
	for j := 0; j < m.NumCols; j++ {
		for i, v := range m.Col(j) {
			if err := w.Set(i, j, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes the matrix to disk and moves it to its destination
// path. If Close fails, nothing is left at the destination.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := msync(w.mapped)
	if e := w.release(); err == nil {
		err = e
	}
	if err == nil {
		err = os.Rename(w.tmp, w.path)
	}
	if err != nil {
		os.Remove(w.tmp)
		return errors.E(err, fmt.Sprintf("fbm: close %s", w.path))
	}
	return nil
}

// Discard abandons the matrix: the temporary file is removed and
// nothing is written to the destination path. Discard after Close
// is a no-op.
func (w *Writer) Discard() {
	if w.f == nil {
		return
	}
	_ = w.release()
	os.Remove(w.tmp)
}

func (w *Writer) release() error {
	err := munmap(w.mapped)
	if e := w.f.Close(); err == nil {
		err = e
	}
	w.f, w.mapped, w.data = nil, nil, nil
	return err
}

// WriteDense creates an fbm file at path holding m.
func WriteDense(path string, typ Type, m *matrix.Dense) error {
	w, err := Create(path, Header{
		Dims:     []int{m.NumRows, m.NumCols},
		Type:     typ,
		RowNames: m.RowNames,
		ColNames: m.ColNames,
	})
	if err != nil {
		return err
	}
	if err := w.Write(m); err != nil {
		w.Discard()
		return err
	}
	return w.Close()
}
