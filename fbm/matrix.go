// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fbm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bgdata/matrix"
)

func init() {
	matrix.RegisterOpener(Format, openLocator)
}

// Matrix is a read-only, memory-mapped, file-backed matrix. It
// implements matrix.Shareable. A Matrix is safe for concurrent use.
type Matrix struct {
	path        string
	hdr         Header
	fingerprint uint64

	mu     sync.Mutex
	mapped []byte
	data   []byte
}

// Open opens and maps the fbm file at path.
func Open(path string) (*Matrix, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("fbm: open %s", path))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("fbm: stat %s", path))
	}
	if info.Size() < int64(preamble) {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("fbm: %s: file has %d bytes, too short for an fbm file", path, info.Size()))
	}
	mapped, err := mmap(f, int(info.Size()))
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("fbm: mmap %s", path))
	}
	hdr, off, fp, err := decodeHeader(bytes.NewReader(mapped))
	if err != nil {
		_ = munmap(mapped)
		return nil, errors.E(err, path)
	}
	if want := off + hdr.dataSize(); int64(len(mapped)) < want {
		_ = munmap(mapped)
		return nil, errors.E(errors.Integrity,
			fmt.Sprintf("fbm: %s: file has %d bytes, expected %d", path, len(mapped), want))
	}
	return &Matrix{
		path:        abs,
		hdr:         hdr,
		fingerprint: fp,
		mapped:      mapped,
		data:        mapped[off : off+hdr.dataSize()],
	}, nil
}

func openLocator(loc matrix.Locator) (matrix.Handle, error) {
	m, err := Open(loc.Path)
	if err != nil {
		return nil, err
	}
	if m.fingerprint != loc.Fingerprint {
		if err := m.Close(); err != nil {
			log.Error.Printf("fbm: close %s: %v", loc.Path, err)
		}
		return nil, errors.E(errors.Integrity,
			fmt.Sprintf("fbm: %s: fingerprint %016x does not match %016x", loc.Path, m.fingerprint, loc.Fingerprint))
	}
	return m, nil
}

// Header returns the matrix header.
func (m *Matrix) Header() Header { return m.hdr }

// Path returns the absolute path of the backing file.
func (m *Matrix) Path() string { return m.path }

// Dim implements matrix.Handle.
func (m *Matrix) Dim() (rows, cols int) { return m.hdr.Dims[0], m.hdr.Dims[1] }

// DimNames implements matrix.Handle.
func (m *Matrix) DimNames() (rows, cols []string) { return m.hdr.RowNames, m.hdr.ColNames }

// Locator implements matrix.Shareable.
func (m *Matrix) Locator() (matrix.Locator, error) {
	return matrix.Locator{Format: Format, Path: m.path, Fingerprint: m.fingerprint}, nil
}

// Subset implements matrix.Handle. Only the selected columns are
// touched, so the memory used is proportional to the size of the
// sub-matrix.
func (m *Matrix) Subset(rows, cols []int) (*matrix.Dense, error) {
	nrow, ncol := m.Dim()
	if err := matrix.CheckIndices(matrix.Rows, rows, nrow); err != nil {
		return nil, err
	}
	if err := matrix.CheckIndices(matrix.Cols, cols, ncol); err != nil {
		return nil, err
	}
	data, err := m.bytes()
	if err != nil {
		return nil, err
	}
	out := matrix.New(len(rows), len(cols))
	size := m.hdr.Type.Size()
	for j, c := range cols {
		col := data[c*nrow*size : (c+1)*nrow*size]
		dst := out.Col(j)
		switch m.hdr.Type {
		case Int8:
			for i, r := range rows {
				dst[i] = decodeInt8(col[r])
			}
		case Float64:
			for i, r := range rows {
				dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(col[r*8:]))
			}
		}
	}
	if m.hdr.RowNames != nil {
		out.RowNames = make([]string, len(rows))
		for i, r := range rows {
			out.RowNames[i] = m.hdr.RowNames[r]
		}
	}
	if m.hdr.ColNames != nil {
		out.ColNames = make([]string, len(cols))
		for j, c := range cols {
			out.ColNames[j] = m.hdr.ColNames[c]
		}
	}
	return out, nil
}

func (m *Matrix) bytes() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mapped == nil {
		return nil, errors.E(errors.Precondition, fmt.Sprintf("fbm: %s is closed", m.path))
	}
	return m.data, nil
}

// Close unmaps the matrix. Subsequent calls to Subset fail. Close
// must not be called while Subset calls are in progress.
func (m *Matrix) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mapped == nil {
		return nil
	}
	err := munmap(m.mapped)
	m.mapped, m.data = nil, nil
	return err
}

func (m *Matrix) String() string {
	return fmt.Sprintf("fbm(%s, %dx%d %s)", m.path, m.hdr.Dims[0], m.hdr.Dims[1], m.hdr.Type)
}

func decodeInt8(b byte) float64 {
	v := int8(b)
	if v == naInt8 {
		return math.NaN()
	}
	return float64(v)
}
