// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fbm implements file-backed matrices: two-dimensional
// matrices whose data lives on disk and is brought into memory only
// when a sub-matrix is extracted.
//
// An fbm file consists of a fixed preamble, a gob-encoded header
// describing the matrix, and the matrix data in column-major order,
// aligned to a page boundary:
//
//	magic "BGDFBM01" | uint32 header length (LE) | header | padding | data
//
// Data is stored either as Int8 (suitable for genotype codes; -128
// encodes a missing value) or as little-endian Float64 (NaN encodes
// a missing value). Files are memory-mapped read-only, so that any
// number of readers, in any number of processes, may share a file.
//
// Matrices implement matrix.Shareable. The package registers an
// opener for the "fbm" locator format, so that worker processes can
// reopen matrices by path.
package fbm

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/spaolacci/murmur3"
)

// Format is the locator format of fbm matrices.
const Format = "fbm"

const (
	magic     = "BGDFBM01"
	preamble  = len(magic) + 4
	pageSize  = 4096
	naInt8    = -128
	maxHeader = 1 << 30
)

// Type is the element type of a file-backed matrix.
type Type uint8

const (
	// Int8 stores values as signed bytes, with -128 denoting NA.
	// Values must be integers in [-127, 127].
	Int8 Type = iota + 1
	// Float64 stores values as IEEE 754 doubles, with NaN denoting NA.
	Float64
)

// Size returns the number of bytes occupied by one element.
func (t Type) Size() int {
	switch t {
	case Int8:
		return 1
	case Float64:
		return 8
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case Int8:
		return "int8"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType parses a type name as returned by Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "int8":
		return Int8, nil
	case "float64":
		return Float64, nil
	default:
		return 0, errors.E(errors.Invalid, fmt.Sprintf("fbm: unknown type %q", s))
	}
}

// Header describes a file-backed matrix.
type Header struct {
	// Dims holds the matrix dimensions. Only two-dimensional
	// matrices are supported.
	Dims []int
	// Type is the element type.
	Type Type
	// RowNames and ColNames are optional dimension names.
	RowNames, ColNames []string
}

func (h Header) validate() error {
	if len(h.Dims) != 2 {
		return errors.E(errors.Precondition,
			fmt.Sprintf("invalid configuration: matrix has %d dimensions, expected 2", len(h.Dims)))
	}
	if h.Dims[0] < 0 || h.Dims[1] < 0 {
		return errors.E(errors.Precondition, fmt.Sprintf("invalid configuration: negative dimensions %v", h.Dims))
	}
	if h.Type.Size() == 0 {
		return errors.E(errors.Precondition, fmt.Sprintf("invalid configuration: bad element type %v", h.Type))
	}
	if h.RowNames != nil && len(h.RowNames) != h.Dims[0] {
		return errors.E(errors.Invalid, fmt.Sprintf("fbm: %d row names for %d rows", len(h.RowNames), h.Dims[0]))
	}
	if h.ColNames != nil && len(h.ColNames) != h.Dims[1] {
		return errors.E(errors.Invalid, fmt.Sprintf("fbm: %d column names for %d columns", len(h.ColNames), h.Dims[1]))
	}
	return nil
}

// dataSize returns the size in bytes of the matrix data.
func (h Header) dataSize() int64 {
	return int64(h.Dims[0]) * int64(h.Dims[1]) * int64(h.Type.Size())
}

// encodeHeader returns the preamble and header of an fbm file, padded
// to the data offset.
func encodeHeader(h Header) (prefix []byte, fingerprint uint64, err error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h); err != nil {
		return nil, 0, errors.E(err, "fbm: encode header")
	}
	enc := buf.Bytes()
	off := dataOffset(len(enc))
	prefix = make([]byte, off)
	copy(prefix, magic)
	binary.LittleEndian.PutUint32(prefix[len(magic):], uint32(len(enc)))
	copy(prefix[preamble:], enc)
	return prefix, murmur3.Sum64(enc), nil
}

// decodeHeader reads the header from the start of an fbm file. It
// returns the header, the offset of the data and the header's
// fingerprint.
func decodeHeader(r io.Reader) (h Header, off int64, fingerprint uint64, err error) {
	var pre [preamble]byte
	if _, err = io.ReadFull(r, pre[:]); err != nil {
		return h, 0, 0, errors.E(errors.Integrity, "fbm: short preamble", err)
	}
	if string(pre[:len(magic)]) != magic {
		return h, 0, 0, errors.E(errors.Integrity, fmt.Sprintf("fbm: bad magic %q", pre[:len(magic)]))
	}
	n := binary.LittleEndian.Uint32(pre[len(magic):])
	if n > maxHeader {
		return h, 0, 0, errors.E(errors.Integrity, fmt.Sprintf("fbm: header too large (%d bytes)", n))
	}
	enc := make([]byte, n)
	if _, err = io.ReadFull(r, enc); err != nil {
		return h, 0, 0, errors.E(errors.Integrity, "fbm: short header", err)
	}
	if err = gob.NewDecoder(bytes.NewReader(enc)).Decode(&h); err != nil {
		return h, 0, 0, errors.E(errors.Integrity, "fbm: decode header", err)
	}
	if err = h.validate(); err != nil {
		return h, 0, 0, err
	}
	return h, int64(dataOffset(int(n))), murmur3.Sum64(enc), nil
}

func dataOffset(headerLen int) int {
	n := preamble + headerLen
	return (n + pageSize - 1) / pageSize * pageSize
}
