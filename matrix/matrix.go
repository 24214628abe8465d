// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package matrix defines the two-dimensional matrix handles over
// which chunked computations are run, together with Dense, the
// in-memory matrix into which chunks are materialized.
//
// A Handle may be backed by anything that can extract rectangular
// sub-matrices on demand (see package fbm for a file-backed
// implementation). Handles that can be reopened by other processes
// additionally implement Shareable: they describe themselves with a
// Locator, which is resolved by an Opener registered for the
// locator's format.
package matrix

import (
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
)

// Axis names a matrix dimension. Axis values match the conventional
// margin numbering: Rows is 1, Cols is 2.
type Axis int

const (
	// Rows is the row axis.
	Rows Axis = 1
	// Cols is the column axis.
	Cols Axis = 2
)

// String returns "rows" or "cols".
func (a Axis) String() string {
	switch a {
	case Rows:
		return "rows"
	case Cols:
		return "cols"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Other returns the axis orthogonal to a.
func (a Axis) Other() Axis {
	if a == Rows {
		return Cols
	}
	return Rows
}

// Valid tells whether a is Rows or Cols.
func (a Axis) Valid() bool {
	return a == Rows || a == Cols
}

// A Handle is a two-dimensional matrix from which rectangular
// sub-matrices may be extracted. Handles are read-only for the
// duration of a chunked computation; implementations must permit
// concurrent calls to Subset.
type Handle interface {
	// Dim returns the number of rows and columns of the matrix.
	Dim() (rows, cols int)
	// DimNames returns the row and column names of the matrix. Either
	// may be nil if the axis is unnamed.
	DimNames() (rows, cols []string)
	// Subset materializes the sub-matrix selected by the provided
	// (0-based) row and column indices. Indices may repeat and need
	// not be sorted; the result preserves their order. Names are
	// carried over to the result.
	Subset(rows, cols []int) (*Dense, error)
}

// Extent returns the length of the given axis of h.
func Extent(h Handle, axis Axis) int {
	r, c := h.Dim()
	if axis == Rows {
		return r
	}
	return c
}

// Names returns the names along the given axis of h.
func Names(h Handle, axis Axis) []string {
	r, c := h.DimNames()
	if axis == Rows {
		return r
	}
	return c
}

// A Locator identifies the backing storage of a shareable handle.
// Locators are sent to worker processes, which reopen the matrix
// with Open. The fingerprint guards against workers seeing a
// different matrix than the driver did.
type Locator struct {
	// Format names the Opener used to reopen the matrix.
	Format string
	// Path is the location of the backing storage.
	Path string
	// Fingerprint is a format-specific digest of the matrix metadata.
	Fingerprint uint64
}

func (l Locator) String() string {
	return fmt.Sprintf("%s:%s(%016x)", l.Format, l.Path, l.Fingerprint)
}

// Shareable is implemented by handles whose backing storage may be
// opened independently, and concurrently, by multiple processes.
type Shareable interface {
	Handle
	// Locator returns the locator from which the handle may be
	// reopened.
	Locator() (Locator, error)
}

// An Opener reopens a matrix from its locator.
type Opener func(loc Locator) (Handle, error)

var (
	mu      sync.Mutex
	openers = map[string]Opener{}
)

// RegisterOpener registers an opener for the named locator format.
// RegisterOpener panics if the format is already registered.
func RegisterOpener(format string, open Opener) {
	mu.Lock()
	defer mu.Unlock()
	if openers[format] != nil {
		panic(fmt.Sprintf("matrix: opener for format %s is already registered", format))
	}
	openers[format] = open
}

// Open reopens the matrix described by loc using the opener
// registered for its format.
func Open(loc Locator) (Handle, error) {
	mu.Lock()
	open := openers[loc.Format]
	mu.Unlock()
	if open == nil {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("matrix: no opener for format %q", loc.Format))
	}
	return open(loc)
}
