// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/chunk"
	"github.com/grailbio/bgdata/index"
	"github.com/grailbio/bgdata/matrix"
)

// A MapOption configures a single chunked operation.
type MapOption func(o *mapOptions)

type mapOptions struct {
	rows, cols index.Selector
	by         matrix.Axis
	size       int
	workers    int
	verbose    bool
	args       []interface{}
}

// Rows restricts the operation to the selected rows. By default all
// rows are used, in order.
func Rows(sel index.Selector) MapOption {
	return func(o *mapOptions) { o.rows = sel }
}

// Cols restricts the operation to the selected columns. By default
// all columns are used, in order.
func Cols(sel index.Selector) MapOption {
	return func(o *mapOptions) { o.cols = sel }
}

// ChunkBy sets the axis along which ChunkedMap splits the matrix.
// The default is matrix.Cols. ChunkedApply always chunks along its
// margin.
func ChunkBy(axis matrix.Axis) MapOption {
	return func(o *mapOptions) { o.by = axis }
}

// ChunkSize sets the number of rows or columns in each chunk; the
// last chunk may be smaller. Use chunk.Unbounded for a single chunk.
func ChunkSize(n int) MapOption {
	return func(o *mapOptions) { o.size = n }
}

// Workers sets the number of workers among which chunks are
// distributed. With one worker, chunks are evaluated sequentially
// in the calling process.
func Workers(n int) MapOption {
	return func(o *mapOptions) { o.workers = n }
}

// Verbose turns on per-chunk progress logging.
var Verbose MapOption = func(o *mapOptions) { o.verbose = true }

// Args sets the passthrough arguments supplied to every invocation
// of the user function. Arguments sent to worker processes must be
// gob-encodable.
func Args(args ...interface{}) MapOption {
	return func(o *mapOptions) { o.args = args }
}

func (s *Session) mapOptions(opts []MapOption) (mapOptions, error) {
	o := mapOptions{
		by:      matrix.Cols,
		size:    s.chunkSize,
		workers: s.p,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.by.Valid() {
		return o, errInvalidConfig(fmt.Sprintf("bad chunk axis %v", o.by))
	}
	if o.size <= 0 && o.size != chunk.Unbounded {
		return o, errInvalidConfig(fmt.Sprintf("chunk size %d is not positive", o.size))
	}
	if o.workers <= 0 {
		return o, errInvalidConfig(fmt.Sprintf("worker count %d is not positive", o.workers))
	}
	return o, nil
}

func errInvalidConfig(msg string) error {
	return errors.E(errors.Precondition, "invalid configuration: "+msg)
}
