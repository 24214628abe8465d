// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package chunk partitions an active index set into contiguous
// chunks of bounded size.
//
// Chunks are described by positions into the active index set, not
// by raw matrix indices: chunk k covers positions
// [k*size, min((k+1)*size, extent)). Chunks partition the index set
// exactly once, in ascending order; the last chunk may be short.
package chunk

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Unbounded is a chunk size that places the whole index set in a
// single chunk.
const Unbounded = int(^uint(0) >> 1)

// A Plan describes the partitioning of an active index set of
// Extent positions into N chunks of at most Size positions.
type Plan struct {
	Extent int
	Size   int
	N      int
}

// NewPlan computes the chunk plan for an index set of the given
// extent. Size must be positive (or Unbounded); otherwise NewPlan
// returns an errors.Precondition error.
func NewPlan(extent, size int) (Plan, error) {
	if size <= 0 {
		return Plan{}, errors.E(errors.Precondition,
			fmt.Sprintf("invalid configuration: chunk size %d must be positive", size))
	}
	if extent < 0 {
		return Plan{}, errors.E(errors.Precondition,
			fmt.Sprintf("invalid configuration: negative extent %d", extent))
	}
	p := Plan{Extent: extent, Size: size}
	switch {
	case extent == 0:
	case size >= extent:
		p.N = 1
	default:
		p.N = (extent + size - 1) / size
	}
	return p, nil
}

// Range returns the half-open range of positions covered by chunk k.
func (p Plan) Range(k int) (start, end int) {
	if k < 0 || k >= p.N {
		panic(fmt.Sprintf("chunk.Range: chunk %d out of range [0, %d)", k, p.N))
	}
	if p.N == 1 {
		return 0, p.Extent
	}
	start = k * p.Size
	end = start + p.Size
	if end > p.Extent {
		end = p.Extent
	}
	return start, end
}

// Len returns the number of positions in chunk k.
func (p Plan) Len(k int) int {
	start, end := p.Range(k)
	return end - start
}

// Select returns the portion of the active index set covered by
// chunk k. The returned slice aliases set.
func (p Plan) Select(k int, set []int) []int {
	if len(set) != p.Extent {
		panic(fmt.Sprintf("chunk.Select: index set has %d entries, plan has extent %d", len(set), p.Extent))
	}
	start, end := p.Range(k)
	return set[start:end:end]
}

func (p Plan) String() string {
	if p.Size == Unbounded {
		return fmt.Sprintf("%d chunks of unbounded size over %d", p.N, p.Extent)
	}
	return fmt.Sprintf("%d chunks of size %d over %d", p.N, p.Size, p.Extent)
}
