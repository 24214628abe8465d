// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package index converts user-supplied row and column selectors into
// concrete index sets.
//
// An index set is an ordered sequence of 0-based positions along a
// matrix axis. Selectors may produce duplicate or unordered
// positions; these are preserved.
package index

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// A Selector selects positions along one axis of a matrix. A nil
// Selector selects every position.
type Selector interface {
	// Resolve returns the positions selected by the selector along
	// an axis with the given extent and (possibly nil) names.
	Resolve(extent int, names []string) ([]int, error)
}

// Normalize resolves sel against an axis of the given extent and
// names. Invalid selectors return errors of kind errors.Invalid.
func Normalize(sel Selector, extent int, names []string) ([]int, error) {
	if sel == nil {
		sel = All()
	}
	if names != nil && len(names) != extent {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("invalid selector: axis has %d names for extent %d", len(names), extent))
	}
	return sel.Resolve(extent, names)
}

type all struct{}

// All selects every position, in order.
func All() Selector { return all{} }

func (all) Resolve(extent int, _ []string) ([]int, error) {
	ix := make([]int, extent)
	for i := range ix {
		ix[i] = i
	}
	return ix, nil
}

func (all) String() string { return "all" }

// Ints selects the provided 0-based positions.
type Ints []int

// Resolve implements Selector.
func (s Ints) Resolve(extent int, _ []string) ([]int, error) {
	ix := make([]int, len(s))
	for i, v := range s {
		if v < 0 || v >= extent {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("invalid selector: index %d out of range [0, %d)", v, extent))
		}
		ix[i] = v
	}
	return ix, nil
}

// Range selects positions lo, lo+1, ..., hi-1.
func Range(lo, hi int) Ints {
	if hi < lo {
		hi = lo
	}
	ix := make(Ints, hi-lo)
	for i := range ix {
		ix[i] = lo + i
	}
	return ix
}

// Mask selects the positions whose entries are true. A mask must
// have exactly one entry per position.
type Mask []bool

// Resolve implements Selector.
func (s Mask) Resolve(extent int, _ []string) ([]int, error) {
	if len(s) != extent {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("invalid selector: mask has length %d, expected %d", len(s), extent))
	}
	var ix []int
	for i, v := range s {
		if v {
			ix = append(ix, i)
		}
	}
	if ix == nil {
		ix = []int{}
	}
	return ix, nil
}

// Names selects positions by name.
type Names []string

// Resolve implements Selector.
func (s Names) Resolve(extent int, names []string) ([]int, error) {
	if len(s) > 0 && names == nil {
		return nil, errors.E(errors.Invalid, "invalid selector: axis has no names")
	}
	// The first occurrence of a name wins, as with any name lookup.
	pos := make(map[string]int, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		pos[names[i]] = i
	}
	ix := make([]int, len(s))
	for i, name := range s {
		j, ok := pos[name]
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("invalid selector: name %q not found", name))
		}
		ix[i] = j
	}
	return ix, nil
}
