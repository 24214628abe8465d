// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgdata

import (
	"context"
	"encoding/gob"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/bgdata/value"
)

func init() {
	gob.Register([]interface{}{})
}

// A ChunkFunc computes a value from a single chunk of a matrix. Args
// are the passthrough arguments supplied by the caller.
type ChunkFunc func(ctx context.Context, chunk *matrix.Dense, args ...interface{}) (value.Value, error)

// A VectorFunc computes a value from a single row or column of a
// matrix. Args are the passthrough arguments supplied by the caller.
type VectorFunc func(x value.Vector, args ...interface{}) (value.Value, error)

var (
	// Funcs is the global registry of funcs. We rely on deterministic
	// registration order so that a func's index names the same func
	// in every process running the same binary.
	funcs []*FuncValue
	// FuncsBusy is used to detect data races in registration.
	funcsBusy int32
)

// A FuncValue represents a registered function, as returned by Func.
type FuncValue struct {
	chunk    ChunkFunc
	vector   VectorFunc
	index    int
	location string
}

// Func registers fn and returns a FuncValue that can be invoked in
// any process running the same binary. Fn must be a ChunkFunc or a
// VectorFunc (or a func literal with one of these signatures). Func
// panics if fn has any other type.
//
// Funcs must be registered before a session is started, in a
// deterministic order. This is guaranteed when they are assigned to
// package-level variables:
//
//	var colMeans = bgdata.Func(func(x value.Vector, _ ...interface{}) (value.Value, error) {
//		...
//	})
func Func(fn interface{}) *FuncValue {
	v := new(FuncValue)
	switch fn := fn.(type) {
	case ChunkFunc:
		v.chunk = fn
	case func(context.Context, *matrix.Dense, ...interface{}) (value.Value, error):
		v.chunk = fn
	case VectorFunc:
		v.vector = fn
	case func(value.Vector, ...interface{}) (value.Value, error):
		v.vector = fn
	default:
		_, file, line, _ := runtime.Caller(1)
		panic(fmt.Sprintf("%s:%d: bgdata.Func: %T is not a chunk or vector function", file, line, fn))
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		v.location = fmt.Sprintf("%s:%d", file, line)
	} else {
		v.location = "<unknown>"
	}
	if atomic.AddInt32(&funcsBusy, 1) != 1 {
		panic("bgdata.Func: data race")
	}
	v.index = len(funcs)
	funcs = append(funcs, v)
	if atomic.AddInt32(&funcsBusy, -1) != 0 {
		panic("bgdata.Func: data race")
	}
	return v
}

// Index returns the registry index of f.
func (f *FuncValue) Index() uint64 { return uint64(f.index) }

// IsChunk tells whether f is a ChunkFunc.
func (f *FuncValue) IsChunk() bool { return f.chunk != nil }

// IsVector tells whether f is a VectorFunc.
func (f *FuncValue) IsVector() bool { return f.vector != nil }

// Location returns the source location at which f was registered.
func (f *FuncValue) Location() string { return f.location }

func (f *FuncValue) String() string {
	return fmt.Sprintf("func(%d)@%s", f.index, f.location)
}

// CallChunk invokes f, which must be a ChunkFunc, on a chunk.
func (f *FuncValue) CallChunk(ctx context.Context, chunk *matrix.Dense, args ...interface{}) (value.Value, error) {
	if f.chunk == nil {
		return nil, errors.E(errors.Precondition, fmt.Sprintf("invalid configuration: %v is not a chunk function", f))
	}
	return f.chunk(ctx, chunk, args...)
}

// CallVector invokes f, which must be a VectorFunc, on a vector.
func (f *FuncValue) CallVector(x value.Vector, args ...interface{}) (value.Value, error) {
	if f.vector == nil {
		return nil, errors.E(errors.Precondition, fmt.Sprintf("invalid configuration: %v is not a vector function", f))
	}
	return f.vector(x, args...)
}

// Invocation returns an invocation of f with the provided
// passthrough arguments. Argument types that are not builtin must be
// registered with encoding/gob for the invocation to be sent to a
// worker process.
func (f *FuncValue) Invocation(args ...interface{}) Invocation {
	return Invocation{Func: uint64(f.index), Args: args}
}

// Invocation represents an invocation of a registered func of the
// same binary. Invocations can be transmitted across process
// boundaries and thus may be invoked by remote workers.
type Invocation struct {
	Func uint64
	Args []interface{}
}

// FuncValue returns the registered func named by the invocation.
func (i Invocation) FuncValue() (*FuncValue, error) {
	return Lookup(i.Func)
}

// Lookup returns the func registered with the given index.
func Lookup(index uint64) (*FuncValue, error) {
	if index >= uint64(len(funcs)) {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("func %d is not registered (%d funcs)", index, len(funcs)))
	}
	return funcs[index], nil
}

// FuncLocations returns the registration locations of all funcs,
// in registration order. Workers report their locations so that
// drivers can verify that both sides agree on func indices.
func FuncLocations() []string {
	locs := make([]string, len(funcs))
	for i, f := range funcs {
		locs[i] = f.location
	}
	return locs
}

// FuncLocationsDiff returns a line diff of two lists of func
// locations: lines prefixed with "- " appear only in lhs, lines
// prefixed with "+ " only in rhs. FuncLocationsDiff returns nil if
// the lists are equal.
func FuncLocationsDiff(lhs, rhs []string) []string {
	// lcs[i][j] is the length of the longest common subsequence of
	// lhs[i:] and rhs[j:].
	lcs := make([][]int, len(lhs)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(rhs)+1)
	}
	for i := len(lhs) - 1; i >= 0; i-- {
		for j := len(rhs) - 1; j >= 0; j-- {
			switch {
			case lhs[i] == rhs[j]:
				lcs[i][j] = lcs[i+1][j+1] + 1
			case lcs[i+1][j] >= lcs[i][j+1]:
				lcs[i][j] = lcs[i+1][j]
			default:
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}
	var (
		diff  []string
		edits bool
		i, j  int
	)
	for i < len(lhs) || j < len(rhs) {
		switch {
		case i < len(lhs) && j < len(rhs) && lhs[i] == rhs[j]:
			diff = append(diff, lhs[i])
			i++
			j++
		case j == len(rhs) || (i < len(lhs) && lcs[i+1][j] >= lcs[i][j+1]):
			diff = append(diff, "- "+lhs[i])
			edits = true
			i++
		default:
			diff = append(diff, "+ "+rhs[j])
			edits = true
			j++
		}
	}
	if !edits {
		return nil
	}
	return diff
}
