// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bgdata"
	"github.com/grailbio/bgdata/chunk"
	"github.com/grailbio/bgdata/index"
	"github.com/grailbio/bgdata/margin"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/bgdata/stats"
	"github.com/grailbio/bgdata/value"
)

// A ChunkError is returned when a user function fails on a chunk.
// In parallel evaluation, only the failure with the lowest chunk
// index is reported.
type ChunkError struct {
	// Chunk is the 0-based index of the failed chunk.
	Chunk int
	// NumChunks is the number of chunks in the operation.
	NumChunks int
	// Err is the error returned by the user function.
	Err error
	// Parallel tells whether the chunks were distributed among
	// multiple workers.
	Parallel bool
}

func (e *ChunkError) Error() string {
	if e.Parallel {
		return fmt.Sprintf("chunked map failed in chunk %d of %d (only first error is shown): %v",
			e.Chunk+1, e.NumChunks, e.Err)
	}
	return fmt.Sprintf("error in chunk %d of %d: %v", e.Chunk+1, e.NumChunks, e.Err)
}

// Unwrap returns the error returned by the user function.
func (e *ChunkError) Unwrap() error { return e.Err }

// A job describes a chunked operation. Jobs are sent to worker
// processes, which evaluate a subset of its chunks.
type job struct {
	Invocation bgdata.Invocation
	// Rows and Cols are the active index sets.
	Rows, Cols []int
	// By is the chunking axis.
	By matrix.Axis
	// Margin, if valid, is the axis along which the vector function
	// is applied within each chunk. Otherwise the function is a
	// chunk function.
	Margin matrix.Axis
	Plan   chunk.Plan
	// Verbose turns on progress logging.
	Verbose bool
}

// Subset returns the indices of the rows and columns of chunk k.
func (j *job) subset(k int) (rows, cols []int) {
	if j.By == matrix.Rows {
		return j.Plan.Select(k, j.Rows), j.Cols
	}
	return j.Rows, j.Plan.Select(k, j.Cols)
}

// An outcome is the result of evaluating one chunk: either a value
// or an error.
type outcome struct {
	Chunk int
	Value value.Value
	Err   error
}

// ChunkedMap splits the matrix h into chunks of rows or columns,
// extracts each chunk into memory and invokes the chunk function fn
// on it. The per-chunk results are returned in chunk order. If the
// active index set on the chunking axis is empty, ChunkedMap returns
// an empty list without invoking fn.
//
// Evaluation errors are returned as a *ChunkError. Errors in the
// operation's arguments are returned before any chunk is evaluated:
// bad selectors are errors.Invalid, and bad chunk sizes or worker
// counts are errors.Precondition.
func (s *Session) ChunkedMap(ctx context.Context, h matrix.Handle, fn *bgdata.FuncValue, opts ...MapOption) ([]value.Value, error) {
	if fn == nil || !fn.IsChunk() {
		return nil, errInvalidConfig(fmt.Sprintf("%v is not a chunk function", fn))
	}
	o, err := s.mapOptions(opts)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, h, fn, o, 0)
}

// ChunkedApply applies the vector function fn to every row (margin
// matrix.Rows) or column (margin matrix.Cols) of h, evaluating the
// matrix in chunks along the margin. The result mirrors a single
// application over the whole matrix: a named vector if fn returns
// scalars, a matrix with one column per margin entry if fn returns
// vectors of a fixed length, and a named list otherwise.
func (s *Session) ChunkedApply(ctx context.Context, h matrix.Handle, along matrix.Axis, fn *bgdata.FuncValue, opts ...MapOption) (value.Value, error) {
	if !along.Valid() {
		return nil, errInvalidConfig(fmt.Sprintf("bad margin %v", along))
	}
	if fn == nil || !fn.IsVector() {
		return nil, errInvalidConfig(fmt.Sprintf("%v is not a vector function", fn))
	}
	o, err := s.mapOptions(opts)
	if err != nil {
		return nil, err
	}
	o.by = along
	vals, err := s.run(ctx, h, fn, o, along)
	if err != nil {
		return nil, err
	}
	// Margin results are laid out one column per margin entry.
	return value.Combine(vals, matrix.Cols)
}

// Reduce combines the results of ChunkedMap into a single value,
// binding matrices along the provided axis. See value.Combine.
func Reduce(results []value.Value, along matrix.Axis) (value.Value, error) {
	return value.Combine(results, along)
}

func (s *Session) run(ctx context.Context, h matrix.Handle, fn *bgdata.FuncValue, o mapOptions, along matrix.Axis) ([]value.Value, error) {
	nrow, ncol := h.Dim()
	rowNames, colNames := h.DimNames()
	rows, err := index.Normalize(o.rows, nrow, rowNames)
	if err != nil {
		return nil, err
	}
	cols, err := index.Normalize(o.cols, ncol, colNames)
	if err != nil {
		return nil, err
	}
	j := &job{
		Invocation: fn.Invocation(o.args...),
		Rows:       rows,
		Cols:       cols,
		By:         o.by,
		Margin:     along,
		Verbose:    o.verbose,
	}
	extent := len(cols)
	if o.by == matrix.Rows {
		extent = len(rows)
	}
	if j.Plan, err = chunk.NewPlan(extent, o.size); err != nil {
		return nil, err
	}
	if j.Plan.N == 0 {
		return []value.Value{}, nil
	}

	var group *status.Group
	if s.status != nil {
		group = s.status.Groupf("%s over %s", fn, j.Plan)
	}
	workers := o.workers
	if workers > j.Plan.N {
		workers = j.Plan.N
	}
	var outcomes []outcome
	if workers == 1 {
		var task *status.Task
		if group != nil {
			task = group.Start()
			task.Title("sequential")
			defer task.Done()
		}
		outcomes = runBatch(ctx, h, fn, j, -1, allChunks(j.Plan.N), s.stats, task)
	} else {
		outcomes, err = s.executor.Run(ctx, h, j, schedule(j.Plan.N, workers), group)
		if err != nil {
			return nil, err
		}
	}
	return collect(j.Plan.N, workers > 1, outcomes)
}

// Schedule assigns chunks to workers statically: chunk k is
// evaluated by worker k mod n.
func schedule(numChunks, n int) [][]int {
	batches := make([][]int, n)
	for k := 0; k < numChunks; k++ {
		batches[k%n] = append(batches[k%n], k)
	}
	return batches
}

func allChunks(n int) []int {
	ks := make([]int, n)
	for k := range ks {
		ks[k] = k
	}
	return ks
}

// Collect arranges outcomes in chunk order. If any chunk failed, the
// failure with the lowest chunk index is returned.
func collect(numChunks int, parallel bool, outcomes []outcome) ([]value.Value, error) {
	var (
		vals     = make([]value.Value, numChunks)
		done     = make([]bool, numChunks)
		failures []outcome
	)
	for _, out := range outcomes {
		if out.Chunk < 0 || out.Chunk >= numChunks || done[out.Chunk] {
			return nil, errors.E(errors.Fatal, fmt.Sprintf("bad or duplicate outcome for chunk %d of %d", out.Chunk+1, numChunks))
		}
		done[out.Chunk] = true
		if out.Err != nil {
			failures = append(failures, out)
			continue
		}
		vals[out.Chunk] = out.Value
	}
	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Chunk < failures[j].Chunk })
		return nil, &ChunkError{
			Chunk:     failures[0].Chunk,
			NumChunks: numChunks,
			Err:       failures[0].Err,
			Parallel:  parallel,
		}
	}
	for k, ok := range done {
		if !ok {
			return nil, errors.E(errors.Fatal, fmt.Sprintf("no outcome for chunk %d of %d", k+1, numChunks))
		}
	}
	return vals, nil
}

// RunBatch evaluates the provided chunks of job j in order. Once a
// chunk fails, the remaining chunks of the batch are not evaluated
// but fail with the same error. Worker is the 0-based worker index,
// or -1 in sequential evaluation. Counters are added to st and
// progress is reported to task; both may be nil.
func runBatch(ctx context.Context, h matrix.Handle, fn *bgdata.FuncValue, j *job, worker int, chunks []int, st *stats.Map, task *status.Task) []outcome {
	outcomes := make([]outcome, 0, len(chunks))
	var failed error
	for _, k := range chunks {
		if failed == nil {
			failed = ctx.Err()
		}
		if failed != nil {
			outcomes = append(outcomes, outcome{Chunk: k, Err: failed})
			continue
		}
		if j.Verbose {
			if worker < 0 {
				log.Printf("chunk %d of %d", k+1, j.Plan.N)
			} else {
				log.Printf("worker %d (pid %d): chunk %d of %d", worker+1, os.Getpid(), k+1, j.Plan.N)
			}
		}
		if task != nil {
			task.Printf("chunk %d of %d", k+1, j.Plan.N)
		}
		v, err := evalChunk(ctx, h, fn, j, k, st)
		if err != nil {
			log.Debug.Printf("chunk %d of %d: %v", k+1, j.Plan.N, err)
			failed = err
		}
		outcomes = append(outcomes, outcome{Chunk: k, Value: v, Err: err})
	}
	return outcomes
}

// EvalChunk extracts chunk k of job j from h and invokes the user
// function on it.
func evalChunk(ctx context.Context, h matrix.Handle, fn *bgdata.FuncValue, j *job, k int, st *stats.Map) (v value.Value, err error) {
	defer func() {
		if e := recover(); e != nil {
			stack := debug.Stack()
			err = errors.E(errors.Fatal, fmt.Sprintf("panic while evaluating chunk: %v\n%s", e, string(stack)))
		}
		st.Add(stats.Chunks, 1)
		if err != nil {
			st.Add(stats.Failed, 1)
		}
	}()
	rows, cols := j.subset(k)
	m, err := h.Subset(rows, cols)
	if err != nil {
		return nil, err
	}
	st.Add(stats.Cells, int64(len(rows))*int64(len(cols)))
	args := j.Invocation.Args
	if j.Margin.Valid() {
		v, err = margin.Apply(m, j.Margin, func(x value.Vector) (value.Value, error) {
			return fn.CallVector(x, args...)
		})
	} else {
		v, err = fn.CallChunk(ctx, m, args...)
	}
	if err == nil && v == nil {
		err = errors.E(errors.Invalid, fmt.Sprintf("%v returned a nil value", fn))
	}
	return v, err
}
