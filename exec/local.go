// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"

	"github.com/grailbio/base/status"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/bgdata/stats"
)

// An executor evaluates batches of chunks on a pool of workers.
type executor interface {
	// Name returns a human-friendly name for this executor.
	Name() string

	// Start starts the executor. It is called by the session
	// before any operation is run. Start returns a function that
	// should be called on session shutdown.
	Start(*Session) (shutdown func())

	// Run evaluates job j. Each batch is assigned to its own worker,
	// which evaluates the batch's chunks sequentially (see runBatch).
	// Run blocks until every chunk has an outcome. Progress is
	// reported to group, which may be nil. Errors that prevent the
	// job from being dispatched at all are returned directly.
	Run(ctx context.Context, h matrix.Handle, j *job, batches [][]int, group *status.Group) ([]outcome, error)

	// Stats returns the counters accumulated by the executor's worker
	// processes, if any.
	Stats(ctx context.Context) (stats.Values, error)

	// HandleDebug adds executor-specific debug handlers to the provided
	// http.ServeMux.
	HandleDebug(handler *http.ServeMux)
}

// LocalExecutor is an executor that evaluates batches in-process in
// separate goroutines. All goroutines share the caller's handle.
type localExecutor struct {
	stats *stats.Map
}

func newLocalExecutor() *localExecutor {
	return &localExecutor{}
}

func (*localExecutor) Name() string { return "local" }

func (l *localExecutor) Start(sess *Session) (shutdown func()) {
	l.stats = sess.stats
	return
}

func (l *localExecutor) Run(ctx context.Context, h matrix.Handle, j *job, batches [][]int, group *status.Group) ([]outcome, error) {
	fn, err := j.Invocation.FuncValue()
	if err != nil {
		return nil, err
	}
	results := make([][]outcome, len(batches))
	_ = traverse.Each(len(batches), func(i int) error {
		var task *status.Task
		if group != nil {
			task = group.Start()
			task.Title(fmt.Sprintf("worker %d", i+1))
			defer task.Done()
		}
		results[i] = runBatch(ctx, h, fn, j, i, batches[i], l.stats, task)
		return nil
	})
	var outcomes []outcome
	for _, r := range results {
		outcomes = append(outcomes, r...)
	}
	return outcomes, nil
}

func (*localExecutor) Stats(context.Context) (stats.Values, error) {
	return nil, nil
}

func (*localExecutor) HandleDebug(handler *http.ServeMux) {}
