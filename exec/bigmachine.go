// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bgdata"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/bgdata/stats"
	"github.com/grailbio/bgdata/value"
	"golang.org/x/sync/errgroup"
)

func init() {
	gob.Register(&worker{})
}

// BigmachineExecutor is an executor that evaluates batches on
// bigmachine machines. Machines are started on demand and kept for
// the lifetime of the session. Each machine evaluates as many
// batches concurrently as it has processors.
type bigmachineExecutor struct {
	system bigmachine.System
	params []bigmachine.Param

	sess *Session
	b    *bigmachine.B

	status *status.Group

	mu       sync.Mutex
	machines []*bigmachine.Machine
}

func newBigmachineExecutor(system bigmachine.System, params ...bigmachine.Param) *bigmachineExecutor {
	return &bigmachineExecutor{system: system, params: params}
}

func (*bigmachineExecutor) Name() string { return "bigmachine" }

// Start starts the underlying bigmachine. In worker processes,
// bigmachine.Start does not return.
func (b *bigmachineExecutor) Start(sess *Session) (shutdown func()) {
	b.sess = sess
	b.b = bigmachine.Start(b.system)
	if status := sess.Status(); status != nil {
		b.status = status.Group("bigmachine")
	}
	return b.b.Shutdown
}

func (b *bigmachineExecutor) Run(ctx context.Context, h matrix.Handle, j *job, batches [][]int, group *status.Group) ([]outcome, error) {
	sh, ok := h.(matrix.Shareable)
	if !ok {
		return nil, errInvalidConfig(fmt.Sprintf("matrix %T cannot be shared with worker processes", h))
	}
	loc, err := sh.Locator()
	if err != nil {
		return nil, err
	}
	machines, err := b.reserve(ctx, len(batches))
	if err != nil {
		return nil, err
	}
	results := make([][]outcome, len(batches))
	var g errgroup.Group
	for i := range batches {
		i, m := i, machines[i%len(machines)]
		g.Go(func() error {
			var task *status.Task
			if group != nil {
				task = group.Start()
				task.Title(fmt.Sprintf("worker %d", i+1))
				task.Print(m.Addr)
				defer task.Done()
			}
			req := batchRequest{Locator: loc, Job: *j, Worker: i, Chunks: batches[i]}
			var reply batchReply
			if err := m.RetryCall(ctx, "Chunker.Run", req, &reply); err != nil {
				log.Error.Printf("worker %d on machine %s: %v", i+1, m.Addr, err)
				results[i] = failAll(batches[i:i+1], err)
				return nil
			}
			results[i] = reply.outcomes()
			return nil
		})
	}
	_ = g.Wait()
	if b.status != nil {
		if vals, err := b.Stats(ctx); err == nil {
			b.status.Print(vals)
		}
	}
	var outcomes []outcome
	for _, r := range results {
		outcomes = append(outcomes, r...)
	}
	return outcomes, nil
}

// Reserve returns enough machines to evaluate n batches, starting
// new machines as needed. Machines that have failed are discarded.
func (b *bigmachineExecutor) reserve(ctx context.Context, n int) ([]*bigmachine.Machine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	live := b.machines[:0]
	for _, m := range b.machines {
		if err := m.Err(); err != nil {
			log.Printf("discarding machine %s: %v", m.Addr, err)
			continue
		}
		live = append(live, m)
	}
	b.machines = live
	procs := b.b.System().Maxprocs()
	if procs <= 0 {
		procs = 1
	}
	need := (n + procs - 1) / procs
	if len(b.machines) < need {
		b.machines = append(b.machines, startMachines(ctx, b.b, b.status, need-len(b.machines), b.params...)...)
	}
	if len(b.machines) == 0 {
		return nil, errors.E(errors.Unavailable, "no worker machines could be started")
	}
	if need > len(b.machines) {
		need = len(b.machines)
	}
	return append([]*bigmachine.Machine(nil), b.machines[:need]...), nil
}

func (b *bigmachineExecutor) Stats(ctx context.Context) (stats.Values, error) {
	b.mu.Lock()
	machines := append([]*bigmachine.Machine(nil), b.machines...)
	b.mu.Unlock()
	var (
		g     errgroup.Group
		mu    sync.Mutex
		total = make(stats.Values)
	)
	for _, m := range machines {
		m := m
		g.Go(func() error {
			var vals stats.Values
			if err := m.RetryCall(ctx, "Chunker.Stats", struct{}{}, &vals); err != nil {
				return err
			}
			mu.Lock()
			total.Merge(vals)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return total, err
}

func (b *bigmachineExecutor) HandleDebug(handler *http.ServeMux) {
	b.b.HandleDebug(handler)
}

// StartMachines starts n machines, waits for them to become ready,
// and verifies that their funcs agree with the driver's. Machines
// that fail to start are dropped.
func startMachines(ctx context.Context, b *bigmachine.B, group *status.Group, n int, params ...bigmachine.Param) []*bigmachine.Machine {
	params = append([]bigmachine.Param{bigmachine.Services{"Chunker": &worker{}}}, params...)
	machines, err := b.Start(ctx, n, params...)
	if err != nil {
		log.Error.Printf("error starting machines: %v", err)
		return nil
	}
	var wg sync.WaitGroup
	ready := make([]*bigmachine.Machine, len(machines))
	for i := range machines {
		i, m := i, machines[i]
		var task *status.Task
		if group != nil {
			task = group.Start()
			task.Print("waiting for machine to boot")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if task != nil {
				defer task.Done()
			}
			<-m.Wait(bigmachine.Running)
			if err := m.Err(); err != nil {
				log.Printf("machine %s failed to start: %v", m.Addr, err)
				return
			}
			var workerFuncLocs []string
			if err := m.RetryCall(ctx, "Chunker.FuncLocations", struct{}{}, &workerFuncLocs); err != nil {
				log.Printf("machine %s: failed to verify funcs: %v", m.Addr, err)
				m.Cancel()
				return
			}
			diff := bgdata.FuncLocationsDiff(bgdata.FuncLocations(), workerFuncLocs)
			if len(diff) > 0 {
				for _, edit := range diff {
					log.Printf("[funcsdiff] %s", edit)
				}
				log.Panicf("machine %s has different funcs; check for local or non-deterministic Func registration", m.Addr)
			}
			if task != nil {
				task.Title(m.Addr)
			}
			log.Printf("machine %v is ready", m.Addr)
			ready[i] = m
		}()
	}
	wg.Wait()
	n = 0
	for _, m := range ready {
		if m != nil {
			ready[n] = m
			n++
		}
	}
	return ready[:n]
}

// FailAll returns a failed outcome for every chunk in batches.
func failAll(batches [][]int, err error) []outcome {
	var outcomes []outcome
	for _, batch := range batches {
		for _, k := range batch {
			outcomes = append(outcomes, outcome{Chunk: k, Err: err})
		}
	}
	return outcomes
}

// BatchRequest asks a worker to evaluate a batch of chunks.
type batchRequest struct {
	// Locator names the matrix, which the worker reopens.
	Locator matrix.Locator
	Job     job
	// Worker is the 0-based index of the batch.
	Worker int
	// Chunks are the chunks to evaluate, in order.
	Chunks []int
}

type batchReply struct {
	Outcomes []wireOutcome
}

// WireOutcome is the gob-encodable version of outcome. Errors lose
// their concrete types but keep their kind, severity and message.
type wireOutcome struct {
	Chunk int
	Value value.Value
	Err   *errors.Error
}

func (r batchReply) outcomes() []outcome {
	outcomes := make([]outcome, len(r.Outcomes))
	for i, w := range r.Outcomes {
		outcomes[i] = outcome{Chunk: w.Chunk, Value: w.Value}
		if w.Err != nil {
			outcomes[i].Err = w.Err
		}
	}
	return outcomes
}

// A worker is the bigmachine service that evaluates batches of
// chunks. Matrices are reopened from their locators and cached for
// the lifetime of the worker.
type worker struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	limiter *limiter.Limiter
	stats   *stats.Map

	mu      sync.Mutex
	handles map[matrix.Locator]matrix.Handle
}

func (w *worker) Init(b *bigmachine.B) error {
	w.stats = stats.NewMap()
	w.handles = make(map[matrix.Locator]matrix.Handle)
	// Each batch is evaluated sequentially, so we allow one batch per
	// processor.
	w.limiter = limiter.New()
	procs := b.System().Maxprocs()
	if procs == 0 {
		procs = runtime.GOMAXPROCS(0)
	}
	w.limiter.Release(procs)
	return nil
}

// FuncLocations returns the locations of the worker's registered
// funcs.
func (w *worker) FuncLocations(ctx context.Context, _ struct{}, locs *[]string) error {
	*locs = bgdata.FuncLocations()
	return nil
}

// Run evaluates a batch of chunks. Chunk failures are returned in
// the reply; Run itself fails only if the batch could not be
// started.
func (w *worker) Run(ctx context.Context, req batchRequest, reply *batchReply) error {
	if err := w.limiter.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.limiter.Release(1)
	w.stats.Add(stats.Batches, 1)
	var outcomes []outcome
	h, err := w.handle(req.Locator)
	if err == nil {
		var fn *bgdata.FuncValue
		if fn, err = req.Job.Invocation.FuncValue(); err == nil {
			outcomes = runBatch(ctx, h, fn, &req.Job, req.Worker, req.Chunks, w.stats, nil)
		}
	}
	if err != nil {
		log.Error.Printf("worker %d: %v", req.Worker+1, err)
		outcomes = failAll([][]int{req.Chunks}, err)
	}
	reply.Outcomes = make([]wireOutcome, len(outcomes))
	for i, out := range outcomes {
		reply.Outcomes[i] = wireOutcome{Chunk: out.Chunk, Value: out.Value}
		if out.Err != nil {
			reply.Outcomes[i].Err = errors.Recover(out.Err)
		}
	}
	return nil
}

// Stats returns the worker's counters.
func (w *worker) Stats(ctx context.Context, _ struct{}, vals *stats.Values) error {
	*vals = w.stats.Snapshot()
	return nil
}

func (w *worker) handle(loc matrix.Locator) (matrix.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if h := w.handles[loc]; h != nil {
		return h, nil
	}
	h, err := matrix.Open(loc)
	if err != nil {
		return nil, err
	}
	// A new locator for a cached path means the file was replaced.
	for old, oh := range w.handles {
		if old.Format != loc.Format || old.Path != loc.Path {
			continue
		}
		delete(w.handles, old)
		if c, ok := oh.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Error.Printf("close stale matrix %s: %v", old, err)
			}
		}
	}
	w.handles[loc] = h
	return h, nil
}
