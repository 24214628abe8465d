// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/diagnostic/dump"
	"github.com/grailbio/base/eventlog"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bgdata/stats"
)

// DefaultChunkSize is the default number of rows or columns in a
// chunk.
const DefaultChunkSize = 1000

// Session represents a bgdata compute session. A session owns the
// pool of workers used to evaluate chunked operations, and is valid
// for the run of the binary. A session can run any number of chunked
// operations, including concurrently.
//
// A session is started by Start. Some executors launch multiple
// copies of the binary: these additional binaries are called workers,
// and Start does not return in them.
//
// All functions must be registered with bgdata.Func before Start is
// called, in a deterministic order. This is provided by default when
// functions are registered as part of package initialization:
//
//	var colMeans = bgdata.Func(func(x value.Vector, _ ...interface{}) (value.Value, error) {
//		...
//	})
//
//	func main() {
//		sess := exec.Start()
//		means, err := sess.ChunkedApply(ctx, m, matrix.Cols, colMeans)
//		...
//	}
type Session struct {
	context.Context
	index     int32
	shutdown  func()
	p         int
	chunkSize int
	executor  executor
	status    *status.Status
	eventer   eventlog.Eventer
	// stats counts chunks evaluated in this process.
	stats *stats.Map
}

func newSession() *Session {
	return &Session{
		Context: backgroundcontext.Get(),
		index:   atomic.AddInt32(&nextSessionIndex, 1) - 1,
		eventer: eventlog.Nop{},
		stats:   stats.NewMap(),
	}
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local in-binary executor:
// chunks are evaluated by goroutines sharing the caller's matrix
// handle.
var Local Option = func(s *Session) {
	s.executor = newLocalExecutor()
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system. Chunks are evaluated by
// worker processes, each of which reopens the matrix from its
// locator. If any params are provided, they are applied to each
// machine allocated by the session.
func Bigmachine(system bigmachine.System, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, params...)
	}
}

// Parallelism configures the session with the provided default
// number of workers.
func Parallelism(p int) Option {
	if p <= 0 {
		panic("exec.Parallelism: p <= 0")
	}
	return func(s *Session) {
		s.p = p
	}
}

// DefaultChunk configures the session's default chunk size, used
// by operations that are not given a ChunkSize option.
func DefaultChunk(n int) Option {
	if n <= 0 {
		panic("exec.DefaultChunk: n <= 0")
	}
	return func(s *Session) {
		s.chunkSize = n
	}
}

// Status configures the session with a status object to which
// the progress of chunked operations is reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status

		name := fmt.Sprintf("bgdata-%02d-status", s.index)
		dump.Register(name, func(ctx context.Context, w io.Writer) error {
			return status.Marshal(w)
		})
	}
}

// Eventer configures the session with an Eventer that will be used to log
// session events (for analytics).
func Eventer(e eventlog.Eventer) Option {
	return func(s *Session) {
		s.eventer = e
	}
}

// nextSessionIndex is the index of the next session that will be started by
// Start. In general, there should be only one session per process, but we
// violate this in some tests.
var nextSessionIndex int32

// Start creates and starts a new bgdata session, configuring it
// according to the provided options. If no executor is configured,
// the session uses the local executor.
func Start(options ...Option) *Session {
	s := newSession()
	for _, opt := range options {
		opt(s)
	}
	if s.p == 0 {
		s.p = 1
	}
	if s.chunkSize == 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.executor == nil {
		s.executor = newLocalExecutor()
	}
	s.start()
	return s
}

func (s *Session) start() {
	s.shutdown = s.executor.Start(s)
	s.eventer.Event("bgdata:sessionStart",
		"command", command(),
		"executorType", s.executor.Name(),
		"parallelism", s.p,
		"chunkSize", s.chunkSize)
}

// Parallelism returns the default number of workers.
func (s *Session) Parallelism() int {
	return s.p
}

// ChunkSize returns the default chunk size.
func (s *Session) ChunkSize() int {
	return s.chunkSize
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// Stats returns the counters accumulated by the session's workers,
// including chunks evaluated in the calling process.
func (s *Session) Stats(ctx context.Context) (stats.Values, error) {
	vals := s.stats.Snapshot()
	remote, err := s.executor.Stats(ctx)
	vals.Merge(remote)
	return vals, err
}

// Shutdown tears down resources associated with this session.
// It should be called when the session is discarded.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

// HandleDebug registers the executor's debug handlers on the
// provided mux.
func (s *Session) HandleDebug(handler *http.ServeMux) {
	s.executor.HandleDebug(handler)
}

// command returns the command-line of the current execution, quoted
// so that it can be pasted into sh.
func command() string {
	args := make([]string, len(os.Args))
	for i, arg := range os.Args {
		args[i] = "'" + strings.Replace(arg, "'", `'\''`, -1) + "'"
	}
	return strings.Join(args, " ")
}
