// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"github.com/grailbio/base/config"
	"github.com/grailbio/bigmachine"
)

func init() {
	config.Register("bgdata", func(inst *config.Instance) {
		sess := newSession()
		inst.IntVar(&sess.p, "parallelism", 1, "default number of workers for chunked operations")
		inst.IntVar(&sess.chunkSize, "chunk-size", DefaultChunkSize, "default number of rows or columns per chunk")
		var system bigmachine.System
		inst.InstanceVar(&system, "system", "", "the bigmachine system used for worker processes; local goroutines if empty")
		inst.Doc = "bgdata configures the bgdata runtime"
		inst.New = func() (interface{}, error) {
			if system != nil {
				sess.executor = newBigmachineExecutor(system)
			} else {
				sess.executor = newLocalExecutor()
			}
			if sess.p <= 0 || sess.chunkSize <= 0 {
				return nil, errInvalidConfig("parallelism and chunk-size must be positive")
			}
			sess.start()
			return sess, nil
		}
	})
}
