// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package bgdata implements chunked, parallel computation over
	genotype matrices that are too large to fit in memory.

	A matrix (see package matrix; package fbm provides a file-backed
	implementation) is partitioned into chunks of rows or columns.
	Each chunk is materialized in memory and passed to a user
	function; the per-chunk results are then reassembled into a single
	value. Chunks may be processed sequentially, by a pool of
	goroutines, or by a pool of worker processes managed by
	bigmachine. See package exec for the entry points ChunkedMap and
	ChunkedApply.

	Because Go cannot serialize code to be sent to another process,
	user functions must be registered with Func before a session is
	started, and always in the same order:

	1. Register functions as package-level variables:

		var alleleFreq = bgdata.Func(func(x value.Vector, _ ...interface{}) (value.Value, error) {
			...
		})

	2. Start the session from main, before doing anything else. With
	a process pool, worker processes run the same binary; exec.Start
	does not return in workers.

		sess := exec.Start(exec.Bigmachine(bigmachine.Local), exec.Parallelism(8))
		defer sess.Shutdown()
		freq, err := sess.ChunkedApply(ctx, m, matrix.Cols, alleleFreq, exec.ChunkSize(1000))

	Passthrough arguments (exec.Args) are sent to workers with
	encoding/gob; types other than builtin ones must be registered with
	gob.Register.
*/
package bgdata
