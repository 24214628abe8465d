// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bgdata/exec"
	"github.com/grailbio/bgdata/fbm"
	"github.com/grailbio/bgdata/genostat"
	"github.com/grailbio/bgdata/matrix"
	"github.com/grailbio/bgdata/value"
)

type chunkFlags struct {
	flags     *flag.FlagSet
	workers   *int
	chunkSize *int
	verbose   *bool
}

func newChunkFlags(name, usage string) *chunkFlags {
	c := &chunkFlags{flags: flag.NewFlagSet(name, flag.ExitOnError)}
	c.workers = c.flags.Int("workers", 0, "number of workers; the session default if 0")
	c.chunkSize = c.flags.Int("chunk-size", 0, "number of markers per chunk; the session default if 0")
	c.verbose = c.flags.Bool("v", false, "log progress of each chunk")
	c.flags.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		c.flags.PrintDefaults()
		os.Exit(2)
	}
	return c
}

func (c *chunkFlags) parse(args []string) {
	if err := c.flags.Parse(args); err != nil {
		log.Fatal(err)
	}
}

func (c *chunkFlags) options() []exec.MapOption {
	var opts []exec.MapOption
	if *c.workers > 0 {
		opts = append(opts, exec.Workers(*c.workers))
	}
	if *c.chunkSize > 0 {
		opts = append(opts, exec.ChunkSize(*c.chunkSize))
	}
	if *c.verbose {
		opts = append(opts, exec.Verbose)
	}
	return opts
}

func summarize(sess *exec.Session, args []string) error {
	c := newChunkFlags("summarize", "usage: bgdata summarize [-workers N] [-chunk-size N] [-o out.fbm] file.fbm")
	out := c.flags.String("o", "", "write the summary matrix to this fbm file instead of stdout")
	c.parse(args)
	if c.flags.NArg() != 1 {
		c.flags.Usage()
	}
	m, err := fbm.Open(c.flags.Arg(0))
	if err != nil {
		return err
	}
	defer m.Close()
	ctx := context.Background()
	v, err := sess.ChunkedApply(ctx, m, matrix.Cols, genostat.Summary, c.options()...)
	if err != nil {
		return err
	}
	summary, ok := v.(value.Matrix)
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("summarize: unexpected result kind %s", v.Kind()))
	}
	logStats(ctx, sess)
	if *out != "" {
		return fbm.WriteDense(*out, fbm.Float64, summary.Dense)
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "marker\tfreq_na\tallele_freq\tsd")
	for j := 0; j < summary.NumCols; j++ {
		name := fmt.Sprint(j + 1)
		if summary.ColNames != nil {
			name = summary.ColNames[j]
		}
		col := summary.Col(j)
		fmt.Fprintf(tw, "%s\t%.4g\t%.4g\t%.4g\n", name, col[0], col[1], col[2])
	}
	return tw.Flush()
}

func colsums(sess *exec.Session, args []string) error {
	c := newChunkFlags("colsums", "usage: bgdata colsums [-workers N] [-chunk-size N] file.fbm")
	c.parse(args)
	if c.flags.NArg() != 1 {
		c.flags.Usage()
	}
	m, err := fbm.Open(c.flags.Arg(0))
	if err != nil {
		return err
	}
	defer m.Close()
	ctx := context.Background()
	results, err := sess.ChunkedMap(ctx, m, genostat.ColSums, c.options()...)
	if err != nil {
		return err
	}
	v, err := exec.Reduce(results, matrix.Cols)
	if err != nil {
		return err
	}
	sums, ok := v.(value.Vector)
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("colsums: unexpected result kind %s", v.Kind()))
	}
	logStats(ctx, sess)
	for i, x := range sums.Data {
		fmt.Printf("%s\t%g\n", sums.Name(i), x)
	}
	return nil
}

func logStats(ctx context.Context, sess *exec.Session) {
	vals, err := sess.Stats(ctx)
	if err != nil {
		log.Error.Printf("stats: %v", err)
		return
	}
	log.Printf("stats: %s", vals)
}
