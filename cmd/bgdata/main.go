// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command bgdata imports genotype data into file-backed matrices and
// computes per-marker summaries over them in parallel.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bgdata/bgcmd"
	"github.com/grailbio/bgdata/bgconfig"
	"github.com/grailbio/bgdata/bgflags"
	"github.com/grailbio/bgdata/exec"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: bgdata [flags] command args...

Command bgdata manages file-backed genotype matrices. Chunked
commands run on the session selected by -system; when -system is not
given, the session is configured by the bgdata profile
(%s) and -set flags.

Available commands are:

	import [-header] [-na token] [-type int8|float64] in.raw out.fbm
		Import a PED-like text file into a file-backed matrix.
	info file.fbm...
		Print the dimensions and element type of matrices.
	summarize [-workers N] [-chunk-size N] [-o out.fbm] file.fbm
		Compute missing-call frequency, allele frequency and
		standard deviation per marker.
	colsums [-workers N] [-chunk-size N] file.fbm
		Compute the sum of non-missing calls per marker.

Flags:
`, bgconfig.Path)
		flag.PrintDefaults()
		os.Exit(2)
	}
	var bf bgflags.Flags
	bgflags.RegisterFlags(flag.CommandLine, &bf, "")
	bgconfig.RegisterFlags()
	log.AddFlags()
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		flag.Usage()
	case "import":
		err = importPED(args)
	case "info":
		err = info(args)
	case "summarize":
		err = withSession(bf, args, summarize)
	case "colsums":
		err = withSession(bf, args, colsums)
	}
	must.Nil(err, cmd)
}

// withSession runs fn with the session selected by the flags, or by
// the configuration profile when no system was given.
func withSession(bf bgflags.Flags, args []string, fn func(*exec.Session, []string) error) error {
	var sess *exec.Session
	if bf.System.Specified || bf.SystemHelp {
		var err error
		if sess, err = bgcmd.Init(bf); err != nil {
			return err
		}
	} else {
		sess = bgconfig.Session()
		bgcmd.DisplayStatus(bf, sess)
	}
	defer sess.Shutdown()
	return fn(sess, args)
}
