// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bgdata/fbm"
	"github.com/grailbio/bgdata/ped"
)

func importPED(args []string) error {
	var (
		flags  = flag.NewFlagSet("import", flag.ExitOnError)
		header = flags.Bool("header", true, "the first line names the columns")
		na     = flags.String("na", "NA", "token denoting a missing genotype")
		typ    = flags.String("type", "int8", "element type of the output matrix: int8 or float64")
	)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, `usage: bgdata import [-header] [-na token] [-type int8|float64] in.raw out.fbm`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}
	if flags.NArg() != 2 {
		flags.Usage()
	}
	t, err := fbm.ParseType(*typ)
	if err != nil {
		return err
	}
	samples, err := ped.Import(context.Background(), flags.Arg(0), flags.Arg(1), ped.Options{
		Header:  *header,
		NA:      *na,
		Type:    t,
		Verbose: true,
	})
	if err != nil {
		return err
	}
	log.Printf("imported %d samples into %s", samples.Len(), flags.Arg(1))
	return nil
}
