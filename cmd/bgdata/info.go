// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/grailbio/base/data"
	"github.com/grailbio/bgdata/fbm"
)

func info(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: bgdata info file.fbm...")
		os.Exit(2)
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "path\trows\tcols\ttype\tsize")
	for _, path := range args {
		m, err := fbm.Open(path)
		if err != nil {
			return err
		}
		hdr := m.Header()
		rows, cols := m.Dim()
		size := data.Size(int64(rows) * int64(cols) * int64(hdr.Type.Size()))
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", path, rows, cols, hdr.Type, size)
		if err := m.Close(); err != nil {
			return err
		}
	}
	return tw.Flush()
}
