// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bgcmd provides utilities for implementing bgdata command
// line tools. Init starts a session according to the flags in
// package bgflags; DisplayStatus arranges for its status to be shown.
//
// A typical tool follows this form:
//
//	func main() {
//		var bf bgflags.Flags
//		bgflags.RegisterFlags(flag.CommandLine, &bf, "")
//		log.AddFlags()
//		flag.Parse()
//		sess, err := bgcmd.Init(bf)
//		must.Nil(err)
//		defer sess.Shutdown()
//		// sess.ChunkedApply(...)
//	}
package bgcmd

import (
	"net/http"
	// Pprof is included to be exposed on the local diagnostic web server.
	_ "net/http/pprof"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bgdata/bgflags"
	"github.com/grailbio/bgdata/exec"
)

// Init starts a session according to the supplied flags and displays
// its status. If help on systems was requested, Init prints it and
// exits.
func Init(bf bgflags.Flags) (*exec.Session, error) {
	if bf.SystemHelp {
		bf.PrintSystemHelp()
		os.Exit(0)
	}
	options, err := bf.ExecOptions()
	if err != nil {
		return nil, err
	}
	sess := exec.Start(options...)
	DisplayStatus(bf, sess)
	return sess, nil
}

// DisplayStatus arranges for the session's status to be displayed on
// the console and/or at /debug/status on http.DefaultServeMux,
// depending on the flags. Sessions without a status aggregator only
// serve the debug handlers.
func DisplayStatus(bf bgflags.Flags, sess *exec.Session) {
	st := sess.Status()
	if bf.ConsoleStatus && st != nil {
		var console status.Reporter
		go console.Go(os.Stdout, st)
	}
	if len(bf.HTTPAddress.Address) == 0 {
		return
	}
	sess.HandleDebug(http.DefaultServeMux)
	if st != nil {
		http.Handle("/debug/status", status.Handler(st))
	}
	go func() {
		log.Printf("http status at: %v", bf.HTTPAddress)
		if err := http.ListenAndServe(bf.HTTPAddress.Address, nil); err != nil {
			log.Error.Printf("failed to start http server at %v: %v", bf.HTTPAddress, err)
		}
	}()
}
