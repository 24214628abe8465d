// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bgconfig creates bgdata sessions from a shared
// configuration. It uses the configuration mechanism in package
// github.com/grailbio/base/config, reading a default profile from
// $HOME/.bgdata/config. A profile might look like:
//
//	param bgdata (
//		parallelism = 8
//		chunk-size = 5000
//		system = ec2system
//	)
package bgconfig

import (
	"flag"
	"os"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/bgdata/exec"
)

// Path determines the location of the bgdata profile read by
// RegisterFlags and Parse.
var Path = os.ExpandEnv("$HOME/.bgdata/config")

// RegisterFlags registers the configuration flags (-profile, -set
// and friends) with the default flag set.
func RegisterFlags() {
	config.RegisterFlags("", Path)
}

// Session returns the session configured by the profile and any
// configuration flags. It must be called after flag.Parse. Session
// panics if the configuration is invalid.
func Session() *exec.Session {
	must.Nil(config.ProcessFlags())
	var sess *exec.Session
	config.Must("bgdata", &sess)
	return sess
}

// Parse registers configuration flags, calls flag.Parse, and returns
// the session as configured by the profile and flags.
func Parse() *exec.Session {
	RegisterFlags()
	flag.Parse()
	return Session()
}
