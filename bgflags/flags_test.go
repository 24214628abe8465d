// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgflags_test

import (
	"bytes"
	"flag"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bgdata/bgflags"
)

func TestProvider(t *testing.T) {
	for _, c := range []struct {
		provider bgflags.Provider
		name     string
	}{
		{&bgflags.Local{}, "local"},
		{&bgflags.Internal{}, "internal"},
		{&bgflags.EC2{}, "ec2"},
	} {
		if got, want := c.provider.Name(), c.name; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if c.provider.DefaultParallelism() <= 0 {
			t.Errorf("%s: non-positive default parallelism", c.name)
		}
	}
	ec2 := &bgflags.EC2{}
	for _, bad := range []string{"x=y", "dataspace", "dataspace=lots", "ondemand=maybe"} {
		if err := ec2.Set(bad); !errors.Is(errors.Invalid, err) {
			t.Errorf("%s: expected invalid error, got %v", bad, err)
		}
	}
	for _, good := range []string{"dataspace=122", "rootsize=50", "instance=m5.xlarge", "ondemand=true", "profile=x"} {
		if err := ec2.Set(good); err != nil {
			t.Errorf("%s: unexpected error: %v", good, err)
		}
	}
}

func TestSystemFlag(t *testing.T) {
	var sys bgflags.SystemFlag
	for _, c := range []struct {
		value string
		ok    bool
	}{
		{"local", true},
		{"local:an=option", false},
		{"internal", true},
		{"internal:an=option", false},
		{"ec2", true},
		{"ec2:an=option", false},
		{"ec2:dataspace=200,rootsize=10", true},
		{"bogus", false},
	} {
		err := sys.Set(c.value)
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error: %v", c.value, err)
		}
		if !c.ok && err == nil {
			t.Errorf("%s: expected an error", c.value)
		}
	}
	if got, want := sys.String(), "ec2:dataspace=200,rootsize=10"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestProfile(t *testing.T) {
	bgflags.RegisterSystemProfile("test-profile", "ec2:dataspace=100")
	var sys bgflags.SystemFlag
	if err := sys.Set("test-profile:rootsize=20"); err != nil {
		t.Fatal(err)
	}
	if got, want := sys.String(), "ec2:dataspace=100,rootsize=20"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	_, profiles := bgflags.ProvidersAndProfiles()
	if got, want := profiles["test-profile"], "ec2:dataspace=100"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFlags(t *testing.T) {
	var (
		fs  = flag.NewFlagSet("test", flag.ContinueOnError)
		out bytes.Buffer
		bf  bgflags.Flags
	)
	fs.SetOutput(&out)
	bgflags.RegisterFlags(fs, &bf, "bg-")
	if err := fs.Parse([]string{"-bg-system=internal", "-bg-parallelism=3", "-bg-chunk-size=50"}); err != nil {
		t.Fatal(err)
	}
	if !bf.System.Specified {
		t.Error("expected system to be specified")
	}
	opts, err := bf.ExecOptions()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(opts), 4; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	bf.PrintSystemHelp()
	if !strings.Contains(out.String(), "The available systems are: ec2, internal, local") {
		t.Errorf("bad help %q", out.String())
	}

	bf.ChunkSize = 0
	if _, err := bf.ExecOptions(); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}
