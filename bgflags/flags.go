// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bgflags provides flag support for bgdata command line
// applications: the system on which workers run, the default number
// of workers and chunk size, and status reporting.
package bgflags

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/bgdata/exec"
)

var (
	mu        sync.Mutex
	providers = map[string]Provider{} // protected by mu
	profiles  = map[string]string{}   // protected by mu
)

// A Provider supplies the workers of a session. Providers are
// configured by key=val options.
type Provider interface {
	// Name returns the name of the provider.
	Name() string
	// Set sets a single key=val option.
	Set(option string) error
	// ExecOption returns the exec.Option that selects workers as
	// configured by the options set so far.
	ExecOption() exec.Option
	// DefaultParallelism returns the default number of workers for
	// this provider.
	DefaultParallelism() int
}

// RegisterSystemProvider registers a provider under the given name.
func RegisterSystemProvider(name string, provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("system %s is already registered", name)
	}
	providers[name] = provider
}

// RegisterSystemProfile registers a named shorthand for a system and
// its options. For example, after
//
//	bgflags.RegisterSystemProfile("gwas", "ec2:instance=m5.4xlarge,dataspace=500")
//
// the flag -system=gwas is a synonym for
// -system=ec2:instance=m5.4xlarge,dataspace=500.
func RegisterSystemProfile(name, profile string) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("profile %s is already used as a provider name", name)
	}
	if _, present := profiles[name]; present {
		log.Panicf("profile %s is already registered", name)
	}
	profiles[name] = profile
}

// ProvidersAndProfiles returns the sorted provider names and the
// registered profiles.
func ProvidersAndProfiles() ([]string, map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(providers))
	for k := range providers {
		names = append(names, k)
	}
	sort.Strings(names)
	prf := make(map[string]string, len(profiles))
	for k, v := range profiles {
		prf[k] = v
	}
	return names, prf
}

func noOptions(name, option string) error {
	return errors.E(errors.Invalid, fmt.Sprintf("the %s system does not support option %q", name, option))
}

// Internal evaluates chunks in goroutines of the calling process.
type Internal struct{}

// Name implements Provider.
func (*Internal) Name() string { return "internal" }

// Set implements Provider.
func (i *Internal) Set(option string) error { return noOptions(i.Name(), option) }

// ExecOption implements Provider.
func (*Internal) ExecOption() exec.Option { return exec.Local }

// DefaultParallelism implements Provider.
func (*Internal) DefaultParallelism() int { return runtime.GOMAXPROCS(0) }

// Local evaluates chunks in worker processes on the local machine.
type Local struct{}

// Name implements Provider.
func (*Local) Name() string { return "local" }

// Set implements Provider.
func (l *Local) Set(option string) error { return noOptions(l.Name(), option) }

// ExecOption implements Provider.
func (*Local) ExecOption() exec.Option { return exec.Bigmachine(bigmachine.Local) }

// DefaultParallelism implements Provider.
func (*Local) DefaultParallelism() int { return runtime.GOMAXPROCS(0) }

// EC2 evaluates chunks on AWS EC2 instances.
type EC2 struct {
	system ec2system.System
	set    bool
}

// Name implements Provider.
func (*EC2) Name() string { return "ec2" }

// Set implements Provider. The supported options are instance,
// dataspace, rootsize, profile and ondemand.
func (e *EC2) Set(option string) error {
	parts := strings.SplitN(option, "=", 2)
	if len(parts) != 2 {
		return errors.E(errors.Invalid, fmt.Sprintf("ec2: option %q is not in key=val format", option))
	}
	key, val := parts[0], parts[1]
	switch key {
	case "dataspace", "rootsize":
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return errors.E(errors.Invalid, fmt.Sprintf("ec2: %s: not a size in GiB: %v", key, val))
		}
		if key == "dataspace" {
			e.system.Dataspace = uint(n)
		} else {
			e.system.Diskspace = uint(n)
		}
	case "instance":
		e.system.InstanceType = val
	case "profile":
		e.system.InstanceProfile = val
	case "ondemand":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return errors.E(errors.Invalid, fmt.Sprintf("ec2: ondemand: not a bool: %v", val))
		}
		e.system.OnDemand = b
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("ec2: unsupported option %q", key))
	}
	e.set = true
	return nil
}

// ExecOption implements Provider.
func (e *EC2) ExecOption() exec.Option {
	system := e.system
	if e.set {
		system.Username = "unknown"
		if u, err := user.Current(); err == nil {
			system.Username = u.Username
		} else {
			log.Printf("ec2: get current user: %v", err)
		}
	}
	return exec.Bigmachine(&system)
}

// DefaultParallelism implements Provider.
func (*EC2) DefaultParallelism() int { return runtime.GOMAXPROCS(0) }

func init() {
	RegisterSystemProvider("internal", &Internal{})
	RegisterSystemProvider("local", &Local{})
	RegisterSystemProvider("ec2", &EC2{})
}

// SystemHelpShort is a short explanation of the allowed system flag
// values.
func SystemHelpShort(prefix string) string {
	return fmt.Sprintf("the system on which workers run: {internal,local,ec2:[key=val,],profile}; see -%ssystem-help", prefix)
}

// SystemHelpLong describes the allowed system flag values.
const SystemHelpLong = `A bgdata system is specified as follows:

<system-type>:<options> where options is [key=value,]+

The supported systems and their options are:

internal: goroutines in the calling process, the default.
local: worker processes on the local machine.
ec2: AWS EC2 instances. The supported options are:
	instance=<AWS instance type> - the AWS instance type, e.g. m5.xlarge
	dataspace=<number> - size of the data volume in GiB
	rootsize=<number> - size of the root volume in GiB
	ondemand=<bool> - use on-demand rather than spot instances
	profile=<name> - the AWS instance profile to use

Worker processes reopen matrices by path, so the matrices must be
reachable at the same path on every worker.

Applications may register profiles that are shorthand for the above.
`

// SystemFlag is a flag.Value that selects a Provider.
type SystemFlag struct {
	Provider  Provider
	Options   []string
	Specified bool
}

// String implements flag.Value.
func (sys *SystemFlag) String() string {
	if sys.Provider == nil {
		return ""
	}
	if len(sys.Options) == 0 {
		return sys.Provider.Name()
	}
	return sys.Provider.Name() + ":" + strings.Join(sys.Options, ",")
}

// Set implements flag.Value.
func (sys *SystemFlag) Set(v string) error {
	name, options := splitSystem(v)
	mu.Lock()
	if profile, ok := profiles[name]; ok {
		var profileOptions []string
		name, profileOptions = splitSystem(profile)
		options = append(profileOptions, options...)
	}
	provider, ok := providers[name]
	mu.Unlock()
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("unsupported system or profile %q", name))
	}
	for _, opt := range options {
		if err := provider.Set(opt); err != nil {
			return err
		}
	}
	sys.Provider = provider
	sys.Options = options
	sys.Specified = true
	return nil
}

// Get implements flag.Getter.
func (sys *SystemFlag) Get() interface{} {
	return sys.String()
}

func splitSystem(s string) (name string, options []string) {
	parts := strings.SplitN(s, ":", 2)
	name = parts[0]
	if len(parts) > 1 {
		options = strings.Split(parts[1], ",")
	}
	return
}

// Flags holds the values of the bgdata command line flags.
type Flags struct {
	System        SystemFlag
	SystemHelp    bool
	HTTPAddress   cmdutil.NetworkAddressFlag
	ConsoleStatus bool
	Parallelism   int
	ChunkSize     int
	fs            *flag.FlagSet
}

// Defaults holds default values for the flags.
type Defaults struct {
	System        string
	HTTPAddress   string
	ConsoleStatus bool
	Parallelism   int
	ChunkSize     int
}

// RegisterFlags registers the bgdata flags with fs, using the
// standard defaults. Flag names are prefixed with prefix.
func RegisterFlags(fs *flag.FlagSet, bf *Flags, prefix string) {
	RegisterFlagsWithDefaults(fs, bf, prefix, Defaults{
		System:      "internal",
		HTTPAddress: ":3333",
		ChunkSize:   exec.DefaultChunkSize,
	})
}

// RegisterFlagsWithDefaults registers the bgdata flags with fs and
// the provided defaults. Flag names are prefixed with prefix.
func RegisterFlagsWithDefaults(fs *flag.FlagSet, bf *Flags, prefix string, defaults Defaults) {
	fs.Var(&bf.System, prefix+"system", SystemHelpShort(prefix))
	if err := bf.System.Set(defaults.System); err != nil {
		log.Panicf("bgflags: bad default system %q: %v", defaults.System, err)
	}
	bf.System.Specified = false
	fs.Var(&bf.HTTPAddress, prefix+"http", "address of the http status server; empty to disable")
	bf.HTTPAddress.Set(defaults.HTTPAddress)
	bf.HTTPAddress.Specified = false
	fs.BoolVar(&bf.ConsoleStatus, prefix+"console-status", defaults.ConsoleStatus, "print status to stdout")
	fs.IntVar(&bf.Parallelism, prefix+"parallelism", defaults.Parallelism, "default number of workers; 0 requests an appropriate default for the system")
	fs.IntVar(&bf.ChunkSize, prefix+"chunk-size", defaults.ChunkSize, "default number of rows or columns per chunk")
	fs.BoolVar(&bf.SystemHelp, prefix+"system-help", false, "provide help on systems and profiles")
	bf.fs = fs
}

// Output returns the writer to which help and usage messages should
// be printed.
func (bf *Flags) Output() io.Writer {
	if bf.fs == nil {
		return os.Stderr
	}
	if w := bf.fs.Output(); w != nil {
		return w
	}
	return os.Stderr
}

// ExecOptions returns the session options selected by the flags.
func (bf *Flags) ExecOptions() ([]exec.Option, error) {
	if bf.System.Provider == nil {
		return nil, errors.E(errors.Invalid, "no system specified")
	}
	if bf.Parallelism < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("negative parallelism %d", bf.Parallelism))
	}
	if bf.ChunkSize <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("chunk size %d is not positive", bf.ChunkSize))
	}
	var st status.Status
	// Ensure bigmachine's group is displayed first.
	_ = st.Group("bigmachine")
	parallelism := bf.Parallelism
	if parallelism == 0 {
		parallelism = bf.System.Provider.DefaultParallelism()
	}
	return []exec.Option{
		exec.Status(&st),
		bf.System.Provider.ExecOption(),
		exec.Parallelism(parallelism),
		exec.DefaultChunk(bf.ChunkSize),
	}, nil
}

// PrintSystemHelp writes the long system help, including registered
// providers and profiles, to the flags' output.
func (bf *Flags) PrintSystemHelp() {
	names, prf := ProvidersAndProfiles()
	w := bf.Output()
	fmt.Fprintf(w, "%s\n", SystemHelpLong)
	fmt.Fprintf(w, "The available systems are: %s\n", strings.Join(names, ", "))
	lines := make([]string, 0, len(prf))
	for k, v := range prf {
		lines = append(lines, fmt.Sprintf("%s is shorthand for: %s\n", k, v))
	}
	sort.Strings(lines)
	for _, line := range lines {
		io.WriteString(w, line)
	}
}
