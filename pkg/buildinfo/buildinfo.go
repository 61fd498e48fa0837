// Package buildinfo contains build information.
//
// Build information should be set during compilation by passing
// -ldflags "-X src.swiftkernel.dev/pkg/buildinfo.Var=value" to "go build".
package buildinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"src.swiftkernel.dev/pkg/prog"
)

// Version identifies the version of the kernel. On development commits, it
// identifies the next release.
const Version = "v0.3.0"

// VersionSuffix is appended to Version to build the full version string.
var VersionSuffix = "-dev.unknown"

// Implementation is the implementation name reported in kernel_info replies.
const Implementation = "SwiftKernel"

// Program is the buildinfo subprogram.
type Program struct {
	version, buildinfo bool
	json               *bool
}

func (p *Program) RegisterFlags(fs *prog.FlagSet) {
	fs.BoolVar(&p.version, "version", false, "Output the kernel version and quit")
	fs.BoolVar(&p.buildinfo, "buildinfo", false, "Output information about the kernel build and quit")
	p.json = fs.JSON()
}

func (p *Program) Run(fds [3]*os.File, _ []string) error {
	switch {
	case p.buildinfo:
		if *p.json {
			fmt.Fprintln(fds[1], mustToJSON(map[string]string{
				"version":        FullVersion(),
				"implementation": Implementation,
				"goversion":      runtime.Version(),
			}))
		} else {
			fmt.Fprintln(fds[1], "Version:", FullVersion())
			fmt.Fprintln(fds[1], "Implementation:", Implementation)
			fmt.Fprintln(fds[1], "Go version:", runtime.Version())
		}
	case p.version:
		if *p.json {
			fmt.Fprintln(fds[1], mustToJSON(FullVersion()))
		} else {
			fmt.Fprintln(fds[1], FullVersion())
		}
	default:
		return prog.ErrNextProgram
	}
	return nil
}

// FullVersion returns Version followed by VersionSuffix.
func FullVersion() string { return Version + VersionSuffix }

func mustToJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
