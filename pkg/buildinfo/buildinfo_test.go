package buildinfo

import (
	"runtime"
	"testing"

	"src.swiftkernel.dev/pkg/prog"
	"src.swiftkernel.dev/pkg/prog/progtest"
)

func TestVersion(t *testing.T) {
	progtest.Run(&Program{}, "-version").Expect(t, 0, FullVersion()+"\n", "")
	progtest.Run(&Program{}, "-version", "-json").Expect(t, 0, `"`+FullVersion()+`"`, "")
}

func TestBuildInfo(t *testing.T) {
	r := progtest.Run(&Program{}, "-buildinfo")
	r.Expect(t, 0, "Go version: "+runtime.Version(), "")
	r.Expect(t, 0, "Implementation: SwiftKernel", "")
}

func TestNoFlag_NextProgram(t *testing.T) {
	progtest.Run(prog.Composite(&Program{})).
		Expect(t, 2, "", "internal error: no suitable subprogram")
}
