package prog_test

import (
	"os"
	"testing"

	"src.swiftkernel.dev/pkg/logutil"
	. "src.swiftkernel.dev/pkg/prog"
	"src.swiftkernel.dev/pkg/prog/progtest"
	"src.swiftkernel.dev/pkg/testutil"
)

func TestCommonFlagHandling(t *testing.T) {
	testutil.InTempDir(t)
	t.Cleanup(func() { logutil.SetOutputFile("") })

	progtest.Run(testProgram{}, "-bad-flag").
		Expect(t, 2, "", "flag provided but not defined: -bad-flag\nUsage:")
	// -h is treated as a bad flag
	progtest.Run(testProgram{}, "-h").
		Expect(t, 2, "", "flag provided but not defined: -h\nUsage:")
	progtest.Run(testProgram{}, "-help").
		Expect(t, 0, "Usage: swiftkernel [flags]", "")

	progtest.Run(testProgram{}, "-log", "log").Expect(t, 0, "", "")
	if _, err := os.Stat("log"); err != nil {
		t.Errorf("log file does not exist: %v", err)
	}
}

func TestSharedFlagsRegisteredOnce(t *testing.T) {
	p := Composite(&configProgram{}, &configProgram{})
	progtest.Run(p, "-config", "kernel.yaml").Expect(t, 0, "kernel.yaml", "")
}

func TestNoSuitableSubprogram(t *testing.T) {
	progtest.Run(testProgram{next: true}).
		Expect(t, 2, "", "internal error: no suitable subprogram\n")
}

func TestComposite(t *testing.T) {
	progtest.Run(
		Composite(testProgram{next: true}, testProgram{writeOut: "program 2"})).
		Expect(t, 0, "program 2", "")
}

func TestComposite_PreferEarlierSubprogram(t *testing.T) {
	r := progtest.Run(Composite(
		testProgram{writeOut: "program 1"}, testProgram{writeOut: "program 2"}))
	if r.Stdout != "program 1" {
		t.Errorf("stdout %q, want %q", r.Stdout, "program 1")
	}
}

func TestBadUsageError(t *testing.T) {
	progtest.Run(testProgram{returnErr: BadUsage("lorem ipsum")}).
		Expect(t, 2, "", "lorem ipsum\nUsage:")
}

func TestExitError(t *testing.T) {
	progtest.Run(testProgram{returnErr: Exit(3)}).Expect(t, 3, "", "")
	progtest.Run(testProgram{returnErr: Exit(0)}).Expect(t, 0, "", "")
}

type testProgram struct {
	next      bool
	writeOut  string
	returnErr error
}

func (p testProgram) RegisterFlags(*FlagSet) {}

func (p testProgram) Run(fds [3]*os.File, args []string) error {
	if p.next {
		return ErrNextProgram
	}
	fds[1].WriteString(p.writeOut)
	return p.returnErr
}

type configProgram struct{ config *string }

func (p *configProgram) RegisterFlags(fs *FlagSet) { p.config = fs.Config() }

func (p *configProgram) Run(fds [3]*os.File, args []string) error {
	fds[1].WriteString(*p.config)
	return nil
}
