// Package progtest contains utilities for testing [prog.Program] instances.
package progtest

import (
	"io"
	"os"
	"strings"
	"testing"

	"src.swiftkernel.dev/pkg/must"
	"src.swiftkernel.dev/pkg/prog"
)

// Result records the observable effects of running a program.
type Result struct {
	Exit   int
	Stdout string
	Stderr string
}

// Run runs p with the given command-line arguments (not including the program
// name) and an empty stdin, and returns its exit status and outputs.
func Run(p prog.Program, args ...string) Result {
	stdin := must.OK1(os.Open(os.DevNull))
	defer stdin.Close()
	r1, w1 := must.OK2(os.Pipe())
	r2, w2 := must.OK2(os.Pipe())

	// Drain the pipes concurrently, so that a program writing more than the
	// pipe buffer does not block.
	stdoutCh := readAllAsync(r1)
	stderrCh := readAllAsync(r2)

	exit := prog.Run([3]*os.File{stdin, w1, w2},
		append([]string{"swiftkernel"}, args...), p)
	w1.Close()
	w2.Close()
	return Result{exit, <-stdoutCh, <-stderrCh}
}

func readAllAsync(r *os.File) <-chan string {
	ch := make(chan string, 1)
	go func() {
		defer r.Close()
		ch <- string(must.OK1(io.ReadAll(r)))
	}()
	return ch
}

// Expect checks a Result against the wanted exit status and output fragments.
// Empty fragments are not checked.
func (r Result) Expect(t *testing.T, exit int, stdoutContains, stderrContains string) {
	t.Helper()
	if r.Exit != exit {
		t.Errorf("exit %d, want %d (stderr %q)", r.Exit, exit, r.Stderr)
	}
	if stdoutContains != "" && !strings.Contains(r.Stdout, stdoutContains) {
		t.Errorf("stdout %q, want it to contain %q", r.Stdout, stdoutContains)
	}
	if stderrContains != "" && !strings.Contains(r.Stderr, stderrContains) {
		t.Errorf("stderr %q, want it to contain %q", r.Stderr, stderrContains)
	}
}
