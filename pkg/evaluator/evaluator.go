// Package evaluator defines the interface between the kernel and the
// out-of-process evaluator that runs cell code.
//
// The evaluator keeps all program state across cells. It evaluates one
// fragment at a time, synchronously; the output of the evaluated program is
// not part of the result but is collected separately and polled with
// [Evaluator.PollOutput], so that it can be shown while evaluation is still
// in progress.
package evaluator

import (
	"context"
	"errors"
)

// Kind classifies the outcome of evaluating a fragment.
type Kind int

// Possible values of Kind.
const (
	// The fragment ran and its last statement produced no value.
	NoValue Kind = iota
	// The fragment ran and produced a value.
	ValueProduced
	// The fragment failed to compile, failed at runtime or was interrupted.
	Diagnostic
)

var kindNames = [...]string{"NoValue", "ValueProduced", "Diagnostic"}

func (k Kind) String() string {
	if 0 <= k && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(?)"
}

// Outcome is the result of evaluating a fragment.
type Outcome struct {
	Kind Kind
	// Set when Kind is ValueProduced.
	Value *Value
	// Set when Kind is Diagnostic.
	Message string
}

// Value is a value in the evaluator, as a tree of named children.
type Value struct {
	Name string
	// Human-readable rendition of the value.
	Description string
	// Raw bytes of a scalar value, in the evaluator's byte order.
	Data     []byte
	Children []Value
}

// Child returns the direct child with the given name.
func (v *Value) Child(name string) (*Value, bool) {
	for i := range v.Children {
		if v.Children[i].Name == name {
			return &v.Children[i], true
		}
	}
	return nil, false
}

// Frame is a stack frame of the evaluated program.
type Frame struct {
	Function string
	// Empty for frames without source information.
	File   string
	Line   int
	Column int
	// Human-readable rendition of the frame.
	Description string
}

// Completion is the result of completing a piece of code.
type Completion struct {
	// The partial identifier the matches complete.
	Prefix string
	// Text that can be inserted after Prefix.
	Matches []string
}

// Capabilities describes optional features of an evaluator.
type Capabilities struct {
	Completion bool
}

// Evaluator is a running evaluator process.
type Evaluator interface {
	// Evaluate runs a fragment and blocks until it completes. An error means
	// the request could not be carried out at all; failures of the fragment
	// itself are reported as a Diagnostic outcome.
	Evaluate(ctx context.Context, fragment string) (Outcome, error)
	// PollOutput returns up to max bytes of program output produced since
	// the last call. It never blocks.
	PollOutput(max int) []byte
	// Interrupt asks the evaluator to abandon the current evaluation.
	Interrupt() error
	// Alive reports whether the evaluator process is still running.
	Alive() bool
	// StackTrace returns the stack of the main thread of the evaluated
	// program, innermost frame first.
	StackTrace(ctx context.Context) ([]Frame, error)
	// ReadMemory reads n bytes of the evaluated program's memory.
	ReadMemory(ctx context.Context, addr uint64, n int) ([]byte, error)
	// Complete returns completions of code at its end.
	Complete(ctx context.Context, code string) (Completion, error)
	Capabilities() Capabilities
	// Close terminates the evaluator.
	Close() error
}

// BootOptions keeps parameters for starting an evaluator.
type BootOptions struct {
	// Directory searched for modules of installed packages.
	ModulePath string
	// Additional directories with module maps.
	ModuleMapDirs []string
	// Working directory of the evaluator. Empty for the current one.
	Dir string
}

// Booter starts evaluators.
type Booter interface {
	Boot(ctx context.Context, opts BootOptions) (Evaluator, error)
}

// ErrDead is returned when a request is made to an evaluator that has exited.
var ErrDead = errors.New("evaluator process is not running")
