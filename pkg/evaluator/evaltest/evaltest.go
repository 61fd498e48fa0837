// Package evaltest provides a scripted evaluator for tests.
package evaltest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"src.swiftkernel.dev/pkg/evaluator"
)

// Handler answers an evaluation request.
type Handler func(fragment string) (evaluator.Outcome, error)

type rule struct {
	substr string
	handle Handler
}

// Evaluator is an [evaluator.Evaluator] that answers fragments with handlers
// registered with On. Fragments that match no handler produce no value,
// except for the support requests issued by the kernel, which are answered
// the way a real evaluator would.
type Evaluator struct {
	// Returned by StackTrace.
	Frames []evaluator.Frame
	// Returned by Capabilities.
	Caps evaluator.Capabilities
	// Called by Complete. If nil, Complete returns no matches.
	Completer func(code string) evaluator.Completion

	mu         sync.Mutex
	rules      []rule
	fragments  []string
	output     []byte
	memory     map[uint64][]byte
	dead       bool
	closed     bool
	done       chan struct{}
	interrupts chan struct{}
}

var _ evaluator.Evaluator = (*Evaluator)(nil)

// New returns a new Evaluator.
func New() *Evaluator {
	return &Evaluator{memory: make(map[uint64][]byte),
		done: make(chan struct{}), interrupts: make(chan struct{}, 16)}
}

// On makes fragments containing substr answered by h. Handlers registered
// earlier take precedence. It returns e for chaining.
func (e *Evaluator) On(substr string, h Handler) *Evaluator {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule{substr, h})
	return e
}

// Value returns an outcome with a value described by description.
func Value(description string) evaluator.Outcome {
	return evaluator.Outcome{Kind: evaluator.ValueProduced,
		Value: &evaluator.Value{Description: description}}
}

// NoValue returns an outcome without value.
func NoValue() evaluator.Outcome { return evaluator.Outcome{Kind: evaluator.NoValue} }

// Diagnostic returns an error outcome with the given message.
func Diagnostic(message string) evaluator.Outcome {
	return evaluator.Outcome{Kind: evaluator.Diagnostic, Message: message}
}

// Answer returns a Handler that always returns outcome.
func Answer(outcome evaluator.Outcome) Handler {
	return func(string) (evaluator.Outcome, error) { return outcome, nil }
}

// Answers to the support requests of the kernel.
var defaultRules = []rule{
	{"Int.bitWidth", Answer(Value("64"))},
	{"triggerAfterSuccessfulExecution", Answer(Value("[]"))},
	{"dlopen(", Answer(Value("Optional(0x0000000000a0b0c0)"))},
}

func (e *Evaluator) Evaluate(ctx context.Context, fragment string) (evaluator.Outcome, error) {
	e.mu.Lock()
	if e.dead {
		e.mu.Unlock()
		return evaluator.Outcome{}, evaluator.ErrDead
	}
	e.fragments = append(e.fragments, fragment)
	h := e.handler(fragment)
	e.mu.Unlock()
	if h == nil {
		return NoValue(), nil
	}
	return h(fragment)
}

func (e *Evaluator) handler(fragment string) Handler {
	for _, rules := range [][]rule{e.rules, defaultRules} {
		for _, r := range rules {
			if strings.Contains(fragment, r.substr) {
				return r.handle
			}
		}
	}
	return nil
}

// Fragments returns all fragments evaluated so far.
func (e *Evaluator) Fragments() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fragments...)
}

// CellFragments returns the evaluated fragments that contain substr.
func (e *Evaluator) CellFragments(substr string) []string {
	var matching []string
	for _, f := range e.Fragments() {
		if strings.Contains(f, substr) {
			matching = append(matching, f)
		}
	}
	return matching
}

// WriteOutput makes s available to PollOutput, as if the evaluated program
// had written it.
func (e *Evaluator) WriteOutput(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.output = append(e.output, s...)
}

func (e *Evaluator) PollOutput(max int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := min(max, len(e.output))
	if n == 0 {
		return nil
	}
	out := append([]byte(nil), e.output[:n]...)
	e.output = e.output[n:]
	return out
}

// SetMemory makes ReadMemory return data for reads starting at addr.
func (e *Evaluator) SetMemory(addr uint64, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memory[addr] = data
}

func (e *Evaluator) ReadMemory(_ context.Context, addr uint64, n int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.memory[addr]
	if !ok || len(data) < n {
		return nil, fmt.Errorf("cannot read %d bytes at 0x%x", n, addr)
	}
	return data[:n], nil
}

func (e *Evaluator) Interrupt() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return evaluator.ErrDead
	}
	select {
	case e.interrupts <- struct{}{}:
	default:
	}
	return nil
}

// Interrupts returns a channel that receives a value for every call to
// Interrupt.
func (e *Evaluator) Interrupts() <-chan struct{} { return e.interrupts }

// Kill makes the evaluator behave as if its process had died.
func (e *Evaluator) Kill() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dead = true
}

func (e *Evaluator) Alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.dead
}

func (e *Evaluator) StackTrace(context.Context) ([]evaluator.Frame, error) {
	if !e.Alive() {
		return nil, evaluator.ErrDead
	}
	return e.Frames, nil
}

func (e *Evaluator) Complete(_ context.Context, code string) (evaluator.Completion, error) {
	if e.Completer == nil {
		return evaluator.Completion{}, nil
	}
	return e.Completer(code), nil
}

func (e *Evaluator) Capabilities() evaluator.Capabilities { return e.Caps }

func (e *Evaluator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	e.dead = true
	return nil
}

// Done returns a channel that is closed when Close is called.
func (e *Evaluator) Done() <-chan struct{} { return e.done }

// Closed reports whether Close has been called.
func (e *Evaluator) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// ErrBoot is a boot failure that tests can inject.
var ErrBoot = errors.New("cannot start evaluator")

// Booter is an [evaluator.Booter] that hands out Evaluator.
type Booter struct {
	Evaluator *Evaluator
	// If not nil, returned by Boot instead of booting.
	Err error

	mu   sync.Mutex
	opts []evaluator.BootOptions
}

var _ evaluator.Booter = (*Booter)(nil)

func (b *Booter) Boot(_ context.Context, opts evaluator.BootOptions) (evaluator.Evaluator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts = append(b.opts, opts)
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Evaluator, nil
}

// Boots returns the options of every call to Boot.
func (b *Booter) Boots() []evaluator.BootOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]evaluator.BootOptions(nil), b.opts...)
}
