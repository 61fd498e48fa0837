//go:build unix

package replproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"golang.org/x/sys/unix"

	"src.swiftkernel.dev/pkg/env"
	"src.swiftkernel.dev/pkg/evaluator"
)

// How long to wait for the child to exit on its own.
const exitGracePeriod = time.Second

// How long to wait for output the child reports as written to reach the
// terminal reader.
const outputGracePeriod = time.Second

// Boot starts a child process and negotiates its capabilities.
func (l *Launcher) Boot(ctx context.Context, opts evaluator.BootOptions) (evaluator.Evaluator, error) {
	if l.Path == "" {
		return nil, fmt.Errorf("%s is not specified", env.REPL_SWIFT_PATH)
	}
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}
	defer tty.Close()
	if err := setupTerminal(tty); err != nil {
		logger.Println("cannot set up terminal:", err)
	}
	// Kernel to child.
	childIn, kernelOut, err := os.Pipe()
	if err != nil {
		ptmx.Close()
		return nil, err
	}
	defer childIn.Close()
	// Child to kernel.
	kernelIn, childOut, err := os.Pipe()
	if err != nil {
		ptmx.Close()
		kernelOut.Close()
		return nil, err
	}
	defer childOut.Close()

	cmd := exec.Command(l.Path, l.Args...)
	cmd.Env = childEnv(l.baseEnv(), opts)
	cmd.Dir = opts.Dir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = tty, tty, tty
	cmd.ExtraFiles = []*os.File{childIn, childOut}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := start(cmd, l.DisableASLR); err != nil {
		ptmx.Close()
		kernelIn.Close()
		kernelOut.Close()
		return nil, fmt.Errorf("start %s: %w", l.Path, err)
	}
	logger.Println("started evaluator, pid", cmd.Process.Pid)

	p := &Process{cmd: cmd, pty: ptmx, exited: make(chan struct{})}
	p.outputCond = sync.NewCond(&p.outputMutex)
	go p.wait()
	go p.readOutput()
	p.conn = jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(transport{kernelIn, kernelOut}, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(rejectRequests))

	var init lsp.InitializeResult
	err = p.conn.Call(ctx, "initialize", lsp.InitializeParams{ProcessID: os.Getpid()}, &init)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("initialize evaluator: %w", err)
	}
	p.caps = evaluator.Capabilities{Completion: init.Capabilities.CompletionProvider != nil}
	return p, nil
}

func start(cmd *exec.Cmd, disableASLR bool) error {
	if !disableASLR {
		return cmd.Start()
	}
	var err error
	withoutASLR(func() { err = cmd.Start() })
	return err
}

func rejectRequests(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
}

type transport struct{ in, out *os.File }

func (c transport) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c transport) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c transport) Close() error {
	if err := c.in.Close(); err != nil {
		c.out.Close()
		return err
	}
	return c.out.Close()
}

// Process is a running REPL child. It implements [evaluator.Evaluator].
type Process struct {
	cmd  *exec.Cmd
	pty  *os.File
	conn *jsonrpc2.Conn
	caps evaluator.Capabilities

	outputMutex sync.Mutex
	outputCond  *sync.Cond
	output      []byte
	// Total number of bytes read from the terminal.
	outputRead uint64
	readerDone bool

	exited    chan struct{}
	closeOnce sync.Once
}

var _ evaluator.Evaluator = (*Process)(nil)

func (p *Process) wait() {
	err := p.cmd.Wait()
	logger.Println("evaluator exited:", err)
	close(p.exited)
}

func (p *Process) readOutput() {
	defer func() {
		p.outputMutex.Lock()
		p.readerDone = true
		p.outputMutex.Unlock()
		p.outputCond.Broadcast()
	}()
	var buf [4096]byte
	for {
		n, err := p.pty.Read(buf[:])
		if n > 0 {
			p.outputMutex.Lock()
			p.output = append(p.output, buf[:n]...)
			p.outputRead += uint64(n)
			p.outputMutex.Unlock()
			p.outputCond.Broadcast()
		}
		if err != nil {
			// Reading the master side fails with EIO once the child has
			// closed the terminal.
			if !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				logger.Println("reading output:", err)
			}
			return
		}
	}
}

// Waits until at least n bytes have been read from the terminal, the reader
// has stopped, or timeout elapses. It reports whether n bytes were read.
//
// The terminal may only expand the child's output, so n is a lower bound.
func (p *Process) awaitOutput(n uint64, timeout time.Duration) bool {
	p.outputMutex.Lock()
	defer p.outputMutex.Unlock()
	expired := false
	timer := time.AfterFunc(timeout, func() {
		p.outputMutex.Lock()
		expired = true
		p.outputMutex.Unlock()
		p.outputCond.Broadcast()
	})
	defer timer.Stop()
	for p.outputRead < n && !p.readerDone && !expired {
		p.outputCond.Wait()
	}
	return p.outputRead >= n
}

// Reports whether the child exits within d.
func (p *Process) waitExit(d time.Duration) bool {
	select {
	case <-p.exited:
		return true
	case <-time.After(d):
		return false
	}
}

func (p *Process) Evaluate(ctx context.Context, fragment string) (evaluator.Outcome, error) {
	if !p.Alive() {
		return evaluator.Outcome{}, evaluator.ErrDead
	}
	var r evaluateResult
	err := p.conn.Call(ctx, "evaluate", evaluateParams{Code: fragment}, &r)
	if err != nil {
		if p.waitExit(exitGracePeriod) {
			return evaluator.Outcome{Kind: evaluator.Diagnostic,
				Message: "evaluator exited during evaluation"}, nil
		}
		return evaluator.Outcome{}, fmt.Errorf("evaluate: %w", err)
	}
	// The reply can overtake the output on the terminal.
	if !p.awaitOutput(r.OutputBytes, outputGracePeriod) {
		logger.Printf("output of evaluation incomplete after %v", outputGracePeriod)
	}
	switch r.Kind {
	case "value":
		if r.Value == nil {
			return evaluator.Outcome{}, errors.New("evaluate: value outcome without value")
		}
		v := r.Value.value()
		return evaluator.Outcome{Kind: evaluator.ValueProduced, Value: &v}, nil
	case "none":
		return evaluator.Outcome{Kind: evaluator.NoValue}, nil
	case "error":
		return evaluator.Outcome{Kind: evaluator.Diagnostic, Message: r.Message}, nil
	default:
		return evaluator.Outcome{}, fmt.Errorf("evaluate: unknown outcome kind %q", r.Kind)
	}
}

func (p *Process) PollOutput(max int) []byte {
	p.outputMutex.Lock()
	defer p.outputMutex.Unlock()
	n := min(max, len(p.output))
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, p.output)
	p.output = p.output[n:]
	return out
}

func (p *Process) Interrupt() error {
	if !p.Alive() {
		return evaluator.ErrDead
	}
	return unix.Kill(p.cmd.Process.Pid, unix.SIGINT)
}

func (p *Process) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

func (p *Process) StackTrace(ctx context.Context) ([]evaluator.Frame, error) {
	var r stackTraceResult
	if err := p.conn.Call(ctx, "stackTrace", nil, &r); err != nil {
		return nil, fmt.Errorf("stack trace: %w", err)
	}
	frames := make([]evaluator.Frame, len(r.Frames))
	for i, f := range r.Frames {
		frames[i] = evaluator.Frame{Function: f.Function, File: f.File,
			Line: f.Line, Column: f.Column, Description: f.Description}
	}
	return frames, nil
}

func (p *Process) ReadMemory(ctx context.Context, addr uint64, n int) ([]byte, error) {
	var r readMemoryResult
	err := p.conn.Call(ctx, "readMemory", readMemoryParams{Address: addr, Count: n}, &r)
	if err != nil {
		return nil, fmt.Errorf("read memory: %w", err)
	}
	if len(r.Data) != n {
		return nil, fmt.Errorf("read memory: got %d bytes, want %d", len(r.Data), n)
	}
	return r.Data, nil
}

func (p *Process) Complete(ctx context.Context, code string) (evaluator.Completion, error) {
	var r completeResult
	if err := p.conn.Call(ctx, "complete", completeParams{Code: code}, &r); err != nil {
		return evaluator.Completion{}, fmt.Errorf("complete: %w", err)
	}
	return r.completion(), nil
}

func (p *Process) Capabilities() evaluator.Capabilities { return p.caps }

// Close asks the child to shut down, and kills it if it does not.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.Alive() {
			ctx, cancel := context.WithTimeout(context.Background(), exitGracePeriod)
			p.conn.Notify(ctx, "shutdown", nil)
			cancel()
		}
		p.conn.Close()
		if !p.waitExit(exitGracePeriod) {
			logger.Println("evaluator did not exit, killing")
			err = p.cmd.Process.Kill()
			<-p.exited
		}
		p.pty.Close()
	})
	return err
}
