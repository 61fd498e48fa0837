// Package kernel implements the execution session of the kernel: the state
// that spans the lifetime of the kernel process and the handling of execute
// and complete requests against it.
//
// A Session goes through the following states, strictly in order:
//
//	Uninitialized -> Installing -> Booting -> Serving -> Terminal
//
// The evaluator is booted lazily, by the first cell that is not blank, and
// only after the packages requested by that cell have been installed, so
// that the evaluator sees the installed modules when it starts. A failed
// installation or boot returns the session to Uninitialized, so the next cell
// can try again. Once the evaluator has died the session is Terminal and the
// host is expected to exit.
package kernel

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"src.swiftkernel.dev/pkg/config"
	"src.swiftkernel.dev/pkg/evaluator"
	"src.swiftkernel.dev/pkg/install"
	"src.swiftkernel.dev/pkg/jupyter"
	"src.swiftkernel.dev/pkg/logutil"
	"src.swiftkernel.dev/pkg/store"
)

var logger = logutil.GetLogger("[kernel] ")

// State is the lifecycle state of a Session.
type State int

// Possible values of State.
const (
	Uninitialized State = iota
	Installing
	Booting
	Serving
	Terminal
)

var stateNames = [...]string{"Uninitialized", "Installing", "Booting", "Serving", "Terminal"}

func (s State) String() string {
	if 0 <= s && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// History records executed cells. It is implemented by *store.Store.
type History interface {
	AddCell(store.Cell) (int, error)
}

// Config keeps the dependencies of a Session.
type Config struct {
	// Starts the evaluator.
	Booter evaluator.Booter
	// Where and how to install packages. The Output field is ignored.
	Install install.Config
	// Directories searched by %include.
	IncludeDirs []string
	// Working directory of the evaluator and of %system commands, and the
	// value of $cwd in %install directives.
	Cwd string
	// Interval at which output is polled during evaluation. Defaults to
	// config.DefaultPollInterval.
	PollInterval time.Duration
	// The Jupyter session, exposed to evaluated code.
	Identity jupyter.Identity
	// If not nil, executed cells are recorded here.
	History History
	// If not nil, every value received is forwarded to the evaluator as an
	// interrupt once it has booted.
	Interrupts <-chan os.Signal
}

// Session is the execution session. Requests are handled one at a time; a
// Session is safe for concurrent use, but a request blocks until the previous
// one has finished. Close does not wait for the current request.
type Session struct {
	cfg Config

	mu         sync.Mutex
	state      State
	count      int
	installRes *install.Result
	pendingLib string
	completion bool
	caps       evaluator.Capabilities
	intWidth   int

	// Guards ev and closed. ev is only written with both mu and evMu held, so
	// holding either is enough to read it.
	evMu   sync.Mutex
	ev     evaluator.Evaluator
	closed bool

	dead     chan struct{}
	deadOnce sync.Once
}

// NewSession creates a new Session. The evaluator is not started until the
// first cell that is not blank.
func NewSession(cfg Config) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	return &Session{cfg: cfg, completion: true, dead: make(chan struct{})}
}

// State returns the current state of the session.
func (s *Session) State() State {
	if s.isClosed() {
		return Terminal
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExecutionCount returns the number of cells counted so far.
func (s *Session) ExecutionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Dead returns a channel that is closed when the evaluator has died. The host
// should exit once the reply to the current request has been sent.
func (s *Session) Dead() <-chan struct{} { return s.dead }

// Close terminates the evaluator, if it has been started. A request that is
// in progress fails once the evaluator has gone, and later requests find the
// process killed.
func (s *Session) Close() error {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	s.closed = true
	if s.ev == nil {
		return nil
	}
	return s.ev.Close()
}

func (s *Session) isClosed() bool {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	return s.closed
}

// Installs a freshly booted evaluator. It fails if the session was closed
// while booting, in which case ev is closed too. Must be called with mu held.
func (s *Session) setEvaluator(ev evaluator.Evaluator) error {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.closed {
		ev.Close()
		return errClosed
	}
	s.ev = ev
	return nil
}

func (s *Session) booted() bool { return s.ev != nil }

func (s *Session) cellName() string { return fmt.Sprintf("<Cell %d>", s.count) }

// Evaluates code attributed to the given file.
func (s *Session) submit(ctx context.Context, file, code string) (evaluator.Outcome, error) {
	return s.ev.Evaluate(ctx, fmt.Sprintf(`#sourceLocation(file: "%s", line: 1)`, file)+"\n"+code)
}
