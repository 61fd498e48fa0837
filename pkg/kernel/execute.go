package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"src.swiftkernel.dev/pkg/evaluator"
	"src.swiftkernel.dev/pkg/install"
	"src.swiftkernel.dev/pkg/jupyter"
	"src.swiftkernel.dev/pkg/preprocess"
	"src.swiftkernel.dev/pkg/store"
)

// Execute handles an execute request. Messages caused by the request are
// published to pub, and parent is the header of the request.
//
// Errors of the cell, including failed directives and installations, are
// reported with an error reply and a nil error. A non-nil error is returned
// only for internal faults; the returned reply then describes the fault.
func (s *Session) Execute(ctx context.Context, pub jupyter.Publisher, parent json.RawMessage, req jupyter.ExecuteRequest) (*jupyter.ExecuteReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !req.Silent {
		s.count++
		publish(pub, jupyter.MsgExecuteInput,
			jupyter.ExecuteInput{Code: req.Code, ExecutionCount: s.count})
	}
	// Blank cells must not boot the evaluator, so that an empty request sent
	// by the front-end at startup does not rule out installing packages.
	if strings.TrimSpace(req.Code) == "" {
		return jupyter.OKReply(s.count), nil
	}
	if !req.Silent && req.StoreHistory {
		s.recordHistory(req.Code)
	}

	reply, err := s.execute(ctx, pub, parent, req.Code)
	if err == nil {
		return reply, nil
	}
	var (
		preprocessErr *PreprocessError
		installErr    *InstallError
		bootErr       *BootError
		fault         *InternalFault
	)
	switch {
	case errors.As(err, &preprocessErr), errors.As(err, &installErr), errors.As(err, &bootErr):
		logger.Println("cell failed:", err)
		return s.publishError(pub, err.Error()), nil
	case errors.As(err, &fault):
	default:
		fault = &InternalFault{Step: "execute", Err: err}
	}
	logger.Println("internal fault:", fault)
	return s.publishError(pub,
		"Kernel is in a bad state. Try restarting the kernel.",
		"",
		fmt.Sprintf("Exception in `%s`:", fault.Step),
		fault.Err.Error()), fault
}

func (s *Session) recordHistory(code string) {
	if s.cfg.History == nil {
		return
	}
	_, err := s.cfg.History.AddCell(store.Cell{
		Session: s.cfg.Identity.Session, Line: s.count, Input: code})
	if err != nil {
		logger.Println("cannot record history:", err)
	}
}

func (s *Session) execute(ctx context.Context, pub jupyter.Publisher, parent json.RawMessage, code string) (*jupyter.ExecuteReply, error) {
	if s.state == Terminal || s.isClosed() || (s.booted() && !s.ev.Alive()) {
		return s.processKilled(pub), nil
	}
	rewritten, effects, err := preprocess.Preprocess(code, preprocess.Config{
		CellName:    s.cellName(),
		IncludeDirs: s.cfg.IncludeDirs,
		Cwd:         s.cfg.Cwd,
		Host:        host{s, pub},
	})
	if err != nil {
		return nil, &PreprocessError{err}
	}
	if effects.HasInstallDirectives() && s.booted() {
		return nil, &InstallError{"Packages can only be installed during the first cell execution. " +
			"Restart the kernel to install packages."}
	}
	if !s.booted() {
		if err := s.installAndBoot(ctx, pub, effects); err != nil {
			return nil, err
		}
	}
	return s.runCell(ctx, pub, parent, rewritten)
}

func (s *Session) installAndBoot(ctx context.Context, pub jupyter.Publisher, effects *preprocess.Effects) error {
	if effects.WantsInstall() {
		s.state = Installing
		cfg := s.cfg.Install
		cfg.Output = streamWriter{pub}
		res, err := install.Run(ctx, cfg, effects)
		if err != nil {
			s.state = Uninitialized
			var installErr *install.Error
			if errors.As(err, &installErr) {
				return &InstallError{installErr.Message}
			}
			return &InstallError{err.Error()}
		}
		s.installRes = res
	}

	s.state = Booting
	opts := evaluator.BootOptions{ModulePath: s.cfg.Install.ModulePath, Dir: s.cfg.Cwd}
	if s.installRes != nil {
		opts.ModuleMapDirs = s.installRes.ModuleMapDirs
	}
	logger.Println("booting evaluator")
	ev, err := s.cfg.Booter.Boot(ctx, opts)
	if err == nil {
		err = s.setEvaluator(ev)
	}
	if err != nil {
		// The installation is kept; a later cell either installs again or
		// boots with the packages already built.
		s.state = Uninitialized
		return &BootError{err}
	}
	s.caps = ev.Capabilities()
	s.state = Serving
	s.startInterruptRelay()

	if err := s.initCommunicator(ctx); err != nil {
		return &InternalFault{Step: "initCommunicator", Err: err}
	}
	if s.installRes != nil {
		// Loaded as part of the cell, so that its output is forwarded.
		s.pendingLib = s.installRes.LibraryPath
	}
	return nil
}

func (s *Session) loadLibrary(ctx context.Context, path string) error {
	outcome, err := s.submit(ctx, s.cellName(),
		"import func Glibc.dlopen\ndlopen("+swiftQuote(path)+", RTLD_NOW)\n")
	if err != nil {
		return &InternalFault{Step: "loadLibrary", Err: err}
	}
	if outcome.Kind != evaluator.ValueProduced {
		return &InstallError{"dlopen error: " + outcome.Message}
	}
	if strings.TrimSpace(outcome.Value.Description) == "nil" {
		return &InstallError{"dlopen error. Run `String(cString: dlerror())` to see the error message."}
	}
	return nil
}

// Evaluates the cell while forwarding its output, and responds to the
// outcome.
func (s *Session) runCell(ctx context.Context, pub jupyter.Publisher, parent json.RawMessage, code string) (*jupyter.ExecuteReply, error) {
	p := startPump(s.ev, pub, s.cfg.PollInterval)
	outcome, err := s.evaluateCell(ctx, pub, parent, code)
	hadOutput := p.stop()
	if err != nil {
		if errors.Is(err, evaluator.ErrDead) || !s.ev.Alive() {
			return s.processKilled(pub), nil
		}
		return nil, err
	}
	return s.respond(ctx, pub, outcome, hadOutput)
}

// Does everything a cell evaluates, in the order the output is expected:
// the library of installed packages, the parent message, the cell itself
// and the handlers run after it.
func (s *Session) evaluateCell(ctx context.Context, pub jupyter.Publisher, parent json.RawMessage, code string) (evaluator.Outcome, error) {
	if path := s.pendingLib; path != "" {
		s.pendingLib = ""
		if err := s.loadLibrary(ctx, path); err != nil {
			return evaluator.Outcome{}, err
		}
		stream(pub, "Installation complete!")
	}
	if err := s.setParentMessage(ctx, parent); err != nil {
		return evaluator.Outcome{}, &InternalFault{Step: "setParentMessage", Err: err}
	}
	outcome, err := s.submit(ctx, s.cellName(), code)
	if err != nil {
		return evaluator.Outcome{}, &InternalFault{Step: "evaluate", Err: err}
	}
	if outcome.Kind != evaluator.Diagnostic {
		s.afterSuccessfulExecution(ctx, pub)
	}
	return outcome, nil
}

// Classifies the outcome of a cell and sends the corresponding messages.
//
// Whether a diagnostic comes from compilation or from running the cell is
// decided by whether the cell produced any output, since the evaluator writes
// runtime errors to the output. A cell that prints and then fails to compile
// a later statement is misclassified as a runtime error.
func (s *Session) respond(ctx context.Context, pub jupyter.Publisher, outcome evaluator.Outcome, hadOutput bool) (*jupyter.ExecuteReply, error) {
	switch outcome.Kind {
	case evaluator.ValueProduced:
		publish(pub, jupyter.MsgExecuteResult,
			jupyter.PlainResult(s.count, outcome.Value.Description))
		return jupyter.OKReply(s.count), nil
	case evaluator.NoValue:
		return jupyter.OKReply(s.count), nil
	case evaluator.Diagnostic:
		if !s.ev.Alive() {
			return s.processKilled(pub), nil
		}
		if !hadOutput {
			return s.publishError(pub, outcome.Message), nil
		}
		frames, err := s.ev.StackTrace(ctx)
		if err != nil {
			return nil, &InternalFault{Step: "getStackTrace", Err: err}
		}
		return s.publishError(pub, stackTrace(frames)...), nil
	}
	return nil, &InternalFault{Step: "respond", Err: fmt.Errorf("unknown outcome kind %v", outcome.Kind)}
}

// Only frames with source information are kept; the others belong to
// libraries and to the evaluator itself.
func stackTrace(frames []evaluator.Frame) []string {
	trace := []string{"Current stack trace:"}
	for _, f := range frames {
		if f.File == "" || f.File == "<compiler-generated>" {
			continue
		}
		trace = append(trace, "\t"+f.Description)
	}
	return trace
}

func (s *Session) processKilled(pub jupyter.Publisher) *jupyter.ExecuteReply {
	s.state = Terminal
	s.deadOnce.Do(func() {
		logger.Println("evaluator died")
		close(s.dead)
	})
	return s.publishError(pub, "Process killed")
}

func (s *Session) publishError(pub jupyter.Publisher, traceback ...string) *jupyter.ExecuteReply {
	e := jupyter.NewError(s.count, traceback...)
	publish(pub, jupyter.MsgError, e)
	return jupyter.ErrorReply(e)
}

func publish(pub jupyter.Publisher, msgType string, content any) {
	if err := pub.Publish(msgType, content); err != nil {
		logger.Printf("cannot publish %s: %v", msgType, err)
	}
}

func stream(pub jupyter.Publisher, text string) {
	publish(pub, jupyter.MsgStream, jupyter.Stdout(text))
}
