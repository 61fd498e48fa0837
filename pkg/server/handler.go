package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"src.swiftkernel.dev/pkg/buildinfo"
	"src.swiftkernel.dev/pkg/jupyter"
	"src.swiftkernel.dev/pkg/kernel"
	"src.swiftkernel.dev/pkg/store"
)

// Error code of calls whose handling hit an internal fault. The data of the
// error is the reply content describing the fault.
const codeInternalFault = -32001

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
)

// How long to wait after a final reply before disconnecting, so that the
// reply reaches the front-end.
var exitDelay = 100 * time.Millisecond

type historyStore interface {
	Tail(n int) ([]store.Cell, error)
	SessionCells(session string, start, stop int) ([]store.Cell, error)
}

type server struct {
	session *kernel.Session
	id      jupyter.Identity
	history historyStore

	exit     chan struct{}
	exitOnce sync.Once
}

func newServer(session *kernel.Session, id jupyter.Identity) *server {
	return &server{session: session, id: id, exit: make(chan struct{})}
}

func (s *server) handler() jsonrpc2.Handler {
	return s.routingHandler(map[string]method{
		"kernel_info_request": s.kernelInfo,
		"execute_request":     s.execute,
		"complete_request":    s.complete,
		"is_complete_request": s.isComplete,
		"history_request":     s.historyRequest,
		"shutdown_request":    s.shutdown,
	})
}

type method func(ctx context.Context, pub *publisher, req *jupyter.Request) (any, error)

// Decodes the request and brackets its handling with busy and idle status
// messages.
func (s *server) routingHandler(methods map[string]method) jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, r *jsonrpc2.Request) (any, error) {
		fn, ok := methods[r.Method]
		if !ok {
			logger.Println("unknown method", r.Method)
			return nil, errMethodNotFound
		}
		var req jupyter.Request
		if r.Params == nil || json.Unmarshal(*r.Params, &req) != nil {
			logger.Println("invalid params for", r.Method)
			return nil, errInvalidParams
		}
		pub := &publisher{ctx, conn, s.id, req.RawHeader()}
		pub.status("busy")
		defer pub.status("idle")
		return fn(ctx, pub, &req)
	})
}

func (s *server) scheduleExit() {
	time.AfterFunc(exitDelay, func() {
		s.exitOnce.Do(func() { close(s.exit) })
	})
}

// Handler implementations. These are all called synchronously.

func (s *server) kernelInfo(_ context.Context, _ *publisher, _ *jupyter.Request) (any, error) {
	return &jupyter.KernelInfoReply{
		Status:                jupyter.StatusOK,
		ProtocolVersion:       jupyter.ProtocolVersion,
		Implementation:        buildinfo.Implementation,
		ImplementationVersion: buildinfo.FullVersion(),
		LanguageInfo:          jupyter.SwiftLanguage,
	}, nil
}

func (s *server) execute(ctx context.Context, pub *publisher, req *jupyter.Request) (any, error) {
	params := jupyter.ExecuteRequest{StoreHistory: true}
	if json.Unmarshal(req.Content, &params) != nil {
		return nil, errInvalidParams
	}
	reply, err := s.session.Execute(ctx, pub, req.RawHeader(), params)
	select {
	case <-s.session.Dead():
		s.scheduleExit()
	default:
	}
	if err != nil {
		var fault *kernel.InternalFault
		if !errors.As(err, &fault) {
			logger.Println("unexpected error from session:", err)
		}
		rpcErr := &jsonrpc2.Error{Code: codeInternalFault, Message: err.Error()}
		rpcErr.SetError(reply)
		return nil, rpcErr
	}
	return reply, nil
}

func (s *server) complete(ctx context.Context, _ *publisher, req *jupyter.Request) (any, error) {
	var params jupyter.CompleteRequest
	if json.Unmarshal(req.Content, &params) != nil {
		return nil, errInvalidParams
	}
	return s.session.Complete(ctx, params), nil
}

// Whether code is complete is not known without parsing Swift.
func (s *server) isComplete(_ context.Context, _ *publisher, _ *jupyter.Request) (any, error) {
	return &jupyter.IsCompleteReply{Status: "unknown"}, nil
}

func (s *server) shutdown(_ context.Context, _ *publisher, req *jupyter.Request) (any, error) {
	var params jupyter.ShutdownRequest
	if json.Unmarshal(req.Content, &params) != nil {
		return nil, errInvalidParams
	}
	s.scheduleExit()
	return &jupyter.ShutdownReply{Status: jupyter.StatusOK, Restart: params.Restart}, nil
}

// Serves the "tail" access type across sessions, and the "range" access type
// within the current session. Outputs are not recorded, so the output flag is
// ignored.
func (s *server) historyRequest(_ context.Context, _ *publisher, req *jupyter.Request) (any, error) {
	var params jupyter.HistoryRequest
	if json.Unmarshal(req.Content, &params) != nil {
		return nil, errInvalidParams
	}
	reply := &jupyter.HistoryReply{Status: jupyter.StatusOK, History: [][]any{}}
	if s.history == nil {
		return reply, nil
	}
	var cells []store.Cell
	var err error
	switch params.HistAccessType {
	case "tail":
		cells, err = s.history.Tail(params.N)
	case "range":
		if params.Session != 0 {
			return reply, nil
		}
		cells, err = s.history.SessionCells(s.id.Session, params.Start, params.Stop)
	default:
		return reply, nil
	}
	if err != nil {
		logger.Println("reading history:", err)
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
	}
	sessions := relativeSessions(cells, s.id.Session)
	for _, c := range cells {
		reply.History = append(reply.History, []any{sessions[c.Session], c.Line, c.Input})
	}
	return reply, nil
}

// Numbers sessions the way history requests address them: 0 is the current
// session, -1 the latest session before it, and so on.
func relativeSessions(cells []store.Cell, current string) map[string]int {
	numbers := map[string]int{current: 0}
	n := 0
	for i := len(cells) - 1; i >= 0; i-- {
		if _, ok := numbers[cells[i].Session]; !ok {
			n--
			numbers[cells[i].Session] = n
		}
	}
	return numbers
}
