// Package server implements the kernel subprogram that serves a notebook
// front-end.
//
// The kernel does not speak ZeroMQ itself. A bridge process owns the sockets
// described by the connection file and talks to the kernel with JSON-RPC 2.0
// over stdin and stdout, using the same Content-Length framing as language
// servers. Every shell request is a call whose method is the request's message
// type and whose params are the [jupyter.Request]; the result is the content
// of the reply. Messages for the iopub channel are sent as "iopub"
// notifications carrying a complete [jupyter.Message], or as "iopub_raw"
// notifications for messages that evaluated code has already serialized.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sourcegraph/jsonrpc2"

	"src.swiftkernel.dev/pkg/config"
	"src.swiftkernel.dev/pkg/env"
	"src.swiftkernel.dev/pkg/evaluator"
	"src.swiftkernel.dev/pkg/evaluator/replproc"
	"src.swiftkernel.dev/pkg/install"
	"src.swiftkernel.dev/pkg/jupyter"
	"src.swiftkernel.dev/pkg/kernel"
	"src.swiftkernel.dev/pkg/logutil"
	"src.swiftkernel.dev/pkg/prog"
	"src.swiftkernel.dev/pkg/store"
	"src.swiftkernel.dev/pkg/sys"
)

var logger = logutil.GetLogger("[server] ")

// Program is the server subprogram.
type Program struct {
	connFile string
	db       string
	config   *string

	// Used in tests.
	newBooter func(*config.Config) evaluator.Booter
}

func (p *Program) RegisterFlags(fs *prog.FlagSet) {
	fs.StringVar(&p.connFile, "f", "",
		"Path to the Jupyter connection file; serve the front-end over stdin and stdout")
	fs.StringVar(&p.db, "db", "",
		"Path to the execution history database; overrides history_db")
	p.config = fs.Config()
}

func (p *Program) Run(fds [3]*os.File, args []string) error {
	if p.connFile == "" {
		return prog.ErrNextProgram
	}
	if len(args) > 0 {
		return prog.BadUsage("arguments are not allowed with -f")
	}
	cfg, err := config.Load(*p.config)
	if err != nil {
		return err
	}
	info, err := jupyter.ReadConnectionFile(p.connFile)
	if err != nil {
		return err
	}
	if sys.IsATTY(fds[0].Fd()) {
		fmt.Fprintln(fds[2],
			"warning: stdin is a terminal; the kernel expects JSON-RPC from a notebook bridge")
	}
	if p.db != "" {
		cfg.HistoryDB = p.db
	}

	var history *store.Store
	if cfg.HistoryDB != "" {
		history, err = store.Open(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer history.Close()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	id := jupyter.NewIdentity(info.Key, os.Getenv(env.USER))
	interrupts := sys.NotifyInterrupts()
	defer signal.Stop(interrupts)

	newBooter := p.newBooter
	if newBooter == nil {
		newBooter = launcher
	}
	kcfg := kernel.Config{
		Booter: newBooter(cfg),
		Install: install.Config{
			BuildPath:   cfg.BuildPath,
			PackagePath: cfg.PackagePath,
			ModulePath:  cfg.ModulePath,
			ScratchDir:  cfg.ScratchDir,
		},
		IncludeDirs:  cfg.IncludeDirs,
		Cwd:          cwd,
		PollInterval: cfg.PollInterval,
		Identity:     id,
		Interrupts:   interrupts,
	}
	s := newServer(nil, id)
	if history != nil {
		kcfg.History = history
		s.history = history
	}
	s.session = kernel.NewSession(kcfg)
	defer s.session.Close()

	logger.Printf("serving session %s for %s", id.Session, info.KernelName)
	return s.serve(context.Background(), transport{fds[0], fds[1]})
}

func launcher(cfg *config.Config) evaluator.Booter {
	return &replproc.Launcher{Path: cfg.ReplPath, DisableASLR: cfg.DisableASLR}
}

// Serves requests until the peer disconnects or the kernel decides to exit.
func (s *server) serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{}),
		s.handler())
	select {
	case <-conn.DisconnectNotify():
		logger.Println("peer disconnected")
	case <-s.exit:
		logger.Println("exiting")
		conn.Close()
	}
	return nil
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
