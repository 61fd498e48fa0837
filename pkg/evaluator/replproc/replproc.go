// Package replproc runs the evaluator as a child process.
//
// The child is the REPL executable. Its standard streams are connected to a
// pseudo-terminal, so that the evaluated program's output is line-buffered
// and can be collected as it is produced. Requests are sent over a separate
// JSON-RPC 2.0 channel on file descriptors 3 (kernel to child) and 4 (child to
// kernel), framed with Content-Length headers.
package replproc

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-lsp"

	"src.swiftkernel.dev/pkg/env"
	"src.swiftkernel.dev/pkg/evaluator"
	"src.swiftkernel.dev/pkg/logutil"
)

var logger = logutil.GetLogger("[replproc] ")

// Launcher starts REPL child processes. It implements [evaluator.Booter].
type Launcher struct {
	// Path of the REPL executable.
	Path string
	// Extra arguments passed to the REPL.
	Args []string
	// Environment inherited by the child. If nil, the environment of the
	// kernel is used.
	Env []string
	// Turn off address space layout randomization for the child. Failure to
	// do so is logged and otherwise ignored.
	DisableASLR bool
}

var _ evaluator.Booter = (*Launcher)(nil)

// Environment variables of the kernel that must not leak into the child.
var envBlacklist = []string{
	env.PYTHONPATH,
	env.REPL_SWIFT_PATH,
	env.SWIFT_IMPORT_SEARCH_PATH,
	env.SWIFT_KERNEL_RPC_FDS,
}

// childEnv derives the environment of the child from base.
func childEnv(base []string, opts evaluator.BootOptions) []string {
	var result []string
outer:
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		for _, blocked := range envBlacklist {
			if name == blocked {
				continue outer
			}
		}
		result = append(result, kv)
	}
	result = append(result, env.SWIFT_KERNEL_RPC_FDS+"=3,4")
	if opts.ModulePath != "" {
		dirs := append([]string{opts.ModulePath}, opts.ModuleMapDirs...)
		result = append(result, env.SWIFT_IMPORT_SEARCH_PATH+"="+
			strings.Join(dirs, string(filepath.ListSeparator)))
	}
	return result
}

func (l *Launcher) baseEnv() []string {
	if l.Env != nil {
		return l.Env
	}
	return os.Environ()
}

// Wire types of the control channel.

type evaluateParams struct {
	Code string `json:"code"`
}

type evaluateResult struct {
	// One of "value", "none" and "error".
	Kind    string     `json:"kind"`
	Value   *valueJSON `json:"value,omitempty"`
	Message string     `json:"message,omitempty"`

	// Total number of bytes the child has written to the terminal, including
	// the output of this evaluation.
	OutputBytes uint64 `json:"output_bytes,omitempty"`
}

type valueJSON struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Data        []byte      `json:"data,omitempty"`
	Children    []valueJSON `json:"children,omitempty"`
}

func (v *valueJSON) value() evaluator.Value {
	value := evaluator.Value{Name: v.Name, Description: v.Description, Data: v.Data}
	for i := range v.Children {
		value.Children = append(value.Children, v.Children[i].value())
	}
	return value
}

type frameJSON struct {
	Function    string `json:"function"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Description string `json:"description"`
}

type stackTraceResult struct {
	Frames []frameJSON `json:"frames"`
}

type readMemoryParams struct {
	Address uint64 `json:"address"`
	Count   int    `json:"count"`
}

type readMemoryResult struct {
	Data []byte `json:"data"`
}

type completeParams struct {
	Code string `json:"code"`
}

type completeResult struct {
	Prefix string               `json:"prefix"`
	Items  []lsp.CompletionItem `json:"items"`
}

func (r *completeResult) completion() evaluator.Completion {
	c := evaluator.Completion{Prefix: r.Prefix}
	for _, item := range r.Items {
		text := item.InsertText
		if text == "" {
			text = item.Label
		}
		c.Matches = append(c.Matches, text)
	}
	return c
}
