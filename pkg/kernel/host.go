package kernel

import (
	"errors"
	"os/exec"

	"src.swiftkernel.dev/pkg/jupyter"
)

// Carries out the immediate effects of directives for a Session, with the
// publisher of the current request.
type host struct {
	s   *Session
	pub jupyter.Publisher
}

func (h host) Booted() bool { return h.s.booted() }

func (h host) SetCompletion(enabled bool) {
	if !enabled {
		h.s.completion = false
		stream(h.pub, "Completion disabled!\n")
		return
	}
	if h.s.booted() && !h.s.caps.Completion {
		stream(h.pub, "Completion NOT enabled because toolchain does not have CompleteCode API.\n")
		return
	}
	h.s.completion = true
	stream(h.pub, "Completion enabled!\n")
}

// Runs a shell command and sends its combined output. The exit status of the
// command is not an error.
func (h host) System(command string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = h.s.cfg.Cwd
	output, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err
	}
	if len(output) > 0 {
		stream(h.pub, string(output))
	}
	return nil
}

// Sends everything written to it as stdout stream messages.
type streamWriter struct {
	pub jupyter.Publisher
}

func (w streamWriter) Write(p []byte) (int, error) {
	if err := w.pub.Publish(jupyter.MsgStream, jupyter.Stdout(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
