package replproc

import (
	"context"
	"errors"

	"src.swiftkernel.dev/pkg/evaluator"
)

var errUnsupported = errors.New("the evaluator is not supported on Windows")

// Boot always fails on Windows.
func (l *Launcher) Boot(context.Context, evaluator.BootOptions) (evaluator.Evaluator, error) {
	return nil, errUnsupported
}
