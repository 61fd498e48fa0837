//go:build unix

package sys

import (
	"os"
	"os/signal"
	"syscall"
)

func notifyInterrupts() chan os.Signal {
	sigCh := make(chan os.Signal, interruptChanBufferSize)
	signal.Notify(sigCh, syscall.SIGINT)
	return sigCh
}
