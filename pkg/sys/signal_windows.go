package sys

import (
	"os"
	"os/signal"
)

func notifyInterrupts() chan os.Signal {
	sigCh := make(chan os.Signal, interruptChanBufferSize)
	signal.Notify(sigCh, os.Interrupt)
	return sigCh
}
