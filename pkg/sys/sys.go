// Package sys provide system utilities with the same API across OSes.
package sys

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Buffer size of the channel returned by NotifyInterrupts. Interrupts that
// arrive while the buffer is full are dropped.
const interruptChanBufferSize = 1

// NotifyInterrupts returns a channel on which interrupt requests from the
// notebook front-end (SIGINT) are delivered. Once it has been called, SIGINT no
// longer terminates the process; the receiver of the channel is the sole
// observer of the signal.
func NotifyInterrupts() chan os.Signal { return notifyInterrupts() }

// IsATTY determines whether the given file is a terminal.
func IsATTY(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
