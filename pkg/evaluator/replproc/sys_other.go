//go:build unix && !linux

package replproc

import "os"

func withoutASLR(f func()) {
	logger.Println("disabling ASLR is only supported on Linux")
	f()
}

func setupTerminal(*os.File) error { return nil }
