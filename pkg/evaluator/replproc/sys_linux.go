package replproc

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// Personality flag that turns off address space layout randomization.
const addrNoRandomize = 0x0040000

// Queries the personality without changing it.
const personalityQuery = 0xffffffff

// Runs f with the personality of the calling thread changed so that
// processes it starts have address space layout randomization turned off.
// Personalities are per thread and inherited by new processes.
func withoutASLR(f func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	old, _, errno := unix.Syscall(unix.SYS_PERSONALITY, personalityQuery, 0, 0)
	if errno != 0 {
		logger.Println("cannot query personality:", errno)
		f()
		return
	}
	_, _, errno = unix.Syscall(unix.SYS_PERSONALITY, old|addrNoRandomize, 0, 0)
	if errno != 0 {
		logger.Println("cannot disable ASLR:", errno)
		f()
		return
	}
	defer unix.Syscall(unix.SYS_PERSONALITY, old, 0, 0)
	f()
}

// Turns off output post-processing and echo, so that the output of the child
// reaches the kernel as written.
func setupTerminal(tty *os.File) error {
	fd := int(tty.Fd())
	term, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	term.Oflag &^= unix.OPOST | unix.ONLCR
	term.Lflag &^= unix.ECHO
	return unix.IoctlSetTermios(fd, unix.TCSETS, term)
}
