// Swiftkernel is a Jupyter kernel for Swift. It is started by a notebook
// bridge with the path of a connection file, and evaluates cells in a Swift
// REPL running as a child process.
package main

import (
	"os"

	"src.swiftkernel.dev/pkg/buildinfo"
	"src.swiftkernel.dev/pkg/prog"
	"src.swiftkernel.dev/pkg/server"
)

func main() {
	os.Exit(prog.Run(
		[3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args,
		prog.Composite(&buildinfo.Program{}, &server.Program{})))
}
