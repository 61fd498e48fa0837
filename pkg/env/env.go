// Package env keeps names of environment variables with special significance to
// the kernel.
package env

// Environment variables with special significance to the kernel.
//
// Note that some of these env vars may be significant only in special
// circumstances, such as when running unit tests.
const (
	// Path of the REPL executable run as the evaluator.
	REPL_SWIFT_PATH = "REPL_SWIFT_PATH"
	// Path of the build tool invoked by %install.
	SWIFT_BUILD_PATH = "SWIFT_BUILD_PATH"
	// Path of the package-manifest tool used to list dependencies.
	SWIFT_PACKAGE_PATH = "SWIFT_PACKAGE_PATH"
	// Directory the evaluator searches for installed modules.
	SWIFT_IMPORT_SEARCH_PATH = "SWIFT_IMPORT_SEARCH_PATH"
	// Base directory for package installation scratchwork.
	SWIFT_KERNEL_SCRATCH_DIR = "SWIFT_KERNEL_SCRATCH_DIR"
	// File descriptors of the evaluator control channel, as seen by the child.
	SWIFT_KERNEL_RPC_FDS = "SWIFT_KERNEL_RPC_FDS"

	SWIFT_KERNEL_TEST_TIME_SCALE = "SWIFT_KERNEL_TEST_TIME_SCALE"

	HOME       = "HOME"
	PATH       = "PATH"
	PYTHONPATH = "PYTHONPATH"
	USER       = "USER"
)
