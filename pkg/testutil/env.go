package testutil

import "os"

// Setenv sets an environment variable until the test ends, then restores its
// previous state. It returns value.
func Setenv(c Cleanuper, name, value string) string {
	restoreEnvOnCleanup(c, name)
	os.Setenv(name, value)
	return value
}

// Unsetenv removes an environment variable until the test ends.
func Unsetenv(c Cleanuper, name string) {
	restoreEnvOnCleanup(c, name)
	os.Unsetenv(name)
}

func restoreEnvOnCleanup(c Cleanuper, name string) {
	old, existed := os.LookupEnv(name)
	c.Cleanup(func() {
		if existed {
			os.Setenv(name, old)
		} else {
			os.Unsetenv(name)
		}
	})
}

// Set assigns v to *p until the test ends.
func Set[T any](c Cleanuper, p *T, v T) {
	old := *p
	*p = v
	c.Cleanup(func() { *p = old })
}
