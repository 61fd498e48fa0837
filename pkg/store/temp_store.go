package store

import (
	"path/filepath"

	"src.swiftkernel.dev/pkg/testutil"
)

// MustTempStore returns a Store backed by a file in a temporary directory. The
// store is closed when the test ends.
func MustTempStore(c testutil.Cleanuper) *Store {
	st, err := Open(filepath.Join(testutil.TempDir(c), "history.db"))
	if err != nil {
		panic(err)
	}
	c.Cleanup(func() { st.Close() })
	return st
}
