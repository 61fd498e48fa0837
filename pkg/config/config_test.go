package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"src.swiftkernel.dev/pkg/env"
	"src.swiftkernel.dev/pkg/must"
	"src.swiftkernel.dev/pkg/testutil"
)

func setToolchainEnv(t *testing.T) {
	testutil.Setenv(t, env.REPL_SWIFT_PATH, "/toolchain/repl_swift")
	testutil.Setenv(t, env.SWIFT_BUILD_PATH, "/toolchain/swift-build")
	testutil.Setenv(t, env.SWIFT_PACKAGE_PATH, "/toolchain/swift-package")
	testutil.Setenv(t, env.SWIFT_IMPORT_SEARCH_PATH, "/scratch/modules")
	testutil.Setenv(t, env.SWIFT_KERNEL_SCRATCH_DIR, "/scratch")
}

func TestFromEnv(t *testing.T) {
	setToolchainEnv(t)
	cfg := FromEnv()

	want := &Config{
		ReplPath:     "/toolchain/repl_swift",
		BuildPath:    "/toolchain/swift-build",
		PackagePath:  "/toolchain/swift-package",
		ModulePath:   "/scratch/modules",
		ScratchDir:   "/scratch",
		IncludeDirs:  cfg.IncludeDirs,
		PollInterval: DefaultPollInterval,
		DisableASLR:  true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("FromEnv() (-want +got):\n%s", diff)
	}
	if len(cfg.IncludeDirs) == 0 {
		t.Errorf("IncludeDirs is empty")
	}
}

func TestFromEnv_MissingPathsStayEmpty(t *testing.T) {
	testutil.Unsetenv(t, env.REPL_SWIFT_PATH)
	testutil.Unsetenv(t, env.SWIFT_BUILD_PATH)
	cfg := FromEnv()
	if cfg.ReplPath != "" || cfg.BuildPath != "" {
		t.Errorf("got ReplPath %q, BuildPath %q, want both empty",
			cfg.ReplPath, cfg.BuildPath)
	}
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	setToolchainEnv(t)
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "kernel.yaml")
	must.WriteFile(path, `
repl_path: /other/repl_swift
include_dirs: [/lib/a, /lib/b]
poll_interval: 50ms
disable_aslr: false
history_db: /var/kernel/history.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ReplPath != "/other/repl_swift" {
		t.Errorf("ReplPath = %q", cfg.ReplPath)
	}
	if cfg.BuildPath != "/toolchain/swift-build" {
		t.Errorf("BuildPath = %q, want value from env", cfg.BuildPath)
	}
	if diff := cmp.Diff([]string{"/lib/a", "/lib/b"}, cfg.IncludeDirs); diff != "" {
		t.Errorf("IncludeDirs (-want +got):\n%s", diff)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.DisableASLR {
		t.Errorf("DisableASLR = true, want false")
	}
	if cfg.HistoryDB != "/var/kernel/history.db" {
		t.Errorf("HistoryDB = %q", cfg.HistoryDB)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "kernel.yaml")
	must.WriteFile(path, "repl_pth: /typo\n")

	if _, err := Load(path); err == nil {
		t.Errorf("Load with unknown field -> nil error, want error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Errorf("Load of missing file -> nil error, want error")
	}
}
