package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	bolt "go.etcd.io/bbolt"

	"src.swiftkernel.dev/pkg/env"
	"src.swiftkernel.dev/pkg/must"
	"src.swiftkernel.dev/pkg/preprocess"
	"src.swiftkernel.dev/pkg/testutil"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
}

func writeBuildDB(path string, names ...string) {
	must.OK(os.MkdirAll(filepath.Dir(path), 0755))
	db := must.OK1(bolt.Open(path, 0600, nil))
	defer db.Close()
	must.OK(db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(keyNamesBucket))
		if err != nil {
			return err
		}
		for i, name := range names {
			if err := b.Put(append([]byte{'N'}, name...), []byte(strconv.Itoa(i))); err != nil {
				return err
			}
		}
		return nil
	}))
}

var testEffects = &preprocess.Effects{
	Packages: []preprocess.Package{{Spec: `.package(path: "/src/Dep")`, Products: []string{"Dep"}}},
	Flags:    []string{"-c", "release"},
}

func TestRun(t *testing.T) {
	skipWithoutShell(t)
	scratch := testutil.TempDir(t)
	tools := testutil.TempDir(t)
	moduleDir := filepath.Join(testutil.TempDir(t), "modules")
	pkgDir := filepath.Join(scratch, "package")
	binDir := filepath.Join(pkgDir, ".build", "debug")
	depDir := filepath.Join(pkgDir, ".build", "checkouts", "Dep")
	modulemap := filepath.Join(depDir, "Sources", "CDep", "include", "module.modulemap")

	must.WriteFile(filepath.Join(binDir, "Dep.swiftmodule"), "swiftmodule")
	must.WriteFile(modulemap,
		"module CDep {\n    header \"cdep.h\"\n    header \"/abs/x.h\"\n    export *\n}\n")
	writeBuildDB(filepath.Join(pkgDir, ".build", "build.db"),
		filepath.Join(binDir, "Dep.swiftmodule"),
		modulemap,
		"/elsewhere/Other.swiftmodule",
		"/elsewhere/include/module.modulemap",
		filepath.Join(binDir, "Dep.swiftdoc"),
	)
	buildTool := filepath.Join(tools, "swift-build")
	must.WriteExecutable(buildTool, fmt.Sprintf(`#!/bin/sh
if [ "$1" = "--show-bin-path" ]; then
	echo '%s'
	exit 0
fi
echo "Compiling $*"
echo "Build complete!" >&2
`, binDir))
	packageTool := filepath.Join(tools, "swift-package")
	must.WriteExecutable(packageTool, fmt.Sprintf(`#!/bin/sh
cat <<'JSON'
{"name": "jupyterInstalledPackages", "path": "%s",
 "dependencies": [{"name": "Dep", "path": "%s", "dependencies": []}]}
JSON
`, pkgDir, depDir))

	var out strings.Builder
	result, err := Run(context.Background(), Config{
		BuildPath:   buildTool,
		PackagePath: packageTool,
		ModulePath:  moduleDir,
		ScratchDir:  scratch,
		Output:      &out,
	}, testEffects)
	if err != nil {
		t.Fatal(err)
	}

	wantOut := "Installing packages:\n\t.package(path: \"/src/Dep\")\n\t\tDep\n" +
		"Compiling -c release\nBuild complete!\n"
	if diff := cmp.Diff(wantOut, out.String()); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
	wantResult := &Result{
		LibraryPath:   filepath.Join(binDir, "libjupyterInstalledPackages.so"),
		ModuleMapDirs: []string{filepath.Join(moduleDir, "modulemap-CDep")},
	}
	if diff := cmp.Diff(wantResult, result); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
	if got := must.ReadFileString(filepath.Join(moduleDir, "Dep.swiftmodule")); got != "swiftmodule" {
		t.Errorf("copied module interface has content %q", got)
	}
	for _, name := range []string{"Other.swiftmodule", "Dep.swiftdoc"} {
		if _, err := os.Stat(filepath.Join(moduleDir, name)); err == nil {
			t.Errorf("%s was harvested, want it skipped", name)
		}
	}
	wantMap := fmt.Sprintf("module CDep {\n    header \"%s\"\n    header \"/abs/x.h\"\n    export *\n}\n",
		filepath.Join(filepath.Dir(modulemap), "cdep.h"))
	gotMap := must.ReadFileString(filepath.Join(moduleDir, "modulemap-CDep", "module.modulemap"))
	if diff := cmp.Diff(wantMap, gotMap); diff != "" {
		t.Errorf("module map (-want +got):\n%s", diff)
	}
	manifest := must.ReadFileString(filepath.Join(pkgDir, "Package.swift"))
	for _, want := range []string{`.package(path: "/src/Dep"),`, `"Dep",`, "type: .dynamic"} {
		if !strings.Contains(manifest, want) {
			t.Errorf("manifest does not contain %q:\n%s", want, manifest)
		}
	}
	if got := must.ReadFileString(filepath.Join(pkgDir, "jupyterInstalledPackages.swift")); got != "// intentionally blank\n" {
		t.Errorf("source file has content %q", got)
	}
}

func TestRun_NoWork(t *testing.T) {
	result, err := Run(context.Background(), Config{}, &preprocess.Effects{Location: "/x"})
	if err != nil {
		t.Fatal(err)
	}
	if result.LibraryPath != "" {
		t.Errorf("LibraryPath = %q, want empty", result.LibraryPath)
	}
}

func TestRun_MissingPaths(t *testing.T) {
	full := Config{BuildPath: "b", PackagePath: "p", ModulePath: "m"}
	tests := []struct {
		clear func(*Config)
		name  string
	}{
		{func(c *Config) { c.BuildPath = "" }, env.SWIFT_BUILD_PATH},
		{func(c *Config) { c.PackagePath = "" }, env.SWIFT_PACKAGE_PATH},
		{func(c *Config) { c.ModulePath = "" }, env.SWIFT_IMPORT_SEARCH_PATH},
	}
	for _, test := range tests {
		cfg := full
		test.clear(&cfg)
		_, err := Run(context.Background(), cfg, testEffects)
		want := "Install Error: Cannot install packages because " + test.name + " is not specified."
		if err == nil || err.Error() != want {
			t.Errorf("got error %v, want %q", err, want)
		}
		var installErr *Error
		if !errors.As(err, &installErr) {
			t.Errorf("got error of type %T, want *Error", err)
		}
	}
}

func TestRun_BuildFailure(t *testing.T) {
	skipWithoutShell(t)
	tools := testutil.TempDir(t)
	buildTool := filepath.Join(tools, "swift-build")
	must.WriteExecutable(buildTool, "#!/bin/sh\necho 'error: no such module'\nexit 3\n")
	var out strings.Builder
	_, err := Run(context.Background(), Config{
		BuildPath:   buildTool,
		PackagePath: "/nonexistent",
		ModulePath:  filepath.Join(tools, "modules"),
		ScratchDir:  testutil.TempDir(t),
		Output:      &out,
	}, testEffects)
	want := "Install Error: swift-build returned nonzero exit code 3."
	if err == nil || err.Error() != want {
		t.Errorf("got error %v, want %q", err, want)
	}
	if !strings.HasSuffix(out.String(), "error: no such module\n") {
		t.Errorf("build output was not streamed: %q", out.String())
	}
}

func TestPrepareScratch_Location(t *testing.T) {
	base := testutil.TempDir(t)
	location := filepath.Join(testutil.TempDir(t), "pkgs")
	for i := 0; i < 2; i++ {
		pkgDir, err := prepareScratch(base, location)
		if err != nil {
			t.Fatal(err)
		}
		target, err := os.Readlink(pkgDir)
		if err != nil {
			t.Fatal(err)
		}
		if target != location {
			t.Errorf("package directory links to %q, want %q", target, location)
		}
	}
}

func TestPrepareScratch_RefusesToReplaceDirectory(t *testing.T) {
	base := testutil.TempDir(t)
	must.OK(os.Mkdir(filepath.Join(base, "package"), 0755))
	if _, err := prepareScratch(base, testutil.TempDir(t)); err == nil {
		t.Errorf("want error")
	}
}
