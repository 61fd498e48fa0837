// Package install builds the dependencies requested with %install and makes
// their artifacts visible to the evaluator.
//
// Installation synthesizes a package that declares a single dynamic library
// depending on every requested package, builds it with the external build
// tool, and harvests the compiled module interfaces and module maps of the
// dependencies into the module search directory. The library itself is loaded
// into the evaluator by the caller once it has booted.
package install

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"src.swiftkernel.dev/pkg/env"
	"src.swiftkernel.dev/pkg/logutil"
	"src.swiftkernel.dev/pkg/preprocess"
)

var logger = logutil.GetLogger("[install] ")

// Name of the synthesized package and of its library product.
const productName = "jupyterInstalledPackages"

// Config keeps the locations the installer works with.
type Config struct {
	// Build tool, run in the package directory.
	BuildPath string
	// Package-manifest tool, used to list the dependency tree.
	PackagePath string
	// Directory the evaluator searches for modules.
	ModulePath string
	// Base of the scratch directory. If empty, a fresh temporary directory
	// is used.
	ScratchDir string
	// Receives progress messages and the output of the build tool. May be
	// nil.
	Output io.Writer
}

// Result describes a successful installation.
type Result struct {
	// Path of the dynamic library to load into the evaluator. Empty if
	// nothing was installed.
	LibraryPath string
	// Directories holding the harvested module maps, one per module.
	ModuleMapDirs []string
}

// Error is returned for all errors during installation.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "Install Error: " + e.Message }

func errorf(format string, args ...any) error {
	return &Error{fmt.Sprintf(format, args...)}
}

// Run carries out the install effects of a cell. It returns a Result with an
// empty LibraryPath if effects do not ask for any work.
func Run(ctx context.Context, cfg Config, effects *preprocess.Effects) (*Result, error) {
	if effects == nil || !effects.WantsInstall() {
		return &Result{}, nil
	}
	for _, required := range []struct{ value, name string }{
		{cfg.BuildPath, env.SWIFT_BUILD_PATH},
		{cfg.PackagePath, env.SWIFT_PACKAGE_PATH},
		{cfg.ModulePath, env.SWIFT_IMPORT_SEARCH_PATH},
	} {
		if required.value == "" {
			return nil, errorf(
				"Cannot install packages because %s is not specified.", required.name)
		}
	}
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	fmt.Fprint(out, describe(effects.Packages))

	if err := os.MkdirAll(cfg.ModulePath, 0755); err != nil {
		return nil, errorf("Could not create module directory: %v", err)
	}
	pkgDir, err := prepareScratch(cfg.ScratchDir, effects.Location)
	if err != nil {
		return nil, err
	}
	logger.Println("installing into", pkgDir)
	if err := writeManifest(pkgDir, effects.Packages); err != nil {
		return nil, errorf("Could not write package manifest: %v", err)
	}
	for _, command := range effects.ExtraIncludeCommands {
		if err := linkExtraIncludes(ctx, command, cfg.ModulePath); err != nil {
			return nil, err
		}
	}
	if err := build(ctx, cfg.BuildPath, pkgDir, effects.Flags, out); err != nil {
		return nil, err
	}
	binDir, err := binPath(ctx, cfg.BuildPath, pkgDir, effects.Flags)
	if err != nil {
		return nil, err
	}
	depPaths, err := dependencyPaths(ctx, cfg.PackagePath, pkgDir)
	if err != nil {
		return nil, err
	}
	artifacts, err := readBuildDB(buildDBCandidates(binDir, pkgDir), depPaths)
	if err != nil {
		return nil, err
	}
	logger.Printf("harvesting %d module interfaces and %d module maps",
		len(artifacts.swiftmodules), len(artifacts.modulemaps))
	for _, swiftmodule := range artifacts.swiftmodules {
		if err := copyFile(swiftmodule, filepath.Join(cfg.ModulePath, filepath.Base(swiftmodule))); err != nil {
			return nil, errorf("Could not copy %s: %v", swiftmodule, err)
		}
	}
	var mapDirs []string
	for i, modulemap := range artifacts.modulemaps {
		dir, err := installModuleMap(modulemap, cfg.ModulePath, i)
		if err != nil {
			return nil, errorf("Could not install %s: %v", modulemap, err)
		}
		mapDirs = append(mapDirs, dir)
	}
	return &Result{
		LibraryPath:   filepath.Join(binDir, "lib"+productName+".so"),
		ModuleMapDirs: mapDirs,
	}, nil
}

func describe(packages []preprocess.Package) string {
	var sb strings.Builder
	sb.WriteString("Installing packages:\n")
	for _, pkg := range packages {
		fmt.Fprintf(&sb, "\t%s\n", pkg.Spec)
		for _, product := range pkg.Products {
			fmt.Fprintf(&sb, "\t\t%s\n", product)
		}
	}
	return sb.String()
}

// Creates the package directory under base, which is an alias of location if
// that is given.
func prepareScratch(base, location string) (string, error) {
	if base == "" {
		dir, err := os.MkdirTemp("", "swiftkernel-install")
		if err != nil {
			return "", errorf("Could not create scratch directory: %v", err)
		}
		base = dir
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", errorf("Could not create scratch directory: %v", err)
	}
	pkgDir := filepath.Join(base, "package")
	if location == "" {
		if err := os.MkdirAll(pkgDir, 0755); err != nil {
			return "", errorf("Could not create scratch directory: %v", err)
		}
		return pkgDir, nil
	}
	if err := os.MkdirAll(location, 0755); err != nil {
		return "", errorf("Could not create install location %s: %v", location, err)
	}
	if info, err := os.Lstat(pkgDir); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return "", errorf("Could not link install location: %s exists and is not a link", pkgDir)
		}
		if err := os.Remove(pkgDir); err != nil {
			return "", errorf("Could not link install location: %v", err)
		}
	}
	if err := os.Symlink(location, pkgDir); err != nil {
		return "", errorf("Could not link install location: %v", err)
	}
	return pkgDir, nil
}

// Runs the build tool and streams its combined output line by line.
func build(ctx context.Context, tool, dir string, flags []string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, tool, flags...)
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errorf("Could not run build tool: %v", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return errorf("Could not run build tool: %v", err)
	}
	r := bufio.NewReader(stdout)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			io.WriteString(out, line)
		}
		if err != nil {
			if err != io.EOF {
				logger.Println("reading build output:", err)
			}
			break
		}
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errorf("swift-build returned nonzero exit code %d.", exitErr.ExitCode())
		}
		return errorf("Could not run build tool: %v", err)
	}
	return nil
}

func binPath(ctx context.Context, tool, dir string, flags []string) (string, error) {
	cmd := exec.CommandContext(ctx, tool, append([]string{"--show-bin-path"}, flags...)...)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", errorf("Could not query build directory: %v", err)
	}
	binDir := strings.TrimSpace(string(output))
	if binDir == "" {
		return "", errorf("Build tool reported an empty build directory.")
	}
	return binDir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		// Module interfaces may be bundles.
		return copyDir(src, dst)
	}
	outFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	_, err = io.Copy(outFile, in)
	if closeErr := outFile.Close(); err == nil {
		err = closeErr
	}
	return err
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}
