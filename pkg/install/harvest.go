package install

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket of the build database that maps keys to the files the build tool
// knows about.
const keyNamesBucket = "key_names"

// A node in the output of "show-dependencies --format json".
type dependencyNode struct {
	Name         string           `json:"name"`
	Path         string           `json:"path"`
	Dependencies []dependencyNode `json:"dependencies"`
}

// Returns the checkout paths of the package in dir and all its transitive
// dependencies.
func dependencyPaths(ctx context.Context, tool, dir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, tool, "show-dependencies", "--format", "json")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return nil, errorf("Could not list dependencies: %v", err)
	}
	var root dependencyNode
	if err := json.Unmarshal(output, &root); err != nil {
		return nil, errorf("Could not parse dependency list: %v", err)
	}
	seen := make(map[string]bool)
	var paths []string
	var walk func(node dependencyNode)
	walk = func(node dependencyNode) {
		if node.Path != "" && !seen[node.Path] {
			seen[node.Path] = true
			paths = append(paths, node.Path)
		}
		for _, dep := range node.Dependencies {
			walk(dep)
		}
	}
	walk(root)
	return paths, nil
}

func buildDBCandidates(binDir, pkgDir string) []string {
	return []string{
		filepath.Join(filepath.Dir(binDir), "build.db"),
		filepath.Join(pkgDir, ".build", "build.db"),
	}
}

type artifacts struct {
	swiftmodules []string
	modulemaps   []string
}

// Reads the first build database among candidates that exists, and returns
// the module interfaces and module maps that lie under one of depPaths.
func readBuildDB(candidates, depPaths []string) (*artifacts, error) {
	var path string
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return nil, errorf("Could not find build database. Searched %s.",
			strings.Join(candidates, ", "))
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, errorf("Could not open build database: %v", err)
	}
	defer db.Close()

	var found artifacts
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(keyNamesBucket))
		if b == nil {
			return fmt.Errorf("no %s bucket", keyNamesBucket)
		}
		return b.ForEach(func(k, _ []byte) error {
			// The first byte encodes the kind of the key.
			if len(k) < 2 {
				return nil
			}
			name := string(k[1:])
			if !underAny(name, depPaths) {
				return nil
			}
			switch {
			case strings.HasSuffix(name, ".swiftmodule"):
				found.swiftmodules = append(found.swiftmodules, name)
			case strings.HasSuffix(name, "/module.modulemap"):
				found.modulemaps = append(found.modulemaps, name)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errorf("Could not read build database: %v", err)
	}
	return &found, nil
}

// Reports whether name is one of dirs or inside one of them.
func underAny(name string, dirs []string) bool {
	for _, dir := range dirs {
		dir = strings.TrimSuffix(dir, string(filepath.Separator))
		if name == dir || strings.HasPrefix(name, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

var (
	headerDecl = regexp.MustCompile(`header\s+"(.*?)"`)
	moduleDecl = regexp.MustCompile(`^module\s+(\S+)\s.*\{`)
)

// rewriteHeaders makes relative header paths in a module map absolute,
// resolved against dir.
func rewriteHeaders(content []byte, dir string) []byte {
	return headerDecl.ReplaceAllFunc(content, func(decl []byte) []byte {
		header := string(headerDecl.FindSubmatch(decl)[1])
		if !filepath.IsAbs(header) {
			header = filepath.Clean(filepath.Join(dir, header))
		}
		return []byte(fmt.Sprintf(`header "%s"`, header))
	})
}

// Copies a module map into its own directory under moduleDir, since all
// module maps share a file name. The directory is named after the module so
// that repeated installs of a dependency reuse it.
func installModuleMap(path, moduleDir string, index int) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content = rewriteHeaders(content, filepath.Dir(path))
	name := fmt.Sprint(index)
	if m := moduleDecl.FindSubmatch(bytes.TrimLeft(content, " \t\r\n")); m != nil {
		name = string(m[1])
	}
	dir := filepath.Join(moduleDir, "modulemap-"+name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	err = os.WriteFile(filepath.Join(dir, filepath.Base(path)), content, 0644)
	if err != nil {
		return "", err
	}
	return dir, nil
}
