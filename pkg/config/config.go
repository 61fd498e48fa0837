// Package config assembles the kernel configuration from the environment and
// an optional YAML file.
//
// The environment is the primary source, since the notebook front-end's kernel
// spec is where toolchain paths are usually declared. A YAML file given with
// -config overrides individual fields. Required paths are never defaulted:
// the steps that need them fail and name the missing variable.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"src.swiftkernel.dev/pkg/env"
)

// DefaultPollInterval is how often the output pump polls the evaluator.
const DefaultPollInterval = 100 * time.Millisecond

// Config keeps the kernel configuration.
type Config struct {
	// Path of the REPL executable launched as the evaluator.
	ReplPath string `yaml:"repl_path"`
	// Path of the build tool used by %install.
	BuildPath string `yaml:"build_path"`
	// Path of the package-manifest tool used to list installed dependencies.
	PackagePath string `yaml:"package_path"`
	// Directory the evaluator searches for modules produced by %install.
	ModulePath string `yaml:"module_path"`
	// Base directory for package installation scratchwork.
	ScratchDir string `yaml:"scratch_dir"`
	// Directories searched by %include, in order.
	IncludeDirs []string `yaml:"include_dirs"`
	// Interval at which the output pump polls the evaluator.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Whether to turn off address space layout randomization for the
	// evaluator.
	DisableASLR bool `yaml:"disable_aslr"`
	// Path of the database keeping execution history. Empty disables
	// history.
	HistoryDB string `yaml:"history_db"`
}

// Load builds a Config from the environment and, if path is not empty, the
// YAML file at path.
func Load(path string) (*Config, error) {
	cfg := FromEnv()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() *Config {
	return &Config{
		ReplPath:     os.Getenv(env.REPL_SWIFT_PATH),
		BuildPath:    os.Getenv(env.SWIFT_BUILD_PATH),
		PackagePath:  os.Getenv(env.SWIFT_PACKAGE_PATH),
		ModulePath:   os.Getenv(env.SWIFT_IMPORT_SEARCH_PATH),
		ScratchDir:   os.Getenv(env.SWIFT_KERNEL_SCRATCH_DIR),
		IncludeDirs:  defaultIncludeDirs(),
		PollInterval: DefaultPollInterval,
		DisableASLR:  true,
	}
}

// The kernel's own installation directory, then the working directory.
func defaultIncludeDirs() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return dirs
}
