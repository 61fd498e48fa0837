package install

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
)

var includeFlags = []string{"-I", "-iquote", "-isystem"}

// Runs an extra include command and links the content of every include
// directory it prints into moduleDir.
func linkExtraIncludes(ctx context.Context, command, moduleDir string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errorf("%%install-extra-include-command returned nonzero exit code: %d\n"+
				"Stdout:\n%s\nStderr:\n%s\n", exitErr.ExitCode(), stdout.String(), stderr.String())
		}
		return errorf("Could not run %%install-extra-include-command: %v", err)
	}
	dirs, err := parseIncludeDirs(stdout.String())
	if err != nil {
		return errorf("Could not parse output of %%install-extra-include-command: %v", err)
	}
	for _, dir := range dirs {
		linkDirContent(dir, moduleDir)
	}
	return nil
}

// parseIncludeDirs extracts the directories from compiler include flags, which
// may be attached to or separate from their argument.
func parseIncludeDirs(output string) ([]string, error) {
	words, err := shlex.Split(output)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for i := 0; i < len(words); i++ {
		word := words[i]
		matched := false
		for _, flag := range includeFlags {
			if word == flag {
				if i+1 < len(words) {
					dirs = append(dirs, words[i+1])
					i++
				}
				matched = true
				break
			}
			if strings.HasPrefix(word, flag) {
				dirs = append(dirs, word[len(flag):])
				matched = true
				break
			}
		}
		if !matched {
			logger.Printf("ignoring %q in extra include output", word)
		}
	}
	return dirs, nil
}

// Replaces existing links; entries that cannot be linked are skipped.
func linkDirContent(dir, moduleDir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Printf("cannot read include directory %s: %v", dir, err)
		return
	}
	for _, entry := range entries {
		target := filepath.Join(dir, entry.Name())
		link := filepath.Join(moduleDir, entry.Name())
		if info, err := os.Lstat(link); err == nil && info.Mode()&os.ModeSymlink != 0 {
			os.Remove(link)
		}
		if err := os.Symlink(target, link); err != nil {
			logger.Printf("cannot link %s: %v", target, err)
		}
	}
}
