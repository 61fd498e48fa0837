package logutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetOutput_RedirectsExistingLoggers(t *testing.T) {
	logger := GetLogger("[test] ")
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(io.Discard) })

	logger.Println("hello")
	if !strings.Contains(buf.String(), "[test] ") || !strings.Contains(buf.String(), "hello") {
		t.Errorf("got log output %q, want prefix and message", buf.String())
	}
}

func TestSetOutputFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "log")
	if err := SetOutputFile(name); err != nil {
		t.Fatal(err)
	}
	logger := GetLogger("[file] ")
	logger.Println("to file")
	if err := SetOutputFile(""); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "[file] ") {
		t.Errorf("log file contains %q", content)
	}
}
