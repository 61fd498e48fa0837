package replproc

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/go-lsp"

	"src.swiftkernel.dev/pkg/evaluator"
)

func TestChildEnv(t *testing.T) {
	base := []string{
		"HOME=/home/u",
		"PYTHONPATH=/py",
		"REPL_SWIFT_PATH=/repl",
		"SWIFT_IMPORT_SEARCH_PATH=/old",
		"PATH=/bin",
	}
	got := childEnv(base, evaluator.BootOptions{
		ModulePath:    "/modules",
		ModuleMapDirs: []string{"/modules/modulemap-A"},
	})
	want := []string{
		"HOME=/home/u",
		"PATH=/bin",
		"SWIFT_KERNEL_RPC_FDS=3,4",
		"SWIFT_IMPORT_SEARCH_PATH=/modules" + string(filepath.ListSeparator) + "/modules/modulemap-A",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestChildEnv_NoModulePath(t *testing.T) {
	got := childEnv([]string{"SWIFT_IMPORT_SEARCH_PATH=/old"}, evaluator.BootOptions{})
	if diff := cmp.Diff([]string{"SWIFT_KERNEL_RPC_FDS=3,4"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCompleteResult(t *testing.T) {
	r := completeResult{Prefix: "pri", Items: []lsp.CompletionItem{
		{Label: "print", InsertText: "nt"},
		{Label: "ority"},
	}}
	want := evaluator.Completion{Prefix: "pri", Matches: []string{"nt", "ority"}}
	if diff := cmp.Diff(want, r.completion()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestValueJSON(t *testing.T) {
	v := valueJSON{Name: "a", Description: "x", Children: []valueJSON{
		{Name: "_position", Data: []byte{1, 0}},
	}}
	want := evaluator.Value{Name: "a", Description: "x", Children: []evaluator.Value{
		{Name: "_position", Data: []byte{1, 0}},
	}}
	if diff := cmp.Diff(want, v.value()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
