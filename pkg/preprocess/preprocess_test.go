package preprocess

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"src.swiftkernel.dev/pkg/must"
	"src.swiftkernel.dev/pkg/testutil"
)

type fakeHost struct {
	booted     bool
	completion []bool
	commands   []string
	systemErr  error
}

func (h *fakeHost) Booted() bool               { return h.booted }
func (h *fakeHost) SetCompletion(enabled bool) { h.completion = append(h.completion, enabled) }

func (h *fakeHost) System(command string) error {
	h.commands = append(h.commands, command)
	return h.systemErr
}

func config(h Host, includeDirs ...string) Config {
	return Config{CellName: "<Cell 1>", IncludeDirs: includeDirs, Cwd: "/work", Host: h}
}

func TestPreprocess_PassesThroughOrdinaryLines(t *testing.T) {
	for _, source := range []string{
		"",
		"let x = 1",
		"let x = 1\nprint(x)\n",
		"%unknownDirective foo\n  %include",
		"print(\"%include \\\"a.swift\\\"\")",
		"\r\n\n  \t",
	} {
		got, effects, err := Preprocess(source, config(&fakeHost{}))
		if err != nil {
			t.Errorf("Preprocess(%q) -> error %v", source, err)
			continue
		}
		if got != source {
			t.Errorf("Preprocess(%q) -> %q, want unchanged", source, got)
		}
		if effects.WantsInstall() || effects.HasInstallDirectives() {
			t.Errorf("Preprocess(%q) -> effects %+v, want none", source, effects)
		}
	}
}

func TestPreprocess_Include(t *testing.T) {
	first := testutil.TempDir(t)
	second := testutil.TempDir(t)
	must.WriteFile(filepath.Join(second, "a.swift"), "let a = 1\nlet b = 2")
	must.WriteFile(filepath.Join(second, "b.swift"), "second b")
	must.WriteFile(filepath.Join(first, "b.swift"), "first b")

	got, _, err := Preprocess("x\n  %include \"a.swift\"\ny",
		Config{CellName: "<Cell 7>", IncludeDirs: []string{first, second}, Host: &fakeHost{}})
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"x",
		`#sourceLocation(file: "a.swift", line: 1)`,
		"let a = 1",
		"let b = 2",
		`#sourceLocation(file: "<Cell 7>", line: 2)`,
		"",
		"y",
	}, "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rewritten source (-want +got):\n%s", diff)
	}

	got, _, err = Preprocess(`%include "b.swift"`, config(&fakeHost{}, first, second))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "first b") || strings.Contains(got, "second b") {
		t.Errorf("got %q, want content of the first search directory", got)
	}
}

func TestPreprocess_Errors(t *testing.T) {
	dir := testutil.TempDir(t)
	tests := []struct {
		name   string
		source string
		host   *fakeHost
		want   *Error
	}{
		{
			name:   "include without quotes",
			source: "let x = 1\n%include a.swift",
			want:   &Error{2, "%include must be followed by a name in quotes"},
		},
		{
			name:   "include of missing file",
			source: `%include "missing.swift"`,
			want: &Error{1, `Could not find "missing.swift". Searched ['` +
				dir + `'].`},
		},
		{
			name:   "install with only a spec",
			source: "\n\n%install '.package(path: \"/x\")'",
			want:   &Error{3, "%install usage: SPEC PRODUCT [PRODUCT ...]"},
		},
		{
			name:   "install with unknown template key",
			source: `%install '.package(path: "$home")' P`,
			want:   &Error{1, "Invalid template argument 'home'"},
		},
		{
			name:   "install with bad placeholder",
			source: `%install 'a$' P`,
			want:   &Error{1, "Invalid placeholder in string: line 1, col 1"},
		},
		{
			name:   "system after boot",
			source: "%system ls",
			host:   &fakeHost{booted: true},
			want:   &Error{1, "System commands can only run in the first cell."},
		},
		{
			name:   "system that fails",
			source: "%system false",
			host:   &fakeHost{systemErr: errors.New("exit status 1")},
			want:   &Error{1, "%system: exit status 1"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			host := test.host
			if host == nil {
				host = &fakeHost{}
			}
			_, _, err := Preprocess(test.source, config(host, dir))
			if diff := cmp.Diff(test.want, err); diff != "" {
				t.Errorf("error (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPreprocess_InstallEffects(t *testing.T) {
	source := strings.Join([]string{
		`%install '.package(path: "$cwd/Lib")' Lib Other`,
		`%install-location $cwd/pkgs`,
		`%install-swiftpm-flags -Xswiftc -O`,
		`%install-swiftpm-flags $clear`,
		`%install-swiftpm-flags -c release`,
		`%install-extra-include-command pkg-config --cflags-only-I glib-2.0`,
		`import Lib`,
	}, "\n")
	got, effects, err := Preprocess(source, config(&fakeHost{}))
	if err != nil {
		t.Fatal(err)
	}
	if want := "\n\n\n\n\n\nimport Lib"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	want := &Effects{
		Packages: []Package{
			{Spec: `.package(path: "/work/Lib")`, Products: []string{"Lib", "Other"}},
		},
		Location:             "/work/pkgs",
		Flags:                []string{"-c", "release"},
		ExtraIncludeCommands: []string{"pkg-config --cflags-only-I glib-2.0"},
	}
	if diff := cmp.Diff(want, effects, cmpopts.IgnoreUnexported(Effects{})); diff != "" {
		t.Errorf("effects (-want +got):\n%s", diff)
	}
	if !effects.WantsInstall() || !effects.HasInstallDirectives() {
		t.Errorf("want install to be requested")
	}
}

func TestPreprocess_LocationWithoutPackagesIsNotWork(t *testing.T) {
	_, effects, err := Preprocess("%install-location /tmp/x", config(&fakeHost{}))
	if err != nil {
		t.Fatal(err)
	}
	if effects.WantsInstall() {
		t.Errorf("WantsInstall() = true, want false")
	}
	if !effects.HasInstallDirectives() {
		t.Errorf("HasInstallDirectives() = false, want true")
	}
}

func TestPreprocess_SystemAndCompletion(t *testing.T) {
	host := &fakeHost{}
	got, effects, err := Preprocess(
		"%system echo hi\n%disableCompletion\n  %enableCompletion  \nlet x = 1",
		config(host))
	if err != nil {
		t.Fatal(err)
	}
	if want := "\n\n\nlet x = 1"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"echo hi"}, host.commands); diff != "" {
		t.Errorf("commands (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"echo hi"}, effects.SystemCommands); diff != "" {
		t.Errorf("effects.SystemCommands (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{false, true}, host.completion); diff != "" {
		t.Errorf("completion toggles (-want +got):\n%s", diff)
	}
}

func TestError_Error(t *testing.T) {
	if got := (&Error{Line: 4, Message: "bad"}).Error(); got != "Line 4: bad" {
		t.Errorf("got %q", got)
	}
	if got := (&Error{Message: "bad"}).Error(); got != "bad" {
		t.Errorf("got %q", got)
	}
}
