// Package preprocess rewrites the source of a cell before it is evaluated.
//
// Source is processed line by line. A line that starts with a directive like
// %include or %install is consumed: it is replaced by the text it stands for
// (the included file) or by an empty line, so that line numbers of the lines
// that follow are unchanged. Its effect is either recorded in an [Effects]
// table for the caller to act on, or carried out immediately through the
// [Host]. All other lines, including unknown %-prefixed ones, pass through
// unchanged.
package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// Host is the part of the kernel that directives act on immediately.
type Host interface {
	// Booted reports whether the evaluator has been started.
	Booted() bool
	// SetCompletion turns code completion on or off and tells the user about
	// it.
	SetCompletion(enabled bool)
	// System runs a shell command and forwards its combined output to the
	// user.
	System(command string) error
}

// Config keeps the parameters of one call to Preprocess.
type Config struct {
	// Name that diagnostics in the cell are attributed to, like "<Cell 3>".
	CellName string
	// Directories searched by %include, in order.
	IncludeDirs []string
	// Value of $cwd in %install templates.
	Cwd string
	// Receiver of immediate effects.
	Host Host
}

// Package is a dependency requested with %install.
type Package struct {
	// Dependency declaration in the package manifest, like
	// .package(url: "...", from: "1.0.0").
	Spec string
	// Names of the products the cell wants to import.
	Products []string
}

// Effects keeps the effects of the directives in a cell that the caller must
// carry out.
type Effects struct {
	// Requested dependencies, in order of appearance.
	Packages []Package
	// Where to build the dependencies; empty for a scratch directory.
	Location string
	// Extra flags for the build tool.
	Flags []string
	// Shell commands that print include flags for the build.
	ExtraIncludeCommands []string
	// Shell commands that were run by %system.
	SystemCommands []string

	installDirectives int
}

// WantsInstall reports whether the dependency installer has any work to do.
func (e *Effects) WantsInstall() bool {
	return len(e.Packages) > 0 || len(e.Flags) > 0
}

// HasInstallDirectives reports whether any of the %install family of
// directives appeared, regardless of whether they requested any work.
func (e *Effects) HasInstallDirectives() bool {
	return e.installDirectives > 0
}

// Error is returned when a directive is malformed or used where it is not
// allowed.
type Error struct {
	// 1-based line number of the directive, or 0 if not attributable to a
	// line.
	Line    int
	Message string
}

func (e *Error) Error() string {
	if e.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("Line %d: %s", e.Line, e.Message)
}

type directive struct {
	pattern *regexp.Regexp
	// Handles a matching line with the first submatch (if any) as arg. It
	// returns the text that replaces the line.
	handle func(p *preprocessor, arg string) (string, error)
}

// Longer keywords that share a prefix with shorter ones come first; the
// trailing space in the patterns keeps them from clashing anyway.
var directives = []directive{
	{regexp.MustCompile(`^\s*%include (.*)$`), (*preprocessor).include},
	{regexp.MustCompile(`^\s*%install-location (.*)$`), (*preprocessor).installLocation},
	{regexp.MustCompile(`^\s*%install-swiftpm-flags (.*)$`), (*preprocessor).installFlags},
	{regexp.MustCompile(`^\s*%install-extra-include-command (.*)$`), (*preprocessor).installExtraInclude},
	{regexp.MustCompile(`^\s*%install (.*)$`), (*preprocessor).install},
	{regexp.MustCompile(`^\s*%system (.*)$`), (*preprocessor).system},
	{regexp.MustCompile(`^\s*%disableCompletion\s*$`), (*preprocessor).disableCompletion},
	{regexp.MustCompile(`^\s*%enableCompletion\s*$`), (*preprocessor).enableCompletion},
}

var quotedName = regexp.MustCompile(`^\s*"([^"]+)"\s*$`)

type preprocessor struct {
	cfg     Config
	effects *Effects
	// 0-based index of the line being processed.
	index int
}

// Preprocess rewrites source and collects the effects of its directives. The
// returned error, if any, is an *Error.
func Preprocess(source string, cfg Config) (string, *Effects, error) {
	p := &preprocessor{cfg: cfg, effects: &Effects{}}
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		p.index = i
		rewritten, err := p.line(line)
		if err != nil {
			return "", nil, err
		}
		lines[i] = rewritten
	}
	return strings.Join(lines, "\n"), p.effects, nil
}

func (p *preprocessor) line(line string) (string, error) {
	for _, d := range directives {
		m := d.pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var arg string
		if len(m) > 1 {
			arg = m[1]
		}
		return d.handle(p, arg)
	}
	return line, nil
}

func (p *preprocessor) errorf(format string, args ...any) error {
	return &Error{Line: p.index + 1, Message: fmt.Sprintf(format, args...)}
}

func (p *preprocessor) include(arg string) (string, error) {
	m := quotedName.FindStringSubmatch(arg)
	if m == nil {
		return "", p.errorf("%%include must be followed by a name in quotes")
	}
	name := m[1]
	code, ok := p.readInclude(name)
	if !ok {
		return "", p.errorf("Could not find %q. Searched %s.",
			name, quoteList(p.cfg.IncludeDirs))
	}
	// The trailing empty element stands in for the directive line itself, so
	// the resuming marker names its line number.
	return strings.Join([]string{
		fmt.Sprintf(`#sourceLocation(file: "%s", line: 1)`, name),
		code,
		fmt.Sprintf(`#sourceLocation(file: "%s", line: %d)`, p.cfg.CellName, p.index+1),
		"",
	}, "\n"), nil
}

func (p *preprocessor) readInclude(name string) (string, bool) {
	for _, dir := range p.cfg.IncludeDirs {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return string(content), true
		}
	}
	return "", false
}

func (p *preprocessor) install(arg string) (string, error) {
	p.effects.installDirectives++
	parsed, err := shlex.Split(arg)
	if err != nil {
		return "", p.errorf("%%install: %v", err)
	}
	if len(parsed) < 2 {
		return "", p.errorf("%%install usage: SPEC PRODUCT [PRODUCT ...]")
	}
	spec, err := p.substituteCwd(parsed[0])
	if err != nil {
		return "", err
	}
	p.effects.Packages = append(p.effects.Packages,
		Package{Spec: spec, Products: parsed[1:]})
	return "", nil
}

func (p *preprocessor) installLocation(arg string) (string, error) {
	p.effects.installDirectives++
	parsed, err := shlex.Split(arg)
	if err != nil {
		return "", p.errorf("%%install-location: %v", err)
	}
	if len(parsed) != 1 {
		return "", p.errorf("%%install-location usage: PATH")
	}
	location, err := p.substituteCwd(parsed[0])
	if err != nil {
		return "", err
	}
	p.effects.Location = location
	return "", nil
}

func (p *preprocessor) installFlags(arg string) (string, error) {
	p.effects.installDirectives++
	flags, err := shlex.Split(arg)
	if err != nil {
		return "", p.errorf("%%install-swiftpm-flags: %v", err)
	}
	for _, flag := range flags {
		if flag == "$clear" {
			p.effects.Flags = nil
			continue
		}
		p.effects.Flags = append(p.effects.Flags, flag)
	}
	return "", nil
}

func (p *preprocessor) installExtraInclude(arg string) (string, error) {
	p.effects.installDirectives++
	// The command is run by a shell later; tokenizing here only catches
	// malformed quoting early.
	words, err := shlex.Split(arg)
	if err != nil {
		return "", p.errorf("%%install-extra-include-command: %v", err)
	}
	if len(words) == 0 {
		return "", p.errorf("%%install-extra-include-command usage: COMMAND")
	}
	p.effects.ExtraIncludeCommands = append(p.effects.ExtraIncludeCommands, arg)
	return "", nil
}

func (p *preprocessor) system(arg string) (string, error) {
	if p.cfg.Host.Booted() {
		return "", p.errorf("System commands can only run in the first cell.")
	}
	if err := p.cfg.Host.System(arg); err != nil {
		return "", p.errorf("%%system: %v", err)
	}
	p.effects.SystemCommands = append(p.effects.SystemCommands, arg)
	return "", nil
}

func (p *preprocessor) disableCompletion(string) (string, error) {
	p.cfg.Host.SetCompletion(false)
	return "", nil
}

func (p *preprocessor) enableCompletion(string) (string, error) {
	p.cfg.Host.SetCompletion(true)
	return "", nil
}

func (p *preprocessor) substituteCwd(template string) (string, error) {
	s, err := substitute(template, map[string]string{"cwd": p.cfg.Cwd})
	if err != nil {
		return "", p.errorf("%s", err.Error())
	}
	return s, nil
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "'" + item + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
