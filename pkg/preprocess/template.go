package preprocess

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholders are $name or ${name}; $$ is a literal $. Any other $ is
// invalid.
var placeholder = regexp.MustCompile(
	`(?i)\$(?:(\$)|([_a-z][_a-z0-9]*)|\{([_a-z][_a-z0-9]*)\}|())`)

// substitute expands the placeholders in template with values from vars.
func substitute(template string, vars map[string]string) (string, error) {
	var sb strings.Builder
	last := 0
	for _, m := range placeholder.FindAllStringSubmatchIndex(template, -1) {
		sb.WriteString(template[last:m[0]])
		last = m[1]
		switch {
		case m[2] >= 0:
			sb.WriteByte('$')
		case m[4] >= 0, m[6] >= 0:
			name := submatch(template, m, 2)
			if name == "" {
				name = submatch(template, m, 3)
			}
			value, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("Invalid template argument '%s'", name)
			}
			sb.WriteString(value)
		default:
			line, col := invalidPosition(template, m[0])
			return "", fmt.Errorf(
				"Invalid placeholder in string: line %d, col %d", line, col)
		}
	}
	sb.WriteString(template[last:])
	return sb.String(), nil
}

func submatch(s string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return s[m[2*i]:m[2*i+1]]
}

// Reports the position of an invalid placeholder the way earlier versions of
// the kernel did, so that messages stay recognizable.
func invalidPosition(template string, i int) (line, col int) {
	if i == 0 {
		return 1, 1
	}
	before := template[:i]
	line = strings.Count(before, "\n") + 1
	if strings.HasSuffix(before, "\n") {
		line--
	}
	lastLineStart := strings.LastIndex(strings.TrimSuffix(before, "\n"), "\n") + 1
	return line, i - lastLineStart
}
