package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is one slash command line, e.g. "/cursor 3 14".
type Command struct {
	Name string
	Args []string
	// Text is everything after the command name with surrounding space
	// removed. Commands taking free text (/name, /edit, /load) read it
	// instead of Args so inner spacing survives.
	Text string
}

var aliases = map[string]string{
	"new":      "create",
	"language": "lang",
	"users":    "who",
	"?":        "help",
}

// Parse reports whether input is a slash command and splits it. The command
// name is lower-cased and aliases are resolved.
func Parse(input string) (Command, bool) {
	line := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(line, "/") {
		return Command{}, false
	}
	line = strings.TrimSpace(line[1:])
	name, rest, _ := strings.Cut(line, " ")
	if i := strings.IndexAny(name, "\t\r\n"); i >= 0 {
		name, rest = name[:i], name[i:]+" "+rest
	}
	name = strings.ToLower(name)
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	rest = strings.TrimSpace(rest)
	return Command{Name: name, Args: strings.Fields(rest), Text: rest}, true
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Int parses the i-th argument as a decimal integer.
func (c Command) Int(i int) (int, error) {
	raw := c.Arg(i)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return n, nil
}

// Unescaped returns Text with literal \n and \t sequences decoded, letting a
// single terminal line carry a multi-line buffer.
func (c Command) Unescaped() string {
	return strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(c.Text)
}
