// Package shell provides the pieces that tie the assistant into an
// interactive shell: init scripts defining the fix alias, and scraping of
// terminal output recorded by script(1).
package shell

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"
)

//go:embed scripts/init.bash scripts/init.zsh scripts/init.fish
var scriptFS embed.FS

// DefaultAlias is the shell function name the init scripts define.
const DefaultAlias = "fix"

// logEnvVar names the terminal transcript written by script(1), as in
// `script -f "$SCRIPT_LOG_FILE"`.
const logEnvVar = "SCRIPT_LOG_FILE"

var (
	ansiCSI = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)
	ansiOSC = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
)

// Script renders the init script for the given shell with the alias
// substituted in. Supported shells are bash, zsh and fish.
func Script(shellName, alias string) (string, error) {
	if alias == "" {
		alias = DefaultAlias
	}
	switch shellName {
	case "bash", "zsh", "fish":
	default:
		return "", fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish)", shellName)
	}

	raw, err := scriptFS.ReadFile("scripts/init." + shellName)
	if err != nil {
		return "", fmt.Errorf("read init script: %w", err)
	}
	tmpl, err := template.New(shellName).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse init script: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Alias string }{Alias: alias}); err != nil {
		return "", fmt.Errorf("render init script: %w", err)
	}
	return buf.String(), nil
}

// ReadTerminalLog returns the last n lines of the terminal transcript, with
// escape sequences stripped. It returns "" when no transcript is configured
// or readable; the transcript is optional context, never a hard dependency.
func ReadTerminalLog(n int) string {
	path := os.Getenv(logEnvVar)
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.Join(lastLines(CleanTerminalText(string(data)), n), "\n")
}

// CleanTerminalText strips ANSI escape sequences and control characters
// from raw terminal output, keeping newlines and tabs.
func CleanTerminalText(s string) string {
	s = ansiCSI.ReplaceAllString(s, "")
	s = ansiOSC.ReplaceAllString(s, "")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || (r >= 0x20 && r != 0x7f) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastLines(s string, n int) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return kept
}
