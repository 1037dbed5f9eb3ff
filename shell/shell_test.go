package shell

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScriptDefinesAlias(t *testing.T) {
	for _, sh := range []string{"bash", "zsh", "fish"} {
		script, err := Script(sh, "")
		if err != nil {
			t.Fatalf("%s: %v", sh, err)
		}
		if !strings.Contains(script, "fix") {
			t.Errorf("%s: expected default alias in script:\n%s", sh, script)
		}
		if !strings.Contains(script, "fix-internal") {
			t.Errorf("%s: expected fix-internal invocation:\n%s", sh, script)
		}
		if !strings.Contains(script, "__TFLLM_LAST_CMD") || !strings.Contains(script, "__TFLLM_EXIT_CODE") {
			t.Errorf("%s: expected report environment exported:\n%s", sh, script)
		}
		if strings.Contains(script, "{{") {
			t.Errorf("%s: unexpanded template in script:\n%s", sh, script)
		}
	}
}

func TestScriptCustomAlias(t *testing.T) {
	script, err := Script("bash", "oops")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(script, "oops()") {
		t.Errorf("expected custom alias function, got:\n%s", script)
	}
}

func TestScriptUnknownShell(t *testing.T) {
	if _, err := Script("tcsh", ""); err == nil {
		t.Error("expected error for unsupported shell")
	}
}

func TestCleanTerminalText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"color codes", "\x1b[31merror\x1b[0m: not found", "error: not found"},
		{"cursor movement", "\x1b[2J\x1b[1;1Hprompt$", "prompt$"},
		{"osc title", "\x1b]0;my-title\x07ls -l", "ls -l"},
		{"carriage return", "progress\r", "progress"},
		{"keeps newline and tab", "a\n\tb", "a\n\tb"},
		{"bell", "done\x07", "done"},
	}
	for _, tt := range tests {
		if got := CleanTerminalText(tt.in); got != tt.want {
			t.Errorf("%s: CleanTerminalText(%q) = %q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestReadTerminalLogLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typescript")
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("line\n")
	}
	sb.WriteString("\x1b[31mfinal error\x1b[0m\n")
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCRIPT_LOG_FILE", path)

	got := ReadTerminalLog(10)
	lines := strings.Split(got, "\n")
	if len(lines) != 10 {
		t.Errorf("expected 10 lines, got %d", len(lines))
	}
	if lines[len(lines)-1] != "final error" {
		t.Errorf("expected cleaned final line, got %q", lines[len(lines)-1])
	}
}

func TestReadTerminalLogUnsetEnv(t *testing.T) {
	t.Setenv("SCRIPT_LOG_FILE", "")
	if got := ReadTerminalLog(10); got != "" {
		t.Errorf("expected empty log with no transcript, got %q", got)
	}
}

func TestReadTerminalLogMissingFile(t *testing.T) {
	t.Setenv("SCRIPT_LOG_FILE", filepath.Join(t.TempDir(), "nope"))
	if got := ReadTerminalLog(10); got != "" {
		t.Errorf("expected empty log for missing file, got %q", got)
	}
}
