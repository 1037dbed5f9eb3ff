package engine

import (
	"fmt"
	"strings"
	"text/template"

	defaults "github.com/tfllm/tfllm/default"
)

// promptData is the data passed to the system prompt templates.
type promptData struct {
	Context string
}

var (
	askTmpl = template.Must(template.New("ask").Parse(defaults.AskPrompt))
	fixTmpl = template.Must(template.New("fix").Parse(defaults.FixPrompt))
)

func renderAskSystem(docs string) (string, error) {
	return renderSystem(askTmpl, docs)
}

func renderFixSystem(docs string) (string, error) {
	return renderSystem(fixTmpl, docs)
}

func renderSystem(t *template.Template, docs string) (string, error) {
	var buf strings.Builder
	if err := t.Execute(&buf, promptData{Context: docs}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimRight(buf.String(), " \t\n"), nil
}

// renderExtract builds the standalone single-shot prompt for the tool name
// extraction pass. It bypasses the session: extraction is plumbing, not
// conversation.
func renderExtract(query string) string {
	var sb strings.Builder
	sb.WriteString("<|im_start|>system\n")
	sb.WriteString(strings.TrimRight(defaults.ExtractPrompt, "\n"))
	sb.WriteString(turnEnd)
	sb.WriteString("\n<|im_start|>user\n")
	sb.WriteString(query)
	sb.WriteString(turnEnd)
	sb.WriteString("\n<|im_start|>assistant\n")
	return sb.String()
}
