// Package engine orchestrates model inference for the two assistant
// workflows: answering a CLI question and diagnosing a failed command.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Params bound a single model call.
type Params struct {
	MaxTokens int
	Stop      []string
}

// Workflow-specific generation bounds. Extraction is a deliberately cheap
// pass so retrieval stays targeted without inflating the main prompt.
var (
	extractParams = Params{MaxTokens: 10, Stop: []string{turnEnd}}
	askParams     = Params{MaxTokens: 512, Stop: []string{turnEnd}}
	fixParams     = Params{MaxTokens: 256, Stop: []string{turnEnd, "\n\n"}}
)

const (
	// stderrExcerptLen caps the error excerpt used as a retrieval query.
	stderrExcerptLen = 200
	askTopK          = 3
	fixTopK          = 2
)

// Generator produces a text completion for a prompt under the given bounds.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, stop []string) (string, error)
}

// Retriever looks up documentation snippets for a tool. Failures are
// tolerated by the engine: retrieval is best-effort context, never a
// prerequisite.
type Retriever interface {
	Get(ctx context.Context, tool, query string, topK int) (string, error)
}

// Report describes a failed command for the fix workflow.
type Report struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Engine answers questions and diagnoses failures against one Generator.
// Each call builds its own session; nothing carries over between calls.
// It is not safe for concurrent use; callers serialize access.
type Engine struct {
	gen       Generator
	retriever Retriever

	// AskTopK is the number of documentation snippets retrieved for an
	// ask query. Zero or negative means the default.
	AskTopK int
}

// New creates an engine over an already-loaded generator. The retriever
// may be nil, in which case prompts carry no documentation context.
func New(gen Generator, retriever Retriever) *Engine {
	return &Engine{gen: gen, retriever: retriever}
}

// Ask answers a free-form CLI question. Retrieval failures degrade to an
// uncontexted prompt; only generation errors fail the call.
func (e *Engine) Ask(ctx context.Context, query string) (string, error) {
	s := NewSession()
	tool := e.extractTool(ctx, query)
	slog.Debug("detected tool", "session", s.ID, "tool", tool)

	topK := e.AskTopK
	if topK <= 0 {
		topK = askTopK
	}
	docs := e.retrieve(ctx, tool, query, topK)

	sys, err := renderAskSystem(docs)
	if err != nil {
		return "", fmt.Errorf("ask: %w", err)
	}

	s.Append(RoleSystem, sys)
	s.Append(RoleUser, query)

	answer, err := e.gen.Generate(ctx, s.Prompt(), askParams.MaxTokens, askParams.Stop)
	if err != nil {
		return "", fmt.Errorf("ask: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// Fix suggests a corrected command line for a failed command. An empty
// suggestion with a nil error means the model found nothing.
func (e *Engine) Fix(ctx context.Context, rep Report) (string, error) {
	s := NewSession()
	tool := CommandWord(rep.Command)
	slog.Debug("detected tool", "session", s.ID, "tool", tool)

	var docs string
	if tool != "" {
		excerpt := rep.Stderr
		if len(excerpt) > stderrExcerptLen {
			excerpt = excerpt[:stderrExcerptLen]
		}
		docs = e.retrieve(ctx, tool, "fix error: "+excerpt, fixTopK)
	}

	sys, err := renderFixSystem(docs)
	if err != nil {
		return "", fmt.Errorf("fix: %w", err)
	}

	s.Append(RoleSystem, sys)
	s.Append(RoleUser, fixUserMessage(rep))

	suggestion, err := e.gen.Generate(ctx, s.Prompt(), fixParams.MaxTokens, fixParams.Stop)
	if err != nil {
		return "", fmt.Errorf("fix: %w", err)
	}
	return strings.TrimSpace(suggestion), nil
}

// extractTool runs the short extraction pass. Any failure yields an empty
// tool name and retrieval simply goes untargeted.
func (e *Engine) extractTool(ctx context.Context, query string) string {
	prompt := renderExtract(query)
	out, err := e.gen.Generate(ctx, prompt, extractParams.MaxTokens, extractParams.Stop)
	if err != nil {
		slog.Debug("tool extraction failed", "error", err)
		return ""
	}
	return firstField(out)
}

// retrieve fetches documentation context, mapping every failure to "no
// context".
func (e *Engine) retrieve(ctx context.Context, tool, query string, topK int) string {
	if e.retriever == nil || tool == "" {
		return ""
	}
	docs, err := e.retriever.Get(ctx, tool, query, topK)
	if err != nil {
		slog.Debug("retrieval failed, continuing without context", "tool", tool, "error", err)
		return ""
	}
	return docs
}

// fixUserMessage formats the failure report. The command is redacted so
// secrets in assignments or expansions never reach the prompt.
func fixUserMessage(rep Report) string {
	var sb strings.Builder
	sb.WriteString("command: ")
	sb.WriteString(RedactCommand(rep.Command))
	fmt.Fprintf(&sb, "\nexit code: %d\n", rep.ExitCode)
	if rep.Stdout != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(rep.Stdout)
		sb.WriteString("\n")
	}
	if rep.Stderr != "" {
		sb.WriteString("stderr:\n")
		sb.WriteString(rep.Stderr)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// firstField returns the first whitespace-delimited field of s.
func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
