package engine

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// wrappers are command words that defer to their first argument.
var wrappers = map[string]bool{
	"sudo": true, "env": true, "command": true, "nohup": true,
	"time": true, "doas": true, "xargs": true,
}

// CommandWord returns the name of the tool a command line invokes,
// skipping leading environment assignments and wrapper commands. It never
// needs a model call: the first call word of the AST is enough.
func CommandWord(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(line), "")
	if err != nil {
		return commandWordFallback(line)
	}

	var name string
	syntax.Walk(prog, func(node syntax.Node) bool {
		if name != "" {
			return false
		}
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}
		for _, arg := range call.Args {
			word := literalWord(arg)
			if word == "" {
				// Expansion or quoting we cannot resolve statically.
				return false
			}
			if wrappers[word] || strings.Contains(word, "=") {
				continue
			}
			name = word
			return false
		}
		return false
	})

	if name == "" {
		return commandWordFallback(line)
	}
	return name
}

// literalWord flattens a word made only of literal parts, or returns "".
func literalWord(w *syntax.Word) string {
	var sb strings.Builder
	for _, part := range w.Parts {
		lit, ok := part.(*syntax.Lit)
		if !ok {
			return ""
		}
		sb.WriteString(lit.Value)
	}
	return sb.String()
}

// commandWordFallback handles lines the shell parser rejects.
func commandWordFallback(line string) string {
	for _, field := range strings.Fields(line) {
		if wrappers[field] || strings.Contains(field, "=") {
			continue
		}
		return field
	}
	return ""
}
