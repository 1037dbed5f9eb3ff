package engine

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// safeVars are environment variables whose values and references carry no
// secrets and stay useful in a diagnostic prompt.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true,
}

// RedactCommand replaces assignment values and parameter expansions that
// may carry secrets before a command line is embedded in a prompt. Safe
// variables are preserved; everything else is masked.
func RedactCommand(cmd string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return regexRedact(cmd)
	}

	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !safeVars[n.Param.Value] && !specialParam(n.Param.Value) {
				n.Param.Value = "REDACTED"
			}
		case *syntax.Assign:
			if n.Name != nil && !safeVars[n.Name.Value] && n.Value != nil {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: "***"}}
			}
		}
		return true
	})

	var buf bytes.Buffer
	printer := syntax.NewPrinter(syntax.Indent(0))
	if err := printer.Print(&buf, prog); err != nil {
		return regexRedact(cmd)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// specialParam reports shell special parameters ($?, $!, positional
// arguments) that must survive redaction.
func specialParam(name string) bool {
	if len(name) != 1 {
		return false
	}
	return strings.ContainsAny(name, "?!#@*-$_0123456789")
}

var reAssignValue = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)

// regexRedact is the fallback for lines the shell parser rejects. It only
// masks assignment values; a broken line rarely has expansions worth
// keeping anyway.
func regexRedact(cmd string) string {
	return reAssignValue.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reAssignValue.FindStringSubmatch(m)[1]
		if safeVars[name] {
			return m
		}
		return name + "=***"
	})
}
