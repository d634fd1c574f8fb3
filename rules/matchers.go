package rules

import (
	"regexp"
	"strings"

	"github.com/jonchun/winlint/catalog"
	"github.com/jonchun/winlint/parser"
	"mvdan.cc/sh/v3/syntax"
)

var (
	windowsPathPrefix = regexp.MustCompile(`^(?:[A-Za-z]:\\|\\\\|\.{1,2}\\|~\\|%[A-Za-z_][A-Za-z0-9_]*%\\|\$env:[A-Za-z_][A-Za-z0-9_]*\\)`)
	innerBackslash    = regexp.MustCompile(`[A-Za-z0-9_.\-]\\[A-Za-z0-9_.\- ]`)
	bashExpansion     = regexp.MustCompile(`(?:^|[^\\])(\$(?:\{[^}]*\}|\(|[A-Za-z_][A-Za-z0-9_]*|[_?$!#@*0-9-]))`)
)

// looksLikeWindowsPath keeps escapes such as \; and \$ from being treated as paths.
func looksLikeWindowsPath(raw string) bool {
	if !strings.Contains(raw, `\`) {
		return false
	}
	return windowsPathPrefix.MatchString(raw) || innerBackslash.MatchString(raw)
}

// literal is the word as the user meant it: raw text when unquoted, the
// unquoted value otherwise.
func literal(w parser.Word) string {
	if w.Quote == parser.QuoteNone {
		return w.Raw
	}
	return w.Value
}

func matchUnquotedPath(cl *parser.CommandLine, idx int, _ *catalog.Entry) []finding {
	seg := cl.Segments[idx]
	var out []finding
	for _, w := range seg.Words {
		if w.Quote != parser.QuoteNone || !looksLikeWindowsPath(w.Raw) {
			continue
		}
		quoted, safe := `"`+w.Raw+`"`, true
		if seg.Dialect == parser.DialectBash {
			var separators int
			quoted, separators, safe = quoteBashPath(w.Raw)
			if separators == 0 {
				continue
			}
		}
		f := finding{vars: map[string]string{"word": w.Raw, "fixed": quoted}}
		if safe {
			f.fix = &Fix{Span: w.Span, Replacement: quoted}
		}
		out = append(out, f)
	}
	return out
}

// quoteBashPath double-quotes an unquoted bash word, keeping backslashes
// that separate path components. An escaped blank loses its backslash, and
// \\ \$ \" \` are kept since double quotes still honor them. Any other
// escape, such as \. or \;, means something different once quoted, so safe
// is false.
func quoteBashPath(raw string) (quoted string, separators int, safe bool) {
	var b strings.Builder
	b.WriteByte('"')
	safe = true
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			b.WriteByte(c)
			continue
		}
		i++
		next := raw[i]
		switch {
		case isPathByte(next):
			separators++
			b.WriteByte(c)
		case next == ' ' || next == '\t':
		case strings.IndexByte("\\$\"`\n", next) >= 0:
			b.WriteByte(c)
		default:
			safe = false
			b.WriteByte(c)
		}
		b.WriteByte(next)
	}
	b.WriteByte('"')
	return b.String(), separators, safe
}

func isPathByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == '~' || c == '%'
}

func matchPipeAfterCd(cl *parser.CommandLine, idx int, e *catalog.Entry) []finding {
	seg := cl.Segments[idx]
	if seg.Kind != parser.KindPipeStage || !seg.FollowsDirChange || seg.Compound || len(seg.Words) == 0 {
		return nil
	}
	if !e.HasCommand(seg.CommandName()) {
		return nil
	}
	return []finding{{vars: map[string]string{"command": seg.Words[0].Raw}}}
}

func matchPowerShellAfterCd(cl *parser.CommandLine, idx int, e *catalog.Entry) []finding {
	seg := cl.Segments[idx]
	if seg.Kind == parser.KindRedirection || seg.Kind == parser.KindPipeStage || !seg.FollowsDirChange {
		return nil
	}
	if !e.HasCommand(seg.CommandName()) {
		return nil
	}
	if _, ok := inlineCommand(seg, e); !ok {
		return nil
	}
	return []finding{{vars: map[string]string{
		"command": seg.Words[0].Raw,
		"path":    lastDirChangeTarget(cl, idx),
	}}}
}

func lastDirChangeTarget(cl *parser.CommandLine, idx int) string {
	for i := idx - 1; i >= 0; i-- {
		seg := cl.Segments[i]
		if seg.Kind != parser.KindDirChange {
			continue
		}
		if args := seg.Args(); len(args) > 0 {
			return literal(args[len(args)-1])
		}
		break
	}
	return "<path>"
}

func matchDevNull(cl *parser.CommandLine, idx int, _ *catalog.Entry) []finding {
	seg := cl.Segments[idx]
	if seg.Kind != parser.KindRedirection || len(seg.Words) == 0 {
		return nil
	}
	target := seg.Words[0]
	if target.Value != "/dev/null" {
		return nil
	}

	replacement := "nul"
	if seg.Dialect == parser.DialectPowerShell {
		replacement = "$null"
	}
	fixed := seg.Operator + replacement
	if target.Span.Start > seg.Span.Start+len(seg.Operator) {
		fixed = seg.Operator + " " + replacement
	}
	return []finding{{
		vars: map[string]string{"fixed": fixed},
		fix:  &Fix{Span: target.Span, Replacement: replacement},
	}}
}

// inlineCommand returns the argument of -Command (or -c) on a stage running
// one of the shells the entry lists.
func inlineCommand(seg parser.Segment, e *catalog.Entry) (parser.Word, bool) {
	if !e.HasCommand(seg.CommandName()) {
		return parser.Word{}, false
	}
	args := seg.Args()
	for i, a := range args {
		if a.Quote != parser.QuoteNone {
			continue
		}
		if isCommandFlag(strings.ToLower(a.Raw)) && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return parser.Word{}, false
}

func isCommandFlag(flag string) bool {
	if flag == "-c" || flag == "/c" {
		return true
	}
	for _, prefix := range []string{"-", "/"} {
		name, ok := strings.CutPrefix(flag, prefix)
		if ok && len(name) >= 3 && strings.HasPrefix("command", name) {
			return true
		}
	}
	return false
}

func matchPowerShellBang(cl *parser.CommandLine, idx int, e *catalog.Entry) []finding {
	w, ok := inlineCommand(cl.Segments[idx], e)
	if !ok {
		return nil
	}

	var out []finding
	raw := w.Raw
	for i := 0; i < len(raw); i++ {
		if raw[i] != '!' {
			continue
		}
		if i > 0 && (raw[i-1] == '`' || raw[i-1] == '\\') {
			continue
		}
		f := finding{}
		pos := w.Span.Start + i
		if i+1 < len(raw) {
			switch raw[i+1] {
			case '$', '(':
				f.fix = &Fix{Span: parser.Span{Start: pos, End: pos + 1}, Replacement: "-not "}
			case ' ':
				f.fix = &Fix{Span: parser.Span{Start: pos, End: pos + 1}, Replacement: "-not"}
			}
		}
		out = append(out, f)
	}
	return out
}

func matchInterpolation(cl *parser.CommandLine, idx int, e *catalog.Entry) []finding {
	w, ok := inlineCommand(cl.Segments[idx], e)
	if !ok || w.Quote == parser.QuoteSingle {
		return nil
	}
	expansions := bashExpansions(w.Raw)
	if len(expansions) == 0 {
		return nil
	}
	return []finding{{vars: map[string]string{"vars": strings.Join(expansions, ", ")}}}
}

// bashExpansions lists what bash would expand in word before handing it to
// PowerShell. Words the bash grammar rejects fall back to a pattern scan.
func bashExpansions(word string) []string {
	var found []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			found = append(found, s)
		}
	}

	p := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := p.Parse(strings.NewReader(word), "")
	if err != nil {
		for _, m := range bashExpansion.FindAllStringSubmatch(stripSingleQuoted(word), -1) {
			add(m[1])
		}
		return found
	}

	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil {
				add("$" + n.Param.Value)
			}
			return false
		case *syntax.CmdSubst:
			add("$(...)")
			return false
		case *syntax.ArithmExp:
			add("$((...))")
			return false
		}
		return true
	})
	return found
}

func stripSingleQuoted(s string) string {
	var b strings.Builder
	inSingle, inDouble := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			continue
		case c == '"' && !inSingle:
			inDouble = !inDouble
		}
		if !inSingle {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func matchCommand(cl *parser.CommandLine, idx int, e *catalog.Entry) []finding {
	seg := cl.Segments[idx]
	if seg.Kind == parser.KindRedirection || seg.Compound || len(seg.Words) == 0 {
		return nil
	}
	name := seg.CommandName()
	if !e.HasCommand(name) {
		return nil
	}
	replacement := e.Suggestions[name]
	if replacement == "" {
		replacement = "a native equivalent"
	}
	return []finding{{vars: map[string]string{
		"command":     seg.Words[0].Raw,
		"replacement": replacement,
	}}}
}
