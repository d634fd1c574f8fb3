package parser

import (
	"errors"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// parseBash tokenizes command with the bash grammar. Every side of &&, || and
// | becomes its own stage, as does every statement ended by ; & or a newline.
func parseBash(command string) ([]stage, error) {
	p := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := p.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, bashError(err)
	}

	b := &bashBuilder{src: command}
	for i, stmt := range file.Stmts {
		op := ""
		if i > 0 {
			op = ";"
			if file.Stmts[i-1].Background {
				op = "&"
			}
		}
		if err := b.walkStmt(stmt, op); err != nil {
			return nil, err
		}
	}
	if len(b.stages) == 0 {
		return nil, malformed(-1, "Empty command.")
	}
	return b.stages, nil
}

type bashBuilder struct {
	src    string
	stages []stage
}

func (b *bashBuilder) offset(pos syntax.Pos) int {
	off := int(pos.Offset())
	return min(max(off, 0), len(b.src))
}

func (b *bashBuilder) text(n syntax.Node) string {
	return b.src[b.offset(n.Pos()):b.offset(n.End())]
}

func (b *bashBuilder) walkStmt(s *syntax.Stmt, op string) error {
	if bin, ok := s.Cmd.(*syntax.BinaryCmd); ok {
		if err := b.walkStmt(bin.X, op); err != nil {
			return err
		}
		if err := b.walkStmt(bin.Y, bin.Op.String()); err != nil {
			return err
		}
		last := &b.stages[len(b.stages)-1]
		return b.addRedirects(last, s.Redirs)
	}

	st := stage{op: op, span: Span{Start: b.offset(s.Pos()), End: b.offset(s.Pos())}}
	if s.Cmd != nil {
		st.span.End = b.offset(s.Cmd.End())
	}

	switch cmd := s.Cmd.(type) {
	case nil:
	case *syntax.CallExpr:
		for _, arg := range cmd.Args {
			w, err := b.word(arg)
			if err != nil {
				return err
			}
			st.words = append(st.words, w)
		}
	case *syntax.DeclClause:
		st.words = append(st.words, b.lit(cmd.Variant))
		for _, a := range cmd.Args {
			switch {
			case a.Value != nil:
				w, err := b.word(a.Value)
				if err != nil {
					return err
				}
				st.words = append(st.words, w)
			case a.Naked && a.Name != nil:
				st.words = append(st.words, b.lit(a.Name))
			}
		}
	default:
		st.compound = true
		if err := b.collectNested(cmd, &st); err != nil {
			return err
		}
	}

	if err := b.addRedirects(&st, s.Redirs); err != nil {
		return err
	}
	b.stages = append(b.stages, st)
	return nil
}

func (b *bashBuilder) addRedirects(st *stage, redirs []*syntax.Redirect) error {
	for _, r := range redirs {
		redir, err := b.redirect(r)
		if err != nil {
			return err
		}
		st.redirects = append(st.redirects, redir)
		st.span.Start = min(st.span.Start, redir.Span.Start)
		st.span.End = max(st.span.End, redir.Span.End)
	}
	return nil
}

// collectNested gathers the words and redirections of the simple commands
// inside a subshell, block or other compound command. Command substitutions
// stay opaque.
func (b *bashBuilder) collectNested(cmd syntax.Command, st *stage) error {
	var err error
	syntax.Walk(cmd, func(node syntax.Node) bool {
		if err != nil {
			return false
		}
		switch n := node.(type) {
		case *syntax.CallExpr:
			for _, arg := range n.Args {
				var w Word
				if w, err = b.word(arg); err != nil {
					return false
				}
				st.words = append(st.words, w)
			}
			return false
		case *syntax.Redirect:
			var r Redirect
			if r, err = b.redirect(n); err != nil {
				return false
			}
			st.redirects = append(st.redirects, r)
			return false
		case *syntax.CmdSubst, *syntax.ProcSubst:
			return false
		}
		return true
	})
	return err
}

func (b *bashBuilder) redirect(r *syntax.Redirect) (Redirect, error) {
	op := r.Op.String()
	if r.N != nil {
		op = r.N.Value + op
	}
	target, err := b.word(r.Word)
	if err != nil {
		return Redirect{}, err
	}
	return Redirect{
		Op:     op,
		Target: target,
		Span:   Span{Start: b.offset(r.Pos()), End: target.Span.End},
	}, nil
}

func (b *bashBuilder) lit(l *syntax.Lit) Word {
	raw := b.text(l)
	value, _ := unescapeBare(raw)
	return Word{
		Raw:   raw,
		Value: value,
		Span:  Span{Start: b.offset(l.Pos()), End: b.offset(l.End())},
	}
}

func (b *bashBuilder) word(w *syntax.Word) (Word, error) {
	out := Word{
		Raw:  b.text(w),
		Span: Span{Start: b.offset(w.Pos()), End: b.offset(w.End())},
	}

	var val strings.Builder
	quoted := 0
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			v, ok := unescapeBare(b.text(p))
			if !ok {
				return Word{}, malformed(b.offset(p.End())-1, "Unterminated escape at end of input.")
			}
			val.WriteString(v)
		case *syntax.SglQuoted:
			val.WriteString(p.Value)
			quoted++
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if l, ok := inner.(*syntax.Lit); ok {
					val.WriteString(unescapeDouble(b.text(l)))
					continue
				}
				val.WriteString(b.text(inner))
			}
			quoted++
		default:
			val.WriteString(b.text(part))
		}
	}
	out.Value = val.String()

	switch {
	case quoted == 0:
		out.Quote = QuoteNone
	case len(w.Parts) > 1:
		out.Quote = QuoteMixed
	default:
		if _, ok := w.Parts[0].(*syntax.SglQuoted); ok {
			out.Quote = QuoteSingle
		} else {
			out.Quote = QuoteDouble
		}
	}
	return out, nil
}

// unescapeBare applies unquoted backslash rules. ok is false when a
// backslash has nothing left to escape.
func unescapeBare(raw string) (string, bool) {
	if !strings.Contains(raw, `\`) {
		return raw, true
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' {
			b.WriteByte(raw[i])
			continue
		}
		if i+1 >= len(raw) {
			return b.String(), false
		}
		i++
		if raw[i] != '\n' {
			b.WriteByte(raw[i])
		}
	}
	return b.String(), true
}

// unescapeDouble applies double-quoted backslash rules: only \" \\ \$ \`
// and line continuations lose their backslash.
func unescapeDouble(raw string) string {
	if !strings.Contains(raw, `\`) {
		return raw
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) && strings.IndexByte("\"\\$`\n", raw[i+1]) >= 0 {
			i++
			if raw[i] != '\n' {
				b.WriteByte(raw[i])
			}
			continue
		}
		b.WriteByte(raw[i])
	}
	return b.String()
}

// bashError turns a syntax error into a MalformedInputError carrying the
// byte offset the grammar reported.
func bashError(err error) error {
	var pe syntax.ParseError
	if !errors.As(err, &pe) {
		var le syntax.LangError
		if errors.As(err, &le) {
			return malformed(int(le.Pos.Offset()), "Unsupported syntax: %s is not bash.", le.Feature)
		}
		return malformed(-1, "%s.", err)
	}

	off := int(pe.Pos.Offset())
	switch {
	case strings.HasSuffix(pe.Text, `without closing quote "`):
		return malformed(off, "Unterminated double quote.")
	case strings.HasSuffix(pe.Text, `without closing quote '`):
		return malformed(off, "Unterminated single quote.")
	}
	if op, rest, ok := strings.Cut(pe.Text, " "); ok {
		switch rest {
		case "must be followed by a statement":
			return malformed(off, "Missing command after '%s'.", op)
		case "must be followed by a word":
			return malformed(off, "Missing target for redirection '%s'.", op)
		case "can only immediately follow a statement":
			return malformed(off, "Missing command before '%s'.", op)
		}
	}
	return malformed(off, "%s.", capitalize(pe.Text))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
