package parser

import "strings"

// scanner tokenizes PowerShell, which has no grammar in mvdan.cc/sh. It walks
// the raw input once. depth counts open (, { so operators inside $(...) and
// script blocks stay inside their word.
type scanner struct {
	src   string
	pos   int
	depth int
}

const psEscape = '`'

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}

// operatorAt returns the top-level operator starting at i, if any.
func (s *scanner) operatorAt(i int) string {
	if s.depth > 0 {
		return ""
	}
	rest := s.src[i:]
	switch {
	case strings.HasPrefix(rest, "&&"):
		return "&&"
	case strings.HasPrefix(rest, "||"):
		return "||"
	case rest[0] == '|':
		return "|"
	case rest[0] == ';':
		return ";"
	case rest[0] == '\n':
		return "\n"
	}
	return ""
}

func (s *scanner) scan() ([]stage, error) {
	var stages []stage
	cur := stage{span: Span{Start: -1}}

	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if isBlank(c) {
			s.pos++
			continue
		}

		if op := s.operatorAt(s.pos); op != "" {
			at := s.pos
			s.pos += len(op)
			if cur.empty() {
				if needsCommand(cur.op) {
					return nil, malformed(at, "Missing command after '%s'.", cur.op)
				}
				if op == "\n" {
					continue
				}
				return nil, malformed(at, "Missing command before '%s'.", op)
			}
			stages = append(stages, cur)
			if op == "\n" {
				op = ";"
			}
			cur = stage{op: op, span: Span{Start: -1}}
			continue
		}

		if op, n, ok := s.redirectAt(s.pos); ok {
			r, err := s.readRedirect(op, n)
			if err != nil {
				return nil, err
			}
			cur.redirects = append(cur.redirects, r)
			cur.extend(r.Span)
			continue
		}

		w, err := s.readWord()
		if err != nil {
			return nil, err
		}
		cur.words = append(cur.words, w)
		cur.extend(w.Span)
	}

	if cur.empty() {
		if needsCommand(cur.op) {
			return nil, malformed(len(s.src), "Missing command after '%s'.", cur.op)
		}
	} else {
		stages = append(stages, cur)
	}
	if len(stages) == 0 {
		return nil, malformed(-1, "Empty command.")
	}
	return stages, nil
}

func needsCommand(op string) bool {
	return op == "&&" || op == "||" || op == "|"
}

func (st *stage) extend(sp Span) {
	if st.span.Start < 0 {
		st.span.Start = sp.Start
	}
	st.span.End = sp.End
}

// redirectAt recognizes [n]>, [n]>>, [n]>&, [n]<, *> and *>> at a word
// boundary.
func (s *scanner) redirectAt(i int) (string, int, bool) {
	if s.depth > 0 {
		return "", 0, false
	}
	rest := s.src[i:]
	j := 0
	switch {
	case strings.HasPrefix(rest, "&>"):
		j = 1
	case strings.HasPrefix(rest, "*>"):
		j = 1
	default:
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
	}
	if j >= len(rest) || (rest[j] != '>' && rest[j] != '<') {
		return "", 0, false
	}
	k := j + 1
	if k < len(rest) && (rest[k] == rest[j] || rest[k] == '&') {
		k++
	}
	return rest[:k], k, true
}

func (s *scanner) readRedirect(op string, n int) (Redirect, error) {
	start := s.pos
	s.pos += n

	if strings.HasSuffix(op, "&") {
		j := s.pos
		for j < len(s.src) && (s.src[j] >= '0' && s.src[j] <= '9' || s.src[j] == '-') {
			j++
		}
		if j > s.pos {
			target := Word{Raw: s.src[s.pos:j], Value: s.src[s.pos:j], Span: Span{Start: s.pos, End: j}}
			s.pos = j
			return Redirect{Op: op, Target: target, Span: Span{Start: start, End: j}}, nil
		}
	}

	for s.pos < len(s.src) && isBlank(s.src[s.pos]) {
		s.pos++
	}
	if s.pos >= len(s.src) || s.operatorAt(s.pos) != "" || s.src[s.pos] == '>' || s.src[s.pos] == '<' {
		return Redirect{}, malformed(start, "Missing target for redirection '%s'.", op)
	}
	target, err := s.readWord()
	if err != nil {
		return Redirect{}, err
	}
	return Redirect{Op: op, Target: target, Span: Span{Start: start, End: target.Span.End}}, nil
}

const (
	stateBare = iota
	stateSingle
	stateDouble
)

func (s *scanner) readWord() (Word, error) {
	start := s.pos

	var val strings.Builder
	state := stateBare
	quoteStart := -1
	sawQuote := false
	firstQuoteEnd := -1

	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch state {
		case stateBare:
			if isBlank(c) || s.operatorAt(s.pos) != "" {
				return s.finishWord(start, val.String(), sawQuote, firstQuoteEnd), nil
			}
			if s.depth == 0 && (c == '>' || c == '<') && s.pos > start {
				return s.finishWord(start, val.String(), sawQuote, firstQuoteEnd), nil
			}
			if c == psEscape {
				if s.pos+1 >= len(s.src) {
					return Word{}, malformed(s.pos, "Unterminated escape at end of input.")
				}
				val.WriteByte(s.src[s.pos+1])
				s.pos += 2
				continue
			}
			switch c {
			case '\'':
				state, quoteStart, sawQuote = stateSingle, s.pos, true
				s.pos++
				continue
			case '"':
				state, quoteStart, sawQuote = stateDouble, s.pos, true
				s.pos++
				continue
			case '(', '{':
				s.depth++
			case ')', '}':
				if s.depth > 0 {
					s.depth--
				}
			}
			val.WriteByte(c)
			s.pos++

		case stateSingle:
			if c == '\'' {
				if s.pos+1 < len(s.src) && s.src[s.pos+1] == '\'' {
					val.WriteByte('\'')
					s.pos += 2
					continue
				}
				state = stateBare
				if firstQuoteEnd < 0 {
					firstQuoteEnd = s.pos
				}
				s.pos++
				continue
			}
			val.WriteByte(c)
			s.pos++

		case stateDouble:
			if c == '"' {
				if s.pos+1 < len(s.src) && s.src[s.pos+1] == '"' {
					val.WriteByte('"')
					s.pos += 2
					continue
				}
				state = stateBare
				if firstQuoteEnd < 0 {
					firstQuoteEnd = s.pos
				}
				s.pos++
				continue
			}
			if c == psEscape && s.pos+1 < len(s.src) {
				val.WriteByte(s.src[s.pos+1])
				s.pos += 2
				continue
			}
			val.WriteByte(c)
			s.pos++
		}
	}

	switch state {
	case stateSingle:
		return Word{}, malformed(quoteStart, "Unterminated single quote.")
	case stateDouble:
		return Word{}, malformed(quoteStart, "Unterminated double quote.")
	}
	return s.finishWord(start, val.String(), sawQuote, firstQuoteEnd), nil
}

func (s *scanner) finishWord(start int, value string, sawQuote bool, firstQuoteEnd int) Word {
	raw := s.src[start:s.pos]
	w := Word{Raw: raw, Value: value, Span: Span{Start: start, End: s.pos}}
	switch {
	case !sawQuote:
		w.Quote = QuoteNone
	case firstQuoteEnd == s.pos-1 && raw[0] == '\'':
		w.Quote = QuoteSingle
	case firstQuoteEnd == s.pos-1 && raw[0] == '"':
		w.Quote = QuoteDouble
	default:
		w.Quote = QuoteMixed
	}
	return w
}
