// Package parser splits a raw command line into stage, directory-change and
// redirection segments without executing or expanding anything.
package parser

import (
	"fmt"
	"path"
	"strings"
)

// Input size limits.
const (
	MaxCommandLength = 65536 // 64KB max total command length
	MaxSegments      = 256   // max segments including redirections
)

// Span is a half-open byte range [Start, End) into the raw command line.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) Len() int { return s.End - s.Start }

// Kind classifies a segment.
type Kind int

const (
	// KindJoin is a command stage that is not piped into: the leading stage
	// or one joined by &&, || or ;.
	KindJoin Kind = iota
	KindDirChange
	KindPipeStage
	KindRedirection
)

func (k Kind) String() string {
	switch k {
	case KindDirChange:
		return "directory-change"
	case KindPipeStage:
		return "piped-stage"
	case KindRedirection:
		return "redirection"
	default:
		return "compound-operator-join"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// QuoteStyle records how a word was quoted in the source.
type QuoteStyle int

const (
	QuoteNone QuoteStyle = iota
	QuoteSingle
	QuoteDouble
	// QuoteMixed covers words such as C:\"Program Files"\x or --opt="a b".
	QuoteMixed
)

type Word struct {
	Raw   string     `json:"raw"`
	Value string     `json:"value"`
	Span  Span       `json:"span"`
	Quote QuoteStyle `json:"-"`
}

type Redirect struct {
	Op     string `json:"op"`
	Target Word   `json:"target"`
	Span   Span   `json:"span"`
}

type Segment struct {
	Kind    Kind    `json:"kind"`
	Span    Span    `json:"span"`
	Text    string  `json:"text"`
	Dialect Dialect `json:"dialect"`
	// Operator joins a stage to the previous one ("", "&&", "||", ";", "&",
	// "|", "|&").
	// For redirection segments it holds the redirection operator.
	Operator         string     `json:"operator,omitempty"`
	Words            []Word     `json:"words,omitempty"`
	Redirects        []Redirect `json:"-"`
	FollowsDirChange bool       `json:"follows_dir_change,omitempty"`
	// Compound marks a subshell, block or other compound command. Its Words
	// are those of the simple commands inside it.
	Compound bool `json:"compound,omitempty"`
	// Parent is the index of the owning stage for redirection segments, -1 otherwise.
	Parent int `json:"parent"`
}

// CommandName is the lowercased base name of the first word with any .exe
// suffix removed, or "" for redirection-only and compound stages.
func (s Segment) CommandName() string {
	if s.Kind == KindRedirection || s.Compound || len(s.Words) == 0 {
		return ""
	}
	return NormalizeCommand(s.Words[0])
}

// Args returns the words following the command name.
func (s Segment) Args() []Word {
	if s.Kind == KindRedirection || s.Compound || len(s.Words) < 2 {
		return nil
	}
	return s.Words[1:]
}

// NormalizeCommand reduces a command word to a comparable name.
func NormalizeCommand(w Word) string {
	name := w.Value
	if w.Quote == QuoteNone {
		name = w.Raw
	}
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.ToLower(path.Base(name))
	return strings.TrimSuffix(name, ".exe")
}

// CommandLine is an immutable tokenized command.
type CommandLine struct {
	Raw      string
	Dialect  Dialect
	Segments []Segment
}

// StageCount counts the top-level (non-redirection) segments.
func (c *CommandLine) StageCount() int {
	n := 0
	for _, seg := range c.Segments {
		if seg.Kind != KindRedirection {
			n++
		}
	}
	return n
}

type MalformedInputError struct {
	Message string
	Offset  int
}

func (e *MalformedInputError) Error() string {
	if e.Offset < 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (offset %d)", e.Message, e.Offset)
}

func malformed(offset int, format string, args ...any) error {
	return &MalformedInputError{Message: fmt.Sprintf(format, args...), Offset: offset}
}

// Parse tokenizes command under dialect. Bash goes through the mvdan.cc/sh
// grammar and PowerShell through a quote-aware scanner. DialectAuto tokenizes
// as bash and re-tokenizes as PowerShell if any stage runs a cmdlet.
func Parse(command string, dialect Dialect) (*CommandLine, error) {
	if strings.TrimSpace(command) == "" {
		return nil, malformed(-1, "Empty command.")
	}
	if len(command) > MaxCommandLength {
		return nil, malformed(-1, "Command too long (%d bytes, max %d).", len(command), MaxCommandLength)
	}

	if dialect != DialectAuto {
		return parseAs(command, dialect)
	}

	cl, err := parseAs(command, DialectBash)
	if err == nil && !invokesCmdlet(cl) {
		return cl, nil
	}
	ps, psErr := parseAs(command, DialectPowerShell)
	if psErr == nil && invokesCmdlet(ps) {
		return ps, nil
	}
	if err != nil {
		return nil, err
	}
	return cl, nil
}

func invokesCmdlet(cl *CommandLine) bool {
	for _, seg := range cl.Segments {
		if seg.Kind == KindRedirection || seg.Compound || len(seg.Words) == 0 {
			continue
		}
		if seg.Words[0].Quote == QuoteNone && IsCmdlet(seg.Words[0].Raw) {
			return true
		}
	}
	return false
}

// stage is one command between top-level operators, before it is split into
// segments.
type stage struct {
	op        string
	span      Span
	words     []Word
	redirects []Redirect
	compound  bool
}

func (st *stage) empty() bool {
	return len(st.words) == 0 && len(st.redirects) == 0
}

func isPipe(op string) bool {
	return op == "|" || op == "|&"
}

func parseAs(command string, dialect Dialect) (*CommandLine, error) {
	var (
		stages []stage
		err    error
	)
	if dialect == DialectPowerShell {
		stages, err = (&scanner{src: command}).scan()
	} else {
		stages, err = parseBash(command)
	}
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(stages))
	followsCd := false
	for _, st := range stages {
		seg := Segment{
			Span:             st.span,
			Text:             command[st.span.Start:st.span.End],
			Dialect:          dialect,
			Operator:         st.op,
			Words:            st.words,
			Redirects:        st.redirects,
			FollowsDirChange: followsCd,
			Compound:         st.compound,
			Parent:           -1,
		}
		switch {
		case !st.compound && len(st.words) > 0 && IsDirChange(NormalizeCommand(st.words[0])):
			seg.Kind = KindDirChange
		case isPipe(st.op):
			seg.Kind = KindPipeStage
		default:
			seg.Kind = KindJoin
		}
		segments = append(segments, seg)
		owner := len(segments) - 1

		for _, r := range st.redirects {
			segments = append(segments, Segment{
				Kind:             KindRedirection,
				Span:             r.Span,
				Text:             command[r.Span.Start:r.Span.End],
				Dialect:          dialect,
				Operator:         r.Op,
				Words:            []Word{r.Target},
				FollowsDirChange: followsCd,
				Parent:           owner,
			})
		}
		if seg.Kind == KindDirChange {
			followsCd = true
		}
	}

	if len(segments) > MaxSegments {
		return nil, malformed(-1, "Too many segments (%d, max %d).", len(segments), MaxSegments)
	}
	return &CommandLine{Raw: command, Dialect: dialect, Segments: segments}, nil
}
