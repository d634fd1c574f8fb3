// Package output renders lint results as text or JSON.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jonchun/winlint/catalog"
	"github.com/jonchun/winlint/linter"
	"github.com/jonchun/winlint/parser"
	"github.com/jonchun/winlint/rewrite"
)

const (
	DefaultExcerptBytes = 80
	excerptSeparator    = " ... "
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text or json)", s)
	}
}

// Report is the JSON shape of one lint call.
type Report struct {
	linter.Result
	Errors   int    `json:"errors"`
	Warnings int    `json:"warnings"`
	Error    string `json:"error,omitempty"`
}

func NewReport(res linter.Result, err error) Report {
	errs, warns := res.Counts()
	r := Report{Result: res, Errors: errs, Warnings: warns}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// WriteJSON writes one report per line.
func WriteJSON(w io.Writer, reports ...Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	}
	return nil
}

// TextWriter prints diagnostics to Diag and rewritten commands to Out.
type TextWriter struct {
	Out  io.Writer
	Diag io.Writer

	errColor  *color.Color
	warnColor *color.Color
	dimColor  *color.Color
	fixColor  *color.Color
}

func NewTextWriter(out, diag io.Writer, useColor bool) *TextWriter {
	t := &TextWriter{
		Out:       out,
		Diag:      diag,
		errColor:  color.New(color.FgRed, color.Bold),
		warnColor: color.New(color.FgYellow, color.Bold),
		dimColor:  color.New(color.Faint),
		fixColor:  color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{t.errColor, t.warnColor, t.dimColor, t.fixColor} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// Write renders one lint call. Malformed input prints only the error;
// a fix conflict prints the diagnostics and a note instead of a rewrite.
func (t *TextWriter) Write(res linter.Result, lintErr error) error {
	var malformed *parser.MalformedInputError
	if errors.As(lintErr, &malformed) {
		_, err := fmt.Fprintf(t.Diag, "%s: malformed input: %s\n", t.errColor.Sprint("error"), malformed.Error())
		return err
	}

	for _, d := range res.Diagnostics {
		label := t.warnColor.Sprintf("warning[%s]", d.RuleID)
		if d.Severity == catalog.SeverityError {
			label = t.errColor.Sprintf("error[%s]", d.RuleID)
		}
		if _, err := fmt.Fprintf(t.Diag, "%s: %s\n", label, d.Message); err != nil {
			return err
		}
		if d.Segment >= 0 && d.Segment < len(res.Segments) {
			seg := res.Segments[d.Segment]
			_, _ = fmt.Fprintf(t.Diag, "  %s segment %d (%s): %s\n", t.dimColor.Sprint("-->"), d.Segment, seg.Kind, Excerpt(seg.Text, DefaultExcerptBytes))
		}
		if d.Suggestion != "" {
			_, _ = fmt.Fprintf(t.Diag, "  %s %s\n", t.dimColor.Sprint("= help:"), d.Suggestion)
		}
		if d.Fix != nil {
			_, _ = fmt.Fprintf(t.Diag, "  %s replace %q with %q\n", t.fixColor.Sprint("= fix:"), res.Command[d.Fix.Span.Start:d.Fix.Span.End], d.Fix.Replacement)
		}
	}

	var conflict *rewrite.ConflictingFixError
	if errors.As(lintErr, &conflict) {
		_, _ = fmt.Fprintf(t.Diag, "%s: fixes not applied: %s\n", t.warnColor.Sprint("note"), conflict.Error())
	} else if lintErr != nil {
		_, _ = fmt.Fprintf(t.Diag, "%s: %s\n", t.errColor.Sprint("error"), lintErr.Error())
	}

	if res.Rewritten != nil {
		if _, err := fmt.Fprintln(t.Out, *res.Rewritten); err != nil {
			return err
		}
	}
	return nil
}

// Summary prints the totals line used after batch runs.
func (t *TextWriter) Summary(commands, errs, warns int) error {
	_, err := fmt.Fprintf(t.Diag, "%d command(s): %d error(s), %d warning(s)\n", commands, errs, warns)
	return err
}

// Excerpt shortens text to at most maxBytes, keeping the head and the tail.
func Excerpt(text string, maxBytes int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) <= maxBytes {
		return text
	}
	if maxBytes <= len(excerptSeparator) {
		return text[:max(maxBytes, 0)]
	}

	budget := maxBytes - len(excerptSeparator)
	head := budget * 3 / 4
	tail := budget - head
	return text[:head] + excerptSeparator + text[len(text)-tail:]
}
