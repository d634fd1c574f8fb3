// Package rules evaluates catalog rules against a tokenized command line.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jonchun/winlint/catalog"
	"github.com/jonchun/winlint/parser"
)

// Fix replaces Span in the raw command line with Replacement.
type Fix struct {
	RuleID      string      `json:"rule_id"`
	Span        parser.Span `json:"span"`
	Replacement string      `json:"replacement"`
}

type Diagnostic struct {
	RuleID     string           `json:"rule_id"`
	Severity   catalog.Severity `json:"severity"`
	Message    string           `json:"message"`
	Segment    int              `json:"segment"`
	Span       parser.Span      `json:"span"`
	Suggestion string           `json:"suggestion,omitempty"`
	Fix        *Fix             `json:"fix,omitempty"`

	priority int
}

// finding is one match produced by a matcher. vars fill the {placeholders}
// in the entry's message and suggestion.
type finding struct {
	vars map[string]string
	fix  *Fix
}

type matchFunc func(cl *parser.CommandLine, idx int, e *catalog.Entry) []finding

var builtins = map[string]matchFunc{
	"unquoted-path":            matchUnquotedPath,
	"pipe-after-cd":            matchPipeAfterCd,
	"powershell-after-cd":      matchPowerShellAfterCd,
	"dev-null-redirect":        matchDevNull,
	"powershell-bang":          matchPowerShellBang,
	"powershell-interpolation": matchInterpolation,
}

type boundRule struct {
	entry catalog.Entry
	match matchFunc
}

// Engine holds the enabled rules in priority order. It is immutable after
// NewEngine returns and safe for concurrent use.
type Engine struct {
	rules []boundRule
}

type engineOptions struct {
	disabled []string
	severity map[string]catalog.Severity
}

type Option func(*engineOptions)

// WithDisabled drops every rule whose id matches one of the glob patterns.
func WithDisabled(patterns ...string) Option {
	return func(o *engineOptions) { o.disabled = append(o.disabled, patterns...) }
}

// WithSeverity overrides the catalog severity per rule id.
func WithSeverity(overrides map[string]catalog.Severity) Option {
	return func(o *engineOptions) {
		if o.severity == nil {
			o.severity = make(map[string]catalog.Severity, len(overrides))
		}
		for id, sev := range overrides {
			o.severity[id] = sev
		}
	}
}

func NewEngine(entries map[string]*catalog.Entry, opts ...Option) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	for _, pattern := range o.disabled {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid rule pattern %q", pattern)
		}
	}
	for id := range o.severity {
		if entries[id] == nil {
			return nil, fmt.Errorf("severity override for unknown rule %q", id)
		}
	}

	e := &Engine{}
	for _, entry := range catalog.Sorted(entries) {
		if entry.Disabled || isDisabled(entry.ID, o.disabled) {
			continue
		}

		bound := boundRule{entry: *entry}
		if sev, ok := o.severity[entry.ID]; ok {
			bound.entry.Severity = sev
		}

		switch entry.Matcher {
		case catalog.MatcherCommand:
			bound.match = matchCommand
		default:
			fn, ok := builtins[entry.ID]
			if !ok {
				return nil, &catalog.CatalogError{Message: fmt.Sprintf("rule %q has no built-in matcher; use 'matcher: command' with a 'commands' list", entry.ID)}
			}
			bound.match = fn
		}
		e.rules = append(e.rules, bound)
	}
	return e, nil
}

func isDisabled(id string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, id); ok {
			return true
		}
	}
	return false
}

// Rules returns copies of the enabled entries in evaluation order.
func (e *Engine) Rules() []catalog.Entry {
	out := make([]catalog.Entry, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.entry
	}
	return out
}

// Evaluate runs every enabled rule against every segment whose dialect the
// rule accepts. Diagnostics are sorted by segment start offset, then errors
// before warnings, then rule priority. Overlapping findings are not merged.
func (e *Engine) Evaluate(cl *parser.CommandLine) []Diagnostic {
	var diags []Diagnostic
	for i := range e.rules {
		r := &e.rules[i]
		for idx := range cl.Segments {
			if !r.entry.Dialect.Matches(cl.Segments[idx].Dialect) {
				continue
			}
			for _, f := range r.match(cl, idx, &r.entry) {
				diags = append(diags, r.diagnostic(cl, idx, f))
			}
		}
	}

	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Segment != b.Segment {
			return a.Segment < b.Segment
		}
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra < rb
		}
		return a.priority < b.priority
	})
	return diags
}

func (r *boundRule) diagnostic(cl *parser.CommandLine, idx int, f finding) Diagnostic {
	d := Diagnostic{
		RuleID:     r.entry.ID,
		Severity:   r.entry.Severity,
		Message:    render(r.entry.Message, f.vars),
		Segment:    idx,
		Span:       cl.Segments[idx].Span,
		Suggestion: render(r.entry.Suggestion, f.vars),
		priority:   r.entry.Priority,
	}
	if f.fix != nil {
		fix := *f.fix
		fix.RuleID = r.entry.ID
		d.Fix = &fix
	}
	return d
}

func render(template string, vars map[string]string) string {
	if template == "" || len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
