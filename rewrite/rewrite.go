// Package rewrite applies diagnostic fixes to a raw command line.
package rewrite

import (
	"fmt"
	"sort"

	"github.com/jonchun/winlint/rules"
)

// ConflictingFixError reports two fixes whose spans overlap. Nothing is
// applied when it is returned.
type ConflictingFixError struct {
	First  rules.Fix
	Second rules.Fix
}

func (e *ConflictingFixError) Error() string {
	return fmt.Sprintf("conflicting fixes: %s [%d,%d) overlaps %s [%d,%d)",
		e.First.RuleID, e.First.Span.Start, e.First.Span.End,
		e.Second.RuleID, e.Second.Span.Start, e.Second.Span.End)
}

// Fixes collects the fixes carried by diags. Diagnostics without a fix are
// informational and skipped.
func Fixes(diags []rules.Diagnostic) []rules.Fix {
	var fixes []rules.Fix
	for _, d := range diags {
		if d.Fix != nil {
			fixes = append(fixes, *d.Fix)
		}
	}
	return fixes
}

// Apply patches command with every fix in diags, last span first so earlier
// offsets stay valid. It returns the rewritten command and the number of
// fixes applied. On a conflict the original command is returned with a
// *ConflictingFixError. Identical duplicate fixes are applied once.
func Apply(command string, diags []rules.Diagnostic) (string, int, error) {
	fixes := Fixes(diags)
	if len(fixes) == 0 {
		return command, 0, nil
	}

	for _, f := range fixes {
		if f.Span.Start < 0 || f.Span.End < f.Span.Start || f.Span.End > len(command) {
			return command, 0, fmt.Errorf("fix %s span [%d,%d) out of range for %d-byte command",
				f.RuleID, f.Span.Start, f.Span.End, len(command))
		}
	}

	sort.SliceStable(fixes, func(i, j int) bool {
		if fixes[i].Span.Start != fixes[j].Span.Start {
			return fixes[i].Span.Start < fixes[j].Span.Start
		}
		return fixes[i].Span.End < fixes[j].Span.End
	})
	fixes = dedupe(fixes)

	for i := 0; i < len(fixes); i++ {
		for j := i + 1; j < len(fixes); j++ {
			if spansConflict(fixes[i], fixes[j]) {
				return command, 0, &ConflictingFixError{First: fixes[i], Second: fixes[j]}
			}
		}
	}

	out := command
	for i := len(fixes) - 1; i >= 0; i-- {
		f := fixes[i]
		out = out[:f.Span.Start] + f.Replacement + out[f.Span.End:]
	}
	return out, len(fixes), nil
}

func dedupe(sorted []rules.Fix) []rules.Fix {
	out := sorted[:0:0]
	for _, f := range sorted {
		if n := len(out); n > 0 && out[n-1].Span == f.Span && out[n-1].Replacement == f.Replacement {
			continue
		}
		out = append(out, f)
	}
	return out
}

// spansConflict treats spans as half-open intervals. Two insertions at the
// same offset conflict because their order would be a guess.
func spansConflict(a, b rules.Fix) bool {
	aStart, aEnd := a.Span.Start, a.Span.End
	bStart, bEnd := b.Span.Start, b.Span.End

	if aStart == aEnd && bStart == bEnd {
		return aStart == bStart
	}
	if aStart == aEnd {
		return bStart < aStart && aStart < bEnd
	}
	if bStart == bEnd {
		return aStart < bStart && bStart < aEnd
	}
	return aStart < bEnd && bStart < aEnd
}
