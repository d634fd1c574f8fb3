package parser

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, input string, dialect Dialect) *CommandLine {
	t.Helper()
	cl, err := Parse(input, dialect)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", input, err)
	}
	return cl
}

func mustParseErr(t *testing.T, input string, dialect Dialect, contains string) *MalformedInputError {
	t.Helper()
	_, err := Parse(input, dialect)
	if err == nil {
		t.Fatalf("Parse(%q) expected error, got nil", input)
	}
	var malformed *MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("Parse(%q) error = %T, want *MalformedInputError", input, err)
	}
	if contains != "" && !strings.Contains(err.Error(), contains) {
		t.Fatalf("Parse(%q) error = %q, want substring %q", input, err.Error(), contains)
	}
	return malformed
}

func TestParseDirChangeThenCommand(t *testing.T) {
	cl := mustParse(t, `cd C:\Repo && git status`, DialectBash)
	if got, want := len(cl.Segments), 2; got != want {
		t.Fatalf("len(Segments) = %d, want %d", got, want)
	}

	cd := cl.Segments[0]
	if got, want := cd.Kind, KindDirChange; got != want {
		t.Fatalf("segment[0].Kind = %v, want %v", got, want)
	}
	if got, want := cd.Span, (Span{Start: 0, End: 10}); got != want {
		t.Fatalf("segment[0].Span = %+v, want %+v", got, want)
	}
	if got, want := cd.Text, `cd C:\Repo`; got != want {
		t.Fatalf("segment[0].Text = %q, want %q", got, want)
	}
	path := cd.Words[1]
	if got, want := path.Raw, `C:\Repo`; got != want {
		t.Fatalf("path.Raw = %q, want %q", got, want)
	}
	if got, want := path.Value, `C:Repo`; got != want {
		t.Fatalf("path.Value = %q, want %q (bash drops the backslash)", got, want)
	}
	if got, want := path.Quote, QuoteNone; got != want {
		t.Fatalf("path.Quote = %v, want %v", got, want)
	}

	git := cl.Segments[1]
	if got, want := git.Kind, KindJoin; got != want {
		t.Fatalf("segment[1].Kind = %v, want %v", got, want)
	}
	if got, want := git.Operator, "&&"; got != want {
		t.Fatalf("segment[1].Operator = %q, want %q", got, want)
	}
	if !git.FollowsDirChange {
		t.Fatal("segment[1].FollowsDirChange = false, want true")
	}
	if got, want := git.Span, (Span{Start: 14, End: 24}); got != want {
		t.Fatalf("segment[1].Span = %+v, want %+v", got, want)
	}
	if cd.FollowsDirChange {
		t.Fatal("segment[0].FollowsDirChange = true, want false")
	}
}

func TestParsePipeAfterDirChange(t *testing.T) {
	input := `cd "C:\Repo" && git status --short | findstr /R "."`
	cl := mustParse(t, input, DialectBash)
	if got, want := len(cl.Segments), 3; got != want {
		t.Fatalf("len(Segments) = %d, want %d", got, want)
	}
	if got, want := cl.Segments[0].Words[1].Value, `C:\Repo`; got != want {
		t.Fatalf("quoted path value = %q, want %q", got, want)
	}
	if got, want := cl.Segments[0].Words[1].Quote, QuoteDouble; got != want {
		t.Fatalf("quoted path Quote = %v, want %v", got, want)
	}

	pipe := cl.Segments[2]
	if got, want := pipe.Kind, KindPipeStage; got != want {
		t.Fatalf("segment[2].Kind = %v, want %v", got, want)
	}
	if got, want := pipe.Operator, "|"; got != want {
		t.Fatalf("segment[2].Operator = %q, want %q", got, want)
	}
	if !pipe.FollowsDirChange {
		t.Fatal("segment[2].FollowsDirChange = false, want true")
	}
	if got, want := pipe.CommandName(), "findstr"; got != want {
		t.Fatalf("CommandName() = %q, want %q", got, want)
	}
	if got, want := pipe.Text, `findstr /R "."`; got != want {
		t.Fatalf("segment[2].Text = %q, want %q", got, want)
	}
}

func TestParsePipeWithoutDirChangeIsNotTagged(t *testing.T) {
	cl := mustParse(t, "git status | findstr M", DialectBash)
	if cl.Segments[1].FollowsDirChange {
		t.Fatal("FollowsDirChange = true without a cd")
	}
}

func TestParseSubshellDirChangeDoesNotLeak(t *testing.T) {
	cl := mustParse(t, `(cd C:\Repo && git status) | findstr M`, DialectBash)
	if got, want := cl.StageCount(), 2; got != want {
		t.Fatalf("StageCount() = %d, want %d", got, want)
	}
	if cl.Segments[1].FollowsDirChange {
		t.Fatal("cd inside a subshell tagged the outer pipe")
	}
}

func TestParseBashKeepsRawTextAndOffsets(t *testing.T) {
	input := `cd C:\Repo && git status --short | findstr /R "." >/dev/null 2>&1`
	cl := mustParse(t, input, DialectBash)

	path := cl.Segments[0].Words[1]
	if got, want := path.Raw, `C:\Repo`; got != want {
		t.Fatalf("path.Raw = %q, want %q", got, want)
	}
	if got, want := path.Span, (Span{Start: 3, End: 10}); got != want {
		t.Fatalf("path.Span = %+v, want %+v", got, want)
	}

	findstr := cl.Segments[2]
	if got, want := findstr.Words[0].Span, (Span{Start: 35, End: 42}); got != want {
		t.Fatalf("findstr span = %+v, want %+v", got, want)
	}
	if got, want := findstr.Span, (Span{Start: 35, End: len(input)}); got != want {
		t.Fatalf("stage span = %+v, want %+v", got, want)
	}

	devNull := cl.Segments[3]
	if got, want := devNull.Parent, 2; got != want {
		t.Fatalf("redirection Parent = %d, want %d", got, want)
	}
	if got, want := devNull.Words[0].Span, (Span{Start: 51, End: 60}); got != want {
		t.Fatalf("/dev/null span = %+v, want %+v", got, want)
	}
}

func TestParseBashCompoundStage(t *testing.T) {
	cl := mustParse(t, `(cd C:\Repo && make >/dev/null) || echo failed`, DialectBash)
	if got, want := cl.StageCount(), 2; got != want {
		t.Fatalf("StageCount() = %d, want %d", got, want)
	}
	sub := cl.Segments[0]
	if !sub.Compound {
		t.Fatal("subshell not marked Compound")
	}
	if got, want := sub.Kind, KindJoin; got != want {
		t.Fatalf("subshell Kind = %v, want %v", got, want)
	}
	if got := sub.CommandName(); got != "" {
		t.Fatalf("CommandName() = %q, want empty for a compound stage", got)
	}
	var raws []string
	for _, w := range sub.Words {
		raws = append(raws, w.Raw)
	}
	if got, want := strings.Join(raws, " "), `cd C:\Repo make`; got != want {
		t.Fatalf("nested words = %q, want %q", got, want)
	}
	if got, want := cl.Segments[1].Kind, KindRedirection; got != want {
		t.Fatalf("segment[1].Kind = %v, want nested redirection", got)
	}
	if got, want := cl.Segments[1].Parent, 0; got != want {
		t.Fatalf("nested redirection Parent = %d, want %d", got, want)
	}
}

func TestParseBashStatementForms(t *testing.T) {
	cl := mustParse(t, "make & ls |& wc -l", DialectBash)
	want := []string{"", "&", "|&"}
	for i, op := range want {
		if got := cl.Segments[i].Operator; got != op {
			t.Fatalf("segment[%d].Operator = %q, want %q", i, got, op)
		}
	}
	if got, want := cl.Segments[2].Kind, KindPipeStage; got != want {
		t.Fatalf("|& stage Kind = %v, want %v", got, want)
	}

	cl = mustParse(t, `export OUT=C:\out && build`, DialectBash)
	words := cl.Segments[0].Words
	if got, want := len(words), 2; got != want {
		t.Fatalf("len(Words) = %d, want %d", got, want)
	}
	if got, want := words[1].Raw, `C:\out`; got != want {
		t.Fatalf("assignment value Raw = %q, want %q", got, want)
	}

	cl = mustParse(t, "git commit \\\n  -m fix", DialectBash)
	if got, want := len(cl.Segments[0].Words), 4; got != want {
		t.Fatalf("line continuation: len(Words) = %d, want %d", got, want)
	}

	cl = mustParse(t, `cd /c/Program\ Files`, DialectBash)
	if got, want := cl.Segments[0].Words[1].Value, "/c/Program Files"; got != want {
		t.Fatalf("escaped blank Value = %q, want %q", got, want)
	}
}

func TestParseBashGrammarErrors(t *testing.T) {
	mustParseErr(t, "ls )", DialectBash, "")
	mustParseErr(t, "if true; then ls", DialectBash, "")
	m := mustParseErr(t, "ls && ", DialectBash, "Missing command after '&&'")
	if got, want := m.Offset, 3; got != want {
		t.Fatalf("Offset = %d, want %d", got, want)
	}
}

func TestParseRedirections(t *testing.T) {
	cl := mustParse(t, "command >/dev/null 2>&1", DialectBash)
	if got, want := len(cl.Segments), 3; got != want {
		t.Fatalf("len(Segments) = %d, want %d", got, want)
	}
	if got, want := cl.StageCount(), 1; got != want {
		t.Fatalf("StageCount() = %d, want %d", got, want)
	}

	stage := cl.Segments[0]
	if got, want := stage.Span, (Span{Start: 0, End: 23}); got != want {
		t.Fatalf("stage.Span = %+v, want %+v", got, want)
	}
	if got, want := len(stage.Words), 1; got != want {
		t.Fatalf("len(stage.Words) = %d, want %d", got, want)
	}

	devNull := cl.Segments[1]
	if got, want := devNull.Kind, KindRedirection; got != want {
		t.Fatalf("segment[1].Kind = %v, want %v", got, want)
	}
	if got, want := devNull.Operator, ">"; got != want {
		t.Fatalf("segment[1].Operator = %q, want %q", got, want)
	}
	if got, want := devNull.Words[0].Value, "/dev/null"; got != want {
		t.Fatalf("target = %q, want %q", got, want)
	}
	if got, want := devNull.Words[0].Span, (Span{Start: 9, End: 18}); got != want {
		t.Fatalf("target.Span = %+v, want %+v", got, want)
	}
	if got, want := devNull.Parent, 0; got != want {
		t.Fatalf("segment[1].Parent = %d, want %d", got, want)
	}

	dup := cl.Segments[2]
	if got, want := dup.Operator, "2>&"; got != want {
		t.Fatalf("segment[2].Operator = %q, want %q", got, want)
	}
	if got, want := dup.Words[0].Raw, "1"; got != want {
		t.Fatalf("segment[2] target = %q, want %q", got, want)
	}
	if got, want := dup.Text, "2>&1"; got != want {
		t.Fatalf("segment[2].Text = %q, want %q", got, want)
	}
}

func TestParseRedirectionForms(t *testing.T) {
	tests := []struct {
		input  string
		op     string
		target string
	}{
		{"ls > out.txt", ">", "out.txt"},
		{"ls >> out.txt", ">>", "out.txt"},
		{"ls 2>/dev/null", "2>", "/dev/null"},
		{"ls &>/dev/null", "&>", "/dev/null"},
		{"sort < in.txt", "<", "in.txt"},
		{"ls>out.txt", ">", "out.txt"},
		{`ls > "C:\out dir\x.txt"`, ">", `C:\out dir\x.txt`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cl := mustParse(t, tt.input, DialectBash)
			if got, want := len(cl.Segments), 2; got != want {
				t.Fatalf("len(Segments) = %d, want %d", got, want)
			}
			r := cl.Segments[1]
			if got, want := r.Operator, tt.op; got != want {
				t.Fatalf("Operator = %q, want %q", got, want)
			}
			if got, want := r.Words[0].Value, tt.target; got != want {
				t.Fatalf("target = %q, want %q", got, want)
			}
		})
	}
}

func TestParsePowerShellRedirection(t *testing.T) {
	cl := mustParse(t, "Remove-Item x *>$null", DialectPowerShell)
	r := cl.Segments[1]
	if got, want := r.Operator, "*>"; got != want {
		t.Fatalf("Operator = %q, want %q", got, want)
	}
	if got, want := r.Words[0].Raw, "$null"; got != want {
		t.Fatalf("target = %q, want %q", got, want)
	}
}

func TestParseQuotedOperatorsAreAtomic(t *testing.T) {
	cl := mustParse(t, `echo "a && b | c; d" 'e|f' "x > y"`, DialectBash)
	if got, want := len(cl.Segments), 1; got != want {
		t.Fatalf("len(Segments) = %d, want %d", got, want)
	}
	words := cl.Segments[0].Words
	if got, want := len(words), 4; got != want {
		t.Fatalf("len(Words) = %d, want %d", got, want)
	}
	if got, want := words[1].Value, "a && b | c; d"; got != want {
		t.Fatalf("words[1].Value = %q, want %q", got, want)
	}
	if got, want := words[2].Value, "e|f"; got != want {
		t.Fatalf("words[2].Value = %q, want %q", got, want)
	}
}

func TestParseNestedOperatorsStayInWord(t *testing.T) {
	cl := mustParse(t, `Get-ChildItem | ForEach-Object { $_ | Out-String }`, DialectAuto)
	if got, want := cl.Dialect, DialectPowerShell; got != want {
		t.Fatalf("Dialect = %v, want %v", got, want)
	}
	if got, want := cl.StageCount(), 2; got != want {
		t.Fatalf("StageCount() = %d, want %d", got, want)
	}

	cl = mustParse(t, `echo $(git rev-parse HEAD | cut -c1-7) | findstr a`, DialectBash)
	if got, want := cl.StageCount(), 2; got != want {
		t.Fatalf("StageCount() = %d, want %d", got, want)
	}
}

func TestParseOperators(t *testing.T) {
	cl := mustParse(t, "a | b && c || d ; e\nf", DialectBash)
	want := []string{"", "|", "&&", "||", ";", ";"}
	if got := len(cl.Segments); got != len(want) {
		t.Fatalf("len(Segments) = %d, want %d", got, len(want))
	}
	for i, op := range want {
		if got := cl.Segments[i].Operator; got != op {
			t.Fatalf("segment[%d].Operator = %q, want %q", i, got, op)
		}
	}
}

func TestParseTrailingSeparatorsAllowed(t *testing.T) {
	for _, tc := range []string{"ls;", "ls ;  ", "ls\n", "\nls", "ls\r\n"} {
		cl := mustParse(t, tc, DialectBash)
		if got, want := cl.StageCount(), 1; got != want {
			t.Fatalf("Parse(%q) StageCount() = %d, want %d", tc, got, want)
		}
	}
}

func TestParseRejectsUnbalancedQuotes(t *testing.T) {
	m := mustParseErr(t, `cd "C:\Repo && git status`, DialectBash, "Unterminated double quote")
	if got, want := m.Offset, 3; got != want {
		t.Fatalf("Offset = %d, want %d", got, want)
	}
	mustParseErr(t, `echo 'abc`, DialectBash, "Unterminated single quote")
	mustParseErr(t, `echo "abc`, DialectPowerShell, "Unterminated double quote")
	mustParseErr(t, `cd "C:\Repo && git status`, DialectAuto, "Unterminated")
}

func TestParseRejectsUnterminatedEscape(t *testing.T) {
	mustParseErr(t, `echo abc\`, DialectBash, "Unterminated escape")
	mustParseErr(t, "Write-Host abc`", DialectPowerShell, "Unterminated escape")
}

func TestParseRejectsMissingCommands(t *testing.T) {
	tests := []struct {
		input    string
		contains string
	}{
		{"", "Empty command"},
		{"   \t ", "Empty command"},
		{"&& ls", "Missing command before '&&'"},
		{"ls &&", "Missing command after '&&'"},
		{"ls |", "Missing command after '|'"},
		{"ls || ", "Missing command after '||'"},
		{"ls | | wc", "Missing command after '|'"},
		{"ls ; ; pwd", "Missing command before ';'"},
		{"; ls", "Missing command before ';'"},
		{"ls >", "Missing target"},
		{"ls > && pwd", "Missing target"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mustParseErr(t, tt.input, DialectBash, tt.contains)
		})
	}
}

func TestParseRejectsOversizedInput(t *testing.T) {
	mustParseErr(t, strings.Repeat("a", MaxCommandLength+1), DialectBash, "Command too long")
	mustParseErr(t, strings.Repeat("a;", MaxSegments+1), DialectBash, "Too many segments")
}

func TestParseEscapesPerDialect(t *testing.T) {
	cl := mustParse(t, `echo "say \"hi\""`, DialectBash)
	if got, want := cl.Segments[0].Words[1].Value, `say "hi"`; got != want {
		t.Fatalf("bash Value = %q, want %q", got, want)
	}

	cl = mustParse(t, "Write-Host \"say `\"hi`\"\"", DialectPowerShell)
	if got, want := cl.Segments[0].Words[1].Value, `say "hi"`; got != want {
		t.Fatalf("powershell Value = %q, want %q", got, want)
	}

	cl = mustParse(t, `Write-Host 'it''s' "a""b"`, DialectPowerShell)
	if got, want := cl.Segments[0].Words[1].Value, "it's"; got != want {
		t.Fatalf("doubled single quote Value = %q, want %q", got, want)
	}
	if got, want := cl.Segments[0].Words[2].Quote, QuoteDouble; got != want {
		t.Fatalf("doubled double quote Quote = %v, want %v", got, want)
	}

	cl = mustParse(t, `Set-Location C:\Repo`, DialectPowerShell)
	if got, want := cl.Segments[0].Words[1].Value, `C:\Repo`; got != want {
		t.Fatalf("powershell keeps backslashes: Value = %q, want %q", got, want)
	}
}

func TestParseWordQuoteStyles(t *testing.T) {
	cl := mustParse(t, `x abc "a b" 'c d' a"b" "a"b --opt='x y'`, DialectBash)
	want := []QuoteStyle{QuoteNone, QuoteNone, QuoteDouble, QuoteSingle, QuoteMixed, QuoteMixed, QuoteMixed}
	words := cl.Segments[0].Words
	if got := len(words); got != len(want) {
		t.Fatalf("len(Words) = %d, want %d", got, len(want))
	}
	for i, q := range want {
		if got := words[i].Quote; got != q {
			t.Fatalf("words[%d] (%q).Quote = %v, want %v", i, words[i].Raw, got, q)
		}
	}
}

func TestParseDialectAuto(t *testing.T) {
	tests := []struct {
		input string
		want  Dialect
	}{
		{`cd C:\Repo && git status`, DialectBash},
		{`apt-get install -y jq`, DialectBash},
		{`Set-Location C:\Repo; Get-ChildItem`, DialectPowerShell},
		{`git status | Where-Object { $_ -match "M" }`, DialectPowerShell},
		{`Get-ChildItem "C:\Temp\"`, DialectPowerShell},
		{`powershell -Command "Get-ChildItem"`, DialectBash},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cl := mustParse(t, tt.input, DialectAuto)
			if got := cl.Dialect; got != tt.want {
				t.Fatalf("Dialect = %v, want %v", got, tt.want)
			}
			for i, seg := range cl.Segments {
				if seg.Dialect != tt.want {
					t.Fatalf("segment[%d].Dialect = %v, want %v", i, seg.Dialect, tt.want)
				}
			}
		})
	}
}

func TestParseDirChangeCommands(t *testing.T) {
	for _, tc := range []string{`cd x`, `chdir x`, `pushd x`, `Set-Location x`, `sl x`, `CD x`} {
		cl := mustParse(t, tc+" && ls", DialectBash)
		if got, want := cl.Segments[0].Kind, KindDirChange; got != want {
			t.Fatalf("Parse(%q) Kind = %v, want %v", tc, got, want)
		}
	}
}

func TestCommandNameNormalization(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe -Command x`, "powershell"},
		{`"C:\Program Files\PowerShell\7\pwsh.exe" -c x`, "pwsh"},
		{`/usr/bin/FINDSTR x`, "findstr"},
		{`> out.txt`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cl := mustParse(t, tt.input, DialectBash)
			if got := cl.Segments[0].CommandName(); got != tt.want {
				t.Fatalf("CommandName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input string
		want  Dialect
	}{
		{"", DialectAuto},
		{"auto", DialectAuto},
		{"bash", DialectBash},
		{"Git-Bash", DialectBash},
		{"PowerShell", DialectPowerShell},
		{"pwsh", DialectPowerShell},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.input)
		if err != nil {
			t.Fatalf("ParseDialect(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDialect(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
	if _, err := ParseDialect("cmd"); err == nil {
		t.Fatal("ParseDialect(cmd) expected error, got nil")
	}
}

func TestIsCmdlet(t *testing.T) {
	for _, name := range []string{"Get-ChildItem", "where-object", "Select-String", "ConvertTo-Json"} {
		if !IsCmdlet(name) {
			t.Fatalf("IsCmdlet(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"apt-get", "git-lfs", "docker-compose", "ls", "-Command"} {
		if IsCmdlet(name) {
			t.Fatalf("IsCmdlet(%q) = true, want false", name)
		}
	}
}
