package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect is the shell grammar a command line is interpreted under.
type Dialect int

const (
	// DialectAuto resolves to bash unless a stage invokes a PowerShell cmdlet.
	DialectAuto Dialect = iota
	DialectBash
	DialectPowerShell
)

func (d Dialect) String() string {
	switch d {
	case DialectBash:
		return "bash"
	case DialectPowerShell:
		return "powershell"
	default:
		return "auto"
	}
}

// MarshalText renders the dialect name for JSON and YAML output.
func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDialect accepts the names used on the command line and in config files.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DialectAuto, nil
	case "bash", "sh", "gitbash", "git-bash":
		return DialectBash, nil
	case "powershell", "pwsh", "ps":
		return DialectPowerShell, nil
	default:
		return DialectAuto, fmt.Errorf("unknown dialect %q (want auto, bash or powershell)", s)
	}
}

// Matches reports whether a rule restricted to d applies to a segment
// resolved to other. DialectAuto matches everything.
func (d Dialect) Matches(other Dialect) bool {
	return d == DialectAuto || d == other
}

var cmdletVerbs = map[string]bool{
	"add": true, "clear": true, "compress": true, "convertfrom": true, "convertto": true,
	"copy": true, "disable": true, "enable": true, "expand": true, "export": true,
	"foreach": true, "format": true, "get": true, "group": true, "import": true,
	"invoke": true, "join": true, "measure": true, "move": true, "new": true,
	"out": true, "pop": true, "push": true, "read": true, "remove": true,
	"rename": true, "resolve": true, "select": true, "set": true, "sort": true,
	"split": true, "start": true, "stop": true, "tee": true, "test": true,
	"update": true, "wait": true, "where": true, "write": true,
}

var cmdletShape = regexp.MustCompile(`^([A-Za-z]+)-[A-Za-z][A-Za-z0-9]*$`)

// IsCmdlet reports whether name has the Verb-Noun shape of a PowerShell
// cmdlet with a known verb. "apt-get" and "git-lfs" do not qualify.
func IsCmdlet(name string) bool {
	m := cmdletShape.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	return cmdletVerbs[strings.ToLower(m[1])]
}

var dirChangeCommands = map[string]bool{
	"cd":            true,
	"chdir":         true,
	"pushd":         true,
	"set-location":  true,
	"sl":            true,
	"push-location": true,
}

// IsDirChange reports whether a normalized command name changes directory.
func IsDirChange(name string) bool {
	return dirChangeCommands[name]
}
