// Package catalog loads and merges the YAML rule catalog.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/jonchun/winlint/parser"
	"gopkg.in/yaml.v3"
)

const defaultPriority = 100

// Matcher kinds. Builtin entries bind to a Go matcher by id; command entries
// fire on any stage whose command name is listed in Commands.
const (
	MatcherBuiltin = "builtin"
	MatcherCommand = "command"
)

//go:embed rules/*.yaml
var rulesFS embed.FS

type CatalogError struct {
	Message string
}

func (e *CatalogError) Error() string {
	return e.Message
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rank orders severities for sorting; errors come first.
func (s Severity) Rank() int {
	if s == SeverityError {
		return 0
	}
	return 1
}

// ParseSeverity validates a severity name.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(s)) {
	case SeverityError:
		return SeverityError, nil
	case SeverityWarning:
		return SeverityWarning, nil
	default:
		return "", fmt.Errorf("unknown severity %q (want error or warning)", s)
	}
}

type Entry struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description"`
	Severity    Severity          `yaml:"severity"`
	Priority    int               `yaml:"priority"`
	Dialect     parser.Dialect    `yaml:"-"`
	Message     string            `yaml:"message"`
	Suggestion  string            `yaml:"suggestion"`
	Matcher     string            `yaml:"matcher"`
	Commands    []string          `yaml:"commands"`
	Suggestions map[string]string `yaml:"suggestions"`
	Disabled    bool              `yaml:"disabled"`
}

// HasCommand reports whether name is in the entry's command list.
func (e *Entry) HasCommand(name string) bool {
	for _, c := range e.Commands {
		if c == name {
			return true
		}
	}
	return false
}

func LoadEmbedded() (map[string]*Entry, error) {
	return loadFromFS(rulesFS, "rules")
}

// LoadDir loads rule entries from dir (recursive). Skips _-prefixed and non-YAML files.
func LoadDir(dir string) (map[string]*Entry, error) {
	entries, err := loadFromFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("walk rule directory %s: %w", dir, err)
	}
	return entries, nil
}

func loadFromFS(fsys fs.FS, root string) (map[string]*Entry, error) {
	entries := make(map[string]*Entry)

	err := fs.WalkDir(fsys, root, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := path.Ext(filePath); ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if strings.HasPrefix(path.Base(filePath), "_") {
			return nil
		}

		b, readErr := fs.ReadFile(fsys, filePath)
		if readErr != nil {
			return fmt.Errorf("read rule %s: %w", filePath, readErr)
		}

		var data map[string]any
		if unmarshalErr := yaml.Unmarshal(b, &data); unmarshalErr != nil {
			return &CatalogError{
				Message: fmt.Sprintf("invalid YAML in %s: %v", filePath, unmarshalErr),
			}
		}

		entry, parseErr := parseEntry(data, filePath)
		if parseErr != nil {
			return parseErr
		}
		if prev, dup := entries[entry.ID]; dup {
			return &CatalogError{Message: fmt.Sprintf("rule %s: duplicate id %q (also defined with message %q)", filePath, entry.ID, prev.Message)}
		}
		entries[entry.ID] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Merge combines base and overlay; overlay wins on conflict. Does not mutate inputs.
func Merge(base, overlay map[string]*Entry) map[string]*Entry {
	merged := make(map[string]*Entry, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// Sorted returns the entries ordered by priority, then id.
func Sorted(entries map[string]*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func parseEntry(data map[string]any, filePath string) (*Entry, error) {
	if data == nil {
		return nil, &CatalogError{Message: fmt.Sprintf("rule %s is not a YAML mapping", filePath)}
	}

	id, ok := stringValue(data, "id")
	if !ok || id == "" {
		return nil, &CatalogError{Message: fmt.Sprintf("rule %s missing required 'id' field", filePath)}
	}

	message, ok := stringValue(data, "message")
	if !ok || message == "" {
		return nil, &CatalogError{Message: fmt.Sprintf("rule %s missing required 'message' field", filePath)}
	}

	severity := SeverityWarning
	if raw, ok := stringValue(data, "severity"); ok {
		parsed, err := ParseSeverity(raw)
		if err != nil {
			return nil, &CatalogError{Message: fmt.Sprintf("rule %s: %v", filePath, err)}
		}
		severity = parsed
	}

	priority := defaultPriority
	if rawPriority, ok := data["priority"]; ok {
		parsed, ok := intValueFromAny(rawPriority)
		if !ok {
			return nil, &CatalogError{Message: fmt.Sprintf("rule %s: 'priority' must be an int", filePath)}
		}
		priority = parsed
	}

	dialect := parser.DialectAuto
	if raw, ok := stringValue(data, "dialect"); ok && raw != "any" {
		parsed, err := parser.ParseDialect(raw)
		if err != nil {
			return nil, &CatalogError{Message: fmt.Sprintf("rule %s: %v", filePath, err)}
		}
		dialect = parsed
	}

	matcher := defaultString(data, "matcher")
	switch matcher {
	case "":
		matcher = MatcherBuiltin
	case MatcherBuiltin, MatcherCommand:
	default:
		return nil, &CatalogError{Message: fmt.Sprintf("rule %s: unknown matcher %q", filePath, matcher)}
	}

	commands, err := stringSliceValue(data, "commands", filePath)
	if err != nil {
		return nil, err
	}
	for i, c := range commands {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			return nil, &CatalogError{Message: fmt.Sprintf("rule %s: 'commands' entry %d is empty", filePath, i)}
		}
		commands[i] = c
	}
	if matcher == MatcherCommand && len(commands) == 0 {
		return nil, &CatalogError{Message: fmt.Sprintf("rule %s: command matcher requires a non-empty 'commands' list", filePath)}
	}

	suggestions, err := stringMapValue(data, "suggestions", filePath)
	if err != nil {
		return nil, err
	}

	return &Entry{
		ID:          id,
		Description: defaultString(data, "description"),
		Severity:    severity,
		Priority:    priority,
		Dialect:     dialect,
		Message:     message,
		Suggestion:  defaultString(data, "suggestion"),
		Matcher:     matcher,
		Commands:    commands,
		Suggestions: suggestions,
		Disabled:    defaultBool(data, "disabled"),
	}, nil
}

func defaultString(values map[string]any, key string) string {
	v, ok := stringValue(values, key)
	if !ok {
		return ""
	}
	return v
}

func defaultBool(values map[string]any, key string) bool {
	raw, ok := values[key]
	if !ok {
		return false
	}
	b, ok := raw.(bool)
	return ok && b
}

func stringValue(values map[string]any, key string) (string, bool) {
	raw, ok := values[key]
	if !ok || raw == nil {
		return "", false
	}
	v, ok := raw.(string)
	return v, ok
}

func intValueFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		converted := int(n)
		if float64(converted) != n {
			return 0, false
		}
		return converted, true
	default:
		return 0, false
	}
}

func stringSliceValue(values map[string]any, key string, filePath string) ([]string, error) {
	raw, ok := values[key]
	if !ok || raw == nil {
		return nil, nil
	}

	typed, ok := raw.([]any)
	if !ok {
		return nil, &CatalogError{Message: fmt.Sprintf("rule %s: '%s' must be a string list", filePath, key)}
	}
	result := make([]string, 0, len(typed))
	for _, item := range typed {
		s, ok := item.(string)
		if !ok {
			return nil, &CatalogError{Message: fmt.Sprintf("rule %s: '%s' must be a string list", filePath, key)}
		}
		result = append(result, s)
	}
	return result, nil
}

func stringMapValue(values map[string]any, key string, filePath string) (map[string]string, error) {
	raw, ok := values[key]
	if !ok || raw == nil {
		return nil, nil
	}

	typed, ok := raw.(map[string]any)
	if !ok {
		return nil, &CatalogError{Message: fmt.Sprintf("rule %s: '%s' must be a mapping of strings", filePath, key)}
	}
	result := make(map[string]string, len(typed))
	for k, item := range typed {
		s, ok := item.(string)
		if !ok {
			return nil, &CatalogError{Message: fmt.Sprintf("rule %s: '%s.%s' must be a string", filePath, key, k)}
		}
		result[strings.ToLower(k)] = s
	}
	return result, nil
}
