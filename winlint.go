// Package winlint lints shell command lines for constructs that break on
// Windows (Git Bash and PowerShell) and proposes corrected commands.
package winlint

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonchun/winlint/catalog"
	"github.com/jonchun/winlint/config"
	"github.com/jonchun/winlint/linter"
	"github.com/jonchun/winlint/parser"
	"github.com/jonchun/winlint/rules"
)

type Config struct {
	// Catalog is the rule registry. If nil, the built-in catalog is loaded.
	Catalog map[string]*catalog.Entry

	// Settings replaces the user config file and environment. If nil,
	// config.Load is used.
	Settings *config.Config

	// Logger is the structured logger passed to Core. If nil, a discard logger is used.
	Logger *slog.Logger
}

// New builds a Core, loading the catalog and user settings from cfg.
func New(cfg Config) (*linter.Core, error) {
	var userCfg config.Config
	if cfg.Settings != nil {
		userCfg = *cfg.Settings
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load user config: %w", err)
		}
		userCfg = loaded
	}

	registry := cfg.Catalog
	if registry == nil {
		var err error
		registry, err = catalog.LoadEmbedded()
		if err != nil {
			return nil, fmt.Errorf("load embedded catalog: %w", err)
		}
	}

	if userCfg.RuleDir != nil {
		userRules, err := catalog.LoadDir(*userCfg.RuleDir)
		if err != nil {
			return nil, fmt.Errorf("load user rules from %s: %w", *userCfg.RuleDir, err)
		}
		registry = catalog.Merge(registry, userRules)
	}

	engine, err := rules.NewEngine(registry,
		rules.WithDisabled(userCfg.Disable...),
		rules.WithSeverity(userCfg.SeverityOverrides()),
	)
	if err != nil {
		return nil, fmt.Errorf("build rule engine: %w", err)
	}

	coreOpts := []linter.CoreOption{linter.WithDefaultDialect(userCfg.DialectValue())}
	if userCfg.BatchJobs != nil {
		coreOpts = append(coreOpts, linter.WithBatchJobs(*userCfg.BatchJobs))
	}

	return linter.NewCore(engine, cfg.Logger, coreOpts...), nil
}

var defaultCore = sync.OnceValues(func() (*linter.Core, error) {
	return New(Config{Settings: &config.Config{}})
})

// Lint lints command with the built-in catalog, ignoring user configuration.
func Lint(command string, dialect parser.Dialect) (linter.Result, error) {
	core, err := defaultCore()
	if err != nil {
		return linter.Result{Command: command}, err
	}
	return core.Lint(command, dialect)
}
