// Package linter wires the tokenizer, rule engine and rewriter into a single
// lint pass.
package linter

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/jonchun/winlint/catalog"
	"github.com/jonchun/winlint/parser"
	"github.com/jonchun/winlint/rewrite"
	"github.com/jonchun/winlint/rules"
	"golang.org/x/sync/errgroup"
)

type Result struct {
	Command     string             `json:"command"`
	Dialect     parser.Dialect     `json:"dialect"`
	Segments    []parser.Segment   `json:"segments,omitempty"`
	Diagnostics []rules.Diagnostic `json:"diagnostics"`
	// Rewritten is nil when no fix was applied.
	Rewritten *string `json:"rewritten"`
}

// Counts returns the number of error and warning diagnostics.
func (r Result) Counts() (errs, warns int) {
	for _, d := range r.Diagnostics {
		if d.Severity == catalog.SeverityError {
			errs++
		} else {
			warns++
		}
	}
	return errs, warns
}

func (r Result) HasErrors() bool {
	errs, _ := r.Counts()
	return errs > 0
}

// Core runs lint passes. The stage functions are fields so tests can
// substitute them.
type Core struct {
	Engine *rules.Engine

	Parse   func(string, parser.Dialect) (*parser.CommandLine, error)
	Rewrite func(string, []rules.Diagnostic) (string, int, error)

	DefaultDialect parser.Dialect
	BatchJobs      int

	logger *slog.Logger
}

type CoreOption func(*Core)

// WithDefaultDialect sets the dialect used when a caller passes DialectAuto.
func WithDefaultDialect(d parser.Dialect) CoreOption {
	return func(c *Core) { c.DefaultDialect = d }
}

func WithBatchJobs(n int) CoreOption {
	return func(c *Core) { c.BatchJobs = n }
}

func NewCore(engine *rules.Engine, logger *slog.Logger, opts ...CoreOption) *Core {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Core{
		Engine:         engine,
		Parse:          parser.Parse,
		Rewrite:        rewrite.Apply,
		DefaultDialect: parser.DialectAuto,
		BatchJobs:      runtime.GOMAXPROCS(0),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lint tokenizes command, evaluates every rule and applies the resulting
// fixes. A *parser.MalformedInputError aborts with an empty result. A
// *rewrite.ConflictingFixError is returned together with the diagnostics and
// a nil Rewritten.
func (c *Core) Lint(command string, dialect parser.Dialect) (Result, error) {
	if dialect == parser.DialectAuto {
		dialect = c.DefaultDialect
	}
	start := time.Now()

	cl, err := c.Parse(command, dialect)
	if err != nil {
		c.logger.Debug("lint",
			"dialect", dialect.String(),
			"outcome", "malformed",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return Result{Command: command, Dialect: dialect}, err
	}

	diags := c.Engine.Evaluate(cl)
	res := Result{
		Command:     command,
		Dialect:     cl.Dialect,
		Segments:    cl.Segments,
		Diagnostics: diags,
	}

	rewritten, applied, err := c.Rewrite(command, diags)
	if err != nil {
		c.logger.Debug("lint",
			"dialect", cl.Dialect.String(),
			"segments", len(cl.Segments),
			"diagnostics", len(diags),
			"outcome", "conflict",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return res, err
	}
	if applied > 0 {
		res.Rewritten = &rewritten
	}

	c.logger.Debug("lint",
		"dialect", cl.Dialect.String(),
		"segments", len(cl.Segments),
		"diagnostics", len(diags),
		"fixes", applied,
		"outcome", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// BatchItem is the outcome of one command in LintAll.
type BatchItem struct {
	Result Result
	Err    error
}

// LintAll lints commands concurrently and returns results in input order.
// Per-command errors are kept on the item; the returned error is only set
// when ctx is cancelled before every command was linted.
func (c *Core) LintAll(ctx context.Context, commands []string, dialect parser.Dialect) ([]BatchItem, error) {
	items := make([]BatchItem, len(commands))
	if len(commands) == 0 {
		return items, nil
	}

	jobs := c.BatchJobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(commands)))

	for i, command := range commands {
		if gctx.Err() != nil {
			break
		}
		i, command := i, command
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := c.Lint(command, dialect)
			items[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	outcome := "success"
	if err != nil {
		outcome = "canceled"
	}
	c.logger.InfoContext(ctx, "lint_batch",
		"commands", len(commands),
		"jobs", jobs,
		"outcome", outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return items, err
}
