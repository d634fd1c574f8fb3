// Command winlint checks a shell command line for Windows pitfalls.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jonchun/winlint"
	"github.com/jonchun/winlint/config"
	"github.com/jonchun/winlint/linter"
	"github.com/jonchun/winlint/output"
	"github.com/jonchun/winlint/parser"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

// Exit codes.
const (
	exitOK        = 0
	exitFindings  = 1
	exitMalformed = 2
)

// exitError carries a process exit code through cobra without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "winlint: %v\n", err)
		return exitMalformed
	}
	return exitOK
}

type rootOptions struct {
	dialect    string
	format     string
	configPath string
	color      string
	batch      bool
	verbose    bool
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var opts rootOptions

	root := &cobra.Command{
		Use:   "winlint [flags] [--] [command...]",
		Short: "Lint shell commands for Windows pitfalls",
		Long: "winlint analyses a shell command line (it never runs it), prints diagnostics to stderr\n" +
			"and the corrected command to stdout. Without arguments the command is read from stdin.\n\n" +
			"Exit status: 0 no errors, 1 error diagnostics, 2 malformed input.",
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLint(cmd, opts, args, stdin, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(stdin)

	flags := root.Flags()
	flags.SetInterspersed(false)
	flags.StringVar(&opts.dialect, "dialect", "auto", "shell dialect (auto|bash|powershell)")
	flags.StringVar(&opts.format, "format", "text", "output format (text|json)")
	flags.BoolVar(&opts.batch, "batch", false, "read one command per stdin line and lint them concurrently")

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&opts.color, "color", "auto", "colorize diagnostics (auto|on|off)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug events to stderr")

	root.AddCommand(newRulesCmd(&opts, stdout, stderr))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(stdout, "winlint %s\n", version)
			return err
		},
	})
	return root
}

func newRulesCmd(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the enabled rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, _, err := buildCore(*opts, stderr)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSEVERITY\tDIALECT\tDESCRIPTION")
			for _, e := range core.Engine.Rules() {
				dialect := "any"
				if e.Dialect != parser.DialectAuto {
					dialect = e.Dialect.String()
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Severity, dialect, e.Description)
			}
			return tw.Flush()
		},
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func buildCore(opts rootOptions, stderr io.Writer) (*linter.Core, config.Config, error) {
	var (
		settings config.Config
		err      error
	)
	if opts.configPath != "" {
		settings, err = config.LoadFrom(opts.configPath)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("load config: %w", err)
	}

	core, err := winlint.New(winlint.Config{
		Settings: &settings,
		Logger:   newLogger(stderr, opts.verbose),
	})
	if err != nil {
		return nil, config.Config{}, err
	}
	return core, settings, nil
}

func runLint(cmd *cobra.Command, opts rootOptions, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	dialect, err := parser.ParseDialect(opts.dialect)
	if err != nil {
		return err
	}

	core, settings, err := buildCore(opts, stderr)
	if err != nil {
		return err
	}

	colorMode := opts.color
	if !cmd.Flags().Changed("color") && settings.Color != nil {
		colorMode = *settings.Color
	}
	switch colorMode {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("--color must be auto, on or off, got %q", colorMode)
	}
	tw := output.NewTextWriter(stdout, stderr, useColor(colorMode, stderr))

	if opts.batch {
		commands, err := readLines(stdin)
		if err != nil {
			return err
		}
		items, err := core.LintAll(cmd.Context(), commands, dialect)
		if err != nil {
			return err
		}
		return report(format, tw, stdout, items)
	}

	command, err := readCommand(args, stdin)
	if err != nil {
		return err
	}
	res, lintErr := core.Lint(command, dialect)
	return report(format, tw, stdout, []linter.BatchItem{{Result: res, Err: lintErr}})
}

func report(format output.Format, tw *output.TextWriter, stdout io.Writer, items []linter.BatchItem) error {
	code := exitOK
	totalErrs, totalWarns := 0, 0
	reports := make([]output.Report, 0, len(items))

	for _, item := range items {
		var malformed *parser.MalformedInputError
		switch {
		case errors.As(item.Err, &malformed):
			code = exitMalformed
		case item.Result.HasErrors() && code == exitOK:
			code = exitFindings
		}
		errs, warns := item.Result.Counts()
		totalErrs += errs
		totalWarns += warns

		if format == output.FormatJSON {
			reports = append(reports, output.NewReport(item.Result, item.Err))
			continue
		}
		if err := tw.Write(item.Result, item.Err); err != nil {
			return err
		}
	}

	switch {
	case format == output.FormatJSON:
		if err := output.WriteJSON(stdout, reports...); err != nil {
			return err
		}
	case len(items) > 1:
		if err := tw.Summary(len(items), totalErrs, totalWarns); err != nil {
			return err
		}
	}

	if code != exitOK {
		return &exitError{code: code}
	}
	return nil
}

func readCommand(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("no command given: pass it as arguments or pipe it on stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// readLines returns the non-blank stdin lines that do not start with '#'.
func readLines(stdin io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 0, 64*1024), parser.MaxCommandLength+1)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}

func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "on":
		return true
	case "off":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
