package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/formatter"
	"github.com/kyleking/askdb/internal/pipeline"
)

// askOptions controls how one answer is rendered
type askOptions struct {
	format  formatter.OutputFormat
	showSQL bool
	maxRows int
	verbose bool
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "table", Usage: "output format: table, json, csv, markdown or details"},
		&cli.BoolFlag{Name: "no-sql", Usage: "do not print the executed statement"},
		&cli.IntFlag{Name: "max-rows", Value: formatter.DefaultMaxRows, Usage: "rows to print, 0 for all"},
	}
}

func parseAskOptions(cmd *cli.Command, verbose bool) (askOptions, error) {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return askOptions{}, err
	}

	return askOptions{
		format:  format,
		showSQL: !cmd.Bool("no-sql"),
		maxRows: int(cmd.Int("max-rows")),
		verbose: verbose,
	}, nil
}

func (o askOptions) formatter() *formatter.Formatter {
	return formatter.NewFormatter(formatter.WithMaxRows(o.maxRows), formatter.WithSQL(o.showSQL))
}

func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer one question",
		ArgsUsage: " <question>",
		Description: `Translate the question into a single SQL statement, run it and print the answer.

Examples:
  askdb ask "How many customers do we have?"
  askdb ask --format json "What is the total sales amount?"
  askdb ask --allow-writes "Set the stock of the iPhone to 25"`,
		Flags: outputFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if question == "" {
				return errors.New(errors.ErrTypeValidation, "a question is required").
					WithSuggestion(`askdb ask "How many customers do we have?"`)
			}

			env, err := openEnvironment(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			opts, err := parseAskOptions(cmd, env.cfg.Debug.Verbose)
			if err != nil {
				return err
			}

			return runAsk(ctx, output(cmd), env, question, opts)
		},
	}
}

func runAsk(ctx context.Context, w io.Writer, env *environment, question string, opts askOptions) error {
	p, err := pipeline.New(env.store, env.completer, env.pipelineOptions(nil))
	if err != nil {
		return err
	}

	stop := startSpinner(env.interactive, "Thinking")
	outcome, err := p.Ask(ctx, question)
	stop()

	if err != nil {
		if opts.verbose {
			printAttemptsFromError(w, err)
		}

		return err
	}

	return renderOutcome(w, outcome, opts)
}

func renderOutcome(w io.Writer, outcome *pipeline.Outcome, opts askOptions) error {
	f := opts.formatter()

	if err := f.FormatOutcome(w, outcome, opts.format); err != nil {
		return errors.Wrap(err, errors.ErrTypeInternal, "failed to render the answer")
	}

	if opts.verbose && isHumanFormat(opts.format) {
		printAttempts(w, outcome.Attempts)
		_, _ = fmt.Fprintln(w, dimColor.Sprint(f.Summary(outcome)))
	}

	return nil
}

func isHumanFormat(format formatter.OutputFormat) bool {
	return format != formatter.FormatJSON && format != formatter.FormatCSV
}

func printAttemptsFromError(w io.Writer, err error) {
	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		printAttempts(w, runErr.Attempts)
	}
}

// printAttempts lists failed attempts; a single clean attempt prints nothing
func printAttempts(w io.Writer, attempts []pipeline.Attempt) {
	if len(attempts) == 1 && !attempts[0].Failed() {
		return
	}

	_, _ = fmt.Fprintln(w)

	for _, a := range attempts {
		status := successColor.Sprint("ok")
		if a.Failed() {
			status = errorColor.Sprint("failed")
		}

		_, _ = fmt.Fprintf(w, "Attempt %d [%s] %s\n", a.Number, status, a.Output)

		if a.Err != nil {
			_, _ = fmt.Fprintf(w, "  %s\n", dimColor.Sprint(errorMessage(a.Err)))
		}
	}
}

// startSpinner shows progress on stderr while a question is answered and
// returns the function that stops it
func startSpinner(enabled bool, label string) func() {
	if !enabled {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + label + "..."
	s.Start()

	return s.Stop
}
