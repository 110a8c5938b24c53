package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/pipeline"
)

const chatPrompt = "askdb> "

// exampleQuestions are suggested by .examples and work on the demo data
var exampleQuestions = []string{
	"How many customers do we have?",
	"What are the most expensive products?",
	"Show all orders with customer names",
	"What is the total sales amount?",
	"Which customers are from Cairo?",
	"Show me products in Electronics category",
}

// historyEntry is one question asked in a chat session
type historyEntry struct {
	Question string
	SQL      string
	Answer   string
	OK       bool
	At       time.Time
}

// chatSession answers questions one at a time and keeps the session history
type chatSession struct {
	env      *environment
	pipeline *pipeline.Pipeline
	opts     askOptions
	out      io.Writer
	history  []historyEntry

	// confirm asks whether a data-changing statement may run
	confirm func(statement string) (bool, error)

	// spin starts a progress indicator and returns the function that stops it
	spin     func(label string) func()
	stopSpin func()
}

func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Ask questions interactively",
		Description: `Start an interactive session. Type a question, or one of:
  .help  .examples  .schema  .history  .clear  .quit`,
		Flags: outputFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := openEnvironment(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			opts, err := parseAskOptions(cmd, env.cfg.Debug.Verbose)
			if err != nil {
				return err
			}

			return runChat(ctx, output(cmd), env, opts)
		},
	}
}

func newChatSession(env *environment, out io.Writer, opts askOptions, confirm func(string) (bool, error)) (*chatSession, error) {
	s := &chatSession{env: env, opts: opts, out: out, confirm: confirm}
	s.spin = func(label string) func() { return startSpinner(env.interactive, label) }

	gate := pipeline.GateFunc(func(_ context.Context, candidate pipeline.CandidateStatement) (bool, error) {
		// The spinner redraws the terminal line and would overwrite the prompt.
		s.stopSpinner()

		return s.confirm(candidate.SQL)
	})

	p, err := pipeline.New(env.store, env.completer, env.pipelineOptions(gate))
	if err != nil {
		return nil, err
	}

	s.pipeline = p

	return s, nil
}

func runChat(ctx context.Context, out io.Writer, env *environment, opts askOptions) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          chatPrompt,
		HistoryFile:     filepath.Join(config.GetConfigDir(), "chat_history"),
		AutoComplete:    chatCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeInternal, "failed to start the interactive session")
	}
	defer rl.Close()

	session, err := newChatSession(env, out, opts, readlineConfirm(rl, out))
	if err != nil {
		return err
	}

	session.welcome()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return errors.Wrap(err, errors.ErrTypeInternal, "failed to read input")
		}

		if session.handle(ctx, line) {
			break
		}

		if ctx.Err() != nil {
			break
		}
	}

	_, _ = fmt.Fprintln(out, "Goodbye!")

	return nil
}

// readlineConfirm prompts on the terminal before a statement changes data
func readlineConfirm(rl *readline.Instance, out io.Writer) func(string) (bool, error) {
	return func(statement string) (bool, error) {
		_, _ = fmt.Fprintf(out, "%s %s\n", hintColor.Sprint("This statement changes data:"), statement)

		rl.SetPrompt("Run it? [y/N] ")
		defer rl.SetPrompt(chatPrompt)

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return false, nil
			}

			return false, err
		}

		return isYes(line), nil
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func chatCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".examples"),
		readline.PcItem(".schema"),
		readline.PcItem(".history"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}

func (s *chatSession) welcome() {
	_, _ = fmt.Fprintln(s.out, headerColor.Sprintf("askdb chat (%s)", s.env.cfg.Database.Path))
	_, _ = fmt.Fprintln(s.out, "Ask a question about your data. Type .help for commands, .quit to exit.")

	if !s.env.cfg.Pipeline.AllowWrites {
		_, _ = fmt.Fprintln(s.out, dimColor.Sprint("Statements that change data will ask for confirmation."))
	}

	_, _ = fmt.Fprintln(s.out)
}

// handle processes one line of input and reports whether the session ends
func (s *chatSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, ".") {
		s.ask(ctx, line)
		return false
	}

	switch strings.ToLower(strings.Fields(line)[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		printChatHelp(s.out)
	case ".examples":
		s.printExamples()
	case ".schema":
		s.printSchema(ctx)
	case ".history":
		s.printHistory()
	case ".clear":
		s.history = nil
		_, _ = fmt.Fprintln(s.out, "History cleared.")
	default:
		_, _ = fmt.Fprintf(s.out, "Unknown command: %s (type .help for commands)\n", line)
	}

	return false
}

func (s *chatSession) stopSpinner() {
	if s.stopSpin != nil {
		s.stopSpin()
		s.stopSpin = nil
	}
}

func (s *chatSession) ask(ctx context.Context, question string) {
	entry := historyEntry{Question: question, At: time.Now()}

	s.stopSpin = s.spin("Thinking")
	outcome, err := s.pipeline.Ask(ctx, question)
	s.stopSpinner()

	if err != nil {
		if s.opts.verbose {
			printAttemptsFromError(s.out, err)
		}

		printError(s.out, err)

		entry.Answer = errorMessage(err)
		s.history = append(s.history, entry)

		_, _ = fmt.Fprintln(s.out)

		return
	}

	entry.SQL = outcome.Statement.SQL
	entry.Answer = outcome.Explanation
	entry.OK = true
	s.history = append(s.history, entry)

	if err := renderOutcome(s.out, outcome, s.opts); err != nil {
		printError(s.out, err)
	}

	_, _ = fmt.Fprintln(s.out)
}

func (s *chatSession) printExamples() {
	_, _ = fmt.Fprintln(s.out, "Try asking:")

	for _, q := range exampleQuestions {
		_, _ = fmt.Fprintf(s.out, "  - %s\n", q)
	}
}

func (s *chatSession) printSchema(ctx context.Context) {
	desc, err := s.env.store.Describe(ctx)
	if err != nil {
		printError(s.out, err)
		return
	}

	_, _ = fmt.Fprintln(s.out, desc.Format())
}

func (s *chatSession) printHistory() {
	if len(s.history) == 0 {
		_, _ = fmt.Fprintln(s.out, "No questions yet.")
		return
	}

	for i, h := range s.history {
		mark := successColor.Sprint("✓")
		if !h.OK {
			mark = errorColor.Sprint("✗")
		}

		_, _ = fmt.Fprintf(s.out, "%d. %s %s  %s\n", i+1, mark, h.Question, dimColor.Sprint(h.At.Format("15:04:05")))

		if h.SQL != "" {
			_, _ = fmt.Fprintf(s.out, "   SQL: %s\n", h.SQL)
		}

		_, _ = fmt.Fprintf(s.out, "   %s\n", h.Answer)
	}
}

func printChatHelp(w io.Writer) {
	help := `Commands:
  .help       Show this help message
  .examples   Show example questions
  .schema     Show the database schema
  .history    Show the questions asked in this session
  .clear      Forget the session history
  .quit       Exit (also .exit or Ctrl-D)

Anything else is answered as a question.`
	_, _ = fmt.Fprintln(w, help)
}
