package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/llm"
)

// Reply is one scripted model response
type Reply struct {
	Text string
	Err  error
}

// ScriptedCompleter implements llm.Completer by replaying scripted replies.
// SQL prompts consume the script in order; a question with its own reply
// always gets that reply, which keeps concurrent runs deterministic.
type ScriptedCompleter struct {
	mu sync.Mutex

	script     []Reply
	byQuestion map[string]Reply
	narration  Reply
	delay      time.Duration

	prompts []llm.Prompt
	calls   map[llm.Task]int
}

// ScriptOption is a functional option for configuring ScriptedCompleter
type ScriptOption func(*ScriptedCompleter)

// WithReplies appends SQL replies to the script
func WithReplies(texts ...string) ScriptOption {
	return func(s *ScriptedCompleter) {
		for _, text := range texts {
			s.script = append(s.script, Reply{Text: text})
		}
	}
}

// WithFailure appends a failing SQL reply to the script
func WithFailure(err error) ScriptOption {
	return func(s *ScriptedCompleter) {
		s.script = append(s.script, Reply{Err: err})
	}
}

// WithQuestionReply answers question with text every time it is asked
func WithQuestionReply(question, text string) ScriptOption {
	return func(s *ScriptedCompleter) {
		s.byQuestion[question] = Reply{Text: text}
	}
}

// WithNarration sets the reply to narration prompts
func WithNarration(text string) ScriptOption {
	return func(s *ScriptedCompleter) {
		s.narration = Reply{Text: text}
	}
}

// WithNarrationError makes narration prompts fail
func WithNarrationError(err error) ScriptOption {
	return func(s *ScriptedCompleter) {
		s.narration = Reply{Err: err}
	}
}

// WithDelay makes every call wait d, or until the context ends
func WithDelay(d time.Duration) ScriptOption {
	return func(s *ScriptedCompleter) {
		s.delay = d
	}
}

// NewScriptedCompleter creates a completer with the given options
func NewScriptedCompleter(opts ...ScriptOption) *ScriptedCompleter {
	s := &ScriptedCompleter{
		byQuestion: make(map[string]Reply),
		calls:      make(map[llm.Task]int),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Complete returns the next scripted reply for the prompt's task
func (s *ScriptedCompleter) Complete(ctx context.Context, prompt llm.Prompt) (string, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.delay):
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	s.calls[prompt.Task]++

	if prompt.Task == llm.TaskNarrate {
		return s.narration.Text, s.narration.Err
	}

	if reply, ok := s.byQuestion[prompt.Question]; ok {
		return reply.Text, reply.Err
	}

	if len(s.script) == 0 {
		return "", errors.New(errors.ErrTypeLLM, "script exhausted")
	}

	reply := s.script[0]
	s.script = s.script[1:]

	return reply.Text, reply.Err
}

// Calls returns how many prompts of task were received
func (s *ScriptedCompleter) Calls(task llm.Task) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[task]
}

// Prompts returns a copy of every prompt received, in order
func (s *ScriptedCompleter) Prompts() []llm.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]llm.Prompt, len(s.prompts))
	copy(out, s.prompts)

	return out
}

// SQLPrompts returns the SQL prompts received, in order
func (s *ScriptedCompleter) SQLPrompts() []llm.Prompt {
	var out []llm.Prompt

	for _, p := range s.Prompts() {
		if p.Task == llm.TaskSQL {
			out = append(out, p)
		}
	}

	return out
}

// MockCompleter is a testify mock of llm.Completer for expectation-style tests
type MockCompleter struct {
	mock.Mock
}

// Complete records the call and returns the configured reply
func (m *MockCompleter) Complete(ctx context.Context, prompt llm.Prompt) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// RecordingGate answers every write confirmation the same way and
// remembers the statements it was asked about
type RecordingGate struct {
	mu    sync.Mutex
	allow bool
	err   error
	Seen  []string
}

// NewRecordingGate creates a gate that always answers allow
func NewRecordingGate(allow bool) *RecordingGate {
	return &RecordingGate{allow: allow}
}

// FailWith makes the gate return err
func (g *RecordingGate) FailWith(err error) *RecordingGate {
	g.err = err
	return g
}

// Ask records sql and returns the configured answer
func (g *RecordingGate) Ask(_ context.Context, sql string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Seen = append(g.Seen, sql)

	return g.allow, g.err
}

// Asked returns how many confirmations were requested
func (g *RecordingGate) Asked() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.Seen)
}
