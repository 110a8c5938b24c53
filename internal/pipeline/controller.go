package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/llm"
	"github.com/kyleking/askdb/internal/logging"
)

// DefaultMaxAttempts is the retry budget when none is configured
const DefaultMaxAttempts = 3

// Options tunes a Pipeline
type Options struct {
	MaxAttempts int
	Narrate     bool

	// Gate is consulted before any non-SELECT statement runs. Nil allows
	// everything.
	Gate Gate

	// Logger defaults to the global logger at the time of each Ask
	Logger *logging.Logger
}

// OptionsFromConfig maps pipeline settings onto Options. Writes are
// refused unless the settings allow them.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	opts := Options{
		MaxAttempts: cfg.MaxAttempts,
		Narrate:     cfg.Narrate,
		Gate:        DenyWrites(),
	}

	if cfg.AllowWrites {
		opts.Gate = AllowAll()
	}

	return opts
}

// Pipeline sequences analysis, validation, execution and synthesis. It is
// safe for concurrent use; each Ask keeps its state on its own stack.
type Pipeline struct {
	schema      Store
	analyzer    *Analyzer
	validator   *Validator
	executor    *Executor
	synthesizer *Synthesizer
	gate        Gate
	maxAttempts int
	logger      *logging.Logger
}

// New creates a pipeline over store and completer
func New(store Store, completer llm.Completer, opts Options) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New(errors.ErrTypeConfig, "pipeline needs a store")
	}

	if completer == nil {
		return nil, errors.New(errors.ErrTypeConfig, "pipeline needs a language model completer")
	}

	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	if opts.MaxAttempts < config.MinAttempts || opts.MaxAttempts > config.MaxAttempts {
		return nil, errors.NewConfigError("max attempts must be between 1 and 5", "pipeline.max_attempts")
	}

	return &Pipeline{
		schema:      store,
		analyzer:    NewAnalyzer(completer),
		validator:   NewValidator(store),
		executor:    NewExecutor(store),
		synthesizer: NewSynthesizer(completer, opts.Narrate),
		gate:        opts.Gate,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
	}, nil
}

// MaxAttempts returns the retry budget
func (p *Pipeline) MaxAttempts() int {
	return p.maxAttempts
}

// Ask answers one question. Failures are returned as *RunError wrapping a
// typed error; validation and execution failures are retried with feedback
// until the attempt budget runs out.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Outcome, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New(errors.ErrTypeValidation, "question is empty").
			WithSuggestion("Ask something about the data, e.g. how many customers do we have?")
	}

	run := &Run{
		ID:       uuid.NewString(),
		Question: question,
		State:    StateStart,
		Started:  time.Now(),
	}

	logger := p.logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	logger = logger.WithField("run_id", run.ID)
	ctx = logging.NewContext(ctx, logger)

	desc, err := p.schema.Describe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Wrap(ctx.Err(), errors.ErrTypeCancelled, "run abandoned while reading schema")
		}

		return nil, p.fail(logger, run, err)
	}

	var feedback *Feedback

	for n := 1; n <= p.maxAttempts; n++ {
		attempt := Attempt{Number: n}
		log := logger.WithField("attempt", n)

		p.transition(log, run, StateAnalyzing)

		candidate, err := p.analyzer.Analyze(ctx, question, desc, feedback)
		if err != nil {
			var rejected *RejectedOutput
			if !errors.As(err, &rejected) {
				attempt.Err = err
				run.Attempts = append(run.Attempts, attempt)

				return nil, p.fail(log, run, err)
			}

			attempt.Output = rejected.Output
			attempt.Err = rejected.Err
			run.Attempts = append(run.Attempts, attempt)
			feedback = &Feedback{Statement: rejected.Output, Reason: describeFailure(rejected.Err)}
			log.WithError(rejected.Err).Info("Model output rejected")

			continue
		}

		attempt.Output = candidate.SQL
		attempt.Statement = candidate
		log = log.WithField("kind", string(candidate.Kind))
		log.WithField("sql", candidate.SQL).Debug("Candidate statement")

		p.transition(log, run, StateValidating)

		validation, err := p.validator.Validate(ctx, candidate.SQL)
		if err != nil {
			attempt.Err = err
			run.Attempts = append(run.Attempts, attempt)

			return nil, p.fail(log, run, err)
		}

		attempt.Validation = &validation

		if !validation.Valid {
			attempt.Err = validation.Err
			run.Attempts = append(run.Attempts, attempt)
			feedback = &Feedback{Statement: candidate.SQL, Reason: validation.Reason()}
			log.WithField("reason", validation.Reason()).Info("Statement rejected")

			continue
		}

		if err := p.checkGate(ctx, *candidate); err != nil {
			attempt.Err = err
			run.Attempts = append(run.Attempts, attempt)

			return nil, p.fail(log, run, err)
		}

		p.transition(log, run, StateExecuting)

		execution, err := p.executor.Execute(ctx, candidate.SQL)
		if err != nil {
			attempt.Err = err
			run.Attempts = append(run.Attempts, attempt)

			return nil, p.fail(log, run, err)
		}

		attempt.Execution = &execution

		if !execution.OK() {
			attempt.Err = execution.Err
			run.Attempts = append(run.Attempts, attempt)
			feedback = &Feedback{Statement: candidate.SQL, Reason: execution.Reason()}
			log.WithField("reason", execution.Reason()).Info("Statement failed")

			continue
		}

		run.Attempts = append(run.Attempts, attempt)

		p.transition(log, run, StateSynthesizing)

		outcome := p.synthesizer.Synthesize(ctx, question, candidate.SQL, execution)
		outcome.RunID = run.ID
		outcome.Statement = *candidate
		outcome.Attempts = run.Attempts
		outcome.Duration = time.Since(run.Started)

		p.transition(log, run, StateDone)
		log.WithFields(map[string]any{
			"rows":     execution.Rows.Len(),
			"duration": outcome.Duration.String(),
		}).Info("Question answered")

		return &outcome, nil
	}

	last := run.Attempts[len(run.Attempts)-1].Err
	exhausted := errors.Wrapf(last, errors.ErrTypeRetryExhausted, "no statement succeeded after %d attempts", p.maxAttempts).
		WithSuggestion("Rephrase the question or check the schema with the schema command")

	return nil, p.fail(logger, run, exhausted)
}

// checkGate consults the gate for anything that is not a SELECT
func (p *Pipeline) checkGate(ctx context.Context, candidate CandidateStatement) error {
	if p.gate == nil || candidate.IsSelect() {
		return nil
	}

	allowed, err := p.gate.Allow(ctx, candidate)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), errors.ErrTypeCancelled, "run abandoned at confirmation")
		}

		return errors.Wrap(err, errors.ErrTypeMutationDeclined, "write confirmation failed")
	}

	if !allowed {
		return errors.Newf(errors.ErrTypeMutationDeclined, "%s statement was not confirmed", candidate.Kind).
			WithSuggestion("Enable writes with --allow-writes or confirm the prompt")
	}

	return nil
}

func (p *Pipeline) transition(log *logging.Logger, run *Run, state State) {
	run.State = state
	log.WithField("state", string(state)).Debug("Transition")
}

func (p *Pipeline) fail(log *logging.Logger, run *Run, err error) error {
	run.State = StateFailed
	log.WithFields(map[string]any{
		"state":    string(StateFailed),
		"attempts": len(run.Attempts),
	}).WithError(err).Warn("Question failed")

	return &RunError{
		RunID:    run.ID,
		Question: run.Question,
		Attempts: run.Attempts,
		Err:      err,
	}
}
