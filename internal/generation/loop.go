package generation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mentorchat/backend/internal/retrieval"
	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/logger"
)

// State is a draft-validate-refine loop state.
type State string

const (
	StateDrafting   State = "DRAFTING"
	StateValidating State = "VALIDATING"
	StateAccepted   State = "ACCEPTED"
	StateRefining   State = "REFINING"
	StateRejected   State = "REJECTED"
)

// User-facing texts produced by the loop itself.
const (
	NoContextReply = "죄송합니다. 관련 정보를 찾을 수 없습니다."
	Disclaimer     = "(참고: 확인된 근거가 충분하지 않아 내용이 정확하지 않을 수 있습니다.)"
)

// Fetcher executes a retrieval plan.
type Fetcher interface {
	Fetch(ctx context.Context, plan retrieval.Plan) retrieval.Result
}

// Widener returns the refine-pass version of a plan.
type Widener interface {
	Widen(plan retrieval.Plan) retrieval.Plan
}

// LoopConfig holds the loop policy.
type LoopConfig struct {
	Threshold       float64
	MaxRetries      int
	DraftTimeout    time.Duration
	ValidateTimeout time.Duration
}

// LoopConfigFrom reads the policy from generation settings
func LoopConfigFrom(cfg *config.Config) LoopConfig {
	return LoopConfig{
		Threshold:       cfg.Generation.Threshold,
		MaxRetries:      cfg.Generation.MaxRetries,
		DraftTimeout:    cfg.Generation.DraftTimeout,
		ValidateTimeout: cfg.Generation.ValidateTimeout,
	}
}

// Input is one loop run.
type Input struct {
	Question string
	History  []Message
	Plan     retrieval.Plan
}

// Outcome is the loop result. Answer is empty only when the run was
// rejected without ever producing a draft; callers substitute their fallback.
// Draft is the chosen answer without the rejection disclaimer.
type Outcome struct {
	State      State            `json:"state"`
	Answer     string           `json:"answer"`
	Draft      string           `json:"-"`
	Confidence float64          `json:"confidence"`
	Attempts   int              `json:"attempts"`
	Trace      []State          `json:"trace"`
	Verdict    *Verdict         `json:"verdict,omitempty"`
	Retrieval  retrieval.Result `json:"-"`
	NoContext  bool             `json:"no_context,omitempty"`
	TimedOut   bool             `json:"timed_out,omitempty"`
}

// Accepted reports whether the answer passed validation.
func (o Outcome) Accepted() bool { return o.State == StateAccepted }

type candidate struct {
	answer     string
	confidence float64
	verdict    Verdict
}

// Loop runs draft, validate and refine against injectable collaborators.
// It is the only place a generation call is retried.
type Loop struct {
	drafter   Generator
	validator Generator
	fetcher   Fetcher
	widener   Widener
	cfg       LoopConfig
	logger    *logger.Logger
	tracer    trace.Tracer
	outcomes  metric.Int64Counter
}

// NewLoop wires a loop. drafter and validator may be the same generator.
func NewLoop(drafter, validator Generator, fetcher Fetcher, widener Widener, cfg LoopConfig, log *logger.Logger) *Loop {
	if log == nil {
		log = logger.Discard()
	}
	outcomes, _ := otel.Meter("mentorchat/generation").Int64Counter(
		"mentor.loop.outcomes",
		metric.WithDescription("Draft-validate-refine loop terminal states"),
	)
	return &Loop{
		drafter:   drafter,
		validator: validator,
		fetcher:   fetcher,
		widener:   widener,
		cfg:       cfg,
		logger:    log.WithComponent("loop"),
		tracer:    otel.Tracer("mentorchat/generation"),
		outcomes:  outcomes,
	}
}

// Run executes the state machine. It terminates after at most
// MaxRetries+1 draft attempts and never returns an error: every failure path
// ends in REJECTED.
func (l *Loop) Run(ctx context.Context, in Input) Outcome {
	ctx, span := l.tracer.Start(ctx, "generation.Loop", trace.WithAttributes(
		attribute.String("intent", string(in.Plan.Intent)),
	))
	defer span.End()

	var (
		out    Outcome
		plan   = in.Plan
		res    = l.fetcher.Fetch(ctx, plan)
		draft  string
		best   *candidate
		accept *candidate
		state  = StateDrafting
	)

	retryOrReject := func() State {
		if out.Attempts <= l.cfg.MaxRetries {
			return StateRefining
		}
		return StateRejected
	}

	for {
		out.Trace = append(out.Trace, state)
		if ctx.Err() != nil && state != StateAccepted && state != StateRejected {
			out.TimedOut = true
			state = StateRejected
			continue
		}

		switch state {
		case StateDrafting:
			out.Attempts++
			if res.Empty() {
				out.NoContext = true
				state = retryOrReject()
				continue
			}
			out.NoContext = false

			var err error
			draft, err = l.call(ctx, l.drafter, l.cfg.DraftTimeout, draftRequest(in, res))
			if err != nil {
				l.logger.Warn("draft failed", "attempt", out.Attempts, "kind", KindOf(err), "error", err)
				state = retryOrReject()
				continue
			}
			state = StateValidating

		case StateValidating:
			verdict := l.validate(ctx, in, res, draft)
			c := &candidate{answer: draft, confidence: verdict.Confidence, verdict: verdict}
			if verdict.FinalAnswer != "" {
				c.answer = verdict.FinalAnswer
			}
			if best == nil || c.confidence > best.confidence {
				best = c
			}
			if verdict.IsValid || verdict.Confidence >= l.cfg.Threshold {
				accept = c
				state = StateAccepted
				continue
			}
			state = retryOrReject()

		case StateRefining:
			plan = l.widener.Widen(plan)
			res = l.fetcher.Fetch(ctx, plan)
			state = StateDrafting

		case StateAccepted:
			out.State = StateAccepted
			out.Answer = accept.answer
			out.Draft = accept.answer
			out.Confidence = accept.confidence
			out.Verdict = &accept.verdict
			out.Retrieval = res
			l.finish(ctx, span, out)
			return out

		case StateRejected:
			out.State = StateRejected
			out.Retrieval = res
			switch {
			case best != nil:
				out.Draft = best.answer
				out.Answer = best.answer + "\n\n" + Disclaimer
				out.Confidence = best.confidence
				out.Verdict = &best.verdict
			case out.NoContext && !out.TimedOut:
				out.Answer = NoContextReply
				out.Confidence = 0
			}
			l.finish(ctx, span, out)
			return out
		}
	}
}

func (l *Loop) validate(ctx context.Context, in Input, res retrieval.Result, draft string) Verdict {
	raw, err := l.call(ctx, l.validator, l.cfg.ValidateTimeout, validateRequest(in, res, draft))
	if err != nil {
		l.logger.Warn("validation failed", "kind", KindOf(err), "error", err)
		return unavailableVerdict()
	}
	v, err := ParseVerdict(raw)
	if err != nil {
		l.logger.Warn("malformed verdict", "error", err)
		return unavailableVerdict()
	}
	return v
}

func (l *Loop) call(ctx context.Context, g Generator, timeout time.Duration, req Request) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	text, err := g.Generate(ctx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && KindOf(err) == "" {
		err = &Error{Kind: KindTimeout, Provider: "loop", Err: err}
	}
	return text, err
}

func (l *Loop) finish(ctx context.Context, span trace.Span, out Outcome) {
	span.SetAttributes(
		attribute.String("state", string(out.State)),
		attribute.Int("attempts", out.Attempts),
		attribute.Float64("confidence", out.Confidence),
	)
	if l.outcomes != nil {
		l.outcomes.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("state", string(out.State))))
	}
	l.logger.Debug("loop finished", "state", out.State, "attempts", out.Attempts, "trace", out.Trace)
}
