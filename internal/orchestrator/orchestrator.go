// Package orchestrator wires one inbound message through classification,
// retrieval, the draft-validate-refine loop and persona synthesis, and
// records the exchange in the session store.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mentorchat/backend/internal/generation"
	"mentorchat/backend/internal/intent"
	"mentorchat/backend/internal/persona"
	"mentorchat/backend/internal/retrieval"
	"mentorchat/backend/internal/room"
	"mentorchat/backend/internal/session"
	"mentorchat/backend/pkg/logger"
)

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("empty message")

const defaultSeedCount = 3

// SeedSource lists the newest corpus records for a set of sectors.
type SeedSource interface {
	Latest(corpus string, sectors []string, n int) []retrieval.Document
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Classifier   intent.Classifier
	Router       *retrieval.Router
	Fetcher      generation.Fetcher
	Loop         *generation.Loop
	Synthesizer  *persona.Synthesizer
	Personas     *persona.Registry
	Store        *session.Store
	Seeds        SeedSource
	Analyst      generation.Generator
	HistoryTurns int
	Logger       *logger.Logger
}

type Orchestrator struct {
	classifier   intent.Classifier
	router       *retrieval.Router
	fetcher      generation.Fetcher
	loop         *generation.Loop
	synth        *persona.Synthesizer
	personas     *persona.Registry
	store        *session.Store
	seeds        SeedSource
	analyst      generation.Generator
	historyTurns int
	logger       *logger.Logger

	tracer   trace.Tracer
	messages metric.Int64Counter
	latency  metric.Float64Histogram
}

// New creates an orchestrator.
func New(d Deps) *Orchestrator {
	if d.Classifier == nil {
		d.Classifier = intent.Default
	}
	if d.Router == nil {
		d.Router = retrieval.DefaultRouter()
	}
	if d.HistoryTurns <= 0 {
		d.HistoryTurns = 6
	}
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}

	meter := otel.Meter("mentorchat/orchestrator")
	messages, _ := meter.Int64Counter("mentor.messages",
		metric.WithDescription("Handled messages by intent and path"))
	latency, _ := meter.Float64Histogram("mentor.reply.duration",
		metric.WithDescription("Time to produce a reply"),
		metric.WithUnit("s"))

	return &Orchestrator{
		classifier:   d.Classifier,
		router:       d.Router,
		fetcher:      d.Fetcher,
		loop:         d.Loop,
		synth:        d.Synthesizer,
		personas:     d.Personas,
		store:        d.Store,
		seeds:        d.Seeds,
		analyst:      d.Analyst,
		historyTurns: d.HistoryTurns,
		logger:       d.Logger.WithComponent("orchestrator"),
		tracer:       otel.Tracer("mentorchat/orchestrator"),
		messages:     messages,
		latency:      latency,
	}
}

// Seed is a corpus record offered when a session starts.
type Seed struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Text    string   `json:"text"`
	Period  string   `json:"period"`
	Region  string   `json:"region,omitempty"`
	Sectors []string `json:"sectors,omitempty"`
}

// InitResult bootstraps a client session.
type InitResult struct {
	SessionID     string `json:"session_id"`
	PersonaID     string `json:"persona_id"`
	Label         string `json:"label"`
	IntroText     string `json:"intro_text"`
	SeedArtifacts []Seed `json:"seed_artifacts"`
}

// Init creates a session for a persona and returns its intro and seeds.
func (o *Orchestrator) Init(ctx context.Context, personaID string) (*InitResult, error) {
	p, err := o.personas.Get(personaID)
	if err != nil {
		return nil, err
	}
	sess, err := o.store.CreateSession(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &InitResult{
		SessionID:     sess.ID,
		PersonaID:     p.ID,
		Label:         p.DisplayName,
		IntroText:     p.Intro,
		SeedArtifacts: o.seedsFor(p),
	}, nil
}

// seedsFor never fails: a seed lookup problem yields an empty list.
func (o *Orchestrator) seedsFor(p *persona.Persona) (out []Seed) {
	out = []Seed{}
	if o.seeds == nil {
		return out
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("seed lookup panicked", "persona", p.ID, "panic", r)
			out = []Seed{}
		}
	}()
	for _, d := range o.seeds.Latest(retrieval.CorpusMacro, p.PreferredSectors, defaultSeedCount) {
		out = append(out, Seed{ID: d.ID, Title: d.Title, Text: d.Text, Period: d.Period, Region: d.Region, Sectors: d.Sectors})
	}
	return out
}

// Reply is the result of one 1:1 exchange.
type Reply struct {
	SessionID  string           `json:"session_id"`
	PersonaID  string           `json:"persona_id"`
	Answer     string           `json:"answer"`
	Intent     intent.Intent    `json:"intent"`
	Entities   intent.Entities  `json:"entities"`
	State      generation.State `json:"state,omitempty"`
	Confidence float64          `json:"confidence"`
	Attempts   int              `json:"attempts"`
	Path       string           `json:"path"`
	Sources    []string         `json:"sources,omitempty"`
}

// Handle answers one 1:1 message. An empty sessionID starts a new session.
// A session bound to another persona is rejected with
// session.ErrPersonaMismatch; a reply for a session closed while it was
// being generated is discarded with session.ErrClosed.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, personaID, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	p, err := o.personas.Get(personaID)
	if err != nil {
		return nil, err
	}

	var sess session.Session
	if sessionID == "" {
		sess, err = o.store.CreateSession(ctx, p.ID)
	} else {
		sess, err = o.store.BindSession(ctx, sessionID, p.ID)
	}
	if err != nil {
		return nil, err
	}

	key := session.SessionKey(sess.ID)
	history := o.store.Tail(ctx, key, o.historyTurns*2)
	if _, err := o.store.Append(ctx, key, session.Message{
		Role:      session.RoleUser,
		SenderID:  sess.ID,
		Text:      text,
		PersonaID: p.ID,
	}); err != nil {
		return nil, err
	}

	ans := o.answer(ctx, p, text, "", history)

	if _, err := o.store.Append(ctx, key, session.Message{
		Role:       session.RoleAssistant,
		SenderID:   p.ID,
		SenderName: p.DisplayName,
		Text:       ans.Text,
		PersonaID:  p.ID,
	}); err != nil {
		o.logger.Debug("reply discarded", "session_id", sess.ID, "error", err)
		return nil, err
	}

	return &Reply{
		SessionID:  sess.ID,
		PersonaID:  p.ID,
		Answer:     ans.Text,
		Intent:     ans.Intent,
		Entities:   ans.Entities,
		State:      ans.State,
		Confidence: ans.Confidence,
		Attempts:   ans.Attempts,
		Path:       ans.Path,
		Sources:    ans.Sources,
	}, nil
}

// Respond produces a room reply. The user message is already in the log at
// turn.Key, so it is left out of the history passed to generation.
func (o *Orchestrator) Respond(ctx context.Context, turn room.Turn) (string, error) {
	p, err := o.personas.Get(turn.PersonaID)
	if err != nil {
		return "", err
	}
	if o.store.IsClosed(turn.Key) {
		return "", session.ErrClosed
	}

	history := o.store.Tail(ctx, turn.Key, o.historyTurns*2+1)
	if n := len(history); n > 0 && history[n-1].Role == session.RoleUser && history[n-1].Text == turn.Text {
		history = history[:n-1]
	}

	ans := o.answer(ctx, p, turn.Text, turn.Context, history)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return ans.Text, nil
}

// Reset closes a session and starts a new one for the same persona.
// Replies still in flight for the old session are discarded.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) (*InitResult, error) {
	old, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := o.store.CloseSession(ctx, sessionID); err != nil {
		return nil, err
	}
	o.logger.Info("session reset", "session_id", sessionID, "persona", old.PersonaID)
	return o.Init(ctx, old.PersonaID)
}

// History returns the message log of a session.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return o.store.History(ctx, session.SessionKey(sessionID)), nil
}

// Personas lists the configured mentors.
func (o *Orchestrator) Personas() []*persona.Persona {
	return o.personas.List()
}

func (o *Orchestrator) record(ctx context.Context, ans answer, started time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("intent", string(ans.Intent)),
		attribute.String("path", ans.Path),
	)
	ctx = context.WithoutCancel(ctx)
	if o.messages != nil {
		o.messages.Add(ctx, 1, attrs)
	}
	if o.latency != nil {
		o.latency.Record(ctx, time.Since(started).Seconds(), attrs)
	}
}
