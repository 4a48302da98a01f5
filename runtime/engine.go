package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BDNK1/wizflow/runtime"

// View is the read-only model for rendering one step.
type View struct {
	SessionID string `json:"sessionId"`
	Journey   string `json:"journey"`
	Step      string `json:"step"`
	Index     int    `json:"index"`
	Title     string `json:"title,omitempty"`
	BackStep  string `json:"backStep,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Flags     Flags  `json:"flags,omitempty"`
	Data      any    `json:"data"`
}

// SubmitResult is the outcome of a step submission. Validation failures
// are reported here, never as an error.
type SubmitResult struct {
	Success        bool         `json:"success"`
	Journey        string       `json:"journey"`
	NextStep       string       `json:"nextStep,omitempty"`
	NextIndex      int          `json:"nextIndex"`
	Errors         []FieldError `json:"errors,omitempty"`
	PartialAnswers Payload      `json:"partialAnswers,omitempty"`
	View           *View        `json:"view,omitempty"`
}

// Engine runs "view step" and "submit step" for every journey in a
// Registry against a SessionStore.
type Engine struct {
	l         *slog.Logger
	registry  *Registry
	store     SessionStore
	lookup    ReferenceDataLookup
	committer Committer
	resolver  BranchResolver
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time

	properties map[string]any
}

type EngineOption func(*Engine)

func WithLookup(lookup ReferenceDataLookup) EngineOption {
	return func(e *Engine) { e.lookup = lookup }
}

func WithCommitter(c Committer) EngineOption {
	return func(e *Engine) { e.committer = c }
}

func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithProperties seeds every new session with props. Seed answers passed
// to Start take precedence.
func WithProperties(props map[string]any) EngineOption {
	return func(e *Engine) { e.properties = props }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(l *slog.Logger, registry *Registry, store SessionStore, opts ...EngineOption) *Engine {
	e := &Engine{
		l:        l,
		registry: registry,
		store:    store,
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the step table the engine serves.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Start creates and persists a session for journeyID and returns it along
// with the key of the first step.
func (e *Engine) Start(ctx context.Context, journeyID string, seed map[string]any) (*Session, string, error) {
	ctx, span := e.tracer.Start(ctx, "wizard.Start", trace.WithAttributes(attribute.String("wizard.journey", journeyID)))
	defer span.End()

	j, err := e.registry.Journey(journeyID)
	if err != nil {
		return nil, "", e.fail(span, err)
	}

	answers := make(map[string]any, len(e.properties)+len(seed))
	for k, v := range e.properties {
		answers[k] = v
	}
	for k, v := range seed {
		answers[k] = v
	}

	s := NewSession(j.ID, answers)
	s.CreatedAt = e.now()
	s.UpdatedAt = s.CreatedAt
	for k, v := range j.InitialFlags {
		s.Flags[k] = deepCopy(v)
	}

	if err := e.store.Put(ctx, s.ID, s); err != nil {
		e.l.ErrorContext(ctx, "Failed to persist new session", "journey", j.ID, "error", err)
		return nil, "", e.fail(span, fmt.Errorf("persist session: %w", err))
	}

	e.l.InfoContext(ctx, fmt.Sprintf("Started journey: %s", j.ID), "session_id", s.ID)
	return s, j.First(), nil
}

// ViewStep builds the view model for stepKey without mutating the session.
func (e *Engine) ViewStep(ctx context.Context, stepKey, sessionID string, index int) (*View, error) {
	start := time.Now()
	defer e.metrics.observe("view", start)

	ctx, span := e.tracer.Start(ctx, "wizard.ViewStep", trace.WithAttributes(
		attribute.String("wizard.step", stepKey),
		attribute.String("wizard.session_id", sessionID),
	))
	defer span.End()

	s, j, def, err := e.load(ctx, stepKey, sessionID)
	if err != nil {
		return nil, e.fail(span, err)
	}
	span.SetAttributes(attribute.String("wizard.journey", j.ID))

	index, err = e.checkIndex(s, def, index)
	if err != nil {
		return nil, e.fail(span, err)
	}

	refs, err := fetchReferences(ctx, e.lookup, def.Lookups, s)
	if err != nil {
		e.l.ErrorContext(ctx, "Reference data lookup failed", "journey", j.ID, "step", stepKey, "session_id", sessionID, "error", err)
		return nil, e.fail(span, err)
	}

	view, err := e.view(j, def, &StepContext{Session: s, Index: index, References: refs}, nil, nil)
	if err != nil {
		return nil, e.fail(span, err)
	}

	e.metrics.recordView(j.ID, stepKey)
	e.l.InfoContext(ctx, fmt.Sprintf("Viewing step: %s", stepKey), "journey", j.ID, "session_id", sessionID)
	return view, nil
}

// SubmitStep validates payload for stepKey and, when valid, applies it,
// persists the session exactly once and routes to the next step. When
// invalid nothing is written and the unsaved input is handed back.
func (e *Engine) SubmitStep(ctx context.Context, stepKey, sessionID string, index int, payload Payload) (*SubmitResult, error) {
	start := time.Now()
	defer e.metrics.observe("submit", start)

	ctx, span := e.tracer.Start(ctx, "wizard.SubmitStep", trace.WithAttributes(
		attribute.String("wizard.step", stepKey),
		attribute.String("wizard.session_id", sessionID),
	))
	defer span.End()

	s, j, def, err := e.load(ctx, stepKey, sessionID)
	if err != nil {
		return nil, e.fail(span, err)
	}
	span.SetAttributes(attribute.String("wizard.journey", j.ID))

	index, err = e.checkIndex(s, def, index)
	if err != nil {
		e.metrics.recordSubmission(j.ID, stepKey, outcomeFailed)
		return nil, e.fail(span, err)
	}

	normalized := NormalizePayload(payload, def.MultiValued)

	refs, err := fetchReferences(ctx, e.lookup, def.Lookups, s)
	if err != nil {
		e.l.ErrorContext(ctx, "Reference data lookup failed", "journey", j.ID, "step", stepKey, "session_id", sessionID, "error", err)
		e.metrics.recordSubmission(j.ID, stepKey, outcomeFailed)
		return nil, e.fail(span, err)
	}

	sc := &StepContext{Session: s, Index: index, References: refs}

	if errs := def.validate(normalized, sc); len(errs) > 0 {
		e.metrics.recordSubmission(j.ID, stepKey, outcomeRejected)
		e.l.InfoContext(ctx, fmt.Sprintf("Validation failed for step: %s", stepKey),
			"journey", j.ID,
			"session_id", sessionID,
			"errors", len(errs))

		view, err := e.view(j, def, sc, normalized, errs)
		if err != nil {
			return nil, e.fail(span, err)
		}
		return &SubmitResult{
			Success:        false,
			Journey:        j.ID,
			NextIndex:      NoIndex,
			Errors:         errs,
			PartialAnswers: normalized,
			View:           view,
		}, nil
	}

	updated := s.Clone()
	if err := def.apply(updated, normalized, index); err != nil {
		e.metrics.recordSubmission(j.ID, stepKey, outcomeFailed)
		return nil, e.fail(span, fmt.Errorf("apply step %s: %w", stepKey, err))
	}

	revisiting := updated.Flags.Bool(FlagCheckPageVisited)

	next, err := e.resolver.NextStep(j, updated, stepKey)
	if err != nil {
		return nil, e.fail(span, err)
	}

	if revisiting {
		updated.Flags[FlagNotification] = "Changes made"
	}
	if next != "" && next == j.Summary {
		updated.Flags[FlagCheckPageVisited] = true
	}
	updated.UpdatedAt = e.now()

	if err := e.store.Put(ctx, updated.ID, updated); err != nil {
		e.l.ErrorContext(ctx, "Failed to persist session", "journey", j.ID, "step", stepKey, "session_id", sessionID, "error", err)
		e.metrics.recordSubmission(j.ID, stepKey, outcomeFailed)
		return nil, e.fail(span, fmt.Errorf("persist session: %w", err))
	}

	e.metrics.recordSubmission(j.ID, stepKey, outcomeAccepted)
	e.l.InfoContext(ctx, fmt.Sprintf("Step accepted: %s -> %s", stepKey, next), "journey", j.ID, "session_id", sessionID)

	return &SubmitResult{
		Success:   true,
		Journey:   j.ID,
		NextStep:  next,
		NextIndex: e.nextIndex(j, def, updated, next, index),
	}, nil
}

// JourneyOf returns the journey the session was started for.
func (e *Engine) JourneyOf(ctx context.Context, sessionID string) (string, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.JourneyType, nil
}

// AddItem appends an empty sub-record and returns its index. The summary
// flag is cleared so the new item walks the indexed steps in order.
func (e *Engine) AddItem(ctx context.Context, sessionID string) (int, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return NoIndex, err
	}
	s.ensure()

	index := s.AppendItem(nil)
	delete(s.Flags, FlagCheckPageVisited)
	s.UpdatedAt = e.now()

	if err := e.store.Put(ctx, s.ID, s); err != nil {
		return NoIndex, fmt.Errorf("persist session: %w", err)
	}

	e.l.InfoContext(ctx, fmt.Sprintf("Added item %d", index), "journey", s.JourneyType, "session_id", sessionID)
	return index, nil
}

// RemoveItem deletes items[index].
func (e *Engine) RemoveItem(ctx context.Context, sessionID string, index int) error {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.ensure()

	if err := s.RemoveItem(index); err != nil {
		return err
	}
	s.Flags[FlagNotification] = "Requirement removed"
	s.UpdatedAt = e.now()

	if err := e.store.Put(ctx, s.ID, s); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	e.l.InfoContext(ctx, fmt.Sprintf("Removed item %d", index), "journey", s.JourneyType, "session_id", sessionID)
	return nil
}

// Complete hands the finished session to the Committer and then deletes it.
func (e *Engine) Complete(ctx context.Context, sessionID string) error {
	start := time.Now()
	defer e.metrics.observe("complete", start)

	ctx, span := e.tracer.Start(ctx, "wizard.Complete", trace.WithAttributes(attribute.String("wizard.session_id", sessionID)))
	defer span.End()

	if e.committer == nil {
		return e.fail(span, fmt.Errorf("no committer configured"))
	}

	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return e.fail(span, err)
	}
	s.ensure()

	if err := e.committer.Commit(ctx, s); err != nil {
		e.l.ErrorContext(ctx, "Commit failed", "journey", s.JourneyType, "session_id", sessionID, "error", err)
		return e.fail(span, fmt.Errorf("commit session: %w", err))
	}

	if err := e.store.Delete(ctx, sessionID); err != nil {
		return e.fail(span, fmt.Errorf("delete session: %w", err))
	}

	e.l.InfoContext(ctx, fmt.Sprintf("Completed journey: %s", s.JourneyType), "session_id", sessionID)
	return nil
}

// Cancel abandons a journey by deleting its session.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	if _, err := e.store.Get(ctx, sessionID); err != nil {
		return err
	}
	if err := e.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	e.l.InfoContext(ctx, "Cancelled journey", "session_id", sessionID)
	return nil
}

func (e *Engine) load(ctx context.Context, stepKey, sessionID string) (*Session, *Journey, *StepDefinition, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	s.ensure()

	j, err := e.registry.Journey(s.JourneyType)
	if err != nil {
		return nil, nil, nil, err
	}

	def, err := e.registry.Step(j.ID, stepKey)
	if err != nil {
		return nil, nil, nil, err
	}

	return s, j, def, nil
}

func (e *Engine) checkIndex(s *Session, def *StepDefinition, index int) (int, error) {
	if !def.Indexed {
		return NoIndex, nil
	}
	if _, err := s.Item(index); err != nil {
		return NoIndex, err
	}
	return index, nil
}

// nextIndex carries the item index forward when the next step is indexed:
// the same item when coming from an indexed step, else the newest item.
func (e *Engine) nextIndex(j *Journey, current *StepDefinition, s *Session, next string, index int) int {
	if next == "" {
		return NoIndex
	}
	def, err := e.registry.Step(j.ID, next)
	if err != nil || !def.Indexed {
		return NoIndex
	}
	if current.Indexed {
		return index
	}
	return len(s.Items) - 1
}

func (e *Engine) view(j *Journey, def *StepDefinition, sc *StepContext, partial Payload, errs []FieldError) (*View, error) {
	back, err := e.resolver.BackStep(j, sc.Session, def.Key)
	if err != nil {
		return nil, err
	}

	return &View{
		SessionID: sc.Session.ID,
		Journey:   j.ID,
		Step:      def.Key,
		Index:     sc.Index,
		Title:     def.Title,
		BackStep:  back,
		Summary:   j.Summary,
		Flags:     sc.Session.Flags,
		Data:      def.present(sc, partial, errs),
	}, nil
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
