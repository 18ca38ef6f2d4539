// Package practice runs practice sessions end to end: it starts sessions
// with a scenario, orchestrates each learner turn through the conversation
// service and scores the session when it ends.
package practice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/conversation"
	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/hooks"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/scenario"
	"github.com/soyeahso/parley/internal/scoring"
	"github.com/soyeahso/parley/internal/session"
)

// Default generation timeouts.
const (
	DefaultReplyTimeout      = 30 * time.Second
	DefaultSuggestionTimeout = 15 * time.Second
)

var errAlreadyScored = errors.New("session already scored")

// StartRequest describes a session to start. Zero fields take the
// service defaults. A non-empty Prompt asks for a custom scenario instead
// of a random one.
type StartRequest struct {
	UserName        string `json:"userName,omitempty"`
	Difficulty      string `json:"difficulty,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
}

// Service is the turn orchestrator.
type Service struct {
	sessions  *session.Manager
	conv      conversation.Service
	scenarios scenario.Source
	hooks     *hooks.Manager
	log       *logging.Logger

	defaults          StartRequest
	replyTimeout      time.Duration
	suggestionTimeout time.Duration

	tracer     trace.Tracer
	meter      metric.Meter
	turns      metric.Int64Counter
	expired    metric.Int64Counter
	failures   metric.Int64Counter
	genLatency metric.Float64Histogram
}

// Option configures a Service.
type Option func(*Service)

// WithHooks emits session_start, turn_recorded and session_end.
func WithHooks(hm *hooks.Manager) Option {
	return func(s *Service) { s.hooks = hm }
}

// WithTimeouts bounds reply and suggestion generation.
func WithTimeouts(reply, suggestions time.Duration) Option {
	return func(s *Service) {
		s.replyTimeout = reply
		s.suggestionTimeout = suggestions
	}
}

// WithPracticeConfig applies start defaults and timeouts from config.
func WithPracticeConfig(cfg config.PracticeConfig) Option {
	return func(s *Service) {
		s.defaults = StartRequest{
			UserName:        cfg.DefaultUserName,
			Difficulty:      cfg.DefaultDifficulty,
			DurationSeconds: cfg.DefaultDurationSeconds,
		}
		s.replyTimeout = cfg.GenerationTimeout()
		s.suggestionTimeout = cfg.SuggestionTimeout()
	}
}

// WithTelemetry sets the tracer and meter used for spans and counters.
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) Option {
	return func(s *Service) {
		s.tracer = tracer
		s.meter = meter
	}
}

// NewService creates a practice service.
func NewService(sessions *session.Manager, conv conversation.Service, scenarios scenario.Source, log *logging.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		sessions:  sessions,
		conv:      conv,
		scenarios: scenarios,
		log:       log.Sub("practice"),
		defaults: StartRequest{
			UserName:        "Tester",
			Difficulty:      domain.DifficultyMedium,
			DurationSeconds: 600,
		},
		replyTimeout:      DefaultReplyTimeout,
		suggestionTimeout: DefaultSuggestionTimeout,
		tracer:            otel.Tracer("parley/practice"),
		meter:             otel.Meter("parley/practice"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.turns, err = s.meter.Int64Counter("parley.turns.recorded",
		metric.WithDescription("Turns persisted to a session")); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if s.expired, err = s.meter.Int64Counter("parley.turns.expired",
		metric.WithDescription("Turns rejected because the session had expired")); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if s.failures, err = s.meter.Int64Counter("parley.generation.failures",
		metric.WithDescription("Failed reply or suggestion generations")); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if s.genLatency, err = s.meter.Float64Histogram("parley.generation.duration",
		metric.WithDescription("Reply generation latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating histogram: %w", err)
	}
	return s, nil
}

// StartSession creates a session and assigns its scenario.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (*domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "practice.start_session")
	defer span.End()

	req = s.withDefaults(req)
	level, err := domain.LevelForDifficulty(req.Difficulty)
	if err != nil {
		return nil, err
	}

	var sc domain.Scenario
	if strings.TrimSpace(req.Prompt) != "" {
		sc, err = s.scenarios.Custom(req.Prompt)
	} else {
		sc, err = s.scenarios.Random(level)
	}
	if err != nil {
		return nil, err
	}

	id, err := s.sessions.Create(ctx, req.UserName, req.Difficulty, req.DurationSeconds)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.AssignScenario(ctx, id, sc)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("session.id", id), attribute.String("session.level", string(level)))
	s.log.Info().
		Str("sessionId", id).
		Str("category", sc.Category).
		Str("role", sc.Role).
		Msg("session started")
	s.emit(ctx, hooks.EventSessionStart, map[string]any{
		"sessionId": id,
		"userName":  sess.UserName,
		"level":     string(sess.Level),
		"category":  sc.Category,
	})
	return sess, nil
}

// SubmitTurn records one learner utterance and the partner's reply.
// Nothing is persisted when reply generation fails or when another writer
// changed the session while the reply was being generated.
func (s *Service) SubmitTurn(ctx context.Context, id, input string) (*domain.Turn, error) {
	ctx, span := s.tracer.Start(ctx, "practice.submit_turn", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	if strings.TrimSpace(input) == "" {
		return nil, domain.ErrEmptyInput
	}

	active, err := s.sessions.CheckTimeout(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if !active {
		s.expired.Add(ctx, 1)
		return nil, domain.ErrSessionExpired
	}

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if sess.Ended() {
		s.expired.Add(ctx, 1)
		return nil, domain.ErrSessionExpired
	}

	reply, err := s.generateReply(ctx, input, sess)
	if err != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "reply")))
		return nil, fail(span, err)
	}

	level := sess.Scenario.Level.Or(sess.Level)
	texts, err := s.generateSuggestions(ctx, reply, sess.Scenario)
	if err != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "suggestions")))
		s.log.Warn().Err(err).Str("sessionId", id).Msg("suggestions unavailable, recording turn without them")
		texts = nil
	}

	// The time limit may have passed while the reply was generated.
	now := s.sessions.Now()
	if sess.TimedOut(now) {
		if _, err := s.sessions.CheckTimeout(ctx, id); err != nil {
			return nil, fail(span, err)
		}
		s.expired.Add(ctx, 1)
		s.log.Info().Str("sessionId", id).Msg("reply arrived after the time limit, turn discarded")
		return nil, domain.ErrSessionExpired
	}

	turn, err := sess.AppendTurn(domain.Turn{
		UserInput:   input,
		AIResponse:  reply,
		Timestamp:   now,
		Suggestions: domain.NewSuggestions(texts, level),
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fail(span, err)
	}

	s.turns.Add(ctx, 1)
	span.SetAttributes(attribute.Int("turn.number", turn.Number))
	s.log.Debug().
		Str("sessionId", id).
		Int("turn", turn.Number).
		Int("suggestions", len(turn.Suggestions)).
		Msg("turn recorded")
	s.emit(ctx, hooks.EventTurnRecorded, map[string]any{
		"sessionId": id,
		"turn":      turn.Number,
	})
	return &turn, nil
}

func (s *Service) generateReply(ctx context.Context, input string, sess *domain.Session) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.conv.GenerateReply(ctx, input, sess.Scenario, sess.Turns)
	s.genLatency.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		var ge *domain.GenerationError
		if !errors.As(err, &ge) {
			err = &domain.GenerationError{Op: "reply", Err: err}
		}
		return "", err
	}
	return reply, nil
}

func (s *Service) generateSuggestions(ctx context.Context, reply string, sc domain.Scenario) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.suggestionTimeout)
	defer cancel()
	return s.conv.GenerateSuggestions(ctx, reply, sc)
}

// EndSessionFeedback ends the session and returns its scored feedback.
// Feedback is computed once; later calls return the recorded result.
func (s *Service) EndSessionFeedback(ctx context.Context, id string) (*domain.Feedback, error) {
	ctx, span := s.tracer.Start(ctx, "practice.end_session", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	var existing *domain.Feedback
	sess, err := s.sessions.Update(ctx, id, func(sess *domain.Session) error {
		if sess.Feedback != nil {
			existing = sess.Feedback
			return errAlreadyScored
		}
		fb := scoring.Score(sess.Turns, sess.Scenario.VocabularyFocus, sess.Scenario.Level)
		fb.GeneratedAt = s.sessions.Now()
		sess.RecordFeedback(fb, fb.GeneratedAt)
		return nil
	})
	if errors.Is(err, errAlreadyScored) {
		return existing, nil
	}
	if err != nil {
		return nil, fail(span, err)
	}

	if err := s.sessions.Finalize(ctx, id); err != nil {
		return nil, fail(span, err)
	}

	fb := sess.Feedback
	s.log.Info().
		Str("sessionId", id).
		Int("turns", len(sess.Turns)).
		Float64("overall", fb.Metrics.Overall).
		Msg("session scored")
	s.emit(ctx, hooks.EventSessionEnd, map[string]any{
		"sessionId": id,
		"turns":     len(sess.Turns),
		"overall":   fb.Metrics.Overall,
		"level":     string(fb.Metrics.Level),
	})
	return fb, nil
}

// Session returns the session after applying any pending timeout.
func (s *Service) Session(ctx context.Context, id string) (*domain.Session, error) {
	if _, err := s.sessions.CheckTimeout(ctx, id); err != nil {
		return nil, err
	}
	return s.sessions.Get(ctx, id)
}

// History returns the recorded turns of a session in order.
func (s *Service) History(ctx context.Context, id string) ([]domain.Turn, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Turns, nil
}

func (s *Service) withDefaults(req StartRequest) StartRequest {
	if strings.TrimSpace(req.UserName) == "" {
		req.UserName = s.defaults.UserName
	}
	if strings.TrimSpace(req.Difficulty) == "" {
		req.Difficulty = s.defaults.Difficulty
	}
	if req.DurationSeconds == 0 {
		req.DurationSeconds = s.defaults.DurationSeconds
	}
	return req
}

func (s *Service) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks == nil {
		return
	}
	s.hooks.EmitAsync(context.WithoutCancel(ctx), event, data)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
