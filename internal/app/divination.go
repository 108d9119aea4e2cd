package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
	"github.com/Yanchun-Li/ai-divination/internal/metrics"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

// MaxQuestionRunes bounds the question length.
const MaxQuestionRunes = 500

const seedQuestionRunes = 20

// sharedInterpretTimeout bounds an interpretation run shared by several callers.
const sharedInterpretTimeout = 2 * time.Minute

// DivinationService orchestrates sessions, seeded generation, manual steps and
// LLM interpretation. It implements ports.SessionAPI in-process.
type DivinationService struct {
	store       ports.SessionStore
	decks       ports.DeckStore
	interpreter ports.Interpreter
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	fallback    bool
	interpretSF singleflight.Group
}

var _ ports.SessionAPI = (*DivinationService)(nil)

// Option configures a DivinationService.
type Option func(*DivinationService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *DivinationService) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *DivinationService) { s.metrics = m }
}

// WithoutFallback makes interpreter failures surface as errors instead of
// being replaced by the built-in interpretation.
func WithoutFallback() Option {
	return func(s *DivinationService) { s.fallback = false }
}

// NewDivinationService wires the service. interp may be nil, in which case
// every reading gets the built-in interpretation.
func NewDivinationService(store ports.SessionStore, decks ports.DeckStore, interp ports.Interpreter, logger *slog.Logger, opts ...Option) *DivinationService {
	s := &DivinationService{
		store:       store,
		decks:       decks,
		interpreter: interp,
		logger:      logger,
		now:         time.Now,
		fallback:    true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *DivinationService) CreateSession(ctx context.Context, req ports.CreateSessionRequest) (ports.CreateSessionResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return ports.CreateSessionResponse{}, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(question); n > MaxQuestionRunes {
		return ports.CreateSessionResponse{}, fmt.Errorf("%w: question has %d characters, max %d", domain.ErrInvalidInput, n, MaxQuestionRunes)
	}
	if !req.Mode.Valid() {
		return ports.CreateSessionResponse{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, req.Mode)
	}
	if !req.Method.Valid() {
		return ports.CreateSessionResponse{}, fmt.Errorf("%w: unknown method %q", domain.ErrInvalidInput, req.Method)
	}

	lang := req.Lang
	if !lang.Valid() {
		lang = domain.ParseLang(string(req.Lang))
	}

	now := s.now().UTC()
	seed := req.Seed
	if seed == "" {
		var err error
		seed, err = newSeed(question, req.UserID, now)
		if err != nil {
			return ports.CreateSessionResponse{}, fmt.Errorf("generate seed: %w", err)
		}
	}

	sess := domain.Session{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Question:  domain.Question{Text: question, CreatedAt: now},
		Mode:      req.Mode,
		Method:    req.Method,
		Lang:      lang,
		Seed:      seed,
		Status:    domain.StatusPending,
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return ports.CreateSessionResponse{}, fmt.Errorf("create session: %w", err)
	}
	s.metrics.SessionCreated(string(sess.Mode), string(sess.Method))
	s.logger.InfoContext(ctx, "session created",
		slog.String("session_id", sess.ID),
		slog.String("mode", string(sess.Mode)),
		slog.String("method", string(sess.Method)),
		slog.String("lang", string(sess.Lang)),
	)

	return ports.CreateSessionResponse{
		SessionID: sess.ID,
		Seed:      sess.Seed,
		Status:    sess.Status,
		CreatedAt: sess.CreatedAt,
	}, nil
}

// newSeed builds "q_<question prefix>_t_<unix ms>_r_<16 hex>[_u_<user>]".
func newSeed(question, userID string, now time.Time) (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	prefix := question
	if utf8.RuneCountInString(prefix) > seedQuestionRunes {
		prefix = string([]rune(prefix)[:seedQuestionRunes])
	}
	seed := fmt.Sprintf("q_%s_t_%d_r_%s", prefix, now.UnixMilli(), hex.EncodeToString(buf[:]))
	if userID != "" {
		seed += "_u_" + userID
	}
	return seed, nil
}

func (s *DivinationService) Generate(ctx context.Context, sessionID string) (ports.GenerateResponse, error) {
	sess, err := s.store.Update(ctx, sessionID, func(sess *domain.Session) error {
		if sess.Mode != domain.ModeAI {
			return fmt.Errorf("%w: generate requires ai mode, session is %s", domain.ErrWrongMode, sess.Mode)
		}
		if sess.Status != domain.StatusPending {
			return fmt.Errorf("%w: session is %s", domain.ErrWrongStatus, sess.Status)
		}
		sess.Status = domain.StatusInProgress
		return nil
	})
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("generate: %w", err)
	}

	result, err := s.seededResult(ctx, sess)
	if err != nil {
		s.markFailed(ctx, sess.ID)
		return ports.GenerateResponse{}, fmt.Errorf("generate: %w", err)
	}

	interp, err := s.interpret(ctx, sess, result)
	if err != nil {
		s.markFailed(ctx, sess.ID)
		return ports.GenerateResponse{}, fmt.Errorf("interpret: %w", err)
	}

	completedAt := s.now().UTC()
	sess, err = s.store.Update(ctx, sess.ID, func(sess *domain.Session) error {
		sess.Status = domain.StatusCompleted
		sess.Result = &result
		sess.Interpretation = &interp
		sess.CompletedAt = &completedAt
		return nil
	})
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("save result: %w", err)
	}
	s.metrics.ReadingCompleted(string(sess.Mode), string(sess.Method))

	return ports.GenerateResponse{
		SessionID:      sess.ID,
		Status:         sess.Status,
		Result:         result,
		Interpretation: interp,
	}, nil
}

func (s *DivinationService) markFailed(ctx context.Context, id string) {
	_, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		sess.Status = domain.StatusFailed
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "mark session failed", slog.String("session_id", id), slog.Any("error", err))
	}
}

// seededResult runs the same seeded engine the client runs for this seed.
func (s *DivinationService) seededResult(ctx context.Context, sess domain.Session) (domain.Result, error) {
	switch sess.Method {
	case domain.MethodLiuyao:
		res := domain.GenerateLiuyaoSeeded(sess.Seed)
		return domain.Result{Liuyao: &res}, nil
	case domain.MethodTarot:
		deck, err := s.decks.GetDeck(ctx, domain.DeckMajor22)
		if err != nil {
			return domain.Result{}, fmt.Errorf("get deck: %w", err)
		}
		draws, err := domain.DrawTarotSeeded(deck, sess.Seed, sess.Lang)
		if err != nil {
			return domain.Result{}, err
		}
		res, err := domain.BuildTarotResult(draws, sess.Lang)
		if err != nil {
			return domain.Result{}, err
		}
		return domain.Result{Tarot: &res}, nil
	default:
		return domain.Result{}, fmt.Errorf("%w: unknown method %q", domain.ErrInvalidInput, sess.Method)
	}
}

func (s *DivinationService) SubmitManualStep(ctx context.Context, req ports.ManualStepRequest) (ports.ManualStepResponse, error) {
	if err := req.Step.Validate(); err != nil {
		return ports.ManualStepResponse{}, err
	}
	if req.StepNumber < 1 {
		return ports.ManualStepResponse{}, fmt.Errorf("%w: step numbers start at 1, got %d", domain.ErrInvalidInput, req.StepNumber)
	}

	var deck domain.Deck
	if req.Action == domain.ActionCardDraw {
		var err error
		deck, err = s.decks.GetDeck(ctx, domain.DeckMajor22)
		if err != nil {
			return ports.ManualStepResponse{}, fmt.Errorf("get deck: %w", err)
		}
	}

	var method domain.Method
	replay, completed := false, false
	sess, err := s.store.Update(ctx, req.SessionID, func(sess *domain.Session) error {
		method, replay, completed = sess.Method, false, false
		if sess.Mode != domain.ModeManual {
			return fmt.Errorf("%w: manual steps require manual mode, session is %s", domain.ErrWrongMode, sess.Mode)
		}
		current := len(sess.ManualSteps)
		if req.StepNumber <= current {
			replay = true
			return nil
		}
		total := sess.Method.TotalSteps()
		if current >= total {
			return fmt.Errorf("%w: session has all %d steps", domain.ErrAlreadyComplete, total)
		}
		if req.StepNumber != current+1 {
			return fmt.Errorf("%w: expected step %d, got %d", domain.ErrStepOutOfOrder, current+1, req.StepNumber)
		}
		if want := sess.Method.Action(); req.Action != want {
			return fmt.Errorf("%w: %s session takes %s steps, got %s", domain.ErrInvalidInput, sess.Method, want, req.Action)
		}
		if req.Action == domain.ActionCardDraw {
			if err := checkDraw(deck, sess.ManualSteps, *req.Draw); err != nil {
				return err
			}
		}

		sess.ManualSteps = append(sess.ManualSteps, domain.ManualStep{
			StepNumber: req.StepNumber,
			Step:       req.Step,
			Timestamp:  s.now().UTC(),
		})
		if len(sess.ManualSteps) < total {
			sess.Status = domain.StatusInProgress
			return nil
		}

		result, err := manualResult(*sess, deck)
		if err != nil {
			return err
		}
		completedAt := s.now().UTC()
		sess.Result = &result
		sess.Status = domain.StatusCompleted
		sess.CompletedAt = &completedAt
		completed = true
		return nil
	})
	if err != nil {
		s.metrics.ManualStep(string(method), "rejected")
		return ports.ManualStepResponse{}, fmt.Errorf("submit step: %w", err)
	}

	outcome := "recorded"
	if replay {
		outcome = "replayed"
		s.logger.DebugContext(ctx, "manual step replayed",
			slog.String("session_id", sess.ID),
			slog.Int("step_number", req.StepNumber),
		)
	}
	s.metrics.ManualStep(string(sess.Method), outcome)
	if completed {
		s.metrics.ReadingCompleted(string(sess.Mode), string(sess.Method))
	}

	partial, err := s.partialResult(ctx, sess, deck)
	if err != nil {
		return ports.ManualStepResponse{}, err
	}
	total := sess.Method.TotalSteps()
	return ports.ManualStepResponse{
		SessionID:     sess.ID,
		CurrentStep:   len(sess.ManualSteps),
		TotalSteps:    total,
		IsComplete:    len(sess.ManualSteps) >= total,
		PartialResult: partial,
	}, nil
}

// checkDraw rejects unknown cards, cards already drawn and positions other
// than the next slot.
func checkDraw(deck domain.Deck, steps []domain.ManualStep, d domain.TarotDrawStep) error {
	if _, ok := deck.Card(d.CardID); !ok {
		return fmt.Errorf("%w: unknown card id %d", domain.ErrInvalidInput, d.CardID)
	}
	for _, st := range steps {
		if st.Draw != nil && st.Draw.CardID == d.CardID {
			return fmt.Errorf("%w: card %d already drawn", domain.ErrInvalidInput, d.CardID)
		}
	}
	if want := domain.SpreadPositions[len(steps)]; d.Position != want {
		return fmt.Errorf("%w: step %d fills %q, got %q", domain.ErrInvalidInput, len(steps)+1, want, d.Position)
	}
	return nil
}

func tossesOf(steps []domain.ManualStep) []domain.CoinToss {
	tosses := make([]domain.CoinToss, 0, len(steps))
	for _, st := range steps {
		if st.Toss != nil {
			tosses = append(tosses, *st.Toss)
		}
	}
	return tosses
}

func drawsOf(deck domain.Deck, steps []domain.ManualStep, lang domain.Lang) ([]domain.TarotDraw, error) {
	draws := make([]domain.TarotDraw, 0, len(steps))
	for _, st := range steps {
		if st.Draw == nil {
			continue
		}
		d, err := domain.CreateManualDraw(deck, st.Draw.CardID, st.Draw.Position.Index(), st.Draw.IsUpright, lang)
		if err != nil {
			return nil, err
		}
		draws = append(draws, d)
	}
	return draws, nil
}

// manualResult builds the reading from a complete set of recorded steps.
func manualResult(sess domain.Session, deck domain.Deck) (domain.Result, error) {
	switch sess.Method {
	case domain.MethodLiuyao:
		res, err := domain.BuildLiuyaoResult(tossesOf(sess.ManualSteps))
		if err != nil {
			return domain.Result{}, err
		}
		return domain.Result{Liuyao: &res}, nil
	case domain.MethodTarot:
		draws, err := drawsOf(deck, sess.ManualSteps, sess.Lang)
		if err != nil {
			return domain.Result{}, err
		}
		res, err := domain.BuildTarotResult(draws, sess.Lang)
		if err != nil {
			return domain.Result{}, err
		}
		return domain.Result{Tarot: &res}, nil
	default:
		return domain.Result{}, fmt.Errorf("%w: unknown method %q", domain.ErrInvalidInput, sess.Method)
	}
}

func (s *DivinationService) partialResult(ctx context.Context, sess domain.Session, deck domain.Deck) (*ports.PartialResult, error) {
	if len(sess.ManualSteps) == 0 {
		return nil, nil
	}
	if sess.Method == domain.MethodLiuyao {
		return &ports.PartialResult{Tosses: tossesOf(sess.ManualSteps)}, nil
	}
	if deck.Cards == nil {
		var err error
		deck, err = s.decks.GetDeck(ctx, domain.DeckMajor22)
		if err != nil {
			return nil, fmt.Errorf("get deck: %w", err)
		}
	}
	draws, err := drawsOf(deck, sess.ManualSteps, sess.Lang)
	if err != nil {
		return nil, err
	}
	return &ports.PartialResult{Draws: draws}, nil
}

func (s *DivinationService) GetInterpretation(ctx context.Context, sessionID string) (ports.InterpretResponse, error) {
	// Concurrent callers share one run, which must outlive whichever caller
	// started it. Each caller still stops waiting when its own ctx ends.
	ch := s.interpretSF.DoChan(sessionID, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedInterpretTimeout)
		defer cancel()
		return s.getInterpretation(shared, sessionID)
	})
	select {
	case <-ctx.Done():
		return ports.InterpretResponse{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return ports.InterpretResponse{}, r.Err
		}
		return ports.InterpretResponse{SessionID: sessionID, Interpretation: r.Val.(domain.Interpretation)}, nil
	}
}

func (s *DivinationService) getInterpretation(ctx context.Context, sessionID string) (domain.Interpretation, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("get session: %w", err)
	}
	if sess.Interpretation != nil {
		return *sess.Interpretation, nil
	}

	var result domain.Result
	switch {
	case sess.Result != nil:
		result = *sess.Result
	case sess.Mode == domain.ModeManual:
		if n, total := len(sess.ManualSteps), sess.Method.TotalSteps(); n < total {
			return domain.Interpretation{}, fmt.Errorf("%w: %d of %d steps recorded", domain.ErrStepsIncomplete, n, total)
		}
		var deck domain.Deck
		if sess.Method == domain.MethodTarot {
			deck, err = s.decks.GetDeck(ctx, domain.DeckMajor22)
			if err != nil {
				return domain.Interpretation{}, fmt.Errorf("get deck: %w", err)
			}
		}
		result, err = manualResult(sess, deck)
		if err != nil {
			return domain.Interpretation{}, err
		}
	default:
		result, err = s.seededResult(ctx, sess)
		if err != nil {
			return domain.Interpretation{}, err
		}
	}

	interp, err := s.interpret(ctx, sess, result)
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("interpret: %w", err)
	}

	completedAt := s.now().UTC()
	_, err = s.store.Update(ctx, sess.ID, func(sess *domain.Session) error {
		sess.Result = &result
		sess.Interpretation = &interp
		sess.Status = domain.StatusCompleted
		if sess.CompletedAt == nil {
			sess.CompletedAt = &completedAt
		}
		return nil
	})
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("save interpretation: %w", err)
	}
	return interp, nil
}

// interpret asks the LLM, falling back to the built-in reading when enabled.
func (s *DivinationService) interpret(ctx context.Context, sess domain.Session, result domain.Result) (domain.Interpretation, error) {
	if s.interpreter == nil {
		s.metrics.InterpretFallback()
		return fallbackInterpretation(sess.Lang, result), nil
	}

	start := time.Now()
	out, err := s.interpreter.Interpret(ctx, ports.InterpretInput{
		Question: sess.Question.Text,
		Mode:     sess.Mode,
		Method:   sess.Method,
		Lang:     sess.Lang,
		Result:   result,
	})
	latency := time.Since(start)
	s.metrics.ObserveInterpret(latency, err)

	if err != nil {
		if !s.fallback || errors.Is(err, context.Canceled) {
			return domain.Interpretation{}, err
		}
		s.logger.WarnContext(ctx, "interpretation failed, using fallback",
			slog.String("session_id", sess.ID),
			slog.Any("error", err),
		)
		s.metrics.InterpretFallback()
		return fallbackInterpretation(sess.Lang, result), nil
	}

	s.logger.InfoContext(ctx, "interpretation ready",
		slog.String("session_id", sess.ID),
		slog.String("model", out.Model),
		slog.Int64("latency_ms", latency.Milliseconds()),
	)
	return out.Interpretation, nil
}

// GetSession returns the stored session.
func (s *DivinationService) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the user's most recent sessions, newest first.
func (s *DivinationService) ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	list, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return list, nil
}
