// Package flow drives one divination attempt end to end: question, mode and
// method selection, session creation, generation or manual steps, and the
// interpretation request.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
	"github.com/Yanchun-Li/ai-divination/internal/manual"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

// Stage is the position of an attempt in the flow.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageQuestionEntered Stage = "question_entered"
	StageModeSelected    Stage = "mode_selected"
	StageMethodSelected  Stage = "method_selected"
	StageInProgress      Stage = "in_progress"
	StageGenerating      Stage = "generating"
	StageInterpreting    Stage = "interpreting"
	StageCompleted       Stage = "completed"
	StageError           Stage = "error"
)

// setup reports whether the stage is before Start.
func (s Stage) setup() bool {
	switch s {
	case StageIdle, StageQuestionEntered, StageModeSelected, StageMethodSelected:
		return true
	}
	return false
}

// State is a snapshot of the attempt.
type State struct {
	Stage          Stage
	Question       string
	Mode           domain.Mode
	Method         domain.Method
	Lang           domain.Lang
	SessionID      string
	Seed           string
	Result         *domain.Result
	Interpretation *domain.Interpretation
	// SyncedSteps counts manual steps acknowledged by the session service.
	SyncedSteps int
	// Error holds the message of the failure that put the flow in StageError.
	Error string
	// CanRetry is set in StageError when Retry can resume the attempt.
	CanRetry bool
}

type retryOp int

const (
	retryNone retryOp = iota
	retryCreate
	retrySync
	retryInterpret
)

// Controller owns the flow state of one attempt at a time. It is safe for
// concurrent use; only one collaborator call is in flight at a time.
type Controller struct {
	api    ports.SessionAPI
	deck   domain.Deck
	logger *slog.Logger

	mu      sync.Mutex
	st      State
	attempt uint64
	busy    bool
	retry   retryOp
	liuyao  *manual.Liuyao
	tarot   *manual.Tarot
}

// NewController builds a controller over api. deck backs tarot readings.
func NewController(api ports.SessionAPI, deck domain.Deck, logger *slog.Logger) *Controller {
	return &Controller{
		api:    api,
		deck:   deck,
		logger: logger,
		st:     State{Stage: StageIdle, Lang: domain.DefaultLang},
		liuyao: manual.NewLiuyao(),
		tarot:  manual.NewTarot(deck, domain.DefaultLang),
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	st := c.st
	if st.Result != nil {
		r := *st.Result
		st.Result = &r
	}
	if st.Interpretation != nil {
		in := *st.Interpretation
		st.Interpretation = &in
	}
	return st
}

// Liuyao is the coin-toss machine. The same machine serves every attempt.
func (c *Controller) Liuyao() *manual.Liuyao {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liuyao
}

// Tarot is the card-draw machine. The same machine serves every attempt;
// Start resets it to the attempt's language.
func (c *Controller) Tarot() *manual.Tarot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tarot
}

// setupStage derives the stage from the selections. Nothing counts until the
// question is non-blank.
func (c *Controller) setupStage() Stage {
	switch {
	case strings.TrimSpace(c.st.Question) == "":
		return StageIdle
	case c.st.Mode.Valid() && c.st.Method.Valid():
		return StageMethodSelected
	case c.st.Mode.Valid():
		return StageModeSelected
	default:
		return StageQuestionEntered
	}
}

func (c *Controller) setField(apply func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.st.Stage.setup() {
		return fmt.Errorf("%w: attempt already started, reset first", domain.ErrPrecondition)
	}
	apply()
	c.st.Stage = c.setupStage()
	return nil
}

func (c *Controller) SetQuestion(q string) error {
	return c.setField(func() { c.st.Question = q })
}

func (c *Controller) SetMode(m domain.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, m)
	}
	return c.setField(func() { c.st.Mode = m })
}

func (c *Controller) SetMethod(m domain.Method) error {
	if !m.Valid() {
		return fmt.Errorf("%w: unknown method %q", domain.ErrInvalidInput, m)
	}
	return c.setField(func() { c.st.Method = m })
}

// CanStart reports whether Start's precondition holds: a non-blank question
// and both mode and method selected.
func (c *Controller) CanStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canStart()
}

func (c *Controller) canStart() bool {
	return c.st.Stage.setup() &&
		strings.TrimSpace(c.st.Question) != "" &&
		c.st.Mode.Valid() &&
		c.st.Method.Valid()
}

// acquire marks a collaborator call in flight and returns its attempt number.
func (c *Controller) acquire() (uint64, error) {
	if c.busy {
		return 0, domain.ErrStepInProgress
	}
	c.busy = true
	return c.attempt, nil
}

// resume re-takes the lock after a collaborator call. It reports false, with
// the lock released, when the attempt was superseded meanwhile.
func (c *Controller) resume(attempt uint64) bool {
	c.mu.Lock()
	if attempt != c.attempt {
		c.mu.Unlock()
		return false
	}
	return true
}

// fail records a collaborator failure. Called with the lock held.
func (c *Controller) fail(op retryOp, err error) error {
	if !errors.Is(err, domain.ErrCollaborator) {
		err = fmt.Errorf("%w: %w", domain.ErrCollaborator, err)
	}
	c.st.Stage = StageError
	c.st.Error = err.Error()
	c.st.CanRetry = op != retryNone
	c.retry = op
	c.busy = false
	return err
}

func staleErr(attempt uint64) error {
	return fmt.Errorf("%w: attempt %d", domain.ErrStale, attempt)
}

// Start opens a session with the collaborator. In AI mode it then generates
// the reading from the session seed and fetches the interpretation; in
// manual mode it leaves the flow in progress for SubmitStep.
func (c *Controller) Start(ctx context.Context, lang domain.Lang) (State, error) {
	c.mu.Lock()
	if !c.canStart() {
		st := c.snapshot()
		c.mu.Unlock()
		return st, fmt.Errorf("%w: question, mode and method are required", domain.ErrPrecondition)
	}
	attempt, err := c.acquire()
	if err != nil {
		st := c.snapshot()
		c.mu.Unlock()
		return st, err
	}
	if lang.Valid() {
		c.st.Lang = lang
	}
	c.st.Stage = StageInProgress
	c.mu.Unlock()

	return c.create(ctx, attempt)
}

func (c *Controller) create(ctx context.Context, attempt uint64) (State, error) {
	if !c.resume(attempt) {
		return c.State(), staleErr(attempt)
	}
	req := ports.CreateSessionRequest{
		Question: strings.TrimSpace(c.st.Question),
		Mode:     c.st.Mode,
		Method:   c.st.Method,
		Lang:     c.st.Lang,
	}
	c.mu.Unlock()

	resp, err := c.api.CreateSession(ctx, req)
	if !c.resume(attempt) {
		return c.State(), staleErr(attempt)
	}
	if err != nil {
		err = c.fail(retryCreate, fmt.Errorf("create session: %w", err))
		st := c.snapshot()
		c.mu.Unlock()
		return st, err
	}

	c.st.SessionID = resp.SessionID
	c.st.Seed = resp.Seed
	c.st.Error = ""
	c.st.CanRetry = false
	c.liuyao.Reset()
	c.tarot.ResetLang(c.st.Lang)

	if c.st.Mode == domain.ModeManual {
		c.busy = false
		st := c.snapshot()
		c.mu.Unlock()
		return st, nil
	}

	result, err := c.seeded()
	if err != nil {
		// The engine only fails on a broken catalog.
		c.busy = false
		c.st.Stage = StageError
		c.st.Error = err.Error()
		st := c.snapshot()
		c.mu.Unlock()
		return st, err
	}
	c.st.Result = &result
	c.st.Stage = StageGenerating
	c.mu.Unlock()

	return c.generate(ctx, attempt)
}

// seeded runs the seeded engine for the session seed. Called with the lock held.
func (c *Controller) seeded() (domain.Result, error) {
	switch c.st.Method {
	case domain.MethodLiuyao:
		res := domain.GenerateLiuyaoSeeded(c.st.Seed)
		return domain.Result{Liuyao: &res}, nil
	default:
		draws, err := domain.DrawTarotSeeded(c.deck, c.st.Seed, c.st.Lang)
		if err != nil {
			return domain.Result{}, err
		}
		res, err := domain.BuildTarotResult(draws, c.st.Lang)
		if err != nil {
			return domain.Result{}, err
		}
		return domain.Result{Tarot: &res}, nil
	}
}

func (c *Controller) generate(ctx context.Context, attempt uint64) (State, error) {
	if !c.resume(attempt) {
		return c.State(), staleErr(attempt)
	}
	sessionID := c.st.SessionID
	c.mu.Unlock()

	resp, err := c.api.Generate(ctx, sessionID)
	if !c.resume(attempt) {
		return c.State(), staleErr(attempt)
	}
	defer c.mu.Unlock()
	if err != nil {
		// The local result stands; only the interpretation is retried.
		err = c.fail(retryInterpret, fmt.Errorf("generate: %w", err))
		return c.snapshot(), err
	}

	if !resp.Result.IsZero() && !cmp.Equal(*c.st.Result, resp.Result, cmpopts.EquateEmpty()) {
		c.logger.WarnContext(ctx, "server reading differs from local seeded reading",
			slog.String("session_id", c.st.SessionID),
			slog.String("seed", c.st.Seed),
		)
	}
	interp := resp.Interpretation
	c.st.Interpretation = &interp
	c.st.Stage = StageCompleted
	c.busy = false
	return c.snapshot(), nil
}

// SubmitStep commits a manual step to the method's machine and records it
// with the collaborator. When the machine completes, the interpretation is
// requested.
func (c *Controller) SubmitStep(ctx context.Context, step domain.Step) (State, error) {
	if err := step.Validate(); err != nil {
		return c.State(), err
	}

	c.mu.Lock()
	if c.st.Stage != StageInProgress || c.st.Mode != domain.ModeManual {
		st := c.snapshot()
		c.mu.Unlock()
		return st, fmt.Errorf("%w: no manual reading in progress", domain.ErrPrecondition)
	}
	if want := c.st.Method.Action(); step.Action != want {
		st := c.snapshot()
		c.mu.Unlock()
		return st, fmt.Errorf("%w: %s reading takes %s steps", domain.ErrInvalidInput, c.st.Method, want)
	}
	attempt, err := c.acquire()
	if err != nil {
		st := c.snapshot()
		c.mu.Unlock()
		return st, err
	}

	switch step.Action {
	case domain.ActionCoinToss:
		_, err = c.liuyao.Submit(*step.Toss)
	case domain.ActionCardDraw:
		_, err = c.tarot.Submit(*step.Draw)
	}
	if err != nil {
		c.busy = false
		st := c.snapshot()
		c.mu.Unlock()
		return st, err
	}
	c.mu.Unlock()

	return c.sync(ctx, attempt)
}

// Sync records steps committed directly on the machine, e.g. through its
// animated Toss or Draw, and requests the interpretation once complete.
func (c *Controller) Sync(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.st.Stage != StageInProgress || c.st.Mode != domain.ModeManual {
		st := c.snapshot()
		c.mu.Unlock()
		return st, fmt.Errorf("%w: no manual reading in progress", domain.ErrPrecondition)
	}
	attempt, err := c.acquire()
	c.mu.Unlock()
	if err != nil {
		return c.State(), err
	}
	return c.sync(ctx, attempt)
}

// machineSteps returns the committed steps as wire steps. Called with the lock held.
func (c *Controller) machineSteps() ([]domain.Step, bool) {
	if c.st.Method == domain.MethodLiuyao {
		st := c.liuyao.State()
		steps := make([]domain.Step, len(st.Tosses))
		for i, t := range st.Tosses {
			steps[i] = domain.CoinTossStep(t)
		}
		return steps, st.Complete
	}
	draws := c.tarot.Steps()
	steps := make([]domain.Step, len(draws))
	for i, d := range draws {
		steps[i] = domain.CardDrawStep(d)
	}
	return steps, c.tarot.Complete()
}

// sync sends unacknowledged steps in order. The caller holds the busy flag.
func (c *Controller) sync(ctx context.Context, attempt uint64) (State, error) {
	for {
		if !c.resume(attempt) {
			return c.State(), staleErr(attempt)
		}
		steps, complete := c.machineSteps()
		if c.st.SyncedSteps >= len(steps) {
			if !complete {
				c.busy = false
				st := c.snapshot()
				c.mu.Unlock()
				return st, nil
			}
			result := c.manualResult()
			c.st.Result = &result
			c.st.Stage = StageInterpreting
			c.mu.Unlock()
			return c.interpret(ctx, attempt)
		}
		n := c.st.SyncedSteps + 1
		req := ports.ManualStepRequest{
			SessionID:  c.st.SessionID,
			StepNumber: n,
			Step:       steps[n-1],
		}
		c.mu.Unlock()

		resp, err := c.api.SubmitManualStep(ctx, req)
		if !c.resume(attempt) {
			return c.State(), staleErr(attempt)
		}
		if err != nil {
			err = c.fail(retrySync, fmt.Errorf("record step %d: %w", n, err))
			st := c.snapshot()
			c.mu.Unlock()
			return st, err
		}
		c.st.SyncedSteps = max(n, min(resp.CurrentStep, len(steps)))
		c.mu.Unlock()
	}
}

// manualResult reads the memoized machine result. Called with the lock held.
func (c *Controller) manualResult() domain.Result {
	if c.st.Method == domain.MethodLiuyao {
		res, _ := c.liuyao.Result()
		return domain.Result{Liuyao: &res}
	}
	res, _ := c.tarot.Result()
	return domain.Result{Tarot: &res}
}

// RequestInterpretation asks the collaborator to interpret the current
// reading. The reading itself is never recomputed.
func (c *Controller) RequestInterpretation(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.st.Result == nil || c.st.SessionID == "" || c.st.Stage.setup() {
		st := c.snapshot()
		c.mu.Unlock()
		return st, fmt.Errorf("%w: no reading to interpret", domain.ErrPrecondition)
	}
	attempt, err := c.acquire()
	if err != nil {
		st := c.snapshot()
		c.mu.Unlock()
		return st, err
	}
	c.st.Stage = StageInterpreting
	c.mu.Unlock()

	return c.interpret(ctx, attempt)
}

func (c *Controller) interpret(ctx context.Context, attempt uint64) (State, error) {
	if !c.resume(attempt) {
		return c.State(), staleErr(attempt)
	}
	sessionID := c.st.SessionID
	c.mu.Unlock()

	resp, err := c.api.GetInterpretation(ctx, sessionID)
	if !c.resume(attempt) {
		return c.State(), staleErr(attempt)
	}
	defer c.mu.Unlock()
	if err != nil {
		err = c.fail(retryInterpret, fmt.Errorf("interpret: %w", err))
		return c.snapshot(), err
	}
	interp := resp.Interpretation
	c.st.Interpretation = &interp
	c.st.Stage = StageCompleted
	c.st.Error = ""
	c.st.CanRetry = false
	c.retry = retryNone
	c.busy = false
	return c.snapshot(), nil
}

// Retry resumes a failed attempt at the call that failed: session creation,
// step recording or the interpretation request.
func (c *Controller) Retry(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.st.Stage != StageError || c.retry == retryNone {
		st := c.snapshot()
		c.mu.Unlock()
		return st, fmt.Errorf("%w: nothing to retry", domain.ErrPrecondition)
	}
	attempt, err := c.acquire()
	if err != nil {
		st := c.snapshot()
		c.mu.Unlock()
		return st, err
	}
	op := c.retry
	c.retry = retryNone
	c.st.Error = ""
	c.st.CanRetry = false
	switch op {
	case retryCreate, retrySync:
		c.st.Stage = StageInProgress
	default:
		c.st.Stage = StageInterpreting
	}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "retrying failed call", slog.Int("op", int(op)))

	switch op {
	case retryCreate:
		return c.create(ctx, attempt)
	case retrySync:
		return c.sync(ctx, attempt)
	default:
		return c.interpret(ctx, attempt)
	}
}

// Reset abandons the attempt and returns to idle. Calls still in flight
// finish with ErrStale and leave the new state alone.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt++
	c.busy = false
	c.retry = retryNone
	c.st = State{Stage: StageIdle, Lang: c.st.Lang}
	c.liuyao.Reset()
	c.tarot.Reset()
}
