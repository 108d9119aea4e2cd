package flow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Yanchun-Li/ai-divination/internal/adapters/decks"
	"github.com/Yanchun-Li/ai-divination/internal/adapters/sessions"
	"github.com/Yanchun-Li/ai-divination/internal/app"
	"github.com/Yanchun-Li/ai-divination/internal/domain"
	"github.com/Yanchun-Li/ai-divination/internal/flow"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAPI forwards to an in-process service and can fail or block calls.
type fakeAPI struct {
	svc  *app.DivinationService
	seed string

	mu    sync.Mutex
	fail  map[string]int
	calls map[string]int
	steps []int

	// When block is set, GetInterpretation signals entered and waits on block.
	block   chan struct{}
	entered chan struct{}
}

func newFakeAPI(seed string) *fakeAPI {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fakeAPI{
		svc:   app.NewDivinationService(sessions.NewMemoryStore(100, 0), decks.NewEmbeddedStore(), nil, logger),
		seed:  seed,
		fail:  map[string]int{},
		calls: map[string]int{},
	}
}

func (f *fakeAPI) failNext(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = n
}

func (f *fakeAPI) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.fail[op] > 0 {
		f.fail[op]--
		return errors.New(op + " unavailable")
	}
	return nil
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) CreateSession(ctx context.Context, req ports.CreateSessionRequest) (ports.CreateSessionResponse, error) {
	if err := f.hit("create"); err != nil {
		return ports.CreateSessionResponse{}, err
	}
	req.Seed = f.seed
	return f.svc.CreateSession(ctx, req)
}

func (f *fakeAPI) Generate(ctx context.Context, id string) (ports.GenerateResponse, error) {
	if err := f.hit("generate"); err != nil {
		return ports.GenerateResponse{}, err
	}
	return f.svc.Generate(ctx, id)
}

func (f *fakeAPI) SubmitManualStep(ctx context.Context, req ports.ManualStepRequest) (ports.ManualStepResponse, error) {
	if err := f.hit("step"); err != nil {
		return ports.ManualStepResponse{}, err
	}
	f.mu.Lock()
	f.steps = append(f.steps, req.StepNumber)
	f.mu.Unlock()
	return f.svc.SubmitManualStep(ctx, req)
}

func (f *fakeAPI) GetInterpretation(ctx context.Context, id string) (ports.InterpretResponse, error) {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	if err := f.hit("interpret"); err != nil {
		return ports.InterpretResponse{}, err
	}
	return f.svc.GetInterpretation(ctx, id)
}

func newController(api ports.SessionAPI) *flow.Controller {
	return flow.NewController(api, decks.MajorArcana(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ready(t *testing.T, c *flow.Controller, mode domain.Mode, method domain.Method) {
	t.Helper()
	require.NoError(t, c.SetQuestion("Will the project ship?"))
	require.NoError(t, c.SetMode(mode))
	require.NoError(t, c.SetMethod(method))
	require.True(t, c.CanStart())
}

func toss(t *testing.T, sum int) domain.Step {
	t.Helper()
	coins := map[int][3]int{6: {2, 2, 2}, 7: {2, 2, 3}, 8: {2, 3, 3}, 9: {3, 3, 3}}[sum]
	ct, err := domain.ClassifyToss(coins)
	require.NoError(t, err)
	return domain.CoinTossStep(ct)
}

func TestStart_RequiresQuestion(t *testing.T) {
	api := newFakeAPI("abc")
	c := newController(api)

	require.NoError(t, c.SetQuestion(""))
	assert.Equal(t, flow.StageIdle, c.State().Stage)

	st, err := c.Start(context.Background(), domain.LangZH)
	require.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Equal(t, flow.StageIdle, st.Stage)
	assert.Equal(t, flow.StageIdle, c.State().Stage)
	assert.Zero(t, api.count("create"))

	require.NoError(t, c.SetMode(domain.ModeAI))
	assert.Equal(t, flow.StageIdle, c.State().Stage)
	require.NoError(t, c.SetMethod(domain.MethodLiuyao))
	assert.Equal(t, flow.StageIdle, c.State().Stage)
	require.NoError(t, c.SetQuestion("   "))
	assert.False(t, c.CanStart())
	st, err = c.Start(context.Background(), domain.LangZH)
	require.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Equal(t, flow.StageIdle, st.Stage)
	assert.Equal(t, flow.StageIdle, c.State().Stage)
	assert.Zero(t, api.count("create"))
}

func TestSetupStages_BlankQuestionReturnsToIdle(t *testing.T) {
	c := newController(newFakeAPI("abc"))

	require.NoError(t, c.SetMode(domain.ModeManual))
	require.NoError(t, c.SetMethod(domain.MethodTarot))
	assert.Equal(t, flow.StageIdle, c.State().Stage)

	require.NoError(t, c.SetQuestion("Which path?"))
	assert.Equal(t, flow.StageMethodSelected, c.State().Stage)
	assert.True(t, c.CanStart())

	require.NoError(t, c.SetQuestion(""))
	assert.Equal(t, flow.StageIdle, c.State().Stage)
	assert.Equal(t, domain.ModeManual, c.State().Mode)
	assert.Equal(t, domain.MethodTarot, c.State().Method)
	assert.False(t, c.CanStart())
}

func TestSetupStages(t *testing.T) {
	c := newController(newFakeAPI("abc"))

	require.NoError(t, c.SetQuestion("q"))
	assert.Equal(t, flow.StageQuestionEntered, c.State().Stage)
	require.NoError(t, c.SetMode(domain.ModeManual))
	assert.Equal(t, flow.StageModeSelected, c.State().Stage)
	require.NoError(t, c.SetMethod(domain.MethodTarot))
	assert.Equal(t, flow.StageMethodSelected, c.State().Stage)

	require.ErrorIs(t, c.SetMode("auto"), domain.ErrInvalidInput)
	require.ErrorIs(t, c.SetMethod("runes"), domain.ErrInvalidInput)
	assert.Equal(t, domain.ModeManual, c.State().Mode)
}

func TestAIMode_Liuyao(t *testing.T) {
	api := newFakeAPI("abc")
	c := newController(api)
	ready(t, c, domain.ModeAI, domain.MethodLiuyao)

	st, err := c.Start(context.Background(), domain.LangZH)
	require.NoError(t, err)
	assert.Equal(t, flow.StageCompleted, st.Stage)
	assert.Equal(t, "abc", st.Seed)
	assert.NotEmpty(t, st.SessionID)
	require.NotNil(t, st.Result)
	require.NotNil(t, st.Result.Liuyao)
	assert.Equal(t, 60, st.Result.Liuyao.PrimaryHexagram.ID)
	require.NotNil(t, st.Interpretation)
	assert.Equal(t, domain.ConfidenceLow, st.Interpretation.Confidence)
	assert.Equal(t, 1, api.count("generate"))

	require.ErrorIs(t, c.SetQuestion("another"), domain.ErrPrecondition)
}

func TestAIMode_TarotMatchesServer(t *testing.T) {
	api := newFakeAPI("abc")
	c := newController(api)
	ready(t, c, domain.ModeAI, domain.MethodTarot)

	st, err := c.Start(context.Background(), domain.LangEN)
	require.NoError(t, err)
	require.NotNil(t, st.Result.Tarot)
	assert.Equal(t, []int{0, 4, 13}, st.Result.Tarot.DrawSequence)
	assert.Equal(t, "Past", st.Result.Tarot.Cards[0].PositionLabel)

	sess, err := api.svc.GetSession(context.Background(), st.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess.Result)
	assert.Equal(t, st.Result.Tarot.DrawSequence, sess.Result.Tarot.DrawSequence)
}

func TestAIMode_GenerateFailureRetriesInterpretationOnly(t *testing.T) {
	api := newFakeAPI("seed-42")
	c := newController(api)
	ready(t, c, domain.ModeAI, domain.MethodLiuyao)
	api.failNext("generate", 1)

	st, err := c.Start(context.Background(), domain.LangZH)
	require.ErrorIs(t, err, domain.ErrCollaborator)
	assert.Equal(t, flow.StageError, st.Stage)
	assert.True(t, st.CanRetry)
	assert.Contains(t, st.Error, "generate unavailable")
	require.NotNil(t, st.Result, "result kept for retry")
	primary := st.Result.Liuyao.PrimaryHexagram.ID

	st, err = c.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, flow.StageCompleted, st.Stage)
	assert.Equal(t, primary, st.Result.Liuyao.PrimaryHexagram.ID)
	assert.Empty(t, st.Error)
	assert.Equal(t, 1, api.count("generate"))
	assert.Equal(t, 1, api.count("interpret"))

	_, err = c.Retry(context.Background())
	require.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestManualMode_Liuyao(t *testing.T) {
	api := newFakeAPI("")
	c := newController(api)
	ready(t, c, domain.ModeManual, domain.MethodLiuyao)
	ctx := context.Background()

	st, err := c.Start(ctx, domain.LangZH)
	require.NoError(t, err)
	assert.Equal(t, flow.StageInProgress, st.Stage)
	assert.Nil(t, st.Result)

	_, err = c.SubmitStep(ctx, domain.CardDrawStep(domain.TarotDrawStep{CardID: 1, Position: domain.PositionPast}))
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	for i, sum := range []int{7, 6, 8, 7, 9, 8} {
		st, err = c.SubmitStep(ctx, toss(t, sum))
		require.NoError(t, err)
		assert.Equal(t, i+1, st.SyncedSteps)
	}
	assert.Equal(t, flow.StageCompleted, st.Stage)
	require.NotNil(t, st.Result)
	assert.Equal(t, []int{2, 5}, st.Result.Liuyao.ChangingLines)
	primary := st.Result.Liuyao.PrimaryHexagram.Pattern
	relating := st.Result.Liuyao.RelatingHexagram.Pattern
	assert.Equal(t, domain.Pattern(1<<1|1<<4), primary^relating)
	require.NotNil(t, st.Interpretation)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, api.steps)

	_, err = c.SubmitStep(ctx, toss(t, 7))
	require.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestManualMode_TarotSync(t *testing.T) {
	api := newFakeAPI("")
	c := newController(api)
	ready(t, c, domain.ModeManual, domain.MethodTarot)
	ctx := context.Background()

	_, err := c.Start(ctx, domain.LangZH)
	require.NoError(t, err)

	// Steps committed on the machine directly are recorded by Sync.
	tarot := c.Tarot()
	_, err = tarot.Submit(domain.TarotDrawStep{CardID: 5, Position: domain.PositionPast, IsUpright: true})
	require.NoError(t, err)
	_, err = tarot.Submit(domain.TarotDrawStep{CardID: 9, Position: domain.PositionPresent})
	require.NoError(t, err)

	st, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.SyncedSteps)
	assert.Equal(t, flow.StageInProgress, st.Stage)

	st, err = c.SubmitStep(ctx, domain.CardDrawStep(domain.TarotDrawStep{CardID: 11, Position: domain.PositionFuture, IsUpright: true}))
	require.NoError(t, err)
	assert.Equal(t, flow.StageCompleted, st.Stage)
	assert.Equal(t, []int{5, 9, 11}, st.Result.Tarot.DrawSequence)
	assert.Equal(t, []int{1, 2, 3}, api.steps)
}

func TestManualMode_TarotHandleTakenBeforeStart(t *testing.T) {
	api := newFakeAPI("")
	c := newController(api)
	widget := c.Tarot()
	ready(t, c, domain.ModeManual, domain.MethodTarot)
	ctx := context.Background()

	_, err := c.Start(ctx, domain.LangEN)
	require.NoError(t, err)
	require.Same(t, widget, c.Tarot())

	st, err := widget.Draw(ctx, 5, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionPast.Label(domain.LangEN), st.Drawn[0].PositionLabel)

	fs, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.SyncedSteps)
	assert.Equal(t, []int{1}, api.steps)

	// Reset keeps the handle too.
	c.Reset()
	require.Same(t, widget, c.Tarot())
	assert.Zero(t, widget.State().Count)
}

func TestManualMode_StepInProgress(t *testing.T) {
	c := newController(newFakeAPI(""))
	ready(t, c, domain.ModeManual, domain.MethodLiuyao)
	ctx := context.Background()
	_, err := c.Start(ctx, domain.LangZH)
	require.NoError(t, err)

	pending, err := c.Liuyao().Begin()
	require.NoError(t, err)

	st, err := c.SubmitStep(ctx, toss(t, 7))
	require.ErrorIs(t, err, domain.ErrStepInProgress)
	assert.Zero(t, st.SyncedSteps)

	_, err = pending.Commit(mustToss(t, 8))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Liuyao().Count())

	st, err = c.SubmitStep(ctx, toss(t, 7))
	require.NoError(t, err)
	assert.Equal(t, 2, st.SyncedSteps)
	assert.Equal(t, 2, c.Liuyao().Count())
}

func mustToss(t *testing.T, sum int) domain.CoinToss {
	t.Helper()
	return *toss(t, sum).Toss
}

func TestManualMode_StepFailureAndRetry(t *testing.T) {
	api := newFakeAPI("")
	c := newController(api)
	ready(t, c, domain.ModeManual, domain.MethodLiuyao)
	ctx := context.Background()
	_, err := c.Start(ctx, domain.LangZH)
	require.NoError(t, err)

	_, err = c.SubmitStep(ctx, toss(t, 7))
	require.NoError(t, err)

	api.failNext("step", 1)
	st, err := c.SubmitStep(ctx, toss(t, 8))
	require.ErrorIs(t, err, domain.ErrCollaborator)
	assert.Equal(t, flow.StageError, st.Stage)
	assert.Equal(t, 1, st.SyncedSteps)
	assert.Equal(t, 2, c.Liuyao().Count(), "committed locally")

	st, err = c.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, flow.StageInProgress, st.Stage)
	assert.Equal(t, 2, st.SyncedSteps)
	assert.Equal(t, []int{1, 2}, api.steps)
}

func TestInterpretationFailureAndRetry(t *testing.T) {
	api := newFakeAPI("")
	c := newController(api)
	ready(t, c, domain.ModeManual, domain.MethodLiuyao)
	ctx := context.Background()
	_, err := c.Start(ctx, domain.LangZH)
	require.NoError(t, err)

	api.failNext("interpret", 2)
	var st flow.State
	for _, sum := range []int{7, 7, 8, 8, 7, 8} {
		st, err = c.SubmitStep(ctx, toss(t, sum))
	}
	require.ErrorIs(t, err, domain.ErrCollaborator)
	assert.Equal(t, flow.StageError, st.Stage)
	require.NotNil(t, st.Result)
	assert.Nil(t, st.Interpretation)
	assert.Equal(t, 60, st.Result.Liuyao.PrimaryHexagram.ID)

	_, err = c.Retry(ctx)
	require.ErrorIs(t, err, domain.ErrCollaborator)

	st, err = c.RequestInterpretation(ctx)
	require.NoError(t, err)
	assert.Equal(t, flow.StageCompleted, st.Stage)
	require.NotNil(t, st.Interpretation)
	assert.Equal(t, 6, api.count("step"))
	assert.Equal(t, 3, api.count("interpret"))
}

func TestCreateFailureAndRetry(t *testing.T) {
	api := newFakeAPI("")
	c := newController(api)
	ready(t, c, domain.ModeManual, domain.MethodTarot)
	api.failNext("create", 1)

	st, err := c.Start(context.Background(), domain.LangJA)
	require.ErrorIs(t, err, domain.ErrCollaborator)
	assert.Equal(t, flow.StageError, st.Stage)
	assert.Empty(t, st.SessionID)

	st, err = c.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, flow.StageInProgress, st.Stage)
	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, domain.LangJA, st.Lang)
}

func TestReset_DiscardsInFlightResponse(t *testing.T) {
	api := newFakeAPI("")
	api.block = make(chan struct{})
	api.entered = make(chan struct{})
	c := newController(api)
	ready(t, c, domain.ModeManual, domain.MethodLiuyao)
	ctx := context.Background()
	_, err := c.Start(ctx, domain.LangZH)
	require.NoError(t, err)

	for _, sum := range []int{7, 7, 8, 8, 7} {
		_, err = c.SubmitStep(ctx, toss(t, sum))
		require.NoError(t, err)
	}

	last := toss(t, 8)
	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitStep(ctx, last)
		done <- err
	}()
	<-api.entered

	assert.Equal(t, flow.StageInterpreting, c.State().Stage)
	_, err = c.RequestInterpretation(ctx)
	require.ErrorIs(t, err, domain.ErrStepInProgress)

	c.Reset()
	close(api.block)
	require.ErrorIs(t, <-done, domain.ErrStale)

	st := c.State()
	assert.Equal(t, flow.StageIdle, st.Stage)
	assert.Empty(t, st.SessionID)
	assert.Nil(t, st.Result)
	assert.Nil(t, st.Interpretation)
	assert.Zero(t, c.Liuyao().Count())
	assert.False(t, c.CanStart())
}

func TestReset_FromAnyStage(t *testing.T) {
	c := newController(newFakeAPI("abc"))
	c.Reset()
	assert.Equal(t, flow.StageIdle, c.State().Stage)

	ready(t, c, domain.ModeAI, domain.MethodTarot)
	_, err := c.Start(context.Background(), domain.LangZH)
	require.NoError(t, err)
	c.Reset()

	st := c.State()
	assert.Equal(t, flow.StageIdle, st.Stage)
	assert.Empty(t, st.Question)
	ready(t, c, domain.ModeAI, domain.MethodTarot)
}
