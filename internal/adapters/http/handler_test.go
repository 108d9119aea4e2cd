package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yanchun-Li/ai-divination/internal/adapters/decks"
	httpadapter "github.com/Yanchun-Li/ai-divination/internal/adapters/http"
	"github.com/Yanchun-Li/ai-divination/internal/adapters/sessions"
	"github.com/Yanchun-Li/ai-divination/internal/app"
	"github.com/Yanchun-Li/ai-divination/internal/domain"
	"github.com/Yanchun-Li/ai-divination/internal/metrics"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

type failingInterpreter struct{}

func (failingInterpreter) Interpret(context.Context, ports.InterpretInput) (ports.InterpretOutput, error) {
	return ports.InterpretOutput{}, domain.ErrUpstreamLLM
}

func newServer(t *testing.T, interp ports.Interpreter, opts ...app.Option) *echo.Echo {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	opts = append(opts, app.WithMetrics(m))
	svc := app.NewDivinationService(sessions.NewMemoryStore(100, time.Hour), decks.NewEmbeddedStore(), interp, logger, opts...)

	e := echo.New()
	e.Use(httpadapter.RequestIDMiddleware())
	e.Use(httpadapter.MetricsMiddleware(m))
	httpadapter.NewHandler(svc, m, logger).Register(e)
	return e
}

func call(e *echo.Echo, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, e *echo.Echo, body string) ports.CreateSessionResponse {
	t.Helper()
	rec := call(e, http.MethodPost, "/api/v2/divination/session", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ports.CreateSessionResponse](t, rec)
}

func TestHealthz(t *testing.T) {
	e := newServer(t, nil)
	rec := call(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRequestID(t *testing.T) {
	e := newServer(t, nil)

	rec := call(e, http.MethodGet, "/healthz", "", "X-Request-Id", "req-123")
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))

	rec = call(e, http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)
}

func TestCreateSession(t *testing.T) {
	e := newServer(t, nil)

	resp := createSession(t, e, `{"question":"Will it rain?","mode":"ai","method":"liuyao","lang":"en","user_seed":"abc"}`)
	assert.Equal(t, "abc", resp.Seed)
	assert.Equal(t, domain.StatusPending, resp.Status)
	assert.NotEmpty(t, resp.SessionID)

	rec := call(e, http.MethodPost, "/api/v2/divination/session", `{"question":"","mode":"ai","method":"liuyao"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[httpadapter.ErrorResponse](t, rec).Error, "question is required")

	rec = call(e, http.MethodPost, "/api/v2/divination/session", `{"question":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSession_AcceptLanguage(t *testing.T) {
	e := newServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/divination/session",
		strings.NewReader(`{"question":"q","mode":"manual","method":"tarot"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[ports.CreateSessionResponse](t, rec)

	rec = call(e, http.MethodGet, "/api/v2/divination/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[httpadapter.SessionResponse](t, rec)
	assert.Equal(t, domain.LangJA, sess.Lang)
	assert.Equal(t, 0, sess.CurrentStep)
	assert.Equal(t, 3, sess.TotalSteps)
}

func TestGenerate(t *testing.T) {
	e := newServer(t, nil)
	created := createSession(t, e, `{"question":"q","mode":"ai","method":"liuyao","user_seed":"abc"}`)

	rec := call(e, http.MethodPost, "/api/v2/divination/generate", `{"session_id":"`+created.SessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var raw struct {
		Status domain.Status `json:"status"`
		Result struct {
			Type            string `json:"type"`
			PrimaryHexagram struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"primary_hexagram"`
			RelatingHexagram *struct{} `json:"relating_hexagram"`
		} `json:"result"`
		Interpretation domain.Interpretation `json:"interpretation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, domain.StatusCompleted, raw.Status)
	assert.Equal(t, "liuyao", raw.Result.Type)
	assert.Equal(t, 60, raw.Result.PrimaryHexagram.ID)
	assert.Equal(t, "节", raw.Result.PrimaryHexagram.Name)
	assert.Nil(t, raw.Result.RelatingHexagram)
	assert.Equal(t, domain.ConfidenceLow, raw.Interpretation.Confidence)

	resp := decode[ports.GenerateResponse](t, rec)
	require.NotNil(t, resp.Result.Liuyao)
	assert.Equal(t, domain.GenerateLiuyaoSeeded("abc").PrimaryHexagram, resp.Result.Liuyao.PrimaryHexagram)

	rec = call(e, http.MethodPost, "/api/v2/divination/generate", `{"session_id":"`+created.SessionID+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGenerate_Errors(t *testing.T) {
	e := newServer(t, nil)
	manual := createSession(t, e, `{"question":"q","mode":"manual","method":"liuyao"}`)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing id", `{}`, http.StatusBadRequest},
		{"bad json", `{"session_id":`, http.StatusBadRequest},
		{"unknown session", `{"session_id":"nope"}`, http.StatusNotFound},
		{"manual session", `{"session_id":"` + manual.SessionID + `"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(e, http.MethodPost, "/api/v2/divination/generate", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestGenerate_UpstreamFailure(t *testing.T) {
	e := newServer(t, failingInterpreter{}, app.WithoutFallback())
	created := createSession(t, e, `{"question":"q","mode":"ai","method":"tarot"}`)

	rec := call(e, http.MethodPost, "/api/v2/divination/generate", `{"session_id":"`+created.SessionID+`"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[httpadapter.ErrorResponse](t, rec)
	assert.Equal(t, "upstream LLM failure", body.Error)
	assert.NotEmpty(t, body.RequestID)
}

func TestManualStepAndInterpret(t *testing.T) {
	e := newServer(t, nil)
	created := createSession(t, e, `{"question":"q","mode":"manual","method":"liuyao","lang":"zh"}`)
	id := created.SessionID

	rec := call(e, http.MethodPost, "/api/v2/divination/interpret", `{"session_id":"`+id+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	step := func(n int, coins string, sum int, yao string, changing bool) *httptest.ResponseRecorder {
		body, err := json.Marshal(map[string]any{
			"session_id":  id,
			"step_number": n,
			"action":      "coin_toss",
			"data": map[string]any{
				"coins":       json.RawMessage(coins),
				"sum":         sum,
				"yao_type":    yao,
				"is_changing": changing,
			},
		})
		require.NoError(t, err)
		return call(e, http.MethodPost, "/api/v2/divination/manual/step", string(body))
	}

	rec = step(1, "[2,2,3]", 7, "young_yang", false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ports.ManualStepResponse](t, rec)
	assert.Equal(t, 1, resp.CurrentStep)
	assert.Equal(t, 6, resp.TotalSteps)
	assert.False(t, resp.IsComplete)
	require.NotNil(t, resp.PartialResult)
	assert.Len(t, resp.PartialResult.Tosses, 1)

	rec = step(3, "[2,2,3]", 7, "young_yang", false)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = step(2, "[2,2,3]", 8, "young_yin", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "inconsistent toss")

	for n := 2; n <= 6; n++ {
		rec = step(n, "[2,3,3]", 8, "young_yin", false)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.True(t, decode[ports.ManualStepResponse](t, rec).IsComplete)

	rec = call(e, http.MethodPost, "/api/v2/divination/interpret", `{"session_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	interp := decode[ports.InterpretResponse](t, rec)
	assert.Equal(t, id, interp.SessionID)
	assert.NotEmpty(t, interp.Interpretation.Summary)
}

func TestManualStep_WireFormat(t *testing.T) {
	e := newServer(t, nil)
	created := createSession(t, e, `{"question":"q","mode":"manual","method":"tarot","lang":"en"}`)
	id := created.SessionID

	rec := call(e, http.MethodPost, "/api/v2/divination/manual/step",
		`{"session_id":"`+id+`","step_number":1,"action":"card_draw","data":{"card_id":17,"position":"past","is_upright":true}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ports.ManualStepResponse](t, rec)
	require.Len(t, resp.PartialResult.Draws, 1)
	assert.Equal(t, 17, resp.PartialResult.Draws[0].Card.ID)

	// The payload belongs under "data"; a body without it is rejected.
	rec = call(e, http.MethodPost, "/api/v2/divination/manual/step",
		`{"session_id":"`+id+`","step_number":2,"action":"card_draw","card_draw":{"card_id":3,"position":"present"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = call(e, http.MethodPost, "/api/v2/divination/manual/step",
		`{"session_id":"`+id+`","step_number":2,"action":"card_draw","data":{"card_id":"three"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(e, http.MethodGet, "/api/v2/divination/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var raw struct {
		ManualSteps []map[string]json.RawMessage `json:"manual_steps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw.ManualSteps, 1)
	assert.JSONEq(t, `"card_draw"`, string(raw.ManualSteps[0]["action"]))
	assert.JSONEq(t, `{"card_id":17,"position":"past","is_upright":true}`, string(raw.ManualSteps[0]["data"]))
	assert.JSONEq(t, `1`, string(raw.ManualSteps[0]["step_number"]))
}

func TestRecords(t *testing.T) {
	e := newServer(t, nil)
	createSession(t, e, `{"question":"one","mode":"ai","method":"tarot","user_id":"u9"}`)
	createSession(t, e, `{"question":"two","mode":"ai","method":"tarot","user_id":"u9"}`)

	rec := call(e, http.MethodGet, "/api/v2/divination/records", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = call(e, http.MethodGet, "/api/v2/divination/records?user_id=u9&limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(e, http.MethodGet, "/api/v2/divination/records?user_id=u9&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[httpadapter.RecordsResponse](t, rec)
	assert.Equal(t, "u9", records.UserID)
	assert.Len(t, records.Records, 2)
}

func TestGetSession_NotFound(t *testing.T) {
	e := newServer(t, nil)
	rec := call(e, http.MethodGet, "/api/v2/divination/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newServer(t, nil)
	createSession(t, e, `{"question":"q","mode":"ai","method":"tarot"}`)

	rec := call(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `divination_sessions_created_total{method="tarot",mode="ai"} 1`)
	assert.Contains(t, body, `divination_http_requests_total{code="201",method="POST",route="/api/v2/divination/session"} 1`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrWrongMode, http.StatusConflict},
		{domain.ErrWrongStatus, http.StatusConflict},
		{domain.ErrStepOutOfOrder, http.StatusConflict},
		{domain.ErrStepsIncomplete, http.StatusConflict},
		{domain.ErrAlreadyComplete, http.StatusConflict},
		{domain.ErrUpstreamLLM, http.StatusBadGateway},
		{domain.ErrInvalidLLMJSON, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpadapter.StatusFor(tt.err), tt.err.Error())
	}
}
