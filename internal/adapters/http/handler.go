package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
	"github.com/Yanchun-Li/ai-divination/internal/metrics"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

// BasePath prefixes the divination routes.
const BasePath = "/api/v2/divination"

// Service is what the handler needs from the session service.
type Service interface {
	ports.SessionAPI
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error)
}

type Handler struct {
	svc     Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler builds the handler. m may be nil, in which case /metrics is not served.
func NewHandler(svc Service, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, metrics: m, logger: logger}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}

	g := e.Group(BasePath)
	g.POST("/session", h.CreateSession)
	g.POST("/generate", h.Generate)
	g.POST("/manual/step", h.SubmitManualStep)
	g.POST("/interpret", h.Interpret)
	g.GET("/records", h.ListRecords)
	g.GET("/:id", h.GetSession)
}

func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) CreateSession(c echo.Context) error {
	var req ports.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.Lang == "" {
		req.Lang = domain.Lang(c.Request().Header.Get("Accept-Language"))
	}

	resp, err := h.svc.CreateSession(c.Request().Context(), req)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Generate(c echo.Context) error {
	ref, problem := bindRef(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	resp, err := h.svc.Generate(c.Request().Context(), ref.SessionID)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SubmitManualStep(c echo.Context) error {
	var req ports.ManualStepRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.SessionID == "" {
		return badRequest(c, "session_id is required")
	}
	resp, err := h.svc.SubmitManualStep(c.Request().Context(), req)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Interpret(c echo.Context) error {
	ref, problem := bindRef(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	resp, err := h.svc.GetInterpretation(c.Request().Context(), ref.SessionID)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.svc.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) ListRecords(c echo.Context) error {
	userID := c.QueryParam("user_id")
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return badRequest(c, "limit must be an integer between 1 and 100")
		}
		limit = n
	}

	list, err := h.svc.ListSessions(c.Request().Context(), userID, limit)
	if err != nil {
		return h.mapError(c, err)
	}
	records := make([]SessionResponse, len(list))
	for i, s := range list {
		records[i] = toSessionResponse(s)
	}
	return c.JSON(http.StatusOK, RecordsResponse{UserID: userID, Records: records})
}

// bindRef decodes a {"session_id": ...} body. It returns a message when the
// body is unusable.
func bindRef(c echo.Context) (SessionRef, string) {
	var ref SessionRef
	if err := c.Bind(&ref); err != nil {
		return ref, "invalid JSON body"
	}
	if ref.SessionID == "" {
		return ref, "session_id is required"
	}
	return ref, ""
}

func badRequest(c echo.Context, msg string) error {
	requestID, _ := c.Get("request_id").(string)
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, RequestID: requestID})
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrDeckNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWrongMode),
		errors.Is(err, domain.ErrWrongStatus),
		errors.Is(err, domain.ErrStepOutOfOrder),
		errors.Is(err, domain.ErrStepsIncomplete),
		errors.Is(err, domain.ErrAlreadyComplete):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstreamLLM), errors.Is(err, domain.ErrInvalidLLMJSON):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) mapError(c echo.Context, err error) error {
	requestID, _ := c.Get("request_id").(string)

	status := StatusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusBadGateway:
		h.logger.Error("upstream LLM failure", "request_id", requestID, "error", err)
		msg = "upstream LLM failure"
	case http.StatusInternalServerError:
		h.logger.Error("internal error", "request_id", requestID, "error", err)
		msg = "internal error"
	}
	return c.JSON(status, ErrorResponse{Error: msg, RequestID: requestID})
}
