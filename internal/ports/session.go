package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

// CreateSessionRequest opens a divination session. Seed is optional; the
// service derives one when empty.
type CreateSessionRequest struct {
	Question string        `json:"question"`
	Mode     domain.Mode   `json:"mode"`
	Method   domain.Method `json:"method"`
	Lang     domain.Lang   `json:"lang,omitempty"`
	UserID   string        `json:"user_id,omitempty"`
	Seed     string        `json:"user_seed,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string        `json:"session_id"`
	Seed      string        `json:"seed"`
	Status    domain.Status `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type GenerateResponse struct {
	SessionID      string                `json:"session_id"`
	Status         domain.Status         `json:"status"`
	Result         domain.Result         `json:"result"`
	Interpretation domain.Interpretation `json:"interpretation"`
}

// ManualStepRequest records one manual step. Step numbers start at 1.
// On the wire it is {"session_id", "step_number", "action", "data"}.
type ManualStepRequest struct {
	SessionID  string
	StepNumber int
	domain.Step
}

type manualStepRequestJSON struct {
	SessionID  string `json:"session_id"`
	StepNumber int    `json:"step_number"`
	domain.StepJSON
}

func (r ManualStepRequest) MarshalJSON() ([]byte, error) {
	w, err := r.Step.JSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(manualStepRequestJSON{SessionID: r.SessionID, StepNumber: r.StepNumber, StepJSON: w})
}

func (r *ManualStepRequest) UnmarshalJSON(data []byte) error {
	var w manualStepRequestJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	step, err := w.StepJSON.Step()
	if err != nil {
		return err
	}
	*r = ManualStepRequest{SessionID: w.SessionID, StepNumber: w.StepNumber, Step: step}
	return nil
}

// PartialResult is the reading so far: tosses for Liuyao, placed cards for tarot.
type PartialResult struct {
	Tosses []domain.CoinToss  `json:"tosses,omitempty"`
	Draws  []domain.TarotDraw `json:"draws,omitempty"`
}

type ManualStepResponse struct {
	SessionID     string         `json:"session_id"`
	CurrentStep   int            `json:"current_step"`
	TotalSteps    int            `json:"total_steps"`
	IsComplete    bool           `json:"is_complete"`
	PartialResult *PartialResult `json:"partial_result"`
}

type InterpretResponse struct {
	SessionID      string                `json:"session_id"`
	Interpretation domain.Interpretation `json:"interpretation"`
}

// SessionAPI is the session and interpretation collaborator used by the flow controller.
type SessionAPI interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (CreateSessionResponse, error)
	Generate(ctx context.Context, sessionID string) (GenerateResponse, error)
	SubmitManualStep(ctx context.Context, req ManualStepRequest) (ManualStepResponse, error)
	GetInterpretation(ctx context.Context, sessionID string) (InterpretResponse, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	Create(ctx context.Context, s domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	// Update loads the session, applies fn and saves the result atomically.
	// If fn returns an error nothing is saved.
	Update(ctx context.Context, id string, fn func(*domain.Session) error) (domain.Session, error)
	// ListByUser returns up to limit sessions of userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Session, error)
}
