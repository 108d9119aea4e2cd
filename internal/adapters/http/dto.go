package http

import "github.com/Yanchun-Li/ai-divination/internal/domain"

// SessionRef is the body of requests that only name a session.
type SessionRef struct {
	SessionID string `json:"session_id"`
}

// SessionResponse is the JSON shape returned by GET /api/v2/divination/:id.
type SessionResponse struct {
	domain.Session
	CurrentStep int `json:"current_step"`
	TotalSteps  int `json:"total_steps"`
}

type RecordsResponse struct {
	UserID  string            `json:"user_id"`
	Records []SessionResponse `json:"records"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func toSessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		Session:     s,
		CurrentStep: len(s.ManualSteps),
		TotalSteps:  s.Method.TotalSteps(),
	}
}
