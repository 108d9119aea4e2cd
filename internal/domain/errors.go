package domain

import "errors"

// Engine and state-machine errors.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("hexagram not found")
	ErrPrecondition    = errors.New("precondition not met")
	ErrAlreadyComplete = errors.New("already complete")
	ErrStepInProgress  = errors.New("step already in progress")
	ErrStale           = errors.New("superseded by reset")
	ErrCollaborator    = errors.New("session service failure")
)

// Session service errors.
var (
	ErrDeckNotFound    = errors.New("deck not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrWrongMode       = errors.New("operation not allowed in this mode")
	ErrWrongStatus     = errors.New("operation not allowed in this status")
	ErrStepOutOfOrder  = errors.New("manual step out of order")
	ErrStepsIncomplete = errors.New("manual steps not complete")
	ErrUpstreamLLM     = errors.New("upstream LLM failure")
	ErrInvalidLLMJSON  = errors.New("LLM returned invalid JSON after retry")
)
