package ports

import (
	"context"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

// InterpretInput holds everything the LLM needs to interpret a reading.
type InterpretInput struct {
	Question string
	Mode     domain.Mode
	Method   domain.Method
	Lang     domain.Lang
	Result   domain.Result
}

// InterpretOutput is the structured interpretation plus the model that produced it.
type InterpretOutput struct {
	domain.Interpretation
	Model string `json:"-"`
}

// Interpreter generates an interpretation via an LLM.
type Interpreter interface {
	Interpret(ctx context.Context, in InterpretInput) (InterpretOutput, error)
}
