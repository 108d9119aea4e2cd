package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mode selects who produces the randomness: the seeded engine or the user.
type Mode string

const (
	ModeAI     Mode = "ai"
	ModeManual Mode = "manual"
)

func (m Mode) Valid() bool { return m == ModeAI || m == ModeManual }

// Method is the divination technique.
type Method string

const (
	MethodLiuyao Method = "liuyao"
	MethodTarot  Method = "tarot"
)

func (m Method) Valid() bool { return m == MethodLiuyao || m == MethodTarot }

// TotalSteps is the number of manual steps needed to complete a reading.
func (m Method) TotalSteps() int {
	if m == MethodLiuyao {
		return LiuyaoLines
	}
	return SpreadSize
}

// Action is the manual step kind recorded for this method.
func (m Method) Action() StepAction {
	if m == MethodLiuyao {
		return ActionCoinToss
	}
	return ActionCardDraw
}

// Status is the lifecycle of a stored session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Confidence is how strongly an interpretation commits to its reading.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence maps free-form model output to a Confidence, defaulting to medium.
func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return Confidence(s)
	default:
		return ConfidenceMedium
	}
}

// Interpretation is the structured reading returned by the interpreter.
type Interpretation struct {
	Summary           string     `json:"summary"`
	Advice            string     `json:"advice"`
	Timing            string     `json:"timing"`
	Confidence        Confidence `json:"confidence"`
	ReasoningBullets  []string   `json:"reasoning_bullets"`
	FollowUpQuestions []string   `json:"follow_up_questions"`
	RitualEnding      string     `json:"ritual_ending"`
}

// Result is the outcome of one reading. Exactly one field is set. On the wire
// it is the variant itself, discriminated by its "type" field.
type Result struct {
	Liuyao *LiuyaoResult
	Tarot  *TarotResult
}

func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.Liuyao != nil:
		return json.Marshal(r.Liuyao)
	case r.Tarot != nil:
		return json.Marshal(r.Tarot)
	default:
		return []byte("null"), nil
	}
}

func (r *Result) UnmarshalJSON(data []byte) error {
	*r = Result{}
	if string(data) == "null" {
		return nil
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch Method(head.Type) {
	case MethodLiuyao:
		r.Liuyao = new(LiuyaoResult)
		return json.Unmarshal(data, r.Liuyao)
	case MethodTarot:
		r.Tarot = new(TarotResult)
		return json.Unmarshal(data, r.Tarot)
	default:
		return fmt.Errorf("%w: unknown result type %q", ErrInvalidInput, head.Type)
	}
}

// Method reports which technique produced the result.
func (r Result) Method() Method {
	if r.Liuyao != nil {
		return MethodLiuyao
	}
	return MethodTarot
}

// IsZero reports whether neither variant is set.
func (r Result) IsZero() bool { return r.Liuyao == nil && r.Tarot == nil }

// StepAction tags a manual step payload.
type StepAction string

const (
	ActionCoinToss StepAction = "coin_toss"
	ActionCardDraw StepAction = "card_draw"
)

// TarotDrawStep is the manual payload for one card draw.
type TarotDrawStep struct {
	CardID    int      `json:"card_id"`
	Position  Position `json:"position"`
	IsUpright bool     `json:"is_upright"`
}

// Step is a tagged manual step: Toss is set for coin_toss, Draw for card_draw.
// On the wire it is {"action": ..., "data": payload}.
type Step struct {
	Action StepAction
	Toss   *CoinToss
	Draw   *TarotDrawStep
}

// StepJSON is the wire form of a Step. Types that carry a step next to other
// fields embed it to stay flat.
type StepJSON struct {
	Action StepAction      `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// JSON converts s to its wire form.
func (s Step) JSON() (StepJSON, error) {
	var payload any
	switch {
	case s.Toss != nil:
		payload = s.Toss
	case s.Draw != nil:
		payload = s.Draw
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return StepJSON{}, err
	}
	return StepJSON{Action: s.Action, Data: data}, nil
}

// Step decodes data according to the action. An unknown action or a missing
// payload yields a step that Validate rejects.
func (w StepJSON) Step() (Step, error) {
	s := Step{Action: w.Action}
	if len(w.Data) == 0 || string(w.Data) == "null" {
		return s, nil
	}
	switch w.Action {
	case ActionCoinToss:
		var t CoinToss
		if err := json.Unmarshal(w.Data, &t); err != nil {
			return Step{}, fmt.Errorf("coin_toss data: %w", err)
		}
		s.Toss = &t
	case ActionCardDraw:
		var d TarotDrawStep
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return Step{}, fmt.Errorf("card_draw data: %w", err)
		}
		s.Draw = &d
	}
	return s, nil
}

func (s Step) MarshalJSON() ([]byte, error) {
	w, err := s.JSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var w StepJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	step, err := w.Step()
	if err != nil {
		return err
	}
	*s = step
	return nil
}

func CoinTossStep(t CoinToss) Step {
	return Step{Action: ActionCoinToss, Toss: &t}
}

func CardDrawStep(d TarotDrawStep) Step {
	return Step{Action: ActionCardDraw, Draw: &d}
}

// Validate checks that the tag matches the payload and that a toss is self-consistent.
func (s Step) Validate() error {
	switch s.Action {
	case ActionCoinToss:
		if s.Toss == nil || s.Draw != nil {
			return fmt.Errorf("%w: coin_toss step needs exactly a toss payload", ErrInvalidInput)
		}
		want, err := ClassifyToss(s.Toss.Coins)
		if err != nil {
			return err
		}
		if want != *s.Toss {
			return fmt.Errorf("%w: toss fields disagree with coins %v", ErrInvalidInput, s.Toss.Coins)
		}
		return nil
	case ActionCardDraw:
		if s.Draw == nil || s.Toss != nil {
			return fmt.Errorf("%w: card_draw step needs exactly a draw payload", ErrInvalidInput)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown step action %q", ErrInvalidInput, s.Action)
	}
}

// ManualStep is a step as recorded by the session service.
type ManualStep struct {
	StepNumber int
	Step
	Timestamp time.Time
}

type manualStepJSON struct {
	StepNumber int `json:"step_number"`
	StepJSON
	Timestamp time.Time `json:"timestamp"`
}

func (m ManualStep) MarshalJSON() ([]byte, error) {
	w, err := m.Step.JSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(manualStepJSON{StepNumber: m.StepNumber, StepJSON: w, Timestamp: m.Timestamp})
}

func (m *ManualStep) UnmarshalJSON(data []byte) error {
	var w manualStepJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	step, err := w.StepJSON.Step()
	if err != nil {
		return err
	}
	*m = ManualStep{StepNumber: w.StepNumber, Step: step, Timestamp: w.Timestamp}
	return nil
}

// Question is the user's prompt for a reading.
type Question struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the service-side record of one divination attempt.
type Session struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id,omitempty"`
	Question       Question        `json:"question"`
	Mode           Mode            `json:"mode"`
	Method         Method          `json:"method"`
	Lang           Lang            `json:"lang"`
	Seed           string          `json:"seed"`
	Status         Status          `json:"status"`
	Result         *Result         `json:"result,omitempty"`
	Interpretation *Interpretation `json:"interpretation,omitempty"`
	ManualSteps    []ManualStep    `json:"manual_steps,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}
