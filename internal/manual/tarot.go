package manual

import (
	"context"
	"fmt"
	"time"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

// TarotState is a snapshot of a manual three-card reading.
type TarotState struct {
	Drawn        []domain.TarotDraw
	Available    []int
	IsRevealing  bool
	SelectedCard *int
	Count        int
	Complete     bool
}

// Tarot accumulates three card draws, one per spread slot in order.
// It is safe for concurrent use.
type Tarot struct {
	m        *machine[domain.TarotDraw, domain.TarotResult]
	deck     domain.Deck
	lang     domain.Lang // guarded by m.mu
	selected int         // guarded by m.mu
}

const noSelection = -1

func NewTarot(deck domain.Deck, lang domain.Lang) *Tarot {
	t := &Tarot{deck: deck, lang: lang, selected: noSelection}
	t.m = newMachine(domain.SpreadSize, func(draws []domain.TarotDraw) (domain.TarotResult, error) {
		return domain.BuildTarotResult(draws, t.lang)
	})
	t.m.settle = func() { t.selected = noSelection }
	return t
}

// PendingDraw is a chosen card waiting to be revealed.
type PendingDraw struct {
	t      *Tarot
	ticket uint64
	CardID int
	Slot   int
}

// Begin selects cardID for the next slot and enters the revealing phase.
// The card must be in the deck and not drawn yet.
func (t *Tarot) Begin(cardID int) (*PendingDraw, error) {
	ticket, slot, err := t.m.begin(func(drawn []domain.TarotDraw) error {
		if _, ok := t.deck.Card(cardID); !ok {
			return fmt.Errorf("%w: unknown card id %d", domain.ErrInvalidInput, cardID)
		}
		for _, d := range drawn {
			if d.Card.ID == cardID {
				return fmt.Errorf("%w: card %d already drawn", domain.ErrInvalidInput, cardID)
			}
		}
		t.selected = cardID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &PendingDraw{t: t, ticket: ticket, CardID: cardID, Slot: slot}, nil
}

// Commit reveals the card with the given orientation.
func (p *PendingDraw) Commit(isUpright bool) (TarotState, error) {
	draw, err := domain.CreateManualDraw(p.t.deck, p.CardID, p.Slot, isUpright, p.t.Lang())
	if err != nil {
		p.Abort()
		return p.t.State(), err
	}
	if err := p.t.m.commit(p.ticket, draw); err != nil {
		return p.t.State(), err
	}
	return p.t.State(), nil
}

func (p *PendingDraw) Abort() { p.t.m.abort(p.ticket) }

// Submit records a draw in one step. The step's position must be the next slot.
func (t *Tarot) Submit(step domain.TarotDrawStep) (TarotState, error) {
	p, err := t.Begin(step.CardID)
	if err != nil {
		return t.State(), err
	}
	if want := domain.SpreadPositions[p.Slot]; step.Position != want {
		p.Abort()
		return t.State(), fmt.Errorf("%w: position %q, next slot is %q", domain.ErrInvalidInput, step.Position, want)
	}
	return p.Commit(step.IsUpright)
}

// Draw selects cardID, waits out the reveal and commits with an orientation
// drawn from src. A nil src uses free randomness.
func (t *Tarot) Draw(ctx context.Context, cardID int, src domain.Source, reveal time.Duration) (TarotState, error) {
	if src == nil {
		src = domain.Free
	}
	p, err := t.Begin(cardID)
	if err != nil {
		return t.State(), err
	}
	if err := pause(ctx, reveal); err != nil {
		p.Abort()
		return t.State(), err
	}
	return p.Commit(src.Float64() > 0.5)
}

func (t *Tarot) State() TarotState {
	var st TarotState
	t.m.snapshot(func(drawn []domain.TarotDraw, busy bool, res *domain.TarotResult) {
		ids := make([]int, len(drawn))
		for i, d := range drawn {
			ids[i] = d.Card.ID
		}
		st = TarotState{
			Drawn:       drawn,
			Available:   t.deck.Available(ids),
			IsRevealing: busy,
			Count:       len(drawn),
			Complete:    res != nil,
		}
		if t.selected != noSelection {
			sel := t.selected
			st.SelectedCard = &sel
		}
	})
	return st
}

// Result returns the spread once all three cards are in.
func (t *Tarot) Result() (domain.TarotResult, bool) { return t.m.cached() }

// Steps returns the recorded draws as wire steps, in draw order.
func (t *Tarot) Steps() []domain.TarotDrawStep {
	st := t.State()
	out := make([]domain.TarotDrawStep, len(st.Drawn))
	for i, d := range st.Drawn {
		out[i] = domain.TarotDrawStep{CardID: d.Card.ID, Position: d.Position, IsUpright: d.IsUpright}
	}
	return out
}

func (t *Tarot) Count() int     { return t.m.count() }
func (t *Tarot) Complete() bool { return t.m.complete() }

// Reset clears all draws. A draw pending at the time of the reset is discarded.
func (t *Tarot) Reset() { t.m.reset() }

// ResetLang is Reset that also switches the language of later draws.
func (t *Tarot) ResetLang(lang domain.Lang) {
	t.m.resetWith(func() { t.lang = lang })
}

// Lang is the language draws are labelled in.
func (t *Tarot) Lang() domain.Lang {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.lang
}

