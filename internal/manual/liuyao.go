package manual

import (
	"context"
	"time"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

// LiuyaoState is a snapshot of a manual Liuyao reading.
type LiuyaoState struct {
	Tosses      []domain.CoinToss
	IsAnimating bool
	Primary     *domain.Hexagram
	Relating    *domain.Hexagram
	Count       int
	Complete    bool
}

// Liuyao accumulates six coin tosses. It is safe for concurrent use.
type Liuyao struct {
	m *machine[domain.CoinToss, domain.LiuyaoResult]
}

func NewLiuyao() *Liuyao {
	return &Liuyao{m: newMachine(domain.LiuyaoLines, domain.BuildLiuyaoResult)}
}

// PendingToss is a reserved toss that has not been committed yet.
type PendingToss struct {
	l      *Liuyao
	ticket uint64
	// Line is the 1-based position the toss will fill.
	Line int
}

// Begin reserves the next toss and enters the animating phase.
func (l *Liuyao) Begin() (*PendingToss, error) {
	ticket, idx, err := l.m.begin(nil)
	if err != nil {
		return nil, err
	}
	return &PendingToss{l: l, ticket: ticket, Line: idx + 1}, nil
}

// Commit records the toss. The toss fields must agree with its coins.
func (p *PendingToss) Commit(t domain.CoinToss) (LiuyaoState, error) {
	if err := domain.CoinTossStep(t).Validate(); err != nil {
		p.Abort()
		return p.l.State(), err
	}
	if err := p.l.m.commit(p.ticket, t); err != nil {
		return p.l.State(), err
	}
	return p.l.State(), nil
}

// Abort releases the reservation without recording anything.
func (p *PendingToss) Abort() { p.l.m.abort(p.ticket) }

// Submit records a toss in one step.
func (l *Liuyao) Submit(t domain.CoinToss) (LiuyaoState, error) {
	p, err := l.Begin()
	if err != nil {
		return l.State(), err
	}
	return p.Commit(t)
}

// Toss throws three coins from src, waits out the animation and commits.
// A nil src uses free randomness.
func (l *Liuyao) Toss(ctx context.Context, src domain.Source, animation time.Duration) (LiuyaoState, error) {
	if src == nil {
		src = domain.Free
	}
	p, err := l.Begin()
	if err != nil {
		return l.State(), err
	}
	toss := domain.Toss(src)
	if err := pause(ctx, animation); err != nil {
		p.Abort()
		return l.State(), err
	}
	return p.Commit(toss)
}

func (l *Liuyao) State() LiuyaoState {
	var st LiuyaoState
	l.m.snapshot(func(steps []domain.CoinToss, busy bool, res *domain.LiuyaoResult) {
		st = LiuyaoState{
			Tosses:      steps,
			IsAnimating: busy,
			Count:       len(steps),
			Complete:    res != nil,
		}
		if res != nil {
			primary := res.PrimaryHexagram
			st.Primary = &primary
			if res.RelatingHexagram != nil {
				relating := *res.RelatingHexagram
				st.Relating = &relating
			}
		}
	})
	return st
}

// Result returns the reading once all six tosses are in.
func (l *Liuyao) Result() (domain.LiuyaoResult, bool) { return l.m.cached() }

func (l *Liuyao) Count() int     { return l.m.count() }
func (l *Liuyao) Complete() bool { return l.m.complete() }

// Reset clears all tosses. A toss pending at the time of the reset is discarded.
func (l *Liuyao) Reset() { l.m.reset() }
