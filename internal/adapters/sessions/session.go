// Package sessions implements ports.SessionStore in memory, on Postgres and on Redis.
package sessions

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

// DefaultListLimit caps ListByUser when the caller passes a non-positive limit.
const DefaultListLimit = 20

func notFound(id string) error {
	return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
}

// clone copies the parts of a session an Update callback may mutate in place.
func clone(s domain.Session) domain.Session {
	s.ManualSteps = slices.Clone(s.ManualSteps)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	if s.Interpretation != nil {
		in := *s.Interpretation
		s.Interpretation = &in
	}
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	return s
}

func encode(s domain.Session) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return raw, nil
}

func decode(raw []byte) (domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
