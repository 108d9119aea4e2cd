package ports

import (
	"context"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

// DeckStore loads tarot decks by id, e.g. domain.DeckMajor22. Unknown ids
// yield domain.ErrDeckNotFound.
type DeckStore interface {
	GetDeck(ctx context.Context, deckID string) (domain.Deck, error)
}
