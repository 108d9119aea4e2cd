package decks

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

//go:embed data/*.json
var deckFS embed.FS

type deckFile struct {
	name     string
	filename string
	arcana   string
}

// registry maps deck IDs to their JSON filenames inside data/.
var registry = map[string]deckFile{
	domain.DeckMajor22: {name: "Major Arcana", filename: "data/major_arcana.json", arcana: "major"},
}

// EmbeddedStore loads decks from embedded JSON files.
type EmbeddedStore struct {
	once  sync.Once
	decks map[string]domain.Deck
	err   error
}

func NewEmbeddedStore() *EmbeddedStore {
	return &EmbeddedStore{}
}

func (s *EmbeddedStore) init() {
	s.decks = make(map[string]domain.Deck, len(registry))
	for id, f := range registry {
		raw, err := deckFS.ReadFile(f.filename)
		if err != nil {
			s.err = fmt.Errorf("read embedded deck %s: %w", id, err)
			return
		}
		var cards []domain.Card
		if err := json.Unmarshal(raw, &cards); err != nil {
			s.err = fmt.Errorf("parse embedded deck %s: %w", id, err)
			return
		}
		for i := range cards {
			if cards[i].Arcana == "" {
				cards[i].Arcana = f.arcana
			}
			if i > 0 && cards[i].ID <= cards[i-1].ID {
				s.err = fmt.Errorf("embedded deck %s: card ids not strictly increasing at %d", id, cards[i].ID)
				return
			}
		}
		s.decks[id] = domain.Deck{
			ID:    id,
			Name:  f.name,
			Cards: cards,
		}
	}
}

func (s *EmbeddedStore) GetDeck(_ context.Context, deckID string) (domain.Deck, error) {
	s.once.Do(s.init)
	if s.err != nil {
		return domain.Deck{}, s.err
	}
	deck, ok := s.decks[deckID]
	if !ok {
		return domain.Deck{}, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, deckID)
	}
	return deck, nil
}

var defaultStore = NewEmbeddedStore()

// MajorArcana returns the process-wide 22-card deck. It panics if the embedded
// data is unreadable, which only happens with a broken build.
func MajorArcana() domain.Deck {
	deck, err := defaultStore.GetDeck(context.Background(), domain.DeckMajor22)
	if err != nil {
		panic(err)
	}
	return deck
}
