package domain

import (
	"fmt"
	"strings"
)

// SpreadSize is the number of cards in the three-card spread.
const SpreadSize = 3

// DeckMajor22 identifies the 22-card major arcana deck.
const DeckMajor22 = "major_22"

// Orientation represents the orientation of a drawn tarot card.
type Orientation string

const (
	Upright  Orientation = "upright"
	Reversed Orientation = "reversed"
)

// Position is a slot of the three-card spread.
type Position string

const (
	PositionPast    Position = "past"
	PositionPresent Position = "present"
	PositionFuture  Position = "future"
)

// SpreadPositions lists the slots in draw order.
var SpreadPositions = [SpreadSize]Position{PositionPast, PositionPresent, PositionFuture}

// SpreadType identifies the type of spread.
type SpreadType string

const SpreadThreeCard SpreadType = "three_card"

var positionLabels = map[Lang]map[Position]string{
	LangZH: {PositionPast: "过去", PositionPresent: "现在", PositionFuture: "未来"},
	LangJA: {PositionPast: "過去", PositionPresent: "現在", PositionFuture: "未来"},
	LangEN: {PositionPast: "Past", PositionPresent: "Present", PositionFuture: "Future"},
}

var positionMeanings = map[Lang]map[Position]string{
	LangZH: {
		PositionPast:    "影响当前问题的背景和根源",
		PositionPresent: "当前状态和面临的核心议题",
		PositionFuture:  "如果保持现状，可能的发展方向",
	},
	LangJA: {
		PositionPast:    "現在の問題に影響する背景と根源",
		PositionPresent: "現在の状態と向き合う核心的な課題",
		PositionFuture:  "このまま進んだ場合の展開の可能性",
	},
	LangEN: {
		PositionPast:    "The background and roots shaping the question",
		PositionPresent: "The current state and the core issue at hand",
		PositionFuture:  "Where things may go if nothing changes",
	},
}

// Label is the localized display name of the slot.
func (p Position) Label(lang Lang) string {
	return positionLabels[lang.orDefault()][p]
}

// Meaning describes what the slot stands for in the spread.
func (p Position) Meaning(lang Lang) string {
	return positionMeanings[lang.orDefault()][p]
}

// Index is the slot's draw-order index, or -1 for an unknown position.
func (p Position) Index() int {
	for i, sp := range SpreadPositions {
		if sp == p {
			return i
		}
	}
	return -1
}

// SpreadName is the localized name of the three-card spread.
func SpreadName(lang Lang) string {
	labels := make([]string, SpreadSize)
	for i, p := range SpreadPositions {
		labels[i] = p.Label(lang)
	}
	return strings.Join(labels, "-")
}

// Card is a tarot catalog entry with keywords per language.
type Card struct {
	ID               int               `json:"id"`
	Name             string            `json:"name"`
	NameEn           string            `json:"name_en"`
	Arcana           string            `json:"arcana,omitempty"`
	UprightKeywords  map[Lang][]string `json:"upright_keywords"`
	ReversedKeywords map[Lang][]string `json:"reversed_keywords"`
}

// DisplayName returns the English name for English readers, the Chinese name otherwise.
func (c Card) DisplayName(lang Lang) string {
	if lang == LangEN && c.NameEn != "" {
		return c.NameEn
	}
	return c.Name
}

// Keywords returns the keyword set for the orientation, falling back to Chinese.
func (c Card) Keywords(upright bool, lang Lang) []string {
	set := c.ReversedKeywords
	if upright {
		set = c.UprightKeywords
	}
	if kw, ok := set[lang]; ok && len(kw) > 0 {
		return kw
	}
	return set[DefaultLang]
}

// Meaning joins the selected keywords with the language's list separator.
func (c Card) Meaning(upright bool, lang Lang) string {
	sep := "、"
	if lang == LangEN {
		sep = ", "
	}
	return strings.Join(c.Keywords(upright, lang), sep)
}

// Deck is a collection of tarot cards.
type Deck struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cards []Card `json:"cards"`
}

// Card looks up a card by id.
func (d Deck) Card(id int) (Card, bool) {
	for _, c := range d.Cards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// IDs returns the card ids in catalog order.
func (d Deck) IDs() []int {
	ids := make([]int, len(d.Cards))
	for i, c := range d.Cards {
		ids[i] = c.ID
	}
	return ids
}

// Available returns the catalog ids not present in drawn, in catalog order.
func (d Deck) Available(drawn []int) []int {
	taken := make(map[int]struct{}, len(drawn))
	for _, id := range drawn {
		taken[id] = struct{}{}
	}
	out := make([]int, 0, len(d.Cards))
	for _, c := range d.Cards {
		if _, ok := taken[c.ID]; !ok {
			out = append(out, c.ID)
		}
	}
	return out
}

// TarotDraw is one card placed in a spread slot.
type TarotDraw struct {
	Card          Card     `json:"card"`
	Position      Position `json:"position"`
	PositionLabel string   `json:"position_label"`
	IsUpright     bool     `json:"is_upright"`
	Meaning       string   `json:"meaning"`
}

func (d TarotDraw) Orientation() Orientation {
	if d.IsUpright {
		return Upright
	}
	return Reversed
}

// TarotResult is a complete three-card reading.
type TarotResult struct {
	Type         string      `json:"type"`
	SpreadType   SpreadType  `json:"spread_type"`
	SpreadName   string      `json:"spread_name"`
	Cards        []TarotDraw `json:"cards"`
	DeckVersion  string      `json:"deck_version"`
	DrawSequence []int       `json:"draw_sequence"`
}

// Shuffle returns a Fisher-Yates permutation of ids, walking from the last index
// down to 1 and swapping with floor(src*(i+1)).
func Shuffle(ids []int, src Source) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	for i := len(out) - 1; i > 0; i-- {
		j := int(src.Float64() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func newDraw(card Card, slot int, upright bool, lang Lang) TarotDraw {
	pos := SpreadPositions[slot]
	return TarotDraw{
		Card:          card,
		Position:      pos,
		PositionLabel: pos.Label(lang),
		IsUpright:     upright,
		Meaning:       card.Meaning(upright, lang),
	}
}

// DrawTarot shuffles the whole deck, takes the first count cards in slot order,
// then draws one orientation per card from the same source.
func DrawTarot(deck Deck, src Source, count int, lang Lang) ([]TarotDraw, error) {
	if count < 1 || count > SpreadSize {
		return nil, fmt.Errorf("%w: count must be between 1 and %d, got %d", ErrInvalidInput, SpreadSize, count)
	}
	if count > len(deck.Cards) {
		return nil, fmt.Errorf("%w: deck has %d cards, need %d", ErrInvalidInput, len(deck.Cards), count)
	}

	shuffled := Shuffle(deck.IDs(), src)

	draws := make([]TarotDraw, count)
	for i := range count {
		card, _ := deck.Card(shuffled[i])
		draws[i] = newDraw(card, i, src.Float64() > 0.5, lang)
	}
	return draws, nil
}

// DrawTarotSeeded is the reproducible AI-mode spread for seed.
func DrawTarotSeeded(deck Deck, seed string, lang Lang) ([]TarotDraw, error) {
	return DrawTarot(deck, NewSeeded(seed), SpreadSize, lang)
}

// DrawTarotFree draws with non-reproducible randomness.
func DrawTarotFree(deck Deck, count int, lang Lang) ([]TarotDraw, error) {
	return DrawTarot(deck, Free, count, lang)
}

// CreateManualDraw places a user-chosen card into the slot at positionIndex.
func CreateManualDraw(deck Deck, cardID, positionIndex int, isUpright bool, lang Lang) (TarotDraw, error) {
	card, ok := deck.Card(cardID)
	if !ok {
		return TarotDraw{}, fmt.Errorf("%w: unknown card id %d", ErrInvalidInput, cardID)
	}
	if positionIndex < 0 || positionIndex >= SpreadSize {
		return TarotDraw{}, fmt.Errorf("%w: position index %d out of range", ErrInvalidInput, positionIndex)
	}
	return newDraw(card, positionIndex, isUpright, lang), nil
}

// BuildTarotResult validates three draws and orders them past, present, future.
// DrawSequence keeps the order in which the draws were given.
func BuildTarotResult(draws []TarotDraw, lang Lang) (TarotResult, error) {
	if len(draws) != SpreadSize {
		return TarotResult{}, fmt.Errorf("%w: need %d draws, got %d", ErrInvalidInput, SpreadSize, len(draws))
	}

	var slots [SpreadSize]*TarotDraw
	seen := make(map[int]struct{}, SpreadSize)
	sequence := make([]int, 0, SpreadSize)
	for i := range draws {
		d := &draws[i]
		idx := d.Position.Index()
		if idx < 0 {
			return TarotResult{}, fmt.Errorf("%w: unknown position %q", ErrInvalidInput, d.Position)
		}
		if slots[idx] != nil {
			return TarotResult{}, fmt.Errorf("%w: duplicate position %q", ErrInvalidInput, d.Position)
		}
		if _, dup := seen[d.Card.ID]; dup {
			return TarotResult{}, fmt.Errorf("%w: duplicate card id %d", ErrInvalidInput, d.Card.ID)
		}
		slots[idx] = d
		seen[d.Card.ID] = struct{}{}
		sequence = append(sequence, d.Card.ID)
	}

	cards := make([]TarotDraw, SpreadSize)
	for i, d := range slots {
		cards[i] = *d
	}

	return TarotResult{
		Type:         string(MethodTarot),
		SpreadType:   SpreadThreeCard,
		SpreadName:   SpreadName(lang),
		Cards:        cards,
		DeckVersion:  DeckMajor22,
		DrawSequence: sequence,
	}, nil
}
