package domain

import (
	"fmt"
	"strings"
)

// LiuyaoLines is the number of lines (and tosses) in a hexagram.
const LiuyaoLines = 6

// Coin faces: tails (no inscription) counts 2, heads counts 3.
const (
	CoinTails = 2
	CoinHeads = 3
)

// YaoType classifies a line by the sum of three coins.
type YaoType string

const (
	OldYin    YaoType = "old_yin"    // 6, changing yin
	YoungYang YaoType = "young_yang" // 7
	YoungYin  YaoType = "young_yin"  // 8
	OldYang   YaoType = "old_yang"   // 9, changing yang
)

var yaoBySum = map[int]YaoType{
	6: OldYin,
	7: YoungYang,
	8: YoungYin,
	9: OldYang,
}

func (y YaoType) IsYang() bool { return y == YoungYang || y == OldYang }

func (y YaoType) IsChanging() bool { return y == OldYin || y == OldYang }

// CoinToss is one throw of three coins.
type CoinToss struct {
	Coins      [3]int  `json:"coins"`
	Sum        int     `json:"sum"`
	YaoType    YaoType `json:"yao_type"`
	IsChanging bool    `json:"is_changing"`
}

// Line is one position of a hexagram, bottom (1) to top (6).
type Line struct {
	Position   int     `json:"position"`
	YaoType    YaoType `json:"yao_type"`
	IsYang     bool    `json:"is_yang"`
	IsChanging bool    `json:"is_changing"`
	// ChangedYang is the polarity after transformation; set only for changing lines.
	ChangedYang *bool `json:"changed_yang,omitempty"`
}

// Pattern is a six-line figure with bit i set when line i+1 is yang.
type Pattern uint8

// PatternMask covers the six line bits.
const PatternMask Pattern = 0b111111

// Lower is the bottom trigram's bits.
func (p Pattern) Lower() uint8 { return uint8(p & 0b111) }

// Upper is the top trigram's bits.
func (p Pattern) Upper() uint8 { return uint8(p>>3) & 0b111 }

// String renders lines bottom to top, e.g. "110010".
func (p Pattern) String() string {
	var b strings.Builder
	for i := 0; i < LiuyaoLines; i++ {
		if p&(1<<i) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Hexagram is a catalog entry. It is reference data and never mutated.
type Hexagram struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	Description  string  `json:"description"`
	UpperTrigram string  `json:"upper_trigram"`
	LowerTrigram string  `json:"lower_trigram"`
	Pattern      Pattern `json:"-"`
}

// LiuyaoResult is a complete reading built from six tosses.
type LiuyaoResult struct {
	Type             string     `json:"type"`
	Lines            []Line     `json:"lines"`
	ChangingLines    []int      `json:"changing_lines"`
	PrimaryHexagram  Hexagram   `json:"primary_hexagram"`
	RelatingHexagram *Hexagram  `json:"relating_hexagram"`
	RawTosses        []CoinToss `json:"raw_tosses"`
}

// TossCoin throws one coin: heads when the draw exceeds 0.5.
func TossCoin(src Source) int {
	if src.Float64() > 0.5 {
		return CoinHeads
	}
	return CoinTails
}

// TossThreeCoins throws three independent coins in order.
func TossThreeCoins(src Source) [3]int {
	return [3]int{TossCoin(src), TossCoin(src), TossCoin(src)}
}

// ClassifyToss sums the coins and derives the line type.
func ClassifyToss(coins [3]int) (CoinToss, error) {
	for _, c := range coins {
		if c != CoinTails && c != CoinHeads {
			return CoinToss{}, fmt.Errorf("%w: coin face %d, want 2 or 3", ErrInvalidInput, c)
		}
	}
	return classify(coins), nil
}

func classify(coins [3]int) CoinToss {
	sum := coins[0] + coins[1] + coins[2]
	return CoinToss{
		Coins:      coins,
		Sum:        sum,
		YaoType:    yaoBySum[sum],
		IsChanging: sum == 6 || sum == 9,
	}
}

// Toss throws three coins from src and classifies them.
func Toss(src Source) CoinToss {
	return classify(TossThreeCoins(src))
}

// LinesToPattern packs tosses into a pattern, first toss in the lowest bit.
func LinesToPattern(tosses []CoinToss) Pattern {
	var p Pattern
	for i, t := range tosses {
		if i >= LiuyaoLines {
			break
		}
		if t.YaoType.IsYang() {
			p |= 1 << i
		}
	}
	return p
}

// RelatingPattern flips exactly the bits of changing lines.
func RelatingPattern(tosses []CoinToss, primary Pattern) Pattern {
	p := primary
	for i, t := range tosses {
		if i >= LiuyaoLines {
			break
		}
		if t.IsChanging {
			p ^= 1 << i
		}
	}
	return p
}

// BuildLines converts tosses into positioned lines.
func BuildLines(tosses []CoinToss) []Line {
	lines := make([]Line, len(tosses))
	for i, t := range tosses {
		yang := t.YaoType.IsYang()
		lines[i] = Line{
			Position:   i + 1,
			YaoType:    t.YaoType,
			IsYang:     yang,
			IsChanging: t.IsChanging,
		}
		if t.IsChanging {
			changed := !yang
			lines[i].ChangedYang = &changed
		}
	}
	return lines
}

// HexagramPair returns the primary hexagram and, when any line changes, the relating one.
func HexagramPair(tosses []CoinToss) (Hexagram, *Hexagram, error) {
	pattern := LinesToPattern(tosses)
	primary, err := LookupHexagram(pattern)
	if err != nil {
		return Hexagram{}, nil, err
	}
	rel := RelatingPattern(tosses, pattern)
	if rel == pattern {
		return primary, nil, nil
	}
	relating, err := LookupHexagram(rel)
	if err != nil {
		return Hexagram{}, nil, err
	}
	return primary, &relating, nil
}

// BuildLiuyaoResult assembles a reading from exactly six tosses.
func BuildLiuyaoResult(tosses []CoinToss) (LiuyaoResult, error) {
	if len(tosses) != LiuyaoLines {
		return LiuyaoResult{}, fmt.Errorf("%w: need %d tosses, got %d", ErrInvalidInput, LiuyaoLines, len(tosses))
	}
	primary, relating, err := HexagramPair(tosses)
	if err != nil {
		return LiuyaoResult{}, err
	}

	lines := BuildLines(tosses)
	changing := make([]int, 0, LiuyaoLines)
	for _, l := range lines {
		if l.IsChanging {
			changing = append(changing, l.Position)
		}
	}

	raw := make([]CoinToss, len(tosses))
	copy(raw, tosses)

	return LiuyaoResult{
		Type:             string(MethodLiuyao),
		Lines:            lines,
		ChangingLines:    changing,
		PrimaryHexagram:  primary,
		RelatingHexagram: relating,
		RawTosses:        raw,
	}, nil
}

// GenerateLiuyao draws six tosses from src and builds the reading.
func GenerateLiuyao(src Source) LiuyaoResult {
	tosses := make([]CoinToss, LiuyaoLines)
	for i := range tosses {
		tosses[i] = Toss(src)
	}
	res, err := BuildLiuyaoResult(tosses)
	if err != nil {
		// Six classified tosses always map to a catalog entry.
		panic(err)
	}
	return res
}

// GenerateLiuyaoSeeded is the reproducible AI-mode reading for seed.
func GenerateLiuyaoSeeded(seed string) LiuyaoResult {
	return GenerateLiuyao(NewSeeded(seed))
}
