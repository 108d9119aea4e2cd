package domain

import (
	"fmt"
	"strings"
)

var yaoNames = map[Lang]map[YaoType]string{
	LangZH: {OldYin: "老阴", YoungYin: "少阴", YoungYang: "少阳", OldYang: "老阳"},
	LangJA: {OldYin: "老陰", YoungYin: "少陰", YoungYang: "少陽", OldYang: "老陽"},
	LangEN: {OldYin: "Old Yin", YoungYin: "Young Yin", YoungYang: "Young Yang", OldYang: "Old Yang"},
}

var linePositionNames = map[Lang][LiuyaoLines]string{
	LangZH: {"初", "二", "三", "四", "五", "上"},
	LangJA: {"初", "二", "三", "四", "五", "上"},
	LangEN: {"1st", "2nd", "3rd", "4th", "5th", "6th"},
}

var yaoSymbols = map[YaoType]string{
	OldYin:    "⚋×",
	YoungYin:  "⚋",
	YoungYang: "⚊",
	OldYang:   "⚊○",
}

// Name is the localized name of the line type.
func (y YaoType) Name(lang Lang) string { return yaoNames[lang.orDefault()][y] }

// Symbol is the line glyph, marked when changing.
func (y YaoType) Symbol() string { return yaoSymbols[y] }

// LinePositionName names line position 1..6, or "" when out of range.
func LinePositionName(position int, lang Lang) string {
	if position < 1 || position > LiuyaoLines {
		return ""
	}
	return linePositionNames[lang.orDefault()][position-1]
}

// CoinFaces renders coin faces as heads/tails marks, e.g. "正·反·正".
func CoinFaces(coins [3]int, lang Lang) string {
	heads, tails := "正", "反"
	switch lang {
	case LangJA:
		heads, tails = "表", "裏"
	case LangEN:
		heads, tails = "H", "T"
	}
	faces := make([]string, len(coins))
	for i, c := range coins {
		if c == CoinHeads {
			faces[i] = heads
		} else {
			faces[i] = tails
		}
	}
	return strings.Join(faces, "·")
}

// DescribeToss renders a toss as "faces → sum → type (changing)".
func DescribeToss(t CoinToss, lang Lang) string {
	mark := "（不动爻）"
	if t.IsChanging {
		mark = "（动爻）"
	}
	switch lang {
	case LangJA:
		mark = "（不動爻）"
		if t.IsChanging {
			mark = "（動爻）"
		}
	case LangEN:
		mark = " (static)"
		if t.IsChanging {
			mark = " (changing)"
		}
	}
	return fmt.Sprintf("%s → %d → %s%s", CoinFaces(t.Coins, lang), t.Sum, t.YaoType.Name(lang), mark)
}

// DescribeLine renders a line in the traditional "初爻：阳爻（少阳）" form.
func DescribeLine(l Line, lang Lang) string {
	pos := LinePositionName(l.Position, lang)
	if lang == LangEN {
		polarity := "yin"
		if l.IsYang {
			polarity = "yang"
		}
		s := fmt.Sprintf("%s line: %s (%s)", pos, polarity, l.YaoType.Name(lang))
		if l.IsChanging {
			s += " (changing)"
		}
		return s
	}
	polarity := "阴"
	if l.IsYang {
		polarity = "阳"
	}
	s := fmt.Sprintf("%s爻：%s爻（%s）", pos, polarity, l.YaoType.Name(lang))
	if l.IsChanging {
		s += "（动）"
	}
	return s
}

// DescribeChangingLines summarizes the changing positions, e.g. "二爻、五爻动".
func DescribeChangingLines(positions []int, lang Lang) string {
	if len(positions) == 0 {
		if lang == LangEN {
			return "no changing lines"
		}
		return "无动爻"
	}
	names := make([]string, len(positions))
	for i, p := range positions {
		if lang == LangEN {
			names[i] = LinePositionName(p, lang)
		} else {
			names[i] = LinePositionName(p, lang) + "爻"
		}
	}
	if lang == LangEN {
		return "changing: " + strings.Join(names, ", ")
	}
	return strings.Join(names, "、") + "动"
}

var orientationText = map[Lang][2]string{
	LangZH: {"正位", "逆位"},
	LangJA: {"正位置", "逆位置"},
	LangEN: {"Upright", "Reversed"},
}

// OrientationText is the localized orientation label.
func OrientationText(upright bool, lang Lang) string {
	t := orientationText[lang.orDefault()]
	if upright {
		return t[0]
	}
	return t[1]
}

// DescribeDraw renders a draw as "label：name（orientation）".
func DescribeDraw(d TarotDraw, lang Lang) string {
	if lang == LangEN {
		return fmt.Sprintf("%s: %s (%s)", d.PositionLabel, d.Card.DisplayName(lang), OrientationText(d.IsUpright, lang))
	}
	return fmt.Sprintf("%s：%s（%s）", d.PositionLabel, d.Card.DisplayName(lang), OrientationText(d.IsUpright, lang))
}

// DescribeSpread joins the draws with " | ".
func DescribeSpread(draws []TarotDraw, lang Lang) string {
	parts := make([]string, len(draws))
	for i, d := range draws {
		parts[i] = DescribeDraw(d, lang)
	}
	return strings.Join(parts, " | ")
}
