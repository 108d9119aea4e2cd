package domain

import (
	"encoding/json"
	"fmt"
)

// Trigram is one of the eight three-line figures. Bits holds the lines with
// bit 0 as the bottom line.
type Trigram struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Nature string `json:"nature"`
	Bits   uint8  `json:"bits"`
}

var trigrams = []Trigram{
	{Name: "乾", Symbol: "☰", Nature: "天", Bits: 0b111},
	{Name: "坤", Symbol: "☷", Nature: "地", Bits: 0b000},
	{Name: "震", Symbol: "☳", Nature: "雷", Bits: 0b001},
	{Name: "坎", Symbol: "☵", Nature: "水", Bits: 0b010},
	{Name: "艮", Symbol: "☶", Nature: "山", Bits: 0b100},
	{Name: "巽", Symbol: "☴", Nature: "风", Bits: 0b110},
	{Name: "离", Symbol: "☲", Nature: "火", Bits: 0b101},
	{Name: "兑", Symbol: "☱", Nature: "泽", Bits: 0b011},
}

// hexagrams is the King Wen sequence. Patterns are filled in by init.
var hexagrams = []Hexagram{
	{ID: 1, Name: "乾", Symbol: "☰☰", Description: "元亨利贞，刚健进取", UpperTrigram: "乾", LowerTrigram: "乾"},
	{ID: 2, Name: "坤", Symbol: "☷☷", Description: "厚德载物，包容承载", UpperTrigram: "坤", LowerTrigram: "坤"},
	{ID: 3, Name: "屯", Symbol: "☵☳", Description: "万物始生，艰难初创", UpperTrigram: "坎", LowerTrigram: "震"},
	{ID: 4, Name: "蒙", Symbol: "☶☵", Description: "启蒙教育，循序渐进", UpperTrigram: "艮", LowerTrigram: "坎"},
	{ID: 5, Name: "需", Symbol: "☵☰", Description: "等待时机，蓄势待发", UpperTrigram: "坎", LowerTrigram: "乾"},
	{ID: 6, Name: "讼", Symbol: "☰☵", Description: "争讼纷争，宜和为贵", UpperTrigram: "乾", LowerTrigram: "坎"},
	{ID: 7, Name: "师", Symbol: "☷☵", Description: "行师出征，纪律严明", UpperTrigram: "坤", LowerTrigram: "坎"},
	{ID: 8, Name: "比", Symbol: "☵☷", Description: "亲比辅助，和睦相处", UpperTrigram: "坎", LowerTrigram: "坤"},
	{ID: 9, Name: "小畜", Symbol: "☴☰", Description: "小有积蓄，密云不雨", UpperTrigram: "巽", LowerTrigram: "乾"},
	{ID: 10, Name: "履", Symbol: "☰☱", Description: "小心行事，履虎尾", UpperTrigram: "乾", LowerTrigram: "兑"},
	{ID: 11, Name: "泰", Symbol: "☷☰", Description: "天地交泰，通达亨通", UpperTrigram: "坤", LowerTrigram: "乾"},
	{ID: 12, Name: "否", Symbol: "☰☷", Description: "天地不交，闭塞不通", UpperTrigram: "乾", LowerTrigram: "坤"},
	{ID: 13, Name: "同人", Symbol: "☰☲", Description: "志同道合，和睦共处", UpperTrigram: "乾", LowerTrigram: "离"},
	{ID: 14, Name: "大有", Symbol: "☲☰", Description: "大有所获，富有充盈", UpperTrigram: "离", LowerTrigram: "乾"},
	{ID: 15, Name: "谦", Symbol: "☷☶", Description: "谦虚恭让，获益多多", UpperTrigram: "坤", LowerTrigram: "艮"},
	{ID: 16, Name: "豫", Symbol: "☳☷", Description: "欢乐愉悦，顺势而为", UpperTrigram: "震", LowerTrigram: "坤"},
	{ID: 17, Name: "随", Symbol: "☱☳", Description: "随顺变通，灵活应对", UpperTrigram: "兑", LowerTrigram: "震"},
	{ID: 18, Name: "蛊", Symbol: "☶☴", Description: "整顿弊病，革故鼎新", UpperTrigram: "艮", LowerTrigram: "巽"},
	{ID: 19, Name: "临", Symbol: "☷☱", Description: "居高临下，亲近民众", UpperTrigram: "坤", LowerTrigram: "兑"},
	{ID: 20, Name: "观", Symbol: "☴☷", Description: "观察审视，以身作则", UpperTrigram: "巽", LowerTrigram: "坤"},
	{ID: 21, Name: "噬嗑", Symbol: "☲☳", Description: "明断狱讼，赏罚分明", UpperTrigram: "离", LowerTrigram: "震"},
	{ID: 22, Name: "贲", Symbol: "☶☲", Description: "文饰修养，内外兼修", UpperTrigram: "艮", LowerTrigram: "离"},
	{ID: 23, Name: "剥", Symbol: "☶☷", Description: "剥落衰败，顺势而退", UpperTrigram: "艮", LowerTrigram: "坤"},
	{ID: 24, Name: "复", Symbol: "☷☳", Description: "一阳来复，万象更新", UpperTrigram: "坤", LowerTrigram: "震"},
	{ID: 25, Name: "无妄", Symbol: "☰☳", Description: "无妄之福，顺应天道", UpperTrigram: "乾", LowerTrigram: "震"},
	{ID: 26, Name: "大畜", Symbol: "☶☰", Description: "大有积蓄，厚积薄发", UpperTrigram: "艮", LowerTrigram: "乾"},
	{ID: 27, Name: "颐", Symbol: "☶☳", Description: "颐养正道，自食其力", UpperTrigram: "艮", LowerTrigram: "震"},
	{ID: 28, Name: "大过", Symbol: "☱☴", Description: "过犹不及，把握分寸", UpperTrigram: "兑", LowerTrigram: "巽"},
	{ID: 29, Name: "坎", Symbol: "☵☵", Description: "重重险阻，坚持信念", UpperTrigram: "坎", LowerTrigram: "坎"},
	{ID: 30, Name: "离", Symbol: "☲☲", Description: "光明依附，柔顺中正", UpperTrigram: "离", LowerTrigram: "离"},
	{ID: 31, Name: "咸", Symbol: "☱☶", Description: "感应相通，真诚交流", UpperTrigram: "兑", LowerTrigram: "艮"},
	{ID: 32, Name: "恒", Symbol: "☳☴", Description: "恒久坚持，持之以恒", UpperTrigram: "震", LowerTrigram: "巽"},
	{ID: 33, Name: "遁", Symbol: "☰☶", Description: "退避隐遁，明哲保身", UpperTrigram: "乾", LowerTrigram: "艮"},
	{ID: 34, Name: "大壮", Symbol: "☳☰", Description: "刚健有力，适可而止", UpperTrigram: "震", LowerTrigram: "乾"},
	{ID: 35, Name: "晋", Symbol: "☲☷", Description: "日出地上，光明进取", UpperTrigram: "离", LowerTrigram: "坤"},
	{ID: 36, Name: "明夷", Symbol: "☷☲", Description: "光明受损，韬光养晦", UpperTrigram: "坤", LowerTrigram: "离"},
	{ID: 37, Name: "家人", Symbol: "☴☲", Description: "家道正和，齐家治国", UpperTrigram: "巽", LowerTrigram: "离"},
	{ID: 38, Name: "睽", Symbol: "☲☱", Description: "睽违背离，异中求同", UpperTrigram: "离", LowerTrigram: "兑"},
	{ID: 39, Name: "蹇", Symbol: "☵☶", Description: "艰难险阻，知难而退", UpperTrigram: "坎", LowerTrigram: "艮"},
	{ID: 40, Name: "解", Symbol: "☳☵", Description: "解除困难，雷雨交作", UpperTrigram: "震", LowerTrigram: "坎"},
	{ID: 41, Name: "损", Symbol: "☶☱", Description: "损下益上，有所舍得", UpperTrigram: "艮", LowerTrigram: "兑"},
	{ID: 42, Name: "益", Symbol: "☴☳", Description: "损上益下，利民兴业", UpperTrigram: "巽", LowerTrigram: "震"},
	{ID: 43, Name: "夬", Symbol: "☱☰", Description: "决断果敢，刚决柔", UpperTrigram: "兑", LowerTrigram: "乾"},
	{ID: 44, Name: "姤", Symbol: "☰☴", Description: "不期而遇，柔遇刚", UpperTrigram: "乾", LowerTrigram: "巽"},
	{ID: 45, Name: "萃", Symbol: "☱☷", Description: "聚集汇合，择善而从", UpperTrigram: "兑", LowerTrigram: "坤"},
	{ID: 46, Name: "升", Symbol: "☷☴", Description: "积小成大，升进发展", UpperTrigram: "坤", LowerTrigram: "巽"},
	{ID: 47, Name: "困", Symbol: "☱☵", Description: "困厄穷境，守正待时", UpperTrigram: "兑", LowerTrigram: "坎"},
	{ID: 48, Name: "井", Symbol: "☵☴", Description: "井养不穷，取之有道", UpperTrigram: "坎", LowerTrigram: "巽"},
	{ID: 49, Name: "革", Symbol: "☱☲", Description: "革故鼎新，顺时而变", UpperTrigram: "兑", LowerTrigram: "离"},
	{ID: 50, Name: "鼎", Symbol: "☲☴", Description: "鼎新革故，调和五味", UpperTrigram: "离", LowerTrigram: "巽"},
	{ID: 51, Name: "震", Symbol: "☳☳", Description: "雷声震动，慎言慎行", UpperTrigram: "震", LowerTrigram: "震"},
	{ID: 52, Name: "艮", Symbol: "☶☶", Description: "止而后动，静定生慧", UpperTrigram: "艮", LowerTrigram: "艮"},
	{ID: 53, Name: "渐", Symbol: "☴☶", Description: "循序渐进，稳步发展", UpperTrigram: "巽", LowerTrigram: "艮"},
	{ID: 54, Name: "归妹", Symbol: "☳☱", Description: "归妹出嫁，知行合一", UpperTrigram: "震", LowerTrigram: "兑"},
	{ID: 55, Name: "丰", Symbol: "☳☲", Description: "丰盛光明，宜日中", UpperTrigram: "震", LowerTrigram: "离"},
	{ID: 56, Name: "旅", Symbol: "☲☶", Description: "旅途漂泊，小心谨慎", UpperTrigram: "离", LowerTrigram: "艮"},
	{ID: 57, Name: "巽", Symbol: "☴☴", Description: "顺从柔和，谦逊入微", UpperTrigram: "巽", LowerTrigram: "巽"},
	{ID: 58, Name: "兑", Symbol: "☱☱", Description: "喜悦和乐，言语得当", UpperTrigram: "兑", LowerTrigram: "兑"},
	{ID: 59, Name: "涣", Symbol: "☴☵", Description: "涣散离析，济险脱困", UpperTrigram: "巽", LowerTrigram: "坎"},
	{ID: 60, Name: "节", Symbol: "☵☱", Description: "节制有度，适可而止", UpperTrigram: "坎", LowerTrigram: "兑"},
	{ID: 61, Name: "中孚", Symbol: "☴☱", Description: "诚信感动，真诚待人", UpperTrigram: "巽", LowerTrigram: "兑"},
	{ID: 62, Name: "小过", Symbol: "☳☶", Description: "小有过越，谨小慎微", UpperTrigram: "震", LowerTrigram: "艮"},
	{ID: 63, Name: "既济", Symbol: "☵☲", Description: "事已成就，守成保业", UpperTrigram: "坎", LowerTrigram: "离"},
	{ID: 64, Name: "未济", Symbol: "☲☵", Description: "事未完成，继续努力", UpperTrigram: "离", LowerTrigram: "坎"},
}

var (
	trigramByName = make(map[string]Trigram, len(trigrams))
	byPattern     [64]*Hexagram
)

func init() {
	for _, t := range trigrams {
		trigramByName[t.Name] = t
	}
	for i := range hexagrams {
		h := &hexagrams[i]
		upper, okU := trigramByName[h.UpperTrigram]
		lower, okL := trigramByName[h.LowerTrigram]
		if !okU || !okL {
			panic(fmt.Sprintf("hexagram %d: unknown trigram %s/%s", h.ID, h.UpperTrigram, h.LowerTrigram))
		}
		h.Pattern = Pattern(lower.Bits) | Pattern(upper.Bits)<<3
		if prev := byPattern[h.Pattern]; prev != nil {
			panic(fmt.Sprintf("hexagram %d: pattern %s already used by %d", h.ID, h.Pattern, prev.ID))
		}
		byPattern[h.Pattern] = h
	}
}

// LookupHexagram returns the catalog entry for a six-line pattern.
func LookupHexagram(p Pattern) (Hexagram, error) {
	if p > PatternMask || byPattern[p] == nil {
		return Hexagram{}, fmt.Errorf("%w: pattern %s", ErrNotFound, p)
	}
	return *byPattern[p], nil
}

// HexagramByID returns the hexagram with King Wen number id (1-64).
func HexagramByID(id int) (Hexagram, error) {
	if id < 1 || id > len(hexagrams) {
		return Hexagram{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return hexagrams[id-1], nil
}

// Hexagrams returns a copy of the catalog in King Wen order.
func Hexagrams() []Hexagram {
	out := make([]Hexagram, len(hexagrams))
	copy(out, hexagrams)
	return out
}

// Trigrams returns a copy of the eight trigrams.
func Trigrams() []Trigram {
	out := make([]Trigram, len(trigrams))
	copy(out, trigrams)
	return out
}

// TrigramByName looks up a trigram by its Chinese name.
func TrigramByName(name string) (Trigram, bool) {
	t, ok := trigramByName[name]
	return t, ok
}

// UnmarshalJSON restores the pattern, which is not part of the wire form.
func (h *Hexagram) UnmarshalJSON(data []byte) error {
	type wire Hexagram
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*h = Hexagram(w)
	if known, err := HexagramByID(h.ID); err == nil {
		h.Pattern = known.Pattern
	}
	return nil
}
