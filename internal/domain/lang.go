package domain

import "golang.org/x/text/language"

// Lang is a supported display language.
type Lang string

const (
	LangZH Lang = "zh"
	LangJA Lang = "ja"
	LangEN Lang = "en"
)

// DefaultLang is used when no supported language matches.
const DefaultLang = LangZH

var (
	supportedLangs = []Lang{LangZH, LangJA, LangEN}
	langMatcher    = language.NewMatcher([]language.Tag{
		language.Chinese,
		language.Japanese,
		language.English,
	})
)

// ParseLang matches a BCP 47 tag or Accept-Language value ("zh-CN", "en-US,en;q=0.8")
// against the supported languages.
func ParseLang(s string) Lang {
	if s == "" {
		return DefaultLang
	}
	tags, _, err := language.ParseAcceptLanguage(s)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, idx, conf := langMatcher.Match(tags...)
	if conf == language.No {
		return DefaultLang
	}
	return supportedLangs[idx]
}

// Valid reports whether l is one of the supported languages.
func (l Lang) Valid() bool {
	for _, s := range supportedLangs {
		if s == l {
			return true
		}
	}
	return false
}

// orDefault returns l, or DefaultLang when l is unsupported.
func (l Lang) orDefault() Lang {
	if l.Valid() {
		return l
	}
	return DefaultLang
}
