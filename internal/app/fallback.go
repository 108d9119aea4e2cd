package app

import (
	"fmt"
	"strings"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

type fallbackText struct {
	liuyaoSummary string
	liuyaoAdvice  string
	liuyaoReasons [3]string
	tarotSummary  string
	tarotAdvice   string
	tarotReasons  [3]string
	timing        string
	followUps     []string
	ending        string
	arrow         string
}

var fallbackTexts = map[domain.Lang]fallbackText{
	domain.LangZH: {
		liuyaoSummary: "本卦%s，提示你关注当下的选择",
		liuyaoAdvice:  "先观察，再行动。不必急于做决定。",
		liuyaoReasons: [3]string{"本卦为%s，%s", "结合你的问题，建议从长计议", "变化中蕴含机会，保持耐心"},
		tarotSummary:  "牌阵显示：%s",
		tarotAdvice:   "关注牌面传递的信息，它反映了你内心的某些想法。",
		tarotReasons:  [3]string{"过去的%s影响着现在", "现在的%s揭示核心议题", "未来的%s指向可能的方向"},
		timing:        "当下是思考的好时机",
		followUps:     []string{"是什么让你想问这个问题？", "你内心倾向于哪个选择？"},
		ending:        "本次占卜结束，愿你心中更加清晰。",
		arrow:         " → ",
	},
	domain.LangJA: {
		liuyaoSummary: "本卦は%s。今の選択に目を向けるよう示しています",
		liuyaoAdvice:  "まず観察し、それから動きましょう。決断を急ぐ必要はありません。",
		liuyaoReasons: [3]string{"本卦は%s、%s", "問いと合わせて、長い目で考えることをおすすめします", "変化の中にチャンスがあります。焦らずに"},
		tarotSummary:  "スプレッド：%s",
		tarotAdvice:   "カードが伝えるメッセージに耳を傾けてください。心の中の思いを映しています。",
		tarotReasons:  [3]string{"過去の%sが現在に影響しています", "現在の%sが核心の課題を示しています", "未来の%sが可能性のある方向を指しています"},
		timing:        "今は考えるのに良い時です",
		followUps:     []string{"なぜこの質問をしたいと思いましたか？", "心の中ではどちらに傾いていますか？"},
		ending:        "今回の占いはこれで終わりです。心がより澄みますように。",
		arrow:         " → ",
	},
	domain.LangEN: {
		liuyaoSummary: "The primary hexagram is %s: pay attention to the choice in front of you",
		liuyaoAdvice:  "Observe first, then act. There is no need to rush the decision.",
		liuyaoReasons: [3]string{"The primary hexagram is %s: %s", "Given your question, take the long view", "Change carries opportunity; stay patient"},
		tarotSummary:  "The spread shows: %s",
		tarotAdvice:   "Notice what the cards bring up; they reflect thoughts you already hold.",
		tarotReasons:  [3]string{"%s in the past shapes the present", "%s in the present reveals the core issue", "%s in the future points to a possible direction"},
		timing:        "Now is a good time to reflect",
		followUps:     []string{"What made you ask this question?", "Which choice do you lean towards?"},
		ending:        "This reading is complete. May your mind feel clearer.",
		arrow:         " → ",
	},
}

// fallbackInterpretation is used when no LLM answer is available. It is
// derived only from the result, so it is the same for every call.
func fallbackInterpretation(lang domain.Lang, result domain.Result) domain.Interpretation {
	txt, ok := fallbackTexts[lang]
	if !ok {
		txt = fallbackTexts[domain.DefaultLang]
	}

	var summary, advice string
	var reasons []string
	switch {
	case result.Liuyao != nil:
		p := result.Liuyao.PrimaryHexagram
		summary = fmt.Sprintf(txt.liuyaoSummary, p.Name)
		advice = txt.liuyaoAdvice
		reasons = []string{
			fmt.Sprintf(txt.liuyaoReasons[0], p.Name, p.Description),
			txt.liuyaoReasons[1],
			txt.liuyaoReasons[2],
		}
	case result.Tarot != nil:
		names := make([]string, len(result.Tarot.Cards))
		for i, d := range result.Tarot.Cards {
			names[i] = d.Card.DisplayName(lang)
		}
		summary = fmt.Sprintf(txt.tarotSummary, strings.Join(names, txt.arrow))
		advice = txt.tarotAdvice
		for i, tmpl := range txt.tarotReasons {
			if i < len(names) {
				reasons = append(reasons, fmt.Sprintf(tmpl, names[i]))
			}
		}
	}

	return domain.Interpretation{
		Summary:           summary,
		Advice:            advice,
		Timing:            txt.timing,
		Confidence:        domain.ConfidenceLow,
		ReasoningBullets:  reasons,
		FollowUpQuestions: append([]string(nil), txt.followUps...),
		RitualEnding:      txt.ending,
	}
}
