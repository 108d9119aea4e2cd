// Package prompt builds the interpretation prompts shared by all LLM clients
// and parses their JSON answers.
package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

const (
	maxBullets   = 5
	maxFollowUps = 3
)

const schema = `{
  "summary": "一句话核心结论（15-25字）",
  "advice": "具体可执行的建议（30-50字）",
  "timing": "时机提示（10-20字）",
  "confidence": "low/medium/high",
  "reasoning_bullets": ["要点1", "要点2", "要点3"],
  "follow_up_questions": ["追问1", "追问2"],
  "ritual_ending": "温暖的结束语（15-25字）"
}`

const systemPrompt = `你是一位温和、睿智的占卜解读者。你的任务是基于占卜结果为用户提供洞察和建议。

【核心原则】
1. 不做绝对化断言，使用"可能"、"倾向于"、"值得考虑"等措辞
2. 占卜是自我反思的工具，不是命运的裁决
3. 站在用户角度，提供情绪共鸣和实用建议
4. 不承诺准确率，强调占卜的启发性而非预测性

【语言风格】
- 简洁清晰，避免故弄玄虚
- 温暖但不油腻，专业但不冷漠%s

【输出格式】
只返回一个有效的JSON对象（不要markdown，不要代码块），包含以下字段：
%s

【关于reasoning_bullets】
- 提供3-5条简短的解释要点
- 连接占卜结果与用户问题
- 不要暴露复杂的推理过程，只展示关键洞察`

var langInstructions = map[domain.Lang]string{
	domain.LangZH: "\n- 使用现代中文，避免过度古风",
	domain.LangJA: "\n- すべてのフィールドを自然な日本語で書くこと（JSONのキーは英語のまま）",
	domain.LangEN: "\n- Write every field in natural English (keep the JSON keys as shown)",
}

// System returns the system prompt with the output language instruction for lang.
func System(lang domain.Lang) string {
	instr, ok := langInstructions[lang]
	if !ok {
		instr = langInstructions[domain.DefaultLang]
	}
	return fmt.Sprintf(systemPrompt, instr, schema)
}

// User renders the reading and the question for the user turn.
func User(in ports.InterpretInput) string {
	switch {
	case in.Result.Liuyao != nil:
		return liuyaoPrompt(in.Question, in.Mode, *in.Result.Liuyao)
	case in.Result.Tarot != nil:
		return tarotPrompt(in.Question, in.Mode, *in.Result.Tarot)
	default:
		return fmt.Sprintf("【用户问题】\n%s\n\n请结合用户的问题，提供占卜解读。", in.Question)
	}
}

func modeLabel(mode domain.Mode, manualLabel string) string {
	if mode == domain.ModeAI {
		return "AI生成"
	}
	return manualLabel
}

func liuyaoPrompt(question string, mode domain.Mode, res domain.LiuyaoResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "【用户问题】\n%s\n\n", question)
	fmt.Fprintf(&b, "【占卜方式】\n六爻起卦（%s）\n\n", modeLabel(mode, "手动投掷"))

	p := res.PrimaryHexagram
	fmt.Fprintf(&b, "【卦象结果】\n本卦：%s（%s）\n%s\n", p.Name, p.Symbol, p.Description)
	if r := res.RelatingHexagram; r != nil {
		fmt.Fprintf(&b, "变卦：%s（%s）\n%s\n", r.Name, r.Symbol, r.Description)
	}
	fmt.Fprintf(&b, "\n动爻：%s\n\n", domain.DescribeChangingLines(res.ChangingLines, domain.LangZH))

	b.WriteString("【六爻详情】\n")
	for _, l := range res.Lines {
		mark := ""
		if l.IsChanging {
			mark = "（动）"
		}
		fmt.Fprintf(&b, "%s爻：%s%s\n", domain.LinePositionName(l.Position, domain.LangZH), l.YaoType.Name(domain.LangZH), mark)
	}

	b.WriteString("\n请根据以上信息，结合用户的问题，提供占卜解读。")
	return b.String()
}

func tarotPrompt(question string, mode domain.Mode, res domain.TarotResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "【用户问题】\n%s\n\n", question)
	fmt.Fprintf(&b, "【占卜方式】\n塔罗牌三张牌阵（%s）- 过去/现在/未来\n\n", modeLabel(mode, "手动抽牌"))

	b.WriteString("【抽牌结果】\n")
	for i, d := range res.Cards {
		fmt.Fprintf(&b, "位置%d - %s：%s（%s）\n  关键词：%s\n",
			i+1, d.PositionLabel, d.Card.Name, domain.OrientationText(d.IsUpright, domain.LangZH), d.Meaning)
	}

	b.WriteString("\n【牌阵解读方向】\n")
	for _, pos := range domain.SpreadPositions {
		fmt.Fprintf(&b, "- %s：%s\n", pos.Label(domain.LangZH), pos.Meaning(domain.LangZH))
	}

	b.WriteString("\n请根据以上信息，结合用户的问题，提供占卜解读。")
	return b.String()
}

// Retry asks the model to repair an answer that did not parse.
func Retry(bad string) string {
	return fmt.Sprintf(`Your previous response was not valid JSON. Here is what you returned:
%s

Return ONLY the corrected JSON object matching this schema (no markdown, no code fences):
%s`, bad, schema)
}

type answer struct {
	Summary           *string  `json:"summary"`
	Advice            *string  `json:"advice"`
	Timing            *string  `json:"timing"`
	Confidence        *string  `json:"confidence"`
	ReasoningBullets  []string `json:"reasoning_bullets"`
	FollowUpQuestions []string `json:"follow_up_questions"`
	RitualEnding      *string  `json:"ritual_ending"`
}

var errMissingFields = errors.New("missing required fields")

// Parse decodes a model answer. The JSON object may be surrounded by prose or
// code fences. Confidence is normalised and the lists are capped.
func Parse(content string) (domain.Interpretation, error) {
	var a answer
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return domain.Interpretation{}, err
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &a); err != nil {
			return domain.Interpretation{}, err
		}
	}
	if a.Summary == nil || a.Advice == nil || a.Timing == nil || a.Confidence == nil ||
		a.ReasoningBullets == nil || a.FollowUpQuestions == nil || a.RitualEnding == nil {
		return domain.Interpretation{}, errMissingFields
	}

	return domain.Interpretation{
		Summary:           strings.TrimSpace(*a.Summary),
		Advice:            strings.TrimSpace(*a.Advice),
		Timing:            strings.TrimSpace(*a.Timing),
		Confidence:        domain.ParseConfidence(strings.ToLower(strings.TrimSpace(*a.Confidence))),
		ReasoningBullets:  trimAll(a.ReasoningBullets, maxBullets),
		FollowUpQuestions: trimAll(a.FollowUpQuestions, maxFollowUps),
		RitualEnding:      strings.TrimSpace(*a.RitualEnding),
	}, nil
}

func trimAll(in []string, limit int) []string {
	if len(in) > limit {
		in = in[:limit]
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// Caller sends one system/user exchange to a model and returns its raw reply.
type Caller func(ctx context.Context, system, user string) (string, error)

// Interpret asks call for an interpretation of in. An answer that does not
// parse is sent back once with a repair prompt. Transport failures wrap
// domain.ErrUpstreamLLM; a second bad answer wraps domain.ErrInvalidLLMJSON.
func Interpret(ctx context.Context, logger *slog.Logger, model string, in ports.InterpretInput, call Caller) (domain.Interpretation, error) {
	system := System(in.Lang)

	content, err := call(ctx, system, User(in))
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("%w: %w", domain.ErrUpstreamLLM, err)
	}

	interp, err := Parse(content)
	if err == nil {
		return interp, nil
	}
	logger.WarnContext(ctx, "LLM returned invalid JSON, retrying", "model", model, "error", err)

	content, err = call(ctx, system, Retry(content))
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("%w: %w", domain.ErrUpstreamLLM, err)
	}
	interp, err = Parse(content)
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("%w: %w", domain.ErrInvalidLLMJSON, err)
	}
	return interp, nil
}
