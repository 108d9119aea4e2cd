package main

import (
	"fmt"
	"io"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

func printResult(w io.Writer, res domain.Result, lang domain.Lang) {
	switch {
	case res.Liuyao != nil:
		r := res.Liuyao
		for i, t := range r.RawTosses {
			fmt.Fprintf(w, "%d. %s\n", i+1, domain.DescribeToss(t, lang))
		}
		fmt.Fprintln(w)
		// Top line first, as the hexagram is drawn.
		for i := len(r.Lines) - 1; i >= 0; i-- {
			fmt.Fprintf(w, "%s\t%s\n", r.Lines[i].YaoType.Symbol(), domain.DescribeLine(r.Lines[i], lang))
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %d %s (%s)\n", r.PrimaryHexagram.Symbol, r.PrimaryHexagram.ID, r.PrimaryHexagram.Name, r.PrimaryHexagram.Description)
		if r.RelatingHexagram != nil {
			fmt.Fprintf(w, "→ %s %d %s (%s)\n", r.RelatingHexagram.Symbol, r.RelatingHexagram.ID, r.RelatingHexagram.Name, r.RelatingHexagram.Description)
		}
		fmt.Fprintln(w, domain.DescribeChangingLines(r.ChangingLines, lang))
	case res.Tarot != nil:
		fmt.Fprintln(w, res.Tarot.SpreadName)
		for _, d := range res.Tarot.Cards {
			fmt.Fprintln(w, domain.DescribeDraw(d, lang))
			fmt.Fprintf(w, "  %s\n", d.Card.Meaning(d.IsUpright, lang))
		}
	}
}

func printInterpretation(w io.Writer, in *domain.Interpretation) {
	if in == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, in.Summary)
	for _, b := range in.ReasoningBullets {
		fmt.Fprintf(w, "  - %s\n", b)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, in.Advice)
	if in.Timing != "" {
		fmt.Fprintln(w, in.Timing)
	}
	for _, q := range in.FollowUpQuestions {
		fmt.Fprintf(w, "? %s\n", q)
	}
	if in.RitualEnding != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, in.RitualEnding)
	}
	fmt.Fprintf(w, "(confidence: %s)\n", in.Confidence)
}
