package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yanchun-Li/ai-divination/internal/adapters/decks"
	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

var castFlags struct {
	seed string
	lang string
}

var castCmd = &cobra.Command{
	Use:       "cast liuyao|tarot",
	Short:     "Cast a reading locally without a server",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(domain.MethodLiuyao), string(domain.MethodTarot)},
	RunE:      runCast,
}

func init() {
	f := castCmd.Flags()
	f.StringVar(&castFlags.seed, "seed", "", "Seed for a reproducible reading (random when empty)")
	f.StringVar(&castFlags.lang, "lang", "zh", "Output language: zh, ja or en")
}

func runCast(cmd *cobra.Command, args []string) error {
	lang := domain.ParseLang(castFlags.lang)
	res, err := castResult(domain.Method(args[0]), castFlags.seed, lang)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res, lang)
	return nil
}

// castResult runs the engine directly. An empty seed draws free randomness.
func castResult(method domain.Method, seed string, lang domain.Lang) (domain.Result, error) {
	src := domain.Free
	if seed != "" {
		src = domain.NewSeeded(seed)
	}
	switch method {
	case domain.MethodLiuyao:
		r := domain.GenerateLiuyao(src)
		return domain.Result{Liuyao: &r}, nil
	case domain.MethodTarot:
		draws, err := domain.DrawTarot(decks.MajorArcana(), src, domain.SpreadSize, lang)
		if err != nil {
			return domain.Result{}, err
		}
		r, err := domain.BuildTarotResult(draws, lang)
		if err != nil {
			return domain.Result{}, err
		}
		return domain.Result{Tarot: &r}, nil
	default:
		return domain.Result{}, fmt.Errorf("%w: unknown method %q", domain.ErrInvalidInput, method)
	}
}
