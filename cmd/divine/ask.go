package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yanchun-Li/ai-divination/internal/adapters/apiclient"
	"github.com/Yanchun-Li/ai-divination/internal/adapters/decks"
	"github.com/Yanchun-Li/ai-divination/internal/domain"
	"github.com/Yanchun-Li/ai-divination/internal/flow"
)

var askFlags struct {
	server    string
	question  string
	mode      string
	method    string
	lang      string
	user      string
	animation time.Duration
	timeout   time.Duration
	retries   int
	verbose   bool
}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask a question through a divination server",
	Long: "ask runs a full reading against a divination server. In manual mode the\n" +
		"coins are tossed and the cards drawn locally, then synced step by step.",
	RunE: runAsk,
}

func init() {
	f := askCmd.Flags()
	f.StringVar(&askFlags.server, "server", envOr("DIVINATION_SERVER", "http://localhost:8080"), "Divination server base URL")
	f.StringVarP(&askFlags.question, "question", "q", "", "Question to ask (required)")
	f.StringVar(&askFlags.mode, "mode", string(domain.ModeAI), "Reading mode: ai or manual")
	f.StringVar(&askFlags.method, "method", string(domain.MethodLiuyao), "Divination method: liuyao or tarot")
	f.StringVar(&askFlags.lang, "lang", "zh", "Language: zh, ja or en")
	f.StringVar(&askFlags.user, "user", os.Getenv("DIVINATION_USER"), "User id recorded with the session")
	f.DurationVar(&askFlags.animation, "animation", 0, "Pause per manual toss or draw")
	f.DurationVar(&askFlags.timeout, "timeout", 60*time.Second, "HTTP request timeout")
	f.IntVar(&askFlags.retries, "retries", 2, "Retries after a failed server call")
	f.BoolVarP(&askFlags.verbose, "verbose", "v", false, "Log flow transitions to stderr")

	_ = askCmd.MarkFlagRequired("question")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runAsk(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if askFlags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	api := apiclient.NewClient(&http.Client{Timeout: askFlags.timeout}, askFlags.server, askFlags.user)
	c := flow.NewController(api, decks.MajorArcana(), logger)
	if err := c.SetQuestion(askFlags.question); err != nil {
		return err
	}
	if err := c.SetMode(domain.Mode(askFlags.mode)); err != nil {
		return err
	}
	if err := c.SetMethod(domain.Method(askFlags.method)); err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	lang := domain.ParseLang(askFlags.lang)

	st, err := c.Start(ctx, lang)
	if st, err = retry(ctx, c, st, err); err != nil {
		return err
	}
	for st.Stage == flow.StageInProgress {
		if err := castStep(ctx, c, out, lang); err != nil {
			return err
		}
		st, err = c.Sync(ctx)
		if st, err = retry(ctx, c, st, err); err != nil {
			return err
		}
	}

	if st.Result != nil {
		printResult(out, *st.Result, lang)
	}
	printInterpretation(out, st.Interpretation)
	fmt.Fprintf(out, "\nsession: %s\n", st.SessionID)
	return nil
}

// castStep commits the next manual step on the controller's machine.
func castStep(ctx context.Context, c *flow.Controller, w io.Writer, lang domain.Lang) error {
	if domain.Method(askFlags.method) == domain.MethodLiuyao {
		st, err := c.Liuyao().Toss(ctx, nil, askFlags.animation)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d. %s\n", st.Count, domain.DescribeToss(st.Tosses[st.Count-1], lang))
		return nil
	}
	available := c.Tarot().State().Available
	if len(available) == 0 {
		return errors.New("no cards left to draw")
	}
	cardID := available[int(domain.Free.Float64()*float64(len(available)))]
	st, err := c.Tarot().Draw(ctx, cardID, nil, askFlags.animation)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, domain.DescribeDraw(st.Drawn[st.Count-1], lang))
	return nil
}

// retry resumes a failed attempt up to the configured number of times.
func retry(ctx context.Context, c *flow.Controller, st flow.State, err error) (flow.State, error) {
	for i := 0; err != nil && i < askFlags.retries; i++ {
		if st.Stage != flow.StageError || !st.CanRetry {
			break
		}
		st, err = c.Retry(ctx)
	}
	if err != nil {
		return st, fmt.Errorf("%s: %w", st.Stage, err)
	}
	return st, nil
}
