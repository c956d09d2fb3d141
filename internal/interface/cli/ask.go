package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/tenant-rag/internal/core/ask"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	customer := cmd.String("customer")
	topK := cmd.Int("top-k")
	stream := cmd.Bool("stream")
	showSources := cmd.Bool("show-sources")
	envFile := cmd.String("env")

	question := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("質問応答を開始",
		"tenant", tenant,
		"stream", stream,
		"showSources", showSources,
	)

	params := ask.AskParams{
		TenantID:   tenant,
		Question:   question,
		CustomerID: optionalFlag(customer),
		TopK:       topK,
	}
	out := cmd.Root().Writer

	var citations []ask.Citation
	if stream {
		w := &consoleStream{out: out}
		result, err := appCtx.Container.AskService.Stream(ctx, params, w)
		if err != nil {
			slog.Error("質問応答に失敗しました", "error", err)
			return err
		}
		fmt.Fprintln(out)
		citations = result.Citations
	} else {
		result, err := appCtx.Container.AskService.Answer(ctx, params)
		if err != nil {
			slog.Error("質問応答に失敗しました", "error", err)
			return err
		}
		fmt.Fprintln(out, result.Answer)
		citations = result.Citations
	}

	if showSources && len(citations) > 0 {
		printCitations(out, citations)
	}

	slog.Info("質問応答が完了しました")
	return nil
}

// consoleStream はテキスト片を届いた順に出力する
type consoleStream struct {
	out io.Writer
}

func (s *consoleStream) WriteCitations([]ask.Citation) error { return nil }

func (s *consoleStream) WriteChunk(chunk string) error {
	_, err := io.WriteString(s.out, chunk)
	return err
}

func printCitations(out io.Writer, citations []ask.Citation) {
	fmt.Fprintln(out, "\n--- 参照ソース ---")
	for i, c := range citations {
		fmt.Fprintf(out, "[%d] %s", i+1, c.Source)
		if page, ok := c.Page.Get(); ok {
			fmt.Fprintf(out, " p.%d", page)
		}
		if score, ok := c.Score.Get(); ok {
			fmt.Fprintf(out, " スコア: %.4f", score)
		}
		fmt.Fprintln(out)
	}
}
