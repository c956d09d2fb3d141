package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

const searchSnippetRunes = 120

// SearchAction はテナントのインデックスを検索して結果を表示する
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	topK := cmd.Int("top-k")
	envFile := cmd.String("env")

	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("検索クエリを指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	hits, err := appCtx.Container.RetrievalService.Retrieve(ctx, tenant, query, topK, retrieval.Filter{})
	if err != nil {
		slog.Error("検索に失敗しました", "error", err)
		return err
	}

	out := cmd.Root().Writer
	if len(hits) == 0 {
		fmt.Fprintln(out, "該当するチャンクはありません")
		return nil
	}
	for i, hit := range hits {
		label := hit.Metadata.Filename
		if label == "" {
			label = hit.Metadata.DocID
		}
		page := "?"
		if p, ok := hit.Metadata.Page.Get(); ok {
			page = fmt.Sprint(p)
		}
		fmt.Fprintf(out, "[%d] %s p.%s スコア: %.4f\n    %s\n",
			i+1, label, page, hit.Score, snippet(hit.Metadata.Text, searchSnippetRunes))
	}
	return nil
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}
