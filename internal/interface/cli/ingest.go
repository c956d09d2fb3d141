package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/tenant-rag/internal/core/ingestion"
)

// 取り込み可能な拡張子
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
}

// IngestAction はテキストファイルをテナントのインデックスに取り込む
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	path := cmd.String("file")
	customer := cmd.String("customer")
	envFile := cmd.String("env")

	text, err := readTextFile(path)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("取り込みを開始", "tenant", tenant, "file", path)

	result, err := appCtx.Container.IngestionService.Ingest(ctx, ingestion.IngestParams{
		TenantID:   tenant,
		Filename:   filepath.Base(path),
		CustomerID: optionalFlag(customer),
		Text:       text,
	})
	if err != nil {
		slog.Error("取り込みに失敗しました", "error", err)
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "doc_id=%s chunks=%d\n", result.DocID, result.Chunks)
	slog.Info("取り込みが完了しました", "docID", result.DocID, "chunks", result.Chunks)
	return nil
}

// readTextFile はプレーンテキストのファイルだけを読み込む
func readTextFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !textExtensions[ext] {
		return "", fmt.Errorf("対応していないファイル形式です: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("UTF-8 のテキストではありません: %s", path)
	}
	return string(data), nil
}

func optionalFlag(v string) mo.Option[string] {
	v = strings.TrimSpace(v)
	if v == "" {
		return mo.None[string]()
	}
	return mo.Some(v)
}
