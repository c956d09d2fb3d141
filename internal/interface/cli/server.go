package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/tenant-rag/internal/interface/httpserver"
)

const shutdownTimeout = 10 * time.Second

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
// ctx がキャンセルされるとリクエストの完了を待って停止する。
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	port := cfg.Server.Port
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}

	c := appCtx.Container
	srv := httpserver.New(httpserver.Config{
		PublicKeys:    cfg.Server.PublicKeys,
		AdminKey:      cfg.Server.AdminKey,
		TenantDomains: cfg.Server.TenantDomains,
		AllowOrigins:  cfg.Server.AllowOrigins,
		MaxTopK:       cfg.Retrieval.MaxTopK,
		Version:       cmd.Root().Version,
	}, httpserver.Deps{
		Searcher:       c.RetrievalService,
		Answerer:       c.AskService,
		Ingester:       c.IngestionService,
		ChatLogs:       c.ChatLogs,
		MetricsHandler: c.Metrics.Handler(),
		Logger:         appCtx.Logger(),
	})

	slog.Info("HTTPサーバを起動します", "port", port, "vectorStore", cfg.VectorStore)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("HTTPサーバを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバの停止に失敗: %w", err)
	}
	return <-errCh
}
