package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/tenant-rag/internal/platform/database"
)

// MigrateAction はスキーママイグレーションを実行する
// 引数は up または down。--steps で適用数を制限できる。
func MigrateAction(_ context.Context, cmd *cli.Command) error {
	direction := cmd.Args().First()
	if direction != "up" && direction != "down" {
		return fmt.Errorf("up または down を指定してください")
	}

	cfg, _, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}

	steps := cmd.Int("steps")
	slog.Info("マイグレーションを開始", "direction", direction, "steps", steps)

	if err := database.Migrate(cfg.Database.URL(database.MigrationScheme), direction, steps); err != nil {
		slog.Error("マイグレーションに失敗しました", "error", err)
		return err
	}

	slog.Info("マイグレーションが完了しました")
	return nil
}
