package postgres

import (
	"context"
	"fmt"

	"github.com/jinford/tenant-rag/internal/core/ask"
	"github.com/jinford/tenant-rag/internal/infra/postgres/sqlc"
)

// DefaultChatLogLimit は ListRecent の limit 未指定時の件数
const DefaultChatLogLimit = 50

// ChatLogRepository はチャットログを chat_logs テーブルに保存する
type ChatLogRepository struct {
	q sqlc.Querier
}

// NewChatLogRepository は新しい ChatLogRepository を作成する
func NewChatLogRepository(q sqlc.Querier) *ChatLogRepository {
	return &ChatLogRepository{q: q}
}

// Record implements ask.ChatLogRecorder.
func (r *ChatLogRepository) Record(ctx context.Context, entry ask.ChatLog) error {
	err := r.q.InsertChatLog(ctx, sqlc.InsertChatLogParams{
		TenantID:   entry.TenantID,
		CustomerID: OptionToPgtext(entry.CustomerID),
		Question:   entry.Question,
		Answer:     entry.Answer,
		Mode:       entry.Mode,
		Partial:    entry.Partial,
		CreatedAt:  entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

// ListRecent は新しい順に offset 件を飛ばして最大 limit 件を返す
func (r *ChatLogRepository) ListRecent(ctx context.Context, tenantID string, limit, offset int) ([]ask.ChatLog, error) {
	if limit <= 0 {
		limit = DefaultChatLogLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.ListChatLogs(ctx, sqlc.ListChatLogsParams{
		TenantID:  tenantID,
		RowLimit:  int32(limit),
		RowOffset: int32(offset),
	})
	if err != nil {
		return nil, fmt.Errorf("list chat logs: %w", err)
	}

	logs := make([]ask.ChatLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, ChatLogFromRow(row))
	}
	return logs, nil
}

var _ ask.ChatLogStore = (*ChatLogRepository)(nil)
