package memory

import (
	"context"
	"sync"

	"github.com/jinford/tenant-rag/internal/core/ask"
)

// ChatLogStore はチャットログをメモリに保持する
type ChatLogStore struct {
	mu      sync.RWMutex
	entries []ask.ChatLog
}

// NewChatLogStore は新しい ChatLogStore を作成する
func NewChatLogStore() *ChatLogStore {
	return &ChatLogStore{}
}

// Record implements ask.ChatLogRecorder.
func (s *ChatLogStore) Record(_ context.Context, entry ask.ChatLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// ListRecent は新しい順に offset 件を飛ばして最大 limit 件を返す
func (s *ChatLogStore) ListRecent(_ context.Context, tenantID string, limit, offset int) ([]ask.ChatLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ask.ChatLog
	skipped := 0
	for i := len(s.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.entries[i].TenantID != tenantID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, s.entries[i])
	}
	return out, nil
}

var _ ask.ChatLogStore = (*ChatLogStore)(nil)
