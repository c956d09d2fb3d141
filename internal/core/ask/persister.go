package ask

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPersistTimeout はチャットログ保存1件あたりの上限時間
const DefaultPersistTimeout = 5 * time.Second

// Persister はチャットログをバックグラウンドで保存する
// 保存の失敗やパニックは記録するだけで呼び出し元には伝えない。
type Persister struct {
	recorder ChatLogRecorder
	timeout  time.Duration
	logger   *slog.Logger
	metrics  Metrics
	now      func() time.Time

	wg sync.WaitGroup
}

// PersisterOption は Persister のオプション
type PersisterOption func(*Persister)

// WithPersistTimeout は保存1件あたりの上限時間を設定する
func WithPersistTimeout(timeout time.Duration) PersisterOption {
	return func(p *Persister) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithPersisterLogger はロガーを設定する
func WithPersisterLogger(logger *slog.Logger) PersisterOption {
	return func(p *Persister) {
		p.logger = logger
	}
}

// WithPersisterMetrics は失敗件数の計測先を設定する
func WithPersisterMetrics(metrics Metrics) PersisterOption {
	return func(p *Persister) {
		p.metrics = metrics
	}
}

// NewPersister は新しい Persister を作成する
// recorder が nil の場合、Go は何もしない。
func NewPersister(recorder ChatLogRecorder, opts ...PersisterOption) *Persister {
	p := &Persister{
		recorder: recorder,
		timeout:  DefaultPersistTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	return p
}

// Go はチャットログの保存を開始してすぐに戻る
// ctx のキャンセル（クライアント切断）は保存に影響しない。
func (p *Persister) Go(ctx context.Context, entry ChatLog) {
	if p == nil || p.recorder == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = p.now()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.fail(entry, fmt.Errorf("%w: panic: %v", ErrLogPersistenceFailed, r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		if err := p.recorder.Record(ctx, entry); err != nil {
			p.fail(entry, fmt.Errorf("%w: %w", ErrLogPersistenceFailed, err))
		}
	}()
}

// Wait は実行中の保存がすべて終わるまで待つ
func (p *Persister) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}

func (p *Persister) fail(entry ChatLog, err error) {
	p.metrics.ChatLogFailed()
	p.logger.Warn("chat log dropped",
		"tenant", entry.TenantID,
		"mode", entry.Mode,
		"partial", entry.Partial,
		"error", err,
	)
}
