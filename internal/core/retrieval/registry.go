package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

// DefaultOpenTimeout は Backend.Open 1回あたりの上限
const DefaultOpenTimeout = 30 * time.Second

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateTenantID はテナントIDの形式を検証する
func ValidateTenantID(tenantID string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenantID)
	}
	return nil
}

// Registry はテナントごとの Index を遅延生成してキャッシュする
// 同一テナントへの同時アクセスでも Backend.Open は1回だけ呼ばれる。
// Open が失敗した場合はキャッシュせず、次回の Get で再試行する。
// Open は呼び出し元のキャンセルの影響を受けず、openTimeout で打ち切られる。
type Registry struct {
	backend     Backend
	logger      *slog.Logger
	openTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	once  sync.Once
	index Index
	err   error
}

// RegistryOption は Registry のオプション
type RegistryOption func(*Registry)

// WithRegistryLogger はロガーを設定する
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithOpenTimeout は Backend.Open のタイムアウトを設定する
func WithOpenTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.openTimeout = timeout
		}
	}
}

// NewRegistry は新しい Registry を作成する
func NewRegistry(backend Backend, opts ...RegistryOption) *Registry {
	r := &Registry{
		backend:     backend,
		openTimeout: DefaultOpenTimeout,
		entries:     make(map[string]*registryEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Backend は使用中のバックエンド名を返す
func (r *Registry) Backend() string {
	return r.backend.Name()
}

// Get はテナントの Index を返す。未オープンならオープンする。
func (r *Registry) Get(ctx context.Context, tenantID string) (Index, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	entry, ok := r.entries[tenantID]
	if !ok {
		entry = &registryEntry{}
		r.entries[tenantID] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		r.logger.Info("opening tenant index", "tenant", tenantID, "backend", r.backend.Name())
		openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.openTimeout)
		defer cancel()
		entry.index, entry.err = r.backend.Open(openCtx, tenantID)
	})

	if entry.err != nil {
		r.mu.Lock()
		if r.entries[tenantID] == entry {
			delete(r.entries, tenantID)
		}
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to open index for tenant %s: %w", tenantID, entry.err)
	}

	return entry.index, nil
}
