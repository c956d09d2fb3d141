package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jinford/tenant-rag/internal/core/ask"
	"github.com/jinford/tenant-rag/internal/core/ingestion"
	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

// DefaultTenant はテナントを特定できない場合に使うテナントID
const DefaultTenant = "default"

// Searcher は検索エンドポイントが使う検索処理
type Searcher interface {
	Retrieve(ctx context.Context, tenantID, question string, topK int, filter retrieval.Filter) ([]retrieval.Hit, error)
}

// Answerer はチャットエンドポイントが使う回答処理
type Answerer interface {
	Answer(ctx context.Context, params ask.AskParams) (*ask.Result, error)
	Stream(ctx context.Context, params ask.AskParams, w ask.StreamWriter) (*ask.StreamResult, error)
}

// Ingester は取り込みエンドポイントが使う処理
type Ingester interface {
	Ingest(ctx context.Context, params ingestion.IngestParams) (*ingestion.IngestResult, error)
}

// Config はHTTP境界の設定
type Config struct {
	PublicKeys    []string          // 空の場合は公開キーを検証しない
	AdminKey      string            // 空の場合は管理APIを拒否する
	TenantDomains map[string]string // host -> tenant
	AllowOrigins  []string
	MaxTopK       int
	Version       string
}

// Deps はハンドラーが使うサービス群
type Deps struct {
	Searcher       Searcher
	Answerer       Answerer
	Ingester       Ingester
	ChatLogs       ask.ChatLogReader
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Server はechoベースのHTTPサーバー
type Server struct {
	echo   *echo.Echo
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// New はルーティングとミドルウェアを設定した Server を返す
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 20
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		echo:   echo.New(),
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, headerPublicKey, headerAdminKey, headerTenantID},
	}))

	e.GET("/health", s.handleHealth)
	if deps.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(deps.MetricsHandler))
	}

	api := e.Group("/api/v1")

	public := api.Group("", s.requirePublicKey)
	public.GET("/search", s.handleSearch)
	public.POST("/chat", s.handleChat)
	public.POST("/chat/stream", s.handleChatStream)

	admin := api.Group("", s.requireAdminKey)
	admin.POST("/ingest", s.handleIngest)
	admin.GET("/admin/chats", s.handleAdminChats)

	return s
}

// Handler はテスト用に http.Handler を返す
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start は addr で待ち受ける
// Shutdown による停止はエラーとしない。
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown は処理中のリクエストを待って停止する
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleError はエラーを {"error": msg} 形式のJSONに変換する
func (s *Server) handleError(err error, c echo.Context) {
	he := toHTTPError(err)

	req := c.Request()
	if he.Code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"status", he.Code,
			"method", req.Method,
			"path", req.URL.Path,
			"error", err,
		)
	}

	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, errorResponse{Error: fmt.Sprint(he.Message)})
}

// toHTTPError はドメインエラーをHTTPステータスに対応付ける
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, retrieval.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, retrieval.ErrEmptyQuestion.Error())
	case errors.Is(err, retrieval.ErrInvalidTenant):
		return echo.NewHTTPError(http.StatusBadRequest, retrieval.ErrInvalidTenant.Error())
	case errors.Is(err, ingestion.ErrEmptyDocument):
		return echo.NewHTTPError(http.StatusBadRequest, ingestion.ErrEmptyDocument.Error())
	case errors.Is(err, retrieval.ErrRetrievalFailed):
		return echo.NewHTTPError(http.StatusBadGateway, retrieval.ErrRetrievalFailed.Error())
	case errors.Is(err, ask.ErrGenerationFailed):
		return echo.NewHTTPError(http.StatusBadGateway, ask.ErrGenerationFailed.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
