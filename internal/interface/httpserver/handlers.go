package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jinford/tenant-rag/internal/core/ask"
	"github.com/jinford/tenant-rag/internal/core/ingestion"
	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

const (
	snippetRunes     = 400
	defaultChatLimit = 50
	maxChatLimit     = 500
)

func (s *Server) handleHealth(c echo.Context) error {
	now := time.Now()
	return c.JSON(http.StatusOK, healthResponse{
		OK:      true,
		TS:      float64(now.UnixNano()) / float64(time.Second),
		Version: s.cfg.Version,
	})
}

// handleSearch は GET /api/v1/search?q=&top_k=&customer_id=
func (s *Server) handleSearch(c echo.Context) error {
	tenant, err := s.resolveTenant(c, "")
	if err != nil {
		return err
	}

	q := c.QueryParam("q")
	if strings.TrimSpace(q) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty query")
	}

	topK := 0
	if raw := c.QueryParam("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "top_k must be an integer")
		}
		if topK, err = s.checkTopK(&n); err != nil {
			return err
		}
	}

	filter := retrieval.Filter{CustomerID: optionalString(c.QueryParam("customer_id"))}
	hits, err := s.deps.Searcher.Retrieve(c.Request().Context(), tenant, q, topK, filter)
	if err != nil {
		return err
	}

	results := make([]searchResult, len(hits))
	for i, hit := range hits {
		results[i] = searchResult{
			Score:    finiteScore(hit.Score),
			Filename: hit.Metadata.Filename,
			Page:     hit.Metadata.Page.ToPointer(),
			Snippet:  firstRunes(hit.Metadata.Text, snippetRunes),
		}
	}
	return c.JSON(http.StatusOK, searchResponse{Results: results})
}

// handleChat は POST /api/v1/chat
func (s *Server) handleChat(c echo.Context) error {
	params, err := s.bindChat(c)
	if err != nil {
		return err
	}

	result, err := s.deps.Answerer.Answer(c.Request().Context(), params)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, chatResponse{
		Answer:       result.Answer,
		Citations:    toCitationDTOs(result.Citations),
		PromptTokens: result.PromptTokens,
	})
}

// handleChatStream は POST /api/v1/chat/stream
//
// 検索に失敗した場合はストリーム開始前なので通常のJSONエラーを返す。
// 生成中の失敗は error イベントとして送る。
func (s *Server) handleChatStream(c echo.Context) error {
	params, err := s.bindChat(c)
	if err != nil {
		return err
	}

	w, err := newSSEWriter(c)
	if err != nil {
		return err
	}

	result, err := s.deps.Answerer.Stream(c.Request().Context(), params, w)
	if err != nil {
		if !w.started {
			return err
		}
		_ = w.send(eventError, errorResponse{Error: fmt.Sprint(toHTTPError(err).Message)})
		return nil
	}

	if result.Partial {
		// クライアントが切断済み
		return nil
	}
	_ = w.send(eventDone, doneEvent{Chunks: result.Chunks})
	return nil
}

func (s *Server) bindChat(c echo.Context) (ask.AskParams, error) {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return ask.AskParams{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tenant, err := s.resolveTenant(c, req.Tenant)
	if err != nil {
		return ask.AskParams{}, err
	}

	topK, err := s.checkTopK(req.TopK)
	if err != nil {
		return ask.AskParams{}, err
	}

	return ask.AskParams{
		TenantID:   tenant,
		Question:   req.Message,
		CustomerID: optionalString(strings.TrimSpace(req.CustomerID)),
		TopK:       topK,
	}, nil
}

// checkTopK は未指定を 0（サービス側のデフォルト）として扱い、範囲外を拒否する
func (s *Server) checkTopK(topK *int) (int, error) {
	if topK == nil {
		return 0, nil
	}
	if *topK < 1 || *topK > s.cfg.MaxTopK {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "top_k must be between 1 and "+strconv.Itoa(s.cfg.MaxTopK))
	}
	return *topK, nil
}

// handleIngest は POST /api/v1/ingest
func (s *Server) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tenant, err := s.resolveTenant(c, "")
	if err != nil {
		return err
	}

	result, err := s.deps.Ingester.Ingest(c.Request().Context(), ingestion.IngestParams{
		TenantID:   tenant,
		Filename:   strings.TrimSpace(req.Filename),
		CustomerID: optionalString(strings.TrimSpace(req.CustomerID)),
		Text:       req.Text,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ingestResponse{OK: true, DocID: result.DocID, Chunks: result.Chunks})
}

// handleAdminChats は GET /api/v1/admin/chats?limit=&offset=
func (s *Server) handleAdminChats(c echo.Context) error {
	tenant, err := s.resolveTenant(c, "")
	if err != nil {
		return err
	}

	limit := defaultChatLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxChatLimit {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxChatLimit))
		}
		limit = n
	}

	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		offset = n
	}

	if s.deps.ChatLogs == nil {
		return errors.New("chat log store not configured")
	}
	logs, err := s.deps.ChatLogs.ListRecent(c.Request().Context(), tenant, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, chatLogsResponse{Tenant: tenant, Chats: toChatLogDTOs(logs)})
}

func firstRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
