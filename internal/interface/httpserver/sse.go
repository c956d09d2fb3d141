package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jinford/tenant-rag/internal/core/ask"
)

// SSEイベント名
const (
	eventCitations = "citations"
	eventDelta     = "delta"
	eventDone      = "done"
	eventError     = "error"
)

// sseWriter は ask.StreamWriter を Server-Sent Events として書き出す
// ヘッダーは最初のイベント送信時に確定する。それまでに起きたエラーは通常のJSONエラーとして返せる。
type sseWriter struct {
	ctx     context.Context
	resp    *echo.Response
	flusher http.Flusher
	started bool
}

func newSSEWriter(c echo.Context) (*sseWriter, error) {
	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	return &sseWriter{
		ctx:     c.Request().Context(),
		resp:    resp,
		flusher: flusher,
	}, nil
}

func (w *sseWriter) start() {
	if w.started {
		return
	}
	w.started = true
	h := w.resp.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.resp.WriteHeader(http.StatusOK)
}

func (w *sseWriter) send(event string, payload any) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.start()
	if _, err := fmt.Fprintf(w.resp, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// WriteCitations implements ask.StreamWriter.
func (w *sseWriter) WriteCitations(citations []ask.Citation) error {
	return w.send(eventCitations, toCitationDTOs(citations))
}

// WriteChunk implements ask.StreamWriter.
func (w *sseWriter) WriteChunk(chunk string) error {
	return w.send(eventDelta, deltaEvent{Text: chunk})
}
