package httpserver

import (
	"math"
	"time"

	"github.com/samber/mo"

	"github.com/jinford/tenant-rag/internal/core/ask"
)

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	OK      bool    `json:"ok"`
	TS      float64 `json:"ts"`
	Version string  `json:"version"`
}

type searchResult struct {
	Score    *float64 `json:"score"`
	Filename string   `json:"filename"`
	Page     *int     `json:"page"`
	Snippet  string   `json:"snippet"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type chatRequest struct {
	Message    string `json:"message"`
	TopK       *int   `json:"top_k"`
	Tenant     string `json:"tenant"`
	CustomerID string `json:"customer_id"`
}

type citationDTO struct {
	Source string   `json:"source"`
	Page   *int     `json:"page"`
	Score  *float64 `json:"score"`
}

type chatResponse struct {
	Answer       string        `json:"answer"`
	Citations    []citationDTO `json:"citations"`
	PromptTokens int           `json:"prompt_tokens"`
}

type deltaEvent struct {
	Text string `json:"text"`
}

type doneEvent struct {
	Chunks int `json:"chunks"`
}

type ingestRequest struct {
	Filename   string `json:"filename"`
	Text       string `json:"text"`
	CustomerID string `json:"customer_id"`
}

type ingestResponse struct {
	OK     bool   `json:"ok"`
	DocID  string `json:"doc_id"`
	Chunks int    `json:"chunks"`
}

type chatLogDTO struct {
	CustomerID *string   `json:"customer_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Mode       string    `json:"mode"`
	Partial    bool      `json:"partial"`
	CreatedAt  time.Time `json:"created_at"`
}

type chatLogsResponse struct {
	Tenant string       `json:"tenant"`
	Chats  []chatLogDTO `json:"chats"`
}

func toCitationDTOs(citations []ask.Citation) []citationDTO {
	out := make([]citationDTO, len(citations))
	for i, c := range citations {
		out[i] = citationDTO{
			Source: c.Source,
			Page:   c.Page.ToPointer(),
			Score:  c.Score.ToPointer(),
		}
	}
	return out
}

func toChatLogDTOs(logs []ask.ChatLog) []chatLogDTO {
	out := make([]chatLogDTO, len(logs))
	for i, l := range logs {
		out[i] = chatLogDTO{
			CustomerID: l.CustomerID.ToPointer(),
			Question:   l.Question,
			Answer:     l.Answer,
			Mode:       l.Mode,
			Partial:    l.Partial,
			CreatedAt:  l.CreatedAt,
		}
	}
	return out
}

// finiteScore は JSON に出せない NaN/Inf を nil にする
func finiteScore(score float64) *float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil
	}
	return &score
}

func optionalString(s string) mo.Option[string] {
	if s == "" {
		return mo.None[string]()
	}
	return mo.Some(s)
}
