package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

// 計測用の結果ラベル
const (
	outcomeOK              = "ok"
	outcomePartial         = "partial"
	outcomeRetrievalError  = "retrieval_error"
	outcomeGenerationError = "generation_error"
)

// errStreamWrite は StreamWriter の失敗を生成側に伝えるための内部エラー
var errStreamWrite = errors.New("stream write failed")

// Service は質問応答のビジネスロジックを提供する
type Service struct {
	retriever    Retriever
	generator    Generator
	persister    *Persister
	tokenCounter TokenCounter
	metrics      Metrics
	budget       Budget
	logger       *slog.Logger
}

// ServiceOption は Service のオプション
type ServiceOption func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPersister はチャットログの保存先を設定する（未設定時は保存しない）
func WithPersister(persister *Persister) ServiceOption {
	return func(s *Service) {
		s.persister = persister
	}
}

// WithTokenCounter はプロンプトのトークン数カウンターを設定する
func WithTokenCounter(counter TokenCounter) ServiceOption {
	return func(s *Service) {
		s.tokenCounter = counter
	}
}

// WithMetrics は計測先を設定する
func WithMetrics(metrics Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithDefaultBudget は AskParams.Budget がゼロ値の場合に使う予算を設定する
func WithDefaultBudget(budget Budget) ServiceOption {
	return func(s *Service) {
		s.budget = budget.normalized()
	}
}

// NewService は新しい Service を作成する
func NewService(retriever Retriever, generator Generator, opts ...ServiceOption) *Service {
	s := &Service{
		retriever: retriever,
		generator: generator,
		budget:    DefaultBudget(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// Answer は検索結果をもとに回答全文を生成する
func (s *Service) Answer(ctx context.Context, params AskParams) (*Result, error) {
	prompt, err := s.prepare(ctx, ModeSingle, params)
	if err != nil {
		return nil, err
	}

	tokens := s.countTokens(prompt)

	s.logger.Info("generating answer",
		"tenant", params.TenantID,
		"snippets", len(prompt.Sources),
		"promptTokens", tokens,
	)

	answer, err := s.generator.Generate(ctx, prompt.Messages)
	if err != nil {
		s.metrics.ObserveAsk(ModeSingle, outcomeGenerationError)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	s.persister.Go(ctx, ChatLog{
		TenantID:   params.TenantID,
		CustomerID: params.CustomerID,
		Question:   params.Question,
		Answer:     answer,
		Mode:       ModeSingle,
	})
	s.metrics.ObserveAsk(ModeSingle, outcomeOK)

	s.logger.Info("answer completed",
		"tenant", params.TenantID,
		"answerLength", utf8.RuneCountInString(answer),
	)

	return &Result{
		Answer:       answer,
		Citations:    prompt.Citations(),
		PromptTokens: tokens,
	}, nil
}

// Stream は回答を生成しながらテキスト片を w に送る
//
// クライアント切断（w の書き込み失敗または ctx のキャンセル）はエラーとせず、
// StreamResult.Partial を true にして返す。生成失敗は ErrGenerationFailed を返すが、
// それまでに送信したテキスト片はそのまま有効。検索以降のどの結果でも、送信済みの
// テキストをチャットログとして保存する。
func (s *Service) Stream(ctx context.Context, params AskParams, w StreamWriter) (*StreamResult, error) {
	prompt, err := s.prepare(ctx, ModeStream, params)
	if err != nil {
		return nil, err
	}

	result := &StreamResult{Citations: prompt.Citations()}

	if err := w.WriteCitations(result.Citations); err != nil {
		s.logger.Info("client disconnected before generation", "tenant", params.TenantID)
		result.Partial = true
		s.finishStream(ctx, params, result, outcomePartial)
		return result, nil
	}

	s.logger.Info("streaming answer",
		"tenant", params.TenantID,
		"snippets", len(prompt.Sources),
		"promptTokens", s.countTokens(prompt),
	)

	var answer strings.Builder
	genErr := s.generator.StreamGenerate(ctx, prompt.Messages, func(chunk string) error {
		if err := w.WriteChunk(chunk); err != nil {
			return fmt.Errorf("%w: %w", errStreamWrite, err)
		}
		answer.WriteString(chunk)
		result.Chunks++
		return nil
	})
	result.Answer = answer.String()

	switch {
	case genErr == nil:
		s.finishStream(ctx, params, result, outcomeOK)
		return result, nil
	case errors.Is(genErr, errStreamWrite) || ctx.Err() != nil:
		s.logger.Info("client disconnected during streaming",
			"tenant", params.TenantID,
			"chunks", result.Chunks,
		)
		result.Partial = true
		s.finishStream(ctx, params, result, outcomePartial)
		return result, nil
	default:
		result.Partial = true
		s.finishStream(ctx, params, result, outcomeGenerationError)
		return result, fmt.Errorf("%w: %w", ErrGenerationFailed, genErr)
	}
}

// prepare は検索とプロンプト組み立てを行う
func (s *Service) prepare(ctx context.Context, mode string, params AskParams) (Prompt, error) {
	filter := retrieval.Filter{CustomerID: params.CustomerID}

	hits, err := s.retriever.Retrieve(ctx, params.TenantID, params.Question, params.TopK, filter)
	if err != nil {
		if !errors.Is(err, retrieval.ErrEmptyQuestion) && !errors.Is(err, retrieval.ErrInvalidTenant) {
			s.metrics.ObserveAsk(mode, outcomeRetrievalError)
		}
		return Prompt{}, err
	}

	budget := params.Budget
	if budget == (Budget{}) {
		budget = s.budget
	}

	prompt := BuildPrompt(params.Question, hits, budget)
	s.metrics.ObservePrompt(len(prompt.Sources), prompt.ContextChars)

	s.logger.Debug("prompt assembled",
		"tenant", params.TenantID,
		"hits", len(hits),
		"snippets", len(prompt.Sources),
		"contextChars", prompt.ContextChars,
	)

	return prompt, nil
}

func (s *Service) finishStream(ctx context.Context, params AskParams, result *StreamResult, outcome string) {
	s.persister.Go(ctx, ChatLog{
		TenantID:   params.TenantID,
		CustomerID: params.CustomerID,
		Question:   params.Question,
		Answer:     result.Answer,
		Mode:       ModeStream,
		Partial:    result.Partial,
	})
	s.metrics.ObserveAsk(ModeStream, outcome)
}

func (s *Service) countTokens(prompt Prompt) int {
	if s.tokenCounter == nil {
		return 0
	}
	total := 0
	for _, m := range prompt.Messages {
		total += s.tokenCounter.CountTokens(m.Content)
	}
	return total
}
