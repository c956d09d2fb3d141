package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding は OpenAI のチャット/埋め込みモデルが使うエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter は tiktoken でトークン数を数える
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は指定エンコーディングの Counter を作成する
// 空文字の場合は cl100k_base を使う
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", encoding, err)
	}
	return &Counter{encoding: enc}, nil
}

// CountTokens はテキストのトークン数を返す
func (c *Counter) CountTokens(text string) int {
	if c == nil || c.encoding == nil || text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// EstimateTokens はエンコーディングを読み込めない場合の概算
// 3文字で1トークンとみなす
func EstimateTokens(text string) int {
	return len([]rune(text)) / 3
}

// Estimator は EstimateTokens で数える TokenCounter
type Estimator struct{}

// CountTokens はテキストの概算トークン数を返す
func (Estimator) CountTokens(text string) int {
	return EstimateTokens(text)
}
