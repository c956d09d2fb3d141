package ask

import (
	"context"
	"time"

	"github.com/samber/mo"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

// 回答モード
const (
	ModeStream = "stream"
	ModeSingle = "single"
)

// メッセージのロール
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message は生成モデルに渡す1メッセージ
type Message struct {
	Role    string
	Content string
}

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	TenantID   string            // テナントID
	Question   string            // ユーザーの質問文
	CustomerID mo.Option[string] // 指定時は検索をこの顧客のチャンクに限定する
	TopK       int               // 検索件数（0以下はデフォルト）
	Budget     Budget            // プロンプトの予算（ゼロ値はデフォルト）
}

// Result は単発回答の結果を表す
type Result struct {
	Answer       string     // LLMによる回答
	Citations    []Citation // プロンプトに含めたスニペットの出典（マーカー順）
	PromptTokens int        // プロンプトのトークン数（カウンター未設定時は0）
}

// StreamResult はストリーミング回答の結果を表す
type StreamResult struct {
	Answer    string     // クライアントに送信できたチャンクの連結
	Citations []Citation // 生成前に送信した出典
	Chunks    int        // 送信できたチャンク数
	Partial   bool       // 切断または生成失敗で途中終了した場合 true
}

// Citation は回答の根拠となった出典を表す
type Citation struct {
	Source string             // filename → doc_id → "doc" の順で決定
	Page   mo.Option[int]     // ページ番号
	Score  mo.Option[float64] // 有限値の場合のみ
}

// ChatLog は保存するチャットログ1件
type ChatLog struct {
	TenantID   string
	CustomerID mo.Option[string]
	Question   string
	Answer     string
	Mode       string
	Partial    bool
	CreatedAt  time.Time
}

// Generator は生成モデルのインターフェース
type Generator interface {
	// Generate は回答全文を返す
	Generate(ctx context.Context, messages []Message) (string, error)
	// StreamGenerate は生成されたテキスト片ごとに onChunk を呼ぶ
	// onChunk がエラーを返した場合は生成を中断し、そのエラーを返す。
	StreamGenerate(ctx context.Context, messages []Message, onChunk func(string) error) error
}

// ChatLogRecorder はチャットログの保存先
type ChatLogRecorder interface {
	Record(ctx context.Context, entry ChatLog) error
}

// ChatLogReader は管理画面向けのチャットログ参照
type ChatLogReader interface {
	// ListRecent は新しい順に offset 件を飛ばして最大 limit 件を返す
	ListRecent(ctx context.Context, tenantID string, limit, offset int) ([]ChatLog, error)
}

// ChatLogStore は保存と参照の両方を提供する
type ChatLogStore interface {
	ChatLogRecorder
	ChatLogReader
}

// Retriever は質問文から検索結果を返す
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, question string, topK int, filter retrieval.Filter) ([]retrieval.Hit, error)
}

// TokenCounter はプロンプトのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// Metrics は回答処理の計測先
type Metrics interface {
	ObserveAsk(mode, outcome string)
	ObservePrompt(snippets, chars int)
	ChatLogFailed()
}

// StreamWriter はストリーミング回答の送信先
type StreamWriter interface {
	// WriteCitations は生成開始前に1回だけ呼ばれる
	WriteCitations(citations []Citation) error
	// WriteChunk は生成されたテキスト片ごとに呼ばれる
	// エラーを返すとクライアント切断とみなして生成を止める。
	WriteChunk(chunk string) error
}

// ChunkFunc はテキスト片だけを受け取る関数を StreamWriter として使うためのアダプター
// 出典は無視する。
type ChunkFunc func(chunk string) error

// WriteCitations implements StreamWriter.
func (f ChunkFunc) WriteCitations([]Citation) error { return nil }

// WriteChunk implements StreamWriter.
func (f ChunkFunc) WriteChunk(chunk string) error { return f(chunk) }

type nopMetrics struct{}

func (nopMetrics) ObserveAsk(string, string) {}
func (nopMetrics) ObservePrompt(int, int) {}
func (nopMetrics) ChatLogFailed() {}
