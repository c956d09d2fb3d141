package ask

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samber/mo"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

// プロンプト予算のデフォルト値
const (
	DefaultMaxSnippets = 8
	DefaultMaxChars    = 4000
)

// NoContextPlaceholder はスニペットが1件も無い場合のコンテキスト
const NoContextPlaceholder = "(no context found)"

// スニペット結合時の区切り（"\n\n"）の分だけ各スニペットの消費量に加算する
const snippetSeparatorCost = 2

const systemPrompt = "Use the provided CONTEXT to answer. If unsure, say you don't know."

const userInstruction = "You are given CONTEXT snippets with citation markers like [1], [2]. " +
	"Answer the QUESTION concisely and include citations by their markers when using information."

// Budget はコンテキストの上限
// 0以下のフィールドはデフォルト値として扱う。
type Budget struct {
	MaxSnippets int
	MaxChars    int
}

// DefaultBudget はデフォルトの予算
func DefaultBudget() Budget {
	return Budget{MaxSnippets: DefaultMaxSnippets, MaxChars: DefaultMaxChars}
}

func (b Budget) normalized() Budget {
	if b.MaxSnippets <= 0 {
		b.MaxSnippets = DefaultMaxSnippets
	}
	if b.MaxChars <= 0 {
		b.MaxChars = DefaultMaxChars
	}
	return b
}

// Prompt は組み立て済みのプロンプト
// Sources[i] はマーカー [i+1] のスニペットに対応する。
type Prompt struct {
	Messages     []Message
	Sources      []retrieval.Hit
	ContextChars int // 予算上の消費量（区切り分を含む）
}

type dedupKey struct {
	doc  string
	page string
}

// BuildPrompt は検索結果から重複を除き、予算内でマーカー付きのコンテキストを組み立てる
//
// 長さはすべてルーン数で数える。ヘッダーは切り詰めず、本文が1文字も入らない場合は
// そこで打ち切る。
func BuildPrompt(question string, hits []retrieval.Hit, budget Budget) Prompt {
	budget = budget.normalized()

	var (
		snippets []string
		sources  []retrieval.Hit
		used     int
	)
	seen := make(map[dedupKey]struct{}, len(hits))

	for _, hit := range hits {
		if len(snippets) >= budget.MaxSnippets || used >= budget.MaxChars {
			break
		}

		meta := hit.Metadata
		key := dedupKey{doc: firstNonEmpty(meta.DocID, meta.Filename, "doc"), page: pageLabel(meta.Page)}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		text := normalizeText(meta.Text)
		if text == "" {
			continue
		}

		header := fmt.Sprintf("[%d] Source: %s p.%s\n", len(snippets)+1, sourceLabel(meta), key.page)
		headerLen := utf8.RuneCountInString(header)
		remaining := budget.MaxChars - used
		if remaining <= headerLen {
			break
		}

		body := truncateRunes(text, remaining-headerLen)
		snippet := header + body

		snippets = append(snippets, snippet)
		sources = append(sources, hit)
		used += utf8.RuneCountInString(snippet) + snippetSeparatorCost
	}

	contextBlock := NoContextPlaceholder
	if len(snippets) > 0 {
		contextBlock = strings.Join(snippets, "\n\n")
	}

	user := userInstruction + "\n\nCONTEXT:\n" + contextBlock + "\n\nQUESTION: " + question

	return Prompt{
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: user},
		},
		Sources:      sources,
		ContextChars: used,
	}
}

// Citations はプロンプトに含めたスニペットの出典をマーカー順に返す
func (p Prompt) Citations() []Citation {
	citations := make([]Citation, 0, len(p.Sources))
	for _, hit := range p.Sources {
		citations = append(citations, CitationFromHit(hit))
	}
	return citations
}

// CitationFromHit は検索結果を出典に変換する
func CitationFromHit(hit retrieval.Hit) Citation {
	score := mo.None[float64]()
	if !math.IsNaN(hit.Score) && !math.IsInf(hit.Score, 0) {
		score = mo.Some(hit.Score)
	}
	return Citation{
		Source: sourceLabel(hit.Metadata),
		Page:   hit.Metadata.Page,
		Score:  score,
	}
}

// normalizeText は各行の前後空白と空行を取り除く（段落内の改行は残す）
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// truncateRunes は先頭 n ルーンを返す
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func sourceLabel(meta retrieval.Metadata) string {
	return firstNonEmpty(meta.Filename, meta.DocID, "doc")
}

func pageLabel(page mo.Option[int]) string {
	if p, ok := page.Get(); ok {
		return strconv.Itoa(p)
	}
	return "?"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
