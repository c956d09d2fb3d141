package ask

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

func hit(docID string, page int, text string) retrieval.Hit {
	meta := retrieval.Metadata{DocID: docID, Text: text}
	if page > 0 {
		meta.Page = mo.Some(page)
	}
	return retrieval.Hit{ID: fmt.Sprintf("%s-%d", docID, page), Score: 0.5, Metadata: meta}
}

func userContent(t *testing.T, p Prompt) string {
	t.Helper()
	require.Len(t, p.Messages, 2)
	assert.Equal(t, RoleSystem, p.Messages[0].Role)
	assert.Equal(t, RoleUser, p.Messages[1].Role)
	return p.Messages[1].Content
}

// contextOf は user メッセージから CONTEXT 部分を取り出す
func contextOf(t *testing.T, p Prompt) string {
	t.Helper()
	content := userContent(t, p)
	start := strings.Index(content, "CONTEXT:\n")
	end := strings.LastIndex(content, "\n\nQUESTION: ")
	require.True(t, start >= 0 && end > start)
	return content[start+len("CONTEXT:\n") : end]
}

var markerPattern = regexp.MustCompile(`(?m)^\[(\d+)\] Source: `)

func markers(t *testing.T, p Prompt) []string {
	t.Helper()
	var out []string
	for _, m := range markerPattern.FindAllStringSubmatch(contextOf(t, p), -1) {
		out = append(out, m[1])
	}
	return out
}

func TestBuildPrompt_DeduplicatesByDocAndPage(t *testing.T) {
	// Setup
	hits := []retrieval.Hit{
		hit("A", 1, "Alpha content."),
		hit("A", 1, "Duplicate."),
		hit("B", 2, "Bravo"),
	}

	// Execute
	p := BuildPrompt("What is alpha?", hits, Budget{MaxSnippets: 10, MaxChars: 200})

	// Assert
	content := userContent(t, p)
	assert.Contains(t, content, "[1]")
	assert.Contains(t, content, "[2]")
	assert.Equal(t, 2, strings.Count(content, "Source:"))
	assert.NotContains(t, content, "Duplicate.")
	assert.Contains(t, content, "[1] Source: A p.1\nAlpha content.")
	assert.Contains(t, content, "[2] Source: B p.2\nBravo")
	assert.True(t, strings.HasSuffix(content, "QUESTION: What is alpha?"))
	require.Len(t, p.Sources, 2)
	assert.Equal(t, "A-1", p.Sources[0].ID)
	assert.Equal(t, "B-2", p.Sources[1].ID)
}

func TestBuildPrompt_EmptyHitsUsesPlaceholder(t *testing.T) {
	for _, hits := range [][]retrieval.Hit{nil, {}} {
		p := BuildPrompt("q", hits, DefaultBudget())
		assert.Equal(t, NoContextPlaceholder, contextOf(t, p))
		assert.Empty(t, p.Sources)
	}
}

func TestBuildPrompt_AllDuplicateOrEmptyUsesPlaceholder(t *testing.T) {
	hits := []retrieval.Hit{
		hit("A", 1, "  \r\n \n\t "),
		hit("A", 1, "dup of an empty first occurrence"),
		{Metadata: retrieval.Metadata{}},
	}

	p := BuildPrompt("q", hits, DefaultBudget())

	assert.Equal(t, NoContextPlaceholder, contextOf(t, p))
}

func TestBuildPrompt_SkippedHitsDoNotConsumeMarkers(t *testing.T) {
	hits := []retrieval.Hit{
		hit("A", 1, "one"),
		hit("A", 1, "dup"),
		hit("B", 1, "   "),
		hit("C", 1, "three"),
		hit("C", 2, "four"),
	}

	p := BuildPrompt("q", hits, DefaultBudget())

	assert.Equal(t, []string{"1", "2", "3"}, markers(t, p))
	assert.Contains(t, contextOf(t, p), "[2] Source: C p.1\nthree")
}

func TestBuildPrompt_RespectsMaxSnippets(t *testing.T) {
	var hits []retrieval.Hit
	for i := 1; i <= 12; i++ {
		hits = append(hits, hit(fmt.Sprintf("D%d", i), 1, "text"))
	}

	p := BuildPrompt("q", hits, Budget{MaxSnippets: 3, MaxChars: 4000})

	assert.Equal(t, []string{"1", "2", "3"}, markers(t, p))
	assert.Len(t, p.Sources, 3)
}

func TestBuildPrompt_NonPositiveBudgetFallsBackToDefaults(t *testing.T) {
	var hits []retrieval.Hit
	for i := 1; i <= 12; i++ {
		hits = append(hits, hit(fmt.Sprintf("D%d", i), 1, "text"))
	}

	p := BuildPrompt("q", hits, Budget{MaxSnippets: 0, MaxChars: -1})

	assert.Len(t, p.Sources, DefaultMaxSnippets)
}

func TestBuildPrompt_BudgetIsRespected(t *testing.T) {
	var hits []retrieval.Hit
	for i := 1; i <= 20; i++ {
		hits = append(hits, hit(fmt.Sprintf("D%d", i), i, strings.Repeat("x", 37*i)))
	}

	for _, maxChars := range []int{50, 120, 333, 1000, 4000} {
		p := BuildPrompt("q", hits, Budget{MaxSnippets: 20, MaxChars: maxChars})
		ctx := contextOf(t, p)
		k := len(p.Sources)

		require.Positive(t, k, "maxChars=%d", maxChars)
		assert.LessOrEqual(t, utf8.RuneCountInString(ctx), maxChars+2*(k-1), "maxChars=%d", maxChars)
	}
}

func TestBuildPrompt_TruncatesBodyButKeepsHeader(t *testing.T) {
	hits := []retrieval.Hit{
		hit("A", 1, strings.Repeat("a", 100)),
		hit("B", 1, "never fits"),
	}
	header := "[1] Source: A p.1\n"

	p := BuildPrompt("q", hits, Budget{MaxSnippets: 8, MaxChars: len(header) + 10})

	assert.Equal(t, header+strings.Repeat("a", 10), contextOf(t, p))
	assert.Len(t, p.Sources, 1)
}

func TestBuildPrompt_StopsWhenHeaderDoesNotLeaveRoomForBody(t *testing.T) {
	header := "[1] Source: A p.1\n"

	// ヘッダーちょうどの予算では本文が入らないので何も出力しない
	p := BuildPrompt("q", []retrieval.Hit{hit("A", 1, "body")}, Budget{MaxSnippets: 8, MaxChars: len(header)})
	assert.Equal(t, NoContextPlaceholder, contextOf(t, p))
	assert.Empty(t, p.Sources)

	// ヘッダーより小さい予算でも同様
	p = BuildPrompt("q", []retrieval.Hit{hit("A", 1, "body")}, Budget{MaxSnippets: 8, MaxChars: 5})
	assert.Equal(t, NoContextPlaceholder, contextOf(t, p))

	// 1文字だけ入る
	p = BuildPrompt("q", []retrieval.Hit{hit("A", 1, "body")}, Budget{MaxSnippets: 8, MaxChars: len(header) + 1})
	assert.Equal(t, header+"b", contextOf(t, p))
}

func TestBuildPrompt_SecondSnippetStopsWhenOnlyHeaderFits(t *testing.T) {
	first := "[1] Source: A p.1\nfirst"
	second := "[2] Source: B p.1\n"
	budget := len(first) + 2 + len(second)

	p := BuildPrompt("q", []retrieval.Hit{hit("A", 1, "first"), hit("B", 1, "second"), hit("C", 1, "third")}, Budget{MaxSnippets: 8, MaxChars: budget})

	assert.Equal(t, first, contextOf(t, p))
	assert.Len(t, p.Sources, 1)
}

func TestBuildPrompt_TruncationKeepsUTF8Valid(t *testing.T) {
	header := "[1] Source: 規約.txt p.?\n"
	text := "返品は購入後30日以内に受け付けます。"
	h := retrieval.Hit{Metadata: retrieval.Metadata{Filename: "規約.txt", Text: text}}

	p := BuildPrompt("q", []retrieval.Hit{h}, Budget{MaxSnippets: 1, MaxChars: utf8.RuneCountInString(header) + 4})

	ctx := contextOf(t, p)
	assert.True(t, utf8.ValidString(ctx))
	assert.Equal(t, header+"返品は購", ctx)
}

func TestBuildPrompt_NormalizesText(t *testing.T) {
	h := hit("A", 1, "  line one  \r\n\r\n\tline two\n   \n")

	p := BuildPrompt("q", []retrieval.Hit{h}, DefaultBudget())

	assert.Equal(t, "[1] Source: A p.1\nline one\nline two", contextOf(t, p))
}

func TestBuildPrompt_SourceLabelFallbacks(t *testing.T) {
	hits := []retrieval.Hit{
		{Metadata: retrieval.Metadata{DocID: "d1", Filename: "faq.txt", Text: "a", Page: mo.Some(2)}},
		{Metadata: retrieval.Metadata{DocID: "d2", Text: "b"}},
		{Metadata: retrieval.Metadata{Text: "c"}},
	}

	ctx := contextOf(t, BuildPrompt("q", hits, DefaultBudget()))

	assert.Contains(t, ctx, "[1] Source: faq.txt p.2\na")
	assert.Contains(t, ctx, "[2] Source: d2 p.?\nb")
	assert.Contains(t, ctx, "[3] Source: doc p.?\nc")
}

func TestBuildPrompt_DedupKeyPrefersDocID(t *testing.T) {
	// 同じファイル名でも doc_id が異なれば別チャンク
	hits := []retrieval.Hit{
		{Metadata: retrieval.Metadata{DocID: "d1", Filename: "same.txt", Text: "a"}},
		{Metadata: retrieval.Metadata{DocID: "d2", Filename: "same.txt", Text: "b"}},
		{Metadata: retrieval.Metadata{Filename: "other.txt", Text: "c"}},
		{Metadata: retrieval.Metadata{Filename: "other.txt", Text: "d"}},
	}

	p := BuildPrompt("q", hits, DefaultBudget())

	assert.Len(t, p.Sources, 3)
}

func TestBuildPrompt_IsDeterministic(t *testing.T) {
	hits := []retrieval.Hit{hit("A", 1, "alpha"), hit("B", 2, "bravo"), hit("A", 1, "dup")}

	first := BuildPrompt("q", hits, DefaultBudget())
	second := BuildPrompt("q", hits, DefaultBudget())

	assert.Equal(t, first, second)
}

func TestCitationFromHit(t *testing.T) {
	c := CitationFromHit(retrieval.Hit{Score: 0.12, Metadata: retrieval.Metadata{DocID: "d1", Page: mo.Some(4)}})
	assert.Equal(t, Citation{Source: "d1", Page: mo.Some(4), Score: mo.Some(0.12)}, c)

	c = CitationFromHit(retrieval.Hit{Score: math.NaN()})
	assert.Equal(t, "doc", c.Source)
	assert.True(t, c.Score.IsAbsent())
	assert.True(t, c.Page.IsAbsent())
}

func TestPrompt_CitationsMirrorEmittedSnippets(t *testing.T) {
	hits := []retrieval.Hit{hit("A", 1, "alpha"), hit("A", 1, "dup"), hit("B", 2, "  "), hit("C", 3, "charlie")}

	citations := BuildPrompt("q", hits, DefaultBudget()).Citations()

	require.Len(t, citations, 2)
	assert.Equal(t, "A", citations[0].Source)
	assert.Equal(t, "C", citations[1].Source)
}
