package ingestion

import "strings"

// チャンク分割のデフォルト値（ルーン数）
const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 150
)

// ChunkText はテキストを maxChars ルーンの窓に分割する
// 隣接する窓は overlap ルーン重なる。各チャンクは前後の空白を除き、空のものは捨てる。
// maxChars <= 0 はデフォルト値、overlap は 0..maxChars-1 に丸める。
func ChunkText(text string, maxChars, overlap int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars - 1
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+maxChars, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}
