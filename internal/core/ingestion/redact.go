package ingestion

import "regexp"

// MaskText は秘匿情報を置き換える文字列
const MaskText = "***MASKED***"

// 秘匿情報とみなすパターン
var secretPatterns = []string{
	// APIキー (汎用)
	`(?i)api[_-]?key\s*[:=]\s*["']?[a-zA-Z0-9_\-]{20,}["']?`,
	// AWS
	`(?i)aws[_-]?access[_-]?key[_-]?id\s*[:=]\s*["']?[A-Z0-9]{20}["']?`,
	`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}["']?`,
	// OpenAI / GitHub / Slack
	`sk-[a-zA-Z0-9_\-]{32,}`,
	`ghp_[a-zA-Z0-9]{20,}`,
	`xox[baprs]-[a-zA-Z0-9\-]{10,72}`,
	// プライベートキー
	`-----BEGIN\s+(?:RSA\s+|ENCRYPTED\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`,
	// パスワード
	`(?i)pass(?:word|wd)\s*[:=]\s*["'][^"']{8,}["']`,
	// 接続文字列の認証情報
	`(?i)(?:postgres|mysql|mongodb|redis)://[^:\s]+:[^@\s]+@`,
	// JWT / Bearer
	`eyJ[a-zA-Z0-9_\-]+\.eyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+`,
	`(?i)bearer\s+[a-zA-Z0-9_\-\.]{20,}`,
}

// Redactor は取り込むテキストから秘匿情報をマスクする
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor は既定のパターンで Redactor を作成する
func NewRedactor() *Redactor {
	patterns := make([]*regexp.Regexp, len(secretPatterns))
	for i, p := range secretPatterns {
		patterns[i] = regexp.MustCompile(p)
	}
	return &Redactor{patterns: patterns}
}

// Redact はマスク後のテキストと置換した箇所の数を返す
func (r *Redactor) Redact(text string) (string, int) {
	count := 0
	for _, re := range r.patterns {
		text = re.ReplaceAllStringFunc(text, func(string) string {
			count++
			return MaskText
		})
	}
	return text, count
}
