package retrieval

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/samber/mo"
)

// メタデータのキー名
const (
	MetaDocID      = "doc_id"
	MetaFilename   = "filename"
	MetaPage       = "page"
	MetaText       = "text"
	MetaCustomerID = "customer_id"
)

// MetadataFromMap は型のないメタデータを Metadata に変換する
// 欠落や型違いのフィールドはゼロ値（Page は None）になり、失敗することはない。
func MetadataFromMap(m map[string]any) Metadata {
	return Metadata{
		DocID:      stringField(m, MetaDocID),
		Filename:   stringField(m, MetaFilename),
		Text:       stringField(m, MetaText),
		CustomerID: stringField(m, MetaCustomerID),
		Page:       pageField(m[MetaPage]),
	}
}

// ToMap は Metadata をバックエンド保存用のマップに変換する
// 空の文字列フィールドと None のページは出力しない。
func (m Metadata) ToMap() map[string]any {
	out := make(map[string]any, 5)
	if m.DocID != "" {
		out[MetaDocID] = m.DocID
	}
	if m.Filename != "" {
		out[MetaFilename] = m.Filename
	}
	if m.Text != "" {
		out[MetaText] = m.Text
	}
	if m.CustomerID != "" {
		out[MetaCustomerID] = m.CustomerID
	}
	if page, ok := m.Page.Get(); ok {
		out[MetaPage] = page
	}
	return out
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// maxPage を超えるページ番号は壊れた値として扱う
const maxPage = math.MaxInt32

func pageField(v any) mo.Option[int] {
	var page int64
	switch n := v.(type) {
	case int:
		page = int64(n)
	case int32:
		page = int64(n)
	case int64:
		page = n
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) || n < 1 || n > maxPage {
			return mo.None[int]()
		}
		page = int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return mo.None[int]()
		}
		page = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return mo.None[int]()
		}
		page = i
	default:
		return mo.None[int]()
	}
	if page < 1 || page > maxPage {
		return mo.None[int]()
	}
	return mo.Some(int(page))
}
