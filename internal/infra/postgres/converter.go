package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"

	"github.com/jinford/tenant-rag/internal/core/ask"
	"github.com/jinford/tenant-rag/internal/core/retrieval"
	"github.com/jinford/tenant-rag/internal/infra/postgres/sqlc"
)

// OptionToPgtext converts mo.Option[string] to pgtype.Text (None or "" -> NULL)
func OptionToPgtext(o mo.Option[string]) pgtype.Text {
	v, ok := o.Get()
	if !ok || v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

// PgtextToOption converts pgtype.Text to mo.Option[string]
func PgtextToOption(t pgtype.Text) mo.Option[string] {
	if !t.Valid {
		return mo.None[string]()
	}
	return mo.Some(t.String)
}

// MetadataToJSON converts retrieval.Metadata to a JSONB payload
func MetadataToJSON(m retrieval.Metadata) ([]byte, error) {
	data, err := json.Marshal(m.ToMap())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

// JSONToMetadata converts a JSONB payload to retrieval.Metadata
// 不正なJSONはゼロ値として扱う。
func JSONToMetadata(data []byte) retrieval.Metadata {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return retrieval.Metadata{}
	}
	return retrieval.MetadataFromMap(m)
}

// ChatLogFromRow converts sqlc.ChatLog to ask.ChatLog
func ChatLogFromRow(row sqlc.ChatLog) ask.ChatLog {
	return ask.ChatLog{
		TenantID:   row.TenantID,
		CustomerID: PgtextToOption(row.CustomerID),
		Question:   row.Question,
		Answer:     row.Answer,
		Mode:       row.Mode,
		Partial:    row.Partial,
		CreatedAt:  row.CreatedAt,
	}
}
