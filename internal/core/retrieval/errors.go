package retrieval

import "errors"

var (
	// ErrEmptyQuestion は質問文が空（空白のみ）の場合のエラー
	ErrEmptyQuestion = errors.New("empty question")

	// ErrRetrievalFailed は埋め込み生成またはベクトル検索の失敗
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrInvalidTenant はテナントIDの形式が不正な場合のエラー
	ErrInvalidTenant = errors.New("invalid tenant")
)
