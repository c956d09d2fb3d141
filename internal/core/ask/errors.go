package ask

import "errors"

var (
	// ErrGenerationFailed は生成モデル呼び出しの失敗
	ErrGenerationFailed = errors.New("generation failed")

	// ErrLogPersistenceFailed はチャットログ保存の失敗（呼び出し元には返さない）
	ErrLogPersistenceFailed = errors.New("chat log persistence failed")
)
