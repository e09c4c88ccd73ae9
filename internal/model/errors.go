// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, job, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeJobNotFound        = "JOB_NOT_FOUND"
	ErrCodeInvalidSort        = "INVALID_SORT"
	ErrCodeInvalidDate        = "INVALID_DATE"
	ErrCodeInvalidPeriod      = "INVALID_PERIOD"
	ErrCodeAPIKeyNotFound     = "API_KEY_NOT_FOUND"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeJobNotCancellable  = "JOB_NOT_CANCELLABLE"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
)

// NewInvalidRequestError は不正なリクエストボディエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewJobNotFoundError はジョブ未検出エラーを生成する。
func NewJobNotFoundError(jobID string) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFound,
		Message:  fmt.Sprintf("指定されたジョブが見つかりません: %s", jobID),
		Category: "job",
		Action:   "ジョブIDを確認してください。完了済みジョブは保持期間経過後に削除されます。",
	}
}

// NewInvalidSortError は無効なソートキーエラーを生成する。
func NewInvalidSortError(sort string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSort,
		Message:  fmt.Sprintf("無効なソートキーです: %s", sort),
		Category: "validation",
		Action:   "date-desc、date-asc、sentiment-desc、sentiment-asc、relevancy-desc、relevancy-asc、source-asc、source-desc、critical、engagement のいずれかを指定してください。",
	}
}

// NewInvalidDateError は無効な日付フィルタエラーを生成する。
func NewInvalidDateError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", value),
		Category: "validation",
		Action:   "日付はYYYY-MM-DD形式で指定してください。",
	}
}

// NewInvalidPeriodError は無効な期間指定エラーを生成する。
func NewInvalidPeriodError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPeriod,
		Message:  fmt.Sprintf("無効な期間指定です: %s", value),
		Category: "validation",
		Action:   "period_daysには1以上の整数を指定してください。",
	}
}

// NewAPIKeyNotFoundError はAPIキー未検出エラーを生成する。
func NewAPIKeyNotFoundError(keyID string) *APIError {
	return &APIError{
		Code:     ErrCodeAPIKeyNotFound,
		Message:  fmt.Sprintf("指定されたAPIキーが見つかりません: %s", keyID),
		Category: "auth",
		Action:   "キーIDを確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewBackendUnavailableError はスクレイパーバックエンド呼び出し失敗エラーを生成する。
func NewBackendUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  fmt.Sprintf("スクレイパーバックエンドへの接続に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。問題が続く場合はバックエンドの稼働状況を確認してください。",
	}
}

// NewJobNotCancellableError は終端状態のジョブに対するキャンセル要求エラーを生成する。
func NewJobNotCancellableError(jobID string, status JobStatus) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotCancellable,
		Message:  fmt.Sprintf("ジョブ %s は %s 状態のためキャンセルできません。", jobID, status),
		Category: "job",
		Action:   "キャンセルは実行待ちまたは実行中のジョブに対してのみ実行できます。",
	}
}
