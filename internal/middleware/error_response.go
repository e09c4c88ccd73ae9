package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/brandpulse/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// StatusForAPIError はAPIErrorのコードに対応するHTTPステータスを返す。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeJobNotFound, model.ErrCodeAPIKeyNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidSort, model.ErrCodeInvalidDate,
		model.ErrCodeInvalidPeriod, model.ErrCodeInvalidURL,
		model.ErrCodeSSRFBlocked, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeJobNotCancellable:
		return http.StatusConflict
	case model.ErrCodeBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError はエラーをAPIErrorとして書き込む。
// APIErrorでないエラーは詳細を隠して500に落とす。
func WriteAPIError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
		return
	}
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
