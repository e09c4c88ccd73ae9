// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/brandpulse/internal/model"
)

// APIKeyHeader はAPIキーを受け取るリクエストヘッダー名。
const APIKeyHeader = "X-API-Key"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// apiKeyIDContextKey はリクエストコンテキストに認証済みキーIDを格納するためのキー。
var apiKeyIDContextKey = contextKey("api_key_id")

// KeyAuthenticator はAPIキーの認証に必要なインターフェース。
// settings.APIKeyServiceの部分集合として定義する。
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, plaintext string) (*model.APIKey, error)
}

// NewAPIKeyMiddleware はX-API-KeyヘッダーからAPIキーを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みキーIDをリクエストコンテキストに注入する。
// 未認証リクエストには統一フォーマットで401を返す。
func NewAPIKeyMiddleware(authenticator KeyAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plaintext := r.Header.Get(APIKeyHeader)
			if plaintext == "" {
				writeUnauthorized(w)
				return
			}

			key, err := authenticator.Authenticate(r.Context(), plaintext)
			if err != nil {
				slog.Error("APIキーの認証に失敗しました",
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w)
				return
			}
			if key == nil {
				// 未知または失効済みのキー
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyIDContextKey, key.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyIDFromContext はリクエストコンテキストから認証済みキーIDを取得する。
// APIキーミドルウェアを通過したリクエストでのみ有効。
func APIKeyIDFromContext(ctx context.Context) (string, error) {
	keyID, ok := ctx.Value(apiKeyIDContextKey).(string)
	if !ok || keyID == "" {
		return "", fmt.Errorf("API key ID not found in context")
	}
	return keyID, nil
}

// ContextWithAPIKeyID はコンテキストにキーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAPIKeyID(ctx context.Context, keyID string) context.Context {
	return context.WithValue(ctx, apiKeyIDContextKey, keyID)
}

// writeUnauthorized は統一フォーマットで401レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "有効なAPIキーが必要です。",
		Category: "auth",
		Action:   "設定ページで発行したAPIキーをX-API-Keyヘッダーに指定してください。",
	})
}
