package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/brandpulse/internal/middleware"
	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/settings"
)

// APIKeyServiceInterface はAPIキーハンドラーが必要とするサービス。
type APIKeyServiceInterface interface {
	Issue(ctx context.Context, name string) (*settings.IssuedKey, error)
	List(ctx context.Context) ([]*model.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

// APIKeyHandler はAPIキー管理のHTTPハンドラー。
type APIKeyHandler struct {
	service APIKeyServiceInterface
	logger  *slog.Logger
}

// NewAPIKeyHandler はAPIKeyHandlerを生成する。
func NewAPIKeyHandler(service APIKeyServiceInterface, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service: service,
		logger:  logger,
	}
}

// --- リクエスト/レスポンス型 ---

type createKeyRequest struct {
	Name string `json:"name"`
}

// apiKeyResponse はAPIキーのJSON表現。ハッシュは決して含めない。
type apiKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// issuedKeyResponse はキー発行のレスポンス。
// keyフィールドの平文はこのレスポンス以外には現れない。
type issuedKeyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

func toAPIKeyResponse(key *model.APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         key.ID,
		Name:       key.Name,
		CreatedAt:  key.CreatedAt,
		LastUsedAt: key.LastUsedAt,
		RevokedAt:  key.RevokedAt,
	}
}

// CreateKey は新しいAPIキーを発行する。
// POST /api/keys
// 平文キーはこのレスポンスで1回だけ返す。
func (h *APIKeyHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("ボディの解析に失敗しました"))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("キー名を指定してください"))
		return
	}

	issued, err := h.service.Issue(r.Context(), name)
	if err != nil {
		h.logger.Error("APIキーの発行に失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, err)
		return
	}

	h.logger.Info("APIキーを発行しました",
		slog.String("key_id", issued.Key.ID),
		slog.String("name", issued.Key.Name),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(issuedKeyResponse{
		ID:        issued.Key.ID,
		Name:      issued.Key.Name,
		Key:       issued.Plaintext,
		CreatedAt: issued.Key.CreatedAt,
	})
}

// ListKeys は全APIキーを返す。
// GET /api/keys
// ハッシュはレスポンスに含めない。
func (h *APIKeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("APIキー一覧の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, err)
		return
	}

	resp := make([]apiKeyResponse, len(keys))
	for i, key := range keys {
		resp[i] = toAPIKeyResponse(key)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"keys": resp})
}

// RevokeKey は指定IDのAPIキーを失効させる。
// DELETE /api/keys/:id
func (h *APIKeyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "id")

	if err := h.service.Revoke(r.Context(), keyID); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	h.logger.Info("APIキーを失効させました", slog.String("key_id", keyID))

	w.WriteHeader(http.StatusNoContent)
}
