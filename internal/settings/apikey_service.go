// Package settings は設定ページの機能（APIキー管理）を提供する。
package settings

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/repository"
)

// keyPrefix は発行キーの先頭に付く識別子。
// ログやシークレットスキャナでの検出を容易にする。
const keyPrefix = "bp_"

// APIKeyService はAPIキーの発行・一覧・失効を提供する。
// 平文キーは発行時に1回だけ返し、以後はSHA-256ハッシュでのみ照合する。
type APIKeyService struct {
	repo repository.APIKeyRepository
	now  func() time.Time
}

// NewAPIKeyService はAPIKeyServiceを生成する。
func NewAPIKeyService(repo repository.APIKeyRepository) *APIKeyService {
	return &APIKeyService{
		repo: repo,
		now:  time.Now,
	}
}

// IssuedKey はキー発行の結果。Plaintextはこのレスポンス以外に現れない。
type IssuedKey struct {
	Key       model.APIKey
	Plaintext string
}

// Issue は新しいAPIキーを発行する。
func (s *APIKeyService) Issue(ctx context.Context, name string) (*IssuedKey, error) {
	plaintext, err := generateKey()
	if err != nil {
		return nil, fmt.Errorf("キーの生成に失敗: %w", err)
	}

	key := model.APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		KeyHash:   HashKey(plaintext),
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, &key); err != nil {
		return nil, err
	}

	return &IssuedKey{Key: key, Plaintext: plaintext}, nil
}

// List は全APIキーを作成日時の降順で返す。結果にはハッシュが含まれるため、
// 呼び出し側はレスポンスに露出させないこと。
func (s *APIKeyService) List(ctx context.Context) ([]*model.APIKey, error) {
	return s.repo.List(ctx)
}

// Revoke は指定IDのAPIキーを失効させる。
// 見つからない場合はAPIKeyNotFoundエラーを返す。失効は冪等ではなく、
// すでに失効済みのキーへの再失効もAPIKeyNotFoundとして扱う。
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	revoked, err := s.repo.Revoke(ctx, id, s.now())
	if err != nil {
		return err
	}
	if !revoked {
		return model.NewAPIKeyNotFoundError(id)
	}
	return nil
}

// Authenticate は平文キーを照合し、有効なキーを返す。
// 不一致・失効済みの場合はnilを返す。成功時はlast_used_atを更新する。
func (s *APIKeyService) Authenticate(ctx context.Context, plaintext string) (*model.APIKey, error) {
	key, err := s.repo.FindByHash(ctx, HashKey(plaintext))
	if err != nil {
		return nil, err
	}
	if key == nil || key.IsRevoked() {
		return nil, nil
	}

	if err := s.repo.TouchLastUsed(ctx, key.ID, s.now()); err != nil {
		// 認証自体は成功しているため、更新失敗でリクエストを落とさない
		return key, nil
	}
	return key, nil
}

// HashKey は平文キーのSHA-256ハッシュを16進文字列で返す。
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// generateKey は暗号論的乱数から平文キーを生成する。
func generateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return keyPrefix + hex.EncodeToString(b), nil
}
