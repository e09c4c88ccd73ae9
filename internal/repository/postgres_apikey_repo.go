package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

// PostgresAPIKeyRepo はPostgreSQLを使用したAPIキーリポジトリ。
type PostgresAPIKeyRepo struct {
	db *sql.DB
}

// NewPostgresAPIKeyRepo はPostgresAPIKeyRepoを生成する。
func NewPostgresAPIKeyRepo(db *sql.DB) *PostgresAPIKeyRepo {
	return &PostgresAPIKeyRepo{db: db}
}

// Create はAPIキーを作成する。
func (r *PostgresAPIKeyRepo) Create(ctx context.Context, key *model.APIKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, created_at, last_used_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, key.CreatedAt, key.LastUsedAt, key.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("APIキーの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByHash はキーハッシュでAPIキーを検索する。見つからない場合はnilを返す。
func (r *PostgresAPIKeyRepo) FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	key := &model.APIKey{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, key_hash, created_at, last_used_at, revoked_at
		 FROM api_keys WHERE key_hash = $1`,
		keyHash,
	).Scan(&key.ID, &key.Name, &key.KeyHash, &key.CreatedAt, &key.LastUsedAt, &key.RevokedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("APIキーの検索に失敗しました: %w", err)
	}
	return key, nil
}

// FindByID は指定IDのAPIキーを取得する。見つからない場合はnilを返す。
func (r *PostgresAPIKeyRepo) FindByID(ctx context.Context, id string) (*model.APIKey, error) {
	key := &model.APIKey{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, key_hash, created_at, last_used_at, revoked_at
		 FROM api_keys WHERE id = $1`,
		id,
	).Scan(&key.ID, &key.Name, &key.KeyHash, &key.CreatedAt, &key.LastUsedAt, &key.RevokedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("APIキーの取得に失敗しました: %w", err)
	}
	return key, nil
}

// List は全APIキーを作成日時の降順で返す。
func (r *PostgresAPIKeyRepo) List(ctx context.Context) ([]*model.APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, key_hash, created_at, last_used_at, revoked_at
		 FROM api_keys ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("APIキー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key := &model.APIKey{}
		if err := rows.Scan(&key.ID, &key.Name, &key.KeyHash, &key.CreatedAt, &key.LastUsedAt, &key.RevokedAt); err != nil {
			return nil, fmt.Errorf("APIキー行の読み取りに失敗しました: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("APIキー一覧の走査に失敗しました: %w", err)
	}
	return keys, nil
}

// Revoke は指定IDのAPIキーを失効させる。見つからない場合はfalseを返す。
// すでに失効済みのキーのrevoked_atは上書きしない。
func (r *PostgresAPIKeyRepo) Revoke(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, revokedAt,
	)
	if err != nil {
		return false, fmt.Errorf("APIキーの失効に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("APIキー失効の結果取得に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// TouchLastUsed は認証成功時にlast_used_atを更新する。
func (r *PostgresAPIKeyRepo) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`,
		id, usedAt,
	)
	if err != nil {
		return fmt.Errorf("APIキーの最終使用日時の更新に失敗しました: %w", err)
	}
	return nil
}
