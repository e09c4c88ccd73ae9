// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

// APIKeyRepository はAPIキーデータの永続化インターフェース。
type APIKeyRepository interface {
	// Create はAPIキーを作成する。平文キーは保存せず、ハッシュのみを格納する。
	Create(ctx context.Context, key *model.APIKey) error

	// FindByHash はキーハッシュでAPIキーを検索する。見つからない場合はnilを返す。
	// 失効済みキーも返す（失効判定は呼び出し側の責務）。
	FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error)

	// FindByID は指定IDのAPIキーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.APIKey, error)

	// List は全APIキーを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.APIKey, error)

	// Revoke は指定IDのAPIキーを失効させる。
	// 見つからない場合はfalseを返す。
	Revoke(ctx context.Context, id string, revokedAt time.Time) (bool, error)

	// TouchLastUsed は認証成功時にlast_used_atを更新する。
	TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error
}

// ScrapeJobRepository はスクレイプジョブ記録の永続化インターフェース。
// ジョブの実体はバックエンドにあり、このリポジトリは設定ページの履歴表示と
// ポーリング状態の追跡に使用するローカル記録を扱う。
type ScrapeJobRepository interface {
	// Create はジョブ記録を作成する。
	Create(ctx context.Context, job *model.ScrapeJob) error

	// FindByID は指定IDのジョブ記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ScrapeJob, error)

	// List はジョブ記録を作成日時の降順で最大limit件返す。
	List(ctx context.Context, limit int) ([]*model.ScrapeJob, error)

	// UpdateStatus はジョブの状態・進捗・結果を更新する。
	UpdateStatus(ctx context.Context, job *model.ScrapeJob) error

	// DeleteFinishedBefore は終端状態かつfinished_atがcutoffより古い
	// ジョブ記録を削除し、削除件数を返す。
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
