// Package model はドメインモデルを定義する。
package model

import "time"

// APIKey はダッシュボードAPIの認証キーを表す。
// 平文のキーは発行時に1回だけ返し、保存するのはSHA-256ハッシュのみ。
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string // hex(sha256(平文キー))
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// IsRevoked はキーが失効済みかどうかを返す。
func (k APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}
