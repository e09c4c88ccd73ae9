// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// JobStatus はスクレイプジョブの状態を表す。
type JobStatus string

const (
	// JobStatusPending は実行待ちの状態。
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning は実行中の状態。
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted は正常完了した状態。
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed は失敗した状態。
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled はキャンセルされた状態。
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal はジョブが終端状態（completed/failed/cancelled）かどうかを返す。
// 終端状態に達したジョブのポーリングは停止しなければならない。
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobProgress はスクレイプジョブの進捗を表す。
type JobProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// ScrapeJob はスクレイプジョブのローカル記録を表す。
// ジョブの実体はバックエンドにあり、このレコードはダッシュボードの
// 設定ページに表示する履歴とポーリング状態の追跡に使用する。
type ScrapeJob struct {
	ID         string // バックエンドが発行するjob_id
	Sources    []string
	Status     JobStatus
	Progress   JobProgress
	Results    json.RawMessage // バックエンドのresultsをそのまま保持する
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}
