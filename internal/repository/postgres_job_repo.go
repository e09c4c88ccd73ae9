package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/brandpulse/internal/model"
)

// PostgresScrapeJobRepo はPostgreSQLを使用したスクレイプジョブリポジトリ。
type PostgresScrapeJobRepo struct {
	db *sql.DB
}

// NewPostgresScrapeJobRepo はPostgresScrapeJobRepoを生成する。
func NewPostgresScrapeJobRepo(db *sql.DB) *PostgresScrapeJobRepo {
	return &PostgresScrapeJobRepo{db: db}
}

// Create はジョブ記録を作成する。
func (r *PostgresScrapeJobRepo) Create(ctx context.Context, job *model.ScrapeJob) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scrape_jobs (id, sources, status, progress_completed, progress_total,
		                          results, error_message, created_at, updated_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, pq.Array(job.Sources), job.Status,
		job.Progress.Completed, job.Progress.Total,
		nullRawMessage(job.Results), job.Error,
		job.CreatedAt, job.UpdatedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("ジョブ記録の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのジョブ記録を取得する。見つからない場合はnilを返す。
func (r *PostgresScrapeJobRepo) FindByID(ctx context.Context, id string) (*model.ScrapeJob, error) {
	job := &model.ScrapeJob{}
	var sources pq.StringArray
	var results []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, sources, status, progress_completed, progress_total,
		        results, error_message, created_at, updated_at, finished_at
		 FROM scrape_jobs WHERE id = $1`,
		id,
	).Scan(
		&job.ID, &sources, &job.Status,
		&job.Progress.Completed, &job.Progress.Total,
		&results, &job.Error,
		&job.CreatedAt, &job.UpdatedAt, &job.FinishedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブ記録の取得に失敗しました: %w", err)
	}

	job.Sources = sources
	job.Results = results
	return job, nil
}

// List はジョブ記録を作成日時の降順で最大limit件返す。
func (r *PostgresScrapeJobRepo) List(ctx context.Context, limit int) ([]*model.ScrapeJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sources, status, progress_completed, progress_total,
		        results, error_message, created_at, updated_at, finished_at
		 FROM scrape_jobs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ジョブ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ScrapeJob
	for rows.Next() {
		job := &model.ScrapeJob{}
		var sources pq.StringArray
		var results []byte
		if err := rows.Scan(
			&job.ID, &sources, &job.Status,
			&job.Progress.Completed, &job.Progress.Total,
			&results, &job.Error,
			&job.CreatedAt, &job.UpdatedAt, &job.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("ジョブ行の読み取りに失敗しました: %w", err)
		}
		job.Sources = sources
		job.Results = results
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ジョブ一覧の走査に失敗しました: %w", err)
	}
	return jobs, nil
}

// UpdateStatus はジョブの状態・進捗・結果を更新する。
func (r *PostgresScrapeJobRepo) UpdateStatus(ctx context.Context, job *model.ScrapeJob) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scrape_jobs SET
		    status = $2, progress_completed = $3, progress_total = $4,
		    results = $5, error_message = $6, updated_at = $7, finished_at = $8
		 WHERE id = $1`,
		job.ID, job.Status,
		job.Progress.Completed, job.Progress.Total,
		nullRawMessage(job.Results), job.Error,
		job.UpdatedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("ジョブ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteFinishedBefore は終端状態かつfinished_atがcutoffより古い
// ジョブ記録を削除し、削除件数を返す。
func (r *PostgresScrapeJobRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM scrape_jobs
		 WHERE status IN ('completed', 'failed', 'cancelled')
		   AND finished_at IS NOT NULL AND finished_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("ジョブ記録の削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ジョブ削除の結果取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// nullRawMessage は空のJSONペイロードをNULLとして格納する。
func nullRawMessage(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
