// Package jobpoll はスクレイプジョブの状態ポーリングを提供する。
// ジョブ作成後にバックエンドを一定間隔で照会し、終端状態への遷移と
// バックエンド側のジョブ消失を検出してポーリングを停止する。
package jobpoll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/brandpulse/internal/metrics"
	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/scraper"
)

// DefaultInterval はジョブポーリングの既定間隔。
const DefaultInterval = 2 * time.Second

// maxConsecutiveErrors はポーリングを打ち切る連続エラー回数の閾値。
const maxConsecutiveErrors = 10

// JobGetter はバックエンドのジョブ状態取得インターフェース。
// ジョブが見つからない場合は(nil, nil)を返す。
type JobGetter interface {
	GetJob(ctx context.Context, jobID string) (*model.ScrapeJob, error)
}

// JobRecorder はローカルジョブ記録の更新インターフェース。
type JobRecorder interface {
	FindByID(ctx context.Context, id string) (*model.ScrapeJob, error)
	UpdateStatus(ctx context.Context, job *model.ScrapeJob) error
}

// Refresher はジョブ完了時の投稿コレクション再取得インターフェース。
type Refresher interface {
	RunOnce(ctx context.Context) error
}

// MetricsRecorder はポーリング結果のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordPollOutcome(outcome string)
}

// noopMetrics はメトリクス未配線時のフォールバック。
type noopMetrics struct{}

func (noopMetrics) RecordPollOutcome(outcome string) {}

// Poller はジョブ状態のポーリングワーカー。
// ジョブごとに1本のポーリングゴルーチンを持ち、同一ジョブへの
// 二重Watchでは古い方をキャンセルしてから新しい監視を開始する。
type Poller struct {
	client    JobGetter
	recorder  JobRecorder
	refresher Refresher
	logger    *slog.Logger
	metrics   MetricsRecorder
	interval  time.Duration
	now       func() time.Time
	backoff   func(consecutiveErrors int) time.Duration

	mu      sync.Mutex
	watches map[string]*watch
	wg      sync.WaitGroup
}

// watch は1ジョブ分の監視登録。deregister時の同一性判定に
// ポインタを使うため構造体で包む。
type watch struct {
	cancel context.CancelFunc
}

// NewPoller はPollerの新しいインスタンスを生成する。
// intervalが0以下の場合はDefaultIntervalを使用する。
func NewPoller(
	client JobGetter,
	recorder JobRecorder,
	refresher Refresher,
	logger *slog.Logger,
	interval time.Duration,
) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		client:    client,
		recorder:  recorder,
		refresher: refresher,
		logger:    logger,
		metrics:   noopMetrics{},
		interval:  interval,
		now:       time.Now,
		backoff:   scraper.CalculateBackoff,
		watches:   make(map[string]*watch),
	}
}

// SetMetrics はメトリクスレコーダーを設定する。起動時の配線専用。
func (p *Poller) SetMetrics(m MetricsRecorder) {
	if m != nil {
		p.metrics = m
	}
}

// Watch はジョブのポーリングを開始する。
// 同一ジョブの監視がすでに稼働中の場合は先にそれをキャンセルする。
// ポーリング自体は別ゴルーチンで実行され、Watchは即座に返る。
func (p *Poller) Watch(ctx context.Context, jobID string) {
	watchCtx, cancel := context.WithCancel(ctx)
	w := &watch{cancel: cancel}

	p.mu.Lock()
	if prev, ok := p.watches[jobID]; ok {
		prev.cancel()
	}
	p.watches[jobID] = w
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.deregister(jobID, w)
		p.poll(watchCtx, jobID)
	}()
}

// Wait は稼働中の全ポーリングの終了を待つ。シャットダウン用。
func (p *Poller) Wait() {
	p.wg.Wait()
}

// deregister は監視登録を解除する。
// 二重Watchで置き換えられた新しい登録を消さないよう、
// 自分自身の登録である場合のみ削除する。
func (p *Poller) deregister(jobID string, w *watch) {
	w.cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.watches[jobID]; ok && current == w {
		delete(p.watches, jobID)
	}
}

// poll はジョブが終端状態になるか、バックエンドがジョブを見失うか、
// コンテキストがキャンセルされるまでポーリングを続ける。
// エラー時は指数バックオフで間隔を広げ、連続エラーが閾値に達したら
// 打ち切る。すべての終了経路でタイマーを停止する。
func (p *Poller) poll(ctx context.Context, jobID string) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			p.metrics.RecordPollOutcome(metrics.PollOutcomeCancelled)
			p.logger.Info("ジョブポーリングがキャンセルされました",
				slog.String("job_id", jobID),
			)
			return
		case <-timer.C:
		}

		job, err := p.client.GetJob(ctx, jobID)
		if err != nil {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				p.metrics.RecordPollOutcome(metrics.PollOutcomeError)
				p.logger.Error("連続エラーによりジョブポーリングを打ち切ります",
					slog.String("job_id", jobID),
					slog.Int("consecutive_errors", consecutiveErrors),
					slog.String("error", err.Error()),
				)
				return
			}
			delay := p.backoff(consecutiveErrors - 1)
			p.logger.Warn("ジョブ状態の取得に失敗しました（バックオフ）",
				slog.String("job_id", jobID),
				slog.Int("consecutive_errors", consecutiveErrors),
				slog.Duration("next_poll_in", delay),
				slog.String("error", err.Error()),
			)
			timer.Reset(delay)
			continue
		}
		consecutiveErrors = 0

		if job == nil {
			// バックエンドがジョブを見失った: ローカル記録を失敗で確定して停止
			p.markLost(ctx, jobID)
			p.metrics.RecordPollOutcome(metrics.PollOutcomeNotFound)
			p.logger.Warn("バックエンドにジョブが存在しないためポーリングを停止します",
				slog.String("job_id", jobID),
			)
			return
		}

		if err := p.record(ctx, job); err != nil {
			p.logger.Error("ジョブ記録の更新に失敗しました",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}

		if job.Status.IsTerminal() {
			p.finish(ctx, job)
			return
		}

		timer.Reset(p.interval)
	}
}

// record はバックエンドの状態をローカル記録にマージして保存する。
func (p *Poller) record(ctx context.Context, job *model.ScrapeJob) error {
	local, err := p.recorder.FindByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if local == nil {
		// ローカル記録のないジョブは追跡対象外
		return nil
	}

	local.Status = job.Status
	local.Progress = job.Progress
	local.Results = job.Results
	local.Error = job.Error
	local.UpdatedAt = p.now()
	if job.Status.IsTerminal() && local.FinishedAt == nil {
		finished := p.now()
		local.FinishedAt = &finished
	}
	return p.recorder.UpdateStatus(ctx, local)
}

// markLost はバックエンド側で消失したジョブのローカル記録を失敗で確定する。
func (p *Poller) markLost(ctx context.Context, jobID string) {
	local, err := p.recorder.FindByID(ctx, jobID)
	if err != nil || local == nil || local.Status.IsTerminal() {
		return
	}
	local.Status = model.JobStatusFailed
	local.Error = "バックエンドにジョブが見つかりません"
	local.UpdatedAt = p.now()
	finished := p.now()
	local.FinishedAt = &finished
	if err := p.recorder.UpdateStatus(ctx, local); err != nil {
		p.logger.Error("消失ジョブの記録更新に失敗しました",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// finish は終端状態に達したジョブの後処理を行う。
// 完了時は投稿コレクションを再取得する。
func (p *Poller) finish(ctx context.Context, job *model.ScrapeJob) {
	switch job.Status {
	case model.JobStatusCompleted:
		p.metrics.RecordPollOutcome(metrics.PollOutcomeCompleted)
		p.logger.Info("スクレイプジョブが完了しました",
			slog.String("job_id", job.ID),
			slog.Int("progress_total", job.Progress.Total),
		)
		if err := p.refresher.RunOnce(ctx); err != nil {
			p.logger.Error("ジョブ完了後の投稿リフレッシュに失敗しました",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	case model.JobStatusFailed:
		p.metrics.RecordPollOutcome(metrics.PollOutcomeFailed)
		p.logger.Warn("スクレイプジョブが失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", job.Error),
		)
	case model.JobStatusCancelled:
		p.metrics.RecordPollOutcome(metrics.PollOutcomeCancelled)
		p.logger.Info("スクレイプジョブがキャンセルされました",
			slog.String("job_id", job.ID),
		)
	}
}
