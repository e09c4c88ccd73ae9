package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	ScrapeJobRate   rate.Limit    // ジョブ投入のレート（req/sec）。10/60
	ScrapeJobBurst  int           // ジョブ投入のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/key、スクレイプジョブ投入 10 req/min/key。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		ScrapeJobRate:   rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		ScrapeJobBurst:  10,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyLimiter はAPIキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はAPIキーごとのレート制限を管理する。
// API全般のレート制限とジョブ投入のレート制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*keyLimiter

	scrapeJobMu       sync.RWMutex
	scrapeJobLimiters map[string]*keyLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:            config,
		generalLimiters:   make(map[string]*keyLimiter),
		scrapeJobLimiters: make(map[string]*keyLimiter),
		stopCh:            make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにキーIDが含まれている必要がある（APIKeyMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, err := APIKeyIDFromContext(r.Context())
			if err != nil {
				writeUnauthorized(w)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(keyID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("api_key_id", keyID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ScrapeJobMiddleware はスクレイプジョブ投入専用のレート制限ミドルウェアを返す。
// バックエンドへの負荷を抑えるため、API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) ScrapeJobMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, err := APIKeyIDFromContext(r.Context())
			if err != nil {
				writeUnauthorized(w)
				return
			}

			limiter := rl.getOrCreateScrapeJobLimiter(keyID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.ScrapeJobRate)
				slog.Warn("rate limit exceeded",
					slog.String("api_key_id", keyID),
					slog.String("limit_type", "scrape_job"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// ScrapeJobLimiterCount は現在管理されているジョブ投入リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) ScrapeJobLimiterCount() int {
	rl.scrapeJobMu.RLock()
	defer rl.scrapeJobMu.RUnlock()
	return len(rl.scrapeJobLimiters)
}

// getOrCreateGeneralLimiter はキーのAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(keyID string) *rate.Limiter {
	rl.generalMu.RLock()
	kl, exists := rl.generalLimiters[keyID]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		kl.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return kl.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if kl, exists := rl.generalLimiters[keyID]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[keyID] = &keyLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateScrapeJobLimiter はキーのジョブ投入リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateScrapeJobLimiter(keyID string) *rate.Limiter {
	rl.scrapeJobMu.RLock()
	kl, exists := rl.scrapeJobLimiters[keyID]
	rl.scrapeJobMu.RUnlock()

	if exists {
		rl.scrapeJobMu.Lock()
		kl.lastAccess = time.Now()
		rl.scrapeJobMu.Unlock()
		return kl.limiter
	}

	rl.scrapeJobMu.Lock()
	defer rl.scrapeJobMu.Unlock()

	// ダブルチェック
	if kl, exists := rl.scrapeJobLimiters[keyID]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(rl.config.ScrapeJobRate, rl.config.ScrapeJobBurst)
	rl.scrapeJobLimiters[keyID] = &keyLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for keyID, kl := range rl.generalLimiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(rl.generalLimiters, keyID)
		}
	}
	rl.generalMu.Unlock()

	rl.scrapeJobMu.Lock()
	for keyID, kl := range rl.scrapeJobLimiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(rl.scrapeJobLimiters, keyID)
		}
	}
	rl.scrapeJobMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
