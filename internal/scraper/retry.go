// Package scraper はスクレイパーバックエンドのHTTPクライアントを提供する。
package scraper

import "time"

// CallResult はHTTPステータスコードに基づくバックエンド呼び出し結果の分類。
type CallResult int

const (
	// CallResultOK は呼び出し成功（200）。
	CallResultOK CallResult = iota
	// CallResultNotFound はリソース未検出（404/410）。
	// ジョブポーリングではポーリング停止を意味する。
	CallResultNotFound
	// CallResultStop は継続不能なステータス（401/403）。
	CallResultStop
	// CallResultBackoff はバックオフが必要なステータス（429/5xx）。
	CallResultBackoff
	// CallResultUnknown は未知のステータスコード。
	CallResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（2秒）。
	// ジョブポーリング間隔と同一で、1回の失敗ではリズムを崩さない。
	initialBackoff = 2 * time.Second
	// maxBackoff は指数バックオフの最大遅延（60秒）。
	maxBackoff = 60 * time.Second
)

// ClassifyHTTPStatus はHTTPステータスコードを呼び出し結果に分類する。
func ClassifyHTTPStatus(statusCode int) CallResult {
	switch {
	case statusCode == 200:
		return CallResultOK
	case statusCode == 404 || statusCode == 410:
		return CallResultNotFound
	case statusCode == 401 || statusCode == 403:
		return CallResultStop
	case statusCode == 429:
		return CallResultBackoff
	case statusCode >= 500:
		return CallResultBackoff
	default:
		return CallResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回2秒、2倍ずつ増加、最大60秒。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
