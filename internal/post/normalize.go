package post

import (
	"strings"
	"time"
)

// NormalizeSource はソース表示名をエイリアス統合後の正規名に変換する。
//   - "GitHub Issues" / "GitHub Discussions" → "GitHub"
//   - "Mastodon (...)" → "Mastodon"
//
// 上記以外はそのまま返す。
func NormalizeSource(source string) string {
	switch source {
	case "GitHub Issues", "GitHub Discussions":
		return "GitHub"
	}
	if strings.HasPrefix(source, "Mastodon (") {
		return "Mastodon"
	}
	return source
}

// truncateDay は時刻をUTCの暦日（00:00:00）に切り詰める。
func truncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
