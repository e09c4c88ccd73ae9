package post

import "github.com/hitoshi/brandpulse/internal/model"

// PageResult はページネーションの結果。
type PageResult struct {
	Items   []model.Post
	HasMore bool
}

// Page は投稿列の[offset, offset+pageSize)を切り出す。
//
// フィルタ・ソート変更後の古いオフセットが短くなったリストを指しても
// panicせず、範囲を静かにクランプして空ページを返す。
// HasMoreはoffset+pageSize < len(posts)で判定する。
func Page(posts []model.Post, offset, pageSize int) PageResult {
	if offset < 0 {
		offset = 0
	}
	if pageSize < 0 {
		pageSize = 0
	}

	start := offset
	if start > len(posts) {
		start = len(posts)
	}
	end := start + pageSize
	if end > len(posts) {
		end = len(posts)
	}

	items := make([]model.Post, end-start)
	copy(items, posts[start:end])

	return PageResult{
		Items:   items,
		HasMore: offset+pageSize < len(posts),
	}
}
