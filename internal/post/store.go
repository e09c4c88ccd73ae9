package post

import (
	"sync"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

// DefaultDebounce はフィルタ変更の再計算をまとめる待機時間。
// 複数のUIコントロールが同時に変更イベントを発火するバーストを
// 1回のパイプライン再計算に合流させる。
const DefaultDebounce = 50 * time.Millisecond

// Snapshot はStoreの状態の不変コピー。
type Snapshot struct {
	Posts    []model.Post
	Filtered []model.Post
	Filter   model.FilterState
	Sort     model.SortKey
	Offset   int
}

// Store は投稿コレクションと現在のビュー状態（フィルタ・ソート・
// ページネーションカーソル）を保持する明示的な状態コンテナ。
//
// 2つの規律を強制する:
//   - Filteredはin-placeで変更せず、再計算のたびに新しいスライスで置き換える
//   - オフセットのリセットはフィルタ/ソート変更と同一ロック内で行い、
//     古いリスト長に対するページ境界の描画を防ぐ
type Store struct {
	mu       sync.Mutex
	posts    []model.Post
	filtered []model.Post
	filter   model.FilterState
	sortKey  model.SortKey
	offset   int

	opts     Options
	debounce time.Duration
	timer    *time.Timer
	pending  bool

	// onRecompute は再計算のたびに呼ばれるフック（メトリクス用、任意）。
	onRecompute func()
}

// NewStore は新しいStoreを生成する。
// debounceが0以下の場合は再計算を同期実行する。
func NewStore(opts Options, debounce time.Duration) *Store {
	return &Store{
		opts:     opts,
		sortKey:  model.DefaultSortKey,
		debounce: debounce,
		filtered: []model.Post{},
	}
}

// SetOnRecompute は再計算フックを設定する。起動時の配線専用であり、
// ワーカー稼働後に呼んではならない。
func (s *Store) SetOnRecompute(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRecompute = fn
}

// ReplacePosts は投稿コレクション全体を置き換え、即座に再計算する。
// スクレイプジョブ完了時と定期リフレッシュ時に呼ばれる。
func (s *Store) ReplacePosts(posts []model.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = make([]model.Post, len(posts))
	copy(s.posts, posts)
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
	}
	s.recomputeLocked()
}

// SetFilter はフィルタ条件を置き換え、オフセットを0にリセットして
// デバウンス付きで再計算をスケジュールする。
func (s *Store) SetFilter(f model.FilterState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f.Canonical()
	s.offset = 0
	s.scheduleLocked()
}

// SetSort はソート戦略を置き換え、オフセットを0にリセットして
// デバウンス付きで再計算をスケジュールする。
func (s *Store) SetSort(key model.SortKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !model.ValidSortKeys[key] {
		key = model.DefaultSortKey
	}
	s.sortKey = key
	s.offset = 0
	s.scheduleLocked()
}

// NextPage は現在のビューから次のページを切り出し、カーソルを進める。
// 保留中の再計算がある場合は先に反映する。
func (s *Store) NextPage(pageSize int) PageResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()
	result := Page(s.filtered, s.offset, pageSize)
	s.offset += len(result.Items)
	return result
}

// Snapshot は現在の状態の不変コピーを返す。
// 保留中の再計算がある場合は先に反映する。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()

	posts := make([]model.Post, len(s.posts))
	copy(posts, s.posts)
	filtered := make([]model.Post, len(s.filtered))
	copy(filtered, s.filtered)

	return Snapshot{
		Posts:    posts,
		Filtered: filtered,
		Filter:   s.filter,
		Sort:     s.sortKey,
		Offset:   s.offset,
	}
}

// Flush は保留中の再計算を同期実行する。テストとシャットダウン用。
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

// scheduleLocked はデバウンス付きで再計算をスケジュールする。
// 待機中に再度呼ばれた場合はタイマーを引き直し、バーストを合流させる。
// 呼び出し元がs.muを保持していること。
func (s *Store) scheduleLocked() {
	if s.debounce <= 0 {
		s.recomputeLocked()
		return
	}

	s.pending = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.Flush)
}

// flushLocked は保留中の再計算があれば実行する。
// 呼び出し元がs.muを保持していること。
func (s *Store) flushLocked() {
	if !s.pending {
		return
	}
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
	}
	s.recomputeLocked()
}

// recomputeLocked はフィルタ→ソートのパイプラインを実行して
// filteredを新しいスライスで置き換える。呼び出し元がs.muを保持していること。
func (s *Store) recomputeLocked() {
	s.filtered = Sort(Filter(s.posts, s.filter, s.opts), s.sortKey)
	s.pending = false
	if s.onRecompute != nil {
		s.onRecompute()
	}
}
