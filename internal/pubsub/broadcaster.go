// Package pubsub は値の変化を複数の購読者へプッシュ配信する仕組みを提供する。
//
// Broadcaster は発行された値を全購読者へファンアウトする。
// Value は現在値を保持し、変更のたびに購読者へ通知する（観測可能な状態）。
// どちらもプッシュ型であり、購読者は自分のチャネルから受信するだけでよい。
package pubsub

import "sync"

// defaultBufferSize は購読者ごとのチャネルバッファの既定サイズ。
const defaultBufferSize = 16

// Broadcaster は値を全購読者へ配信するファンアウト機構。
// 購読者のバッファが満杯の場合は最も古い未受信値を捨てて最新値を入れる。
// 発行者が遅い購読者にブロックされることはない。
type Broadcaster[T any] struct {
	mu         sync.Mutex
	subs       map[int]chan T
	nextID     int
	bufferSize int
	closed     bool
}

// NewBroadcaster はBroadcasterを生成する。
// bufferSizeが0以下の場合はデフォルト値16を使用する。
func NewBroadcaster[T any](bufferSize int) *Broadcaster[T] {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Broadcaster[T]{
		subs:       make(map[int]chan T),
		bufferSize: bufferSize,
	}
}

// Subscribe は購読を開始し、受信チャネルと購読解除関数を返す。
// 購読解除関数を呼ぶとチャネルはクローズされる。複数回呼んでも安全。
// Close済みのBroadcasterに対してはクローズ済みチャネルを返す。
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broadcaster[T]) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish は値を全購読者へ配信する。
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// バッファ満杯: 最も古い値を捨てて最新値を入れる
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// SubscriberCount は現在の購読者数を返す。
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close は全購読者のチャネルをクローズし、以降の発行を無視する。
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
