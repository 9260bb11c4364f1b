package pubsub

import "sync"

// Value は現在値を保持し、更新のたびに購読者へ通知する観測可能な値。
// 常にちょうど1つの値を保持する。
type Value[T any] struct {
	mu      sync.RWMutex
	current T
	bc      *Broadcaster[T]
}

// NewValue は初期値を持つValueを生成する。
func NewValue[T any](initial T, bufferSize int) *Value[T] {
	return &Value[T]{
		current: initial,
		bc:      NewBroadcaster[T](bufferSize),
	}
}

// Get は現在値を返す。
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Set は現在値を置き換え、購読者へ通知する。
// 値の置き換えと通知は同一ロック下で行い、購読者が受け取る順序を発行順と一致させる。
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = next
	v.bc.Publish(next)
}

// Subscribe は以降の更新を受け取るチャネルと購読解除関数を返す。
// 購読時点の現在値は配信しない。必要であればGetで取得する。
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	return v.bc.Subscribe()
}

// SubscribeWithCurrent は現在値と、それ以降の更新を受け取るチャネルを返す。
// 現在値の取得と購読開始は同一ロック下で行うため、間の更新を取りこぼさない。
func (v *Value[T]) SubscribeWithCurrent() (T, <-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch, cancel := v.bc.Subscribe()
	return v.current, ch, cancel
}

// Close は全購読者のチャネルをクローズする。
func (v *Value[T]) Close() {
	v.bc.Close()
}
