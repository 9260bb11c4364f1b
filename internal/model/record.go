// Package model はドメインモデルを定義する。
package model

// Record はローカルストアとリモートサービスの間で受け渡されるレコードの制約。
// comparableであることにより、全フィールドが等しい2つのレコードは
// 差分比較において同一とみなせる。
type Record interface {
	comparable
	// RecordID はレコードの安定した識別子を返す。
	RecordID() int64
}
