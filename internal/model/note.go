// Package model はドメインモデルを定義する。
package model

// Note はユーザーが作成するメモを表す。
type Note struct {
	ID      int64  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content"` // サニタイズ済みHTML
}

// RecordID はRecordインターフェースを実装する。
func (n Note) RecordID() int64 {
	return n.ID
}
