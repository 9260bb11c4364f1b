// Package model はドメインモデルを定義する。
package model

// User はリモートのユーザーディレクトリから取得するユーザーを表す。
type User struct {
	ID       int64  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name     string `json:"name" validate:"required"`
	Username string `json:"username"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
	Website  string `json:"website"`
}

// RecordID はRecordインターフェースを実装する。
func (u User) RecordID() int64 {
	return u.ID
}
