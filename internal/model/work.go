// Package model はドメインモデルを定義する。
package model

import "time"

// WorkRequest は名前で一意に識別される定期実行ワークの永続化された要求を表す。
type WorkRequest struct {
	Name                string     `json:"name" gorm:"primaryKey"`
	Schedule            string     `json:"schedule"`
	RequiresNetwork     bool       `json:"requires_network"`
	Status              WorkStatus `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	NextRunAt           time.Time  `json:"next_run_at"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// WorkStatus はワーク要求の状態を表す。
type WorkStatus string

const (
	// WorkStatusEnqueued は次回実行を待っている状態。
	WorkStatusEnqueued WorkStatus = "enqueued"
	// WorkStatusRunning は実行中の状態。
	WorkStatusRunning WorkStatus = "running"
	// WorkStatusSucceeded は直近の実行が成功した状態。
	WorkStatusSucceeded WorkStatus = "succeeded"
	// WorkStatusFailed は直近の実行が失敗し、リトライ待ちの状態。
	WorkStatusFailed WorkStatus = "failed"
	// WorkStatusCancelled はキャンセルされ、今後実行されない状態。
	WorkStatusCancelled WorkStatus = "cancelled"
)

// ExistingWorkPolicy は同名のワーク要求が既に存在する場合の扱いを表す。
type ExistingWorkPolicy int

const (
	// ExistingWorkKeep は既存の要求をそのまま残す。
	ExistingWorkKeep ExistingWorkPolicy = iota
	// ExistingWorkReplace は既存の要求のスケジュールと制約を置き換える。
	ExistingWorkReplace
)
