package syncwork

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/syncbook/internal/model"
)

const (
	// initialBackoff は指数バックオフの初回遅延（30秒）。
	initialBackoff = 30 * time.Second
	// maxBackoff はスケジュール周期が求まらない場合の最大遅延（1時間）。
	maxBackoff = time.Hour
)

// ParseSchedule はスケジュール式を解析する。
// "@every 15m" などの記述子と5フィールドのcron式を受け付ける。
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}

// SchedulePeriod はスケジュールの周期を返す。
// 一定間隔でないcron式の場合はfrom以降の連続する2回の実行時刻の差を周期とみなす。
func SchedulePeriod(sched cron.Schedule, from time.Time) time.Duration {
	if every, ok := sched.(cron.ConstantDelaySchedule); ok {
		return every.Delay
	}
	first := sched.Next(from)
	if first.IsZero() {
		return 0
	}
	second := sched.Next(first)
	if second.IsZero() {
		return 0
	}
	return second.Sub(first)
}

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回30秒、2倍ずつ増加し、スケジュール周期と1時間の短い方を上限とする。
func CalculateBackoff(consecutiveFailures int, period time.Duration) time.Duration {
	limit := maxBackoff
	if period > 0 && period < limit {
		limit = period
	}

	delay := initialBackoff
	for i := 1; i < consecutiveFailures; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

// ApplySuccess は実行成功時にワーク要求の状態を更新する。
// 連続失敗回数をリセットし、次回実行時刻をスケジュールから求める。
func ApplySuccess(req *model.WorkRequest, sched cron.Schedule, now time.Time) {
	req.Status = model.WorkStatusSucceeded
	req.ConsecutiveFailures = 0
	req.LastError = ""
	req.LastRunAt = &now
	req.NextRunAt = sched.Next(now)
	req.UpdatedAt = now
}

// ApplyFailure は実行失敗時にワーク要求の状態を更新する。
// 連続失敗回数をインクリメントし、指数バックオフで次回実行時刻を設定する。
func ApplyFailure(req *model.WorkRequest, sched cron.Schedule, now time.Time, reason string) {
	req.Status = model.WorkStatusFailed
	req.ConsecutiveFailures++
	req.LastError = reason
	req.LastRunAt = &now
	req.NextRunAt = now.Add(CalculateBackoff(req.ConsecutiveFailures, SchedulePeriod(sched, now)))
	req.UpdatedAt = now
}

// ApplyDeferral は制約を満たさなかった場合に次回の確認時刻を設定する。
// 状態と失敗回数は変更しない。
func ApplyDeferral(req *model.WorkRequest, now time.Time, delay time.Duration) {
	req.NextRunAt = now.Add(delay)
	req.UpdatedAt = now
}
