package syncwork

import (
	"context"
	"fmt"
)

// Constraint はワークを実行してよいかを判定する。nilを返した場合に満たされたとみなす。
type Constraint interface {
	Check(ctx context.Context) error
}

// ConstraintFunc は関数をConstraintとして扱うアダプタ。
type ConstraintFunc func(ctx context.Context) error

// Check はConstraintを実装する。
func (f ConstraintFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// Pinger はリモートサービスへの到達性を確認する。remote.Clientが実装する。
type Pinger interface {
	Ping(ctx context.Context) error
}

// NetworkConstraint はリモートサービスに到達できることを要求する制約。
type NetworkConstraint struct {
	Pinger Pinger
}

// Check はConstraintを実装する。
func (c NetworkConstraint) Check(ctx context.Context) error {
	if err := c.Pinger.Ping(ctx); err != nil {
		return fmt.Errorf("network unavailable: %w", err)
	}
	return nil
}
