// Package viewmodel は非同期のデータ取得を観測可能なUI状態へ橋渡しする状態ホルダーを提供する。
package viewmodel

import (
	"encoding/json"
	"fmt"
)

// Status は状態の種類を表す。
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State はLoading・Success・Errorのいずれか1つを表すタグ付き共用体。
// ゼロ値はLoading。
type State[T any] struct {
	status  Status
	data    T
	message string
}

// Loading は読み込み中の状態を返す。
func Loading[T any]() State[T] {
	return State[T]{status: StatusLoading}
}

// Success はデータの取得に成功した状態を返す。
func Success[T any](data T) State[T] {
	return State[T]{status: StatusSuccess, data: data}
}

// Error は失敗した状態を返す。messageは利用者に表示する文言。
func Error[T any](message string) State[T] {
	return State[T]{status: StatusError, message: message}
}

// Status は状態の種類を返す。
func (s State[T]) Status() Status {
	if s.status == "" {
		return StatusLoading
	}
	return s.status
}

// Data はSuccessの場合にデータを返す。
func (s State[T]) Data() (T, bool) {
	return s.data, s.Status() == StatusSuccess
}

// Message はErrorの場合にメッセージを返す。
func (s State[T]) Message() (string, bool) {
	return s.message, s.Status() == StatusError
}

func (s State[T]) String() string {
	switch s.Status() {
	case StatusSuccess:
		return fmt.Sprintf("Success(%v)", s.data)
	case StatusError:
		return fmt.Sprintf("Error(%s)", s.message)
	default:
		return "Loading"
	}
}

type stateJSON[T any] struct {
	Status  Status `json:"status"`
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// MarshalJSON は {"status":"loading"}、{"status":"success","data":...}、
// {"status":"error","message":"..."} の形式で出力する。
func (s State[T]) MarshalJSON() ([]byte, error) {
	out := stateJSON[T]{Status: s.Status()}
	switch out.Status {
	case StatusSuccess:
		data := s.data
		out.Data = &data
	case StatusError:
		out.Message = s.message
	}
	return json.Marshal(out)
}

// UnmarshalJSON はMarshalJSONの出力形式を読み込む。
func (s *State[T]) UnmarshalJSON(b []byte) error {
	var in stateJSON[T]
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	switch in.Status {
	case StatusLoading:
		*s = Loading[T]()
	case StatusSuccess:
		var data T
		if in.Data != nil {
			data = *in.Data
		}
		*s = Success(data)
	case StatusError:
		*s = Error[T](in.Message)
	default:
		return fmt.Errorf("unknown state status: %q", in.Status)
	}
	return nil
}
