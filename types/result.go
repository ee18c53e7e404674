package types

import (
	"encoding/json"
	"fmt"
)

// ResultStatus 结果状态
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// Result 是所有分发边界上的返回值。
// 只能通过 NewSuccess / NewSuccessRaw / NewFailure 构造，构造后不可变。
type Result struct {
	status ResultStatus
	value  json.RawMessage
	err    string
}

// NewSuccess 创建成功结果，value 会被序列化为 JSON。
// 无法序列化的值会得到一个错误结果。
func NewSuccess(value any) Result {
	if raw, ok := value.(json.RawMessage); ok {
		return NewSuccessRaw(raw)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return NewFailure(fmt.Sprintf("failed to encode result value: %v", err))
	}
	return Result{status: StatusSuccess, value: data}
}

// NewSuccessRaw 使用已编码的 JSON 创建成功结果
func NewSuccessRaw(raw json.RawMessage) Result {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	v := make(json.RawMessage, len(raw))
	copy(v, raw)
	return Result{status: StatusSuccess, value: v}
}

// NewFailure 创建失败结果
func NewFailure(message string) Result {
	return Result{status: StatusError, err: message}
}

// Status 返回结果状态
func (r Result) Status() ResultStatus { return r.status }

// IsSuccess 是否成功
func (r Result) IsSuccess() bool { return r.status == StatusSuccess }

// IsError 是否失败
func (r Result) IsError() bool { return r.status == StatusError }

// Value 返回成功值的副本；失败结果返回 nil。
func (r Result) Value() json.RawMessage {
	if !r.IsSuccess() {
		return nil
	}
	v := make(json.RawMessage, len(r.value))
	copy(v, r.value)
	return v
}

// Error 返回失败信息；成功结果返回空串。
func (r Result) Error() string {
	if !r.IsError() {
		return ""
	}
	return r.err
}

// Decode 将成功值解码到 into
func (r Result) Decode(into any) error {
	if !r.IsSuccess() {
		return fmt.Errorf("cannot decode error result: %s", r.err)
	}
	return json.Unmarshal(r.value, into)
}

// String 用于日志与 LLM 回填：成功时为值本身，失败时为 "Error: <msg>"
func (r Result) String() string {
	if r.IsError() {
		return "Error: " + r.err
	}
	return string(r.value)
}

type resultJSON struct {
	Status ResultStatus    `json:"status"`
	Value  json.RawMessage `json:"value,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// MarshalJSON 实现 json.Marshaler
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Status: r.status}
	if r.IsSuccess() {
		out.Value = r.value
	} else {
		out.Error = r.err
	}
	return json.Marshal(out)
}

// UnmarshalJSON 实现 json.Unmarshaler
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case StatusSuccess:
		*r = NewSuccessRaw(in.Value)
	case StatusError:
		*r = NewFailure(in.Error)
	default:
		return fmt.Errorf("unknown result status %q", in.Status)
	}
	return nil
}
