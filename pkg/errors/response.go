package errors

import (
	"github.com/go-kratos/kratos/v2/errors"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ToResponse 把任意错误转换为 HTTP 状态码和响应体。
// 非 kratos 错误一律按 500 处理，不向客户端暴露内部信息。
func ToResponse(err error) (int, ErrorResponse) {
	e := errors.FromError(err)
	if e == nil {
		e = ErrInternalServerError
	}
	if e.Reason == "" {
		e = ErrInternalServerError
	}
	return int(e.Code), ErrorResponse{
		Code:    int(e.Code),
		Reason:  e.Reason,
		Message: e.Message,
	}
}
