// Package apperr 定义对外稳定的错误类型，由 HTTP 层映射为业务码
package apperr

import (
	"errors"
)

// Kind 错误类别
type Kind int

const (
	Unknown Kind = iota
	Unauthorized
	BadRequest
	Forbidden
	NotFound
	TooManyRequests
)

var kindNames = map[Kind]string{
	Unknown:         "unknown",
	Unauthorized:    "unauthorized",
	BadRequest:      "bad_request",
	Forbidden:       "forbidden",
	NotFound:        "not_found",
	TooManyRequests: "too_many_requests",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error 带类别的错误。Message 面向用户，Err 仅用于日志
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 包装底层错误
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Internal 将存储等非预期错误包装为 Unknown
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return Wrap(Unknown, "internal error", err)
}

// KindOf 获取错误类别，非 *Error 视为 Unknown
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Unknown
}

// MessageOf 获取面向用户的消息
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ""
}
