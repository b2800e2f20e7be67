package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"gorm.io/gorm"
)

// Kind 错误分类，决定返回给客户端的状态码
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidArgument  Kind = "invalid_argument"
	KindPermissionDenied Kind = "permission_denied"
	KindConflict         Kind = "conflict"
	KindUnauthenticated  Kind = "unauthenticated"
	KindTransient        Kind = "unavailable"
	KindInternal         Kind = "internal"
)

// Error 业务错误，Message 可以直接展示给客户端
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error         { return New(KindNotFound, message) }
func InvalidArgument(message string) *Error  { return New(KindInvalidArgument, message) }
func PermissionDenied(message string) *Error { return New(KindPermissionDenied, message) }
func Conflict(message string) *Error         { return New(KindConflict, message) }
func Unauthenticated(message string) *Error  { return New(KindUnauthenticated, message) }

// KindOf 返回错误分类，非业务错误一律视为 internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code handlers respond with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromDB 将 gorm / 驱动错误转换为业务错误
// notFound 为记录不存在时返回给客户端的提示
func FromDB(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(KindNotFound, notFound, err)
	case IsUniqueViolation(err):
		return Wrap(KindConflict, "resource already exists", err)
	case IsTransient(err):
		return Wrap(KindTransient, "storage temporarily unavailable", err)
	}
	return Wrap(KindInternal, "internal error", err)
}

// IsUniqueViolation 识别唯一索引冲突（postgres / sqlite 两种报错文本都覆盖）
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// IsTransient 连接中断、超时等可重试错误
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	return false
}
