// Package apperr 定义了业务错误类型及其到 HTTP 状态码的映射。
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Kind 是错误的分类。
type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthorized
	Forbidden
	NotFound
	Conflict
	Unavailable
	TooManyRequests
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation_error"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Unavailable:
		return "unavailable"
	case TooManyRequests:
		return "too_many_requests"
	}
	return "internal_error"
}

// Status 返回该分类对应的 HTTP 状态码。
func (k Kind) Status() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Unavailable:
		return http.StatusServiceUnavailable
	case TooManyRequests:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Error 是携带分类的业务错误。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E 创建一个新的业务错误。
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 用分类和消息包装底层错误。
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewValidation(format string, args ...interface{}) *Error {
	return E(Validation, format, args...)
}

func NewNotFound(format string, args ...interface{}) *Error {
	return E(NotFound, format, args...)
}

func NewConflict(format string, args ...interface{}) *Error {
	return E(Conflict, format, args...)
}

func NewForbidden(format string, args ...interface{}) *Error {
	return E(Forbidden, format, args...)
}

func NewUnauthorized(format string, args ...interface{}) *Error {
	return E(Unauthorized, format, args...)
}

// NewUnavailable 表示外部依赖（LLM、签名服务商等）暂不可用。
func NewUnavailable(err error, message string) *Error {
	return Wrap(Unavailable, err, message)
}

// KindOf 返回错误链中第一个业务错误的分类，没有则为 Internal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is 判断错误是否属于某个分类。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus 返回错误对应的 HTTP 状态码。
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return KindOf(FromDB(err)).Status()
}

// Message 返回可以安全展示给客户端的错误消息，内部错误不暴露细节。
func Message(err error) string {
	var e *Error
	if errors.As(FromDB(err), &e) && e.Kind != Internal {
		if e.Message != "" {
			return e.Message
		}
		return e.Error()
	}
	return "服务器内部错误"
}

// MySQL 错误码
const (
	mysqlDuplicateEntry   = 1062
	mysqlNoReferencedRow  = 1452
	mysqlRowIsReferenced  = 1451
	mysqlRowIsReferenced2 = 1217
	mysqlNoReferencedRow2 = 1216
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlockDetected = 1213
)

// FromDB 把 gorm / MySQL 错误转换为业务错误，其他错误原样返回。
func FromDB(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(NotFound, err, "资源不存在")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Wrap(Conflict, err, "资源已存在")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return Wrap(Validation, err, "引用的资源不存在")
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry:
			return Wrap(Conflict, err, "资源已存在")
		case mysqlNoReferencedRow, mysqlNoReferencedRow2:
			return Wrap(Validation, err, "引用的资源不存在")
		case mysqlRowIsReferenced, mysqlRowIsReferenced2:
			return Wrap(Conflict, err, "资源仍被引用")
		case mysqlLockWaitTimeout, mysqlDeadlockDetected:
			return Wrap(Unavailable, err, "数据库繁忙，请重试")
		}
	}
	return err
}
