package mailbox

import (
	"errors"
	"fmt"
)

// FetchErrorKind 取信失败的类别
type FetchErrorKind int

const (
	// KindConnect 邮箱服务器不可达
	KindConnect FetchErrorKind = iota + 1
	// KindAuth 凭据被拒绝
	KindAuth
	// KindProtocol 服务器返回了无法处理的响应
	KindProtocol
)

func (k FetchErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	}
	return "unknown"
}

// FetchError is returned by Reader.Fetch and by Store implementations.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("mailbox %s error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func newFetchError(kind FetchErrorKind, format string, args ...interface{}) *FetchError {
	return &FetchError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err carries a FetchError of the given kind.
func IsKind(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// asFetchError 非 FetchError 的存储错误按协议错误处理
func asFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Kind: KindProtocol, Err: err}
}
