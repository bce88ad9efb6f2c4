package responder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"syscall"
)

// SendErrorKind 发送失败的类别
type SendErrorKind int

const (
	KindMissingCredentials SendErrorKind = iota + 1
	KindConnect
	KindAuth
	KindDisconnected
	KindProtocol
	KindTimeout
)

func (k SendErrorKind) String() string {
	switch k {
	case KindMissingCredentials:
		return "missing_credentials"
	case KindConnect:
		return "connect"
	case KindAuth:
		return "auth"
	case KindDisconnected:
		return "disconnected"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// SendError is the only error type returned by Responder.Send.
type SendError struct {
	Kind SendErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s error: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the SendError in err's chain, or 0.
func KindOf(err error) SendErrorKind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// Retryable 只有连接、断线、超时可以重试；认证和缺少凭据属于配置错误
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnect, KindDisconnected, KindTimeout:
		return true
	}
	return false
}

// classify 把底层错误映射为 SendError。replyKind 用于服务端返回的 SMTP 错误码。
func classify(err error, replyKind SendErrorKind) error {
	if err == nil {
		return nil
	}

	var se *SendError
	if errors.As(err, &se) {
		return se
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &SendError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &SendError{Kind: KindTimeout, Err: err}
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return &SendError{Kind: KindDisconnected, Err: err}
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return &SendError{Kind: replyKind, Err: err}
	}

	return &SendError{Kind: KindProtocol, Err: err}
}
