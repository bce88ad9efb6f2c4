package mailbox

import (
	"context"
	"net"
	"strconv"
	"time"
)

// ConnectionParams 邮箱连接参数
type ConnectionParams struct {
	Server   string
	Port     int
	Username string
	Password string
	Folder   string
	Security Security
	// 单次取信的超时时间（连接 + 全部命令）
	Timeout time.Duration
}

func (p ConnectionParams) Addr() string {
	return net.JoinHostPort(p.Server, strconv.Itoa(p.Port))
}

// RawMessage is one undecoded RFC 822 message as returned by the store.
type RawMessage struct {
	ID   string
	Data []byte
}

// Store returns at most limit most-recent raw messages, oldest first.
// Failures are reported as *FetchError.
type Store interface {
	FetchRaw(ctx context.Context, params ConnectionParams, limit int) ([]RawMessage, error)
}
