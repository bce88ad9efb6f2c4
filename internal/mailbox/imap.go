package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"
)

const defaultIMAPTimeout = 30 * time.Second

// IMAPStore 通过 IMAP 拉取原始邮件，加密方式见 Security。
type IMAPStore struct {
	logger *zap.Logger
	// 测试时可替换 TLS 配置
	TLSConfig *tls.Config
}

func NewIMAPStore(logger *zap.Logger) *IMAPStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IMAPStore{logger: logger}
}

// FetchRaw searches the folder, keeps the last limit UIDs and fetches
// their full bodies without setting \Seen.
func (s *IMAPStore) FetchRaw(ctx context.Context, params ConnectionParams, limit int) ([]RawMessage, error) {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultIMAPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := s.dial(ctx, params)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Logout().Wait(); err != nil {
			s.logger.Debug("IMAP logout failed", zap.Error(err))
		}
		_ = client.Close()
	}()

	// ctx 取消时强制关闭连接，使阻塞的命令尽快返回
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if err := client.Login(params.Username, params.Password).Wait(); err != nil {
		return nil, classifyLoginError(err)
	}

	folder := params.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, newFetchError(KindProtocol, "select %s: %w", folder, err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, newFetchError(KindProtocol, "search: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return []RawMessage{}, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})

	byUID := make(map[imap.UID][]byte, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			s.logger.Warn("Failed to collect message", zap.Error(err))
			continue
		}
		byUID[buf.UID] = buf.FindBodySection(bodySection)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, newFetchError(KindProtocol, "fetch: %w", err)
	}

	// 按 UID 升序（旧 → 新）返回
	out := make([]RawMessage, 0, len(byUID))
	for _, uid := range uids {
		data, ok := byUID[uid]
		if !ok {
			continue
		}
		out = append(out, RawMessage{
			ID:   strconv.FormatUint(uint64(uid), 10),
			Data: data,
		})
	}
	return out, nil
}

func (s *IMAPStore) dial(ctx context.Context, params ConnectionParams) (*imapclient.Client, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", params.Addr())
	if err != nil {
		return nil, &FetchError{Kind: KindConnect, Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsConfig := s.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: params.Server}
	}
	opts := &imapclient.Options{TLSConfig: tlsConfig}

	mode := params.Security.resolve(params.Port)
	s.logger.Debug("Connecting to IMAP server",
		zap.String("addr", params.Addr()), zap.Stringer("security", mode))

	if mode == SecurityImplicitTLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, &FetchError{Kind: KindConnect, Err: err}
		}
		client := imapclient.New(tlsConn, opts)
		if err := client.WaitGreeting(); err != nil {
			_ = client.Close()
			return nil, classifyIMAPError(err)
		}
		return client, nil
	}

	client, err := imapclient.NewStartTLS(conn, opts)
	if err != nil {
		_ = conn.Close()
		return nil, classifyIMAPError(err)
	}
	return client, nil
}

// classifyLoginError 只有服务端的 NO/BAD 回复才算凭据错误
func classifyLoginError(err error) *FetchError {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return &FetchError{Kind: KindAuth, Err: err}
	}
	return classifyIMAPError(err)
}

func classifyIMAPError(err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindConnect, Err: err}
	}
	return &FetchError{Kind: KindProtocol, Err: err}
}
