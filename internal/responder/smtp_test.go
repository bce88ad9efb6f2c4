package responder

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"net"
	"net/http/httptest"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskinity/example-email/pkg/circuitbreaker"
)

type receivedMail struct {
	from string
	to   string
	data string
}

type receivedAuth struct {
	mech     string
	username string
	password string
	secure   bool
}

type fakeOptions struct {
	host   string
	authOK bool
	// 空表示不声明 AUTH
	mechs string
	// 非空时声明 STARTTLS
	startTLS *tls.Config
	// 非空时整个连接走 TLS
	implicitTLS *tls.Config
}

// fakeSMTP 极简 SMTP 服务端，只实现客户端用到的命令
type fakeSMTP struct {
	ln   net.Listener
	opts fakeOptions

	mu    sync.Mutex
	mails []receivedMail
	auths []receivedAuth
}

func startFakeSMTP(t *testing.T, authOK bool) *fakeSMTP {
	return startFakeSMTPWith(t, fakeOptions{authOK: authOK, mechs: "PLAIN"})
}

func startFakeSMTPWith(t *testing.T, opts fakeOptions) *fakeSMTP {
	t.Helper()
	if opts.host == "" {
		opts.host = "127.0.0.1"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(opts.host, "0"))
	if err != nil {
		t.Skipf("cannot listen on %s: %v", opts.host, err)
	}
	if opts.implicitTLS != nil {
		ln = tls.NewListener(ln, opts.implicitTLS)
	}

	s := &fakeSMTP{ln: ln, opts: opts}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeSMTP) config() Config {
	host, port, _ := net.SplitHostPort(s.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return Config{
		Server:    host,
		Port:      p,
		Username:  "bot@example.com",
		Password:  "secret",
		FromEmail: "bot@example.com",
		ReplyTo:   "support@example.com",
		Timeout:   2 * time.Second,
	}
}

func (s *fakeSMTP) received() []receivedMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]receivedMail(nil), s.mails...)
}

func (s *fakeSMTP) authCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.auths)
}

func (s *fakeSMTP) authLog() []receivedAuth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]receivedAuth(nil), s.auths...)
}

func (s *fakeSMTP) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	secure := s.opts.implicitTLS != nil
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 localhost ESMTP ready")

	var cur receivedMail
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			_ = tp.PrintfLine("500 Empty command")
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "EHLO":
			lines := []string{"localhost"}
			if s.opts.startTLS != nil && !secure {
				lines = append(lines, "STARTTLS")
			}
			if s.opts.mechs != "" {
				lines = append(lines, "AUTH "+s.opts.mechs)
			}
			for i, l := range lines {
				sep := "-"
				if i == len(lines)-1 {
					sep = " "
				}
				_ = tp.PrintfLine("250%s%s", sep, l)
			}
		case "HELO", "NOOP", "RSET":
			_ = tp.PrintfLine("250 OK")
		case "STARTTLS":
			if s.opts.startTLS == nil || secure {
				_ = tp.PrintfLine("502 Command not implemented")
				continue
			}
			_ = tp.PrintfLine("220 Ready to start TLS")
			tlsConn := tls.Server(conn, s.opts.startTLS)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			tp = textproto.NewConn(tlsConn)
			secure = true
		case "AUTH":
			auth, ok := s.readAuth(tp, fields)
			if !ok {
				return
			}
			auth.secure = secure
			s.mu.Lock()
			s.auths = append(s.auths, auth)
			s.mu.Unlock()
			if s.opts.authOK {
				_ = tp.PrintfLine("235 2.7.0 Authentication successful")
			} else {
				_ = tp.PrintfLine("535 5.7.8 Authentication credentials invalid")
			}
		case "MAIL":
			cur = receivedMail{from: strings.TrimSuffix(strings.TrimPrefix(line[len("MAIL FROM:"):], "<"), ">")}
			_ = tp.PrintfLine("250 OK")
		case "RCPT":
			cur.to = strings.TrimSuffix(strings.TrimPrefix(line[len("RCPT TO:"):], "<"), ">")
			_ = tp.PrintfLine("250 OK")
		case "DATA":
			_ = tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			cur.data = string(data)
			s.mu.Lock()
			s.mails = append(s.mails, cur)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 OK queued")
		case "QUIT":
			_ = tp.PrintfLine("221 Bye")
			return
		default:
			_ = tp.PrintfLine("502 Command not implemented")
		}
	}
}

// readAuth 解析 AUTH PLAIN <初始响应> 或 AUTH LOGIN 的两轮问答
func (s *fakeSMTP) readAuth(tp *textproto.Conn, fields []string) (receivedAuth, bool) {
	auth := receivedAuth{}
	if len(fields) > 1 {
		auth.mech = strings.ToUpper(fields[1])
	}
	switch auth.mech {
	case "PLAIN":
		if len(fields) < 3 {
			return auth, false
		}
		raw, err := base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			return auth, false
		}
		parts := strings.Split(string(raw), "\x00")
		if len(parts) == 3 {
			auth.username, auth.password = parts[1], parts[2]
		}
	case "LOGIN":
		prompts := []string{"Username:", "Password:"}
		if len(fields) > 2 {
			// 用户名作为初始响应
			user, err := base64.StdEncoding.DecodeString(fields[2])
			if err != nil {
				return auth, false
			}
			auth.username = string(user)
			prompts = prompts[1:]
		}
		for _, prompt := range prompts {
			_ = tp.PrintfLine("334 %s", base64.StdEncoding.EncodeToString([]byte(prompt)))
			line, err := tp.ReadLine()
			if err != nil {
				return auth, false
			}
			answer, err := base64.StdEncoding.DecodeString(line)
			if err != nil {
				return auth, false
			}
			if prompt == "Username:" {
				auth.username = string(answer)
			} else {
				auth.password = string(answer)
			}
		}
	}
	return auth, true
}

// testTLSConfigs 借用 httptest 的自签证书，证书对 127.0.0.1 有效
func testTLSConfigs(t *testing.T) (server, client *tls.Config) {
	t.Helper()
	srv := httptest.NewUnstartedServer(nil)
	srv.StartTLS()
	t.Cleanup(srv.Close)

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return &tls.Config{Certificates: srv.TLS.Certificates},
		&tls.Config{RootCAs: pool, ServerName: "127.0.0.1"}
}

func testEnvelope() Envelope {
	return Envelope{
		From:      "bot@example.com",
		To:        "Alice <alice@example.com>",
		ReplyTo:   "support@example.com",
		Subject:   "Re: Your message - Normal",
		Body:      "Thank you for your message. We will get back to you soon.",
		InReplyTo: "abc@example.com",
	}
}

func TestSMTPDeliverPlainPort(t *testing.T) {
	srv := startFakeSMTP(t, true)
	tr := NewSMTPTransport(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Deliver(ctx, srv.config(), testEnvelope()))

	mails := srv.received()
	require.Len(t, mails, 1)
	assert.Equal(t, "bot@example.com", mails[0].from)
	assert.Equal(t, "alice@example.com", mails[0].to)
	assert.Contains(t, mails[0].data, "Subject: Re: Your message - Normal")
	assert.Contains(t, mails[0].data, "In-Reply-To: <abc@example.com>")
	assert.Contains(t, mails[0].data, "We will get back to you soon.")
	assert.Equal(t, 1, srv.authCount())
}

func TestSMTPVerify(t *testing.T) {
	srv := startFakeSMTP(t, true)
	tr := NewSMTPTransport(nil)

	require.NoError(t, tr.Verify(context.Background(), srv.config()))
	assert.Empty(t, srv.received())
}

func TestSMTPAuthRejected(t *testing.T) {
	srv := startFakeSMTP(t, false)
	tr := NewSMTPTransport(nil)

	err := tr.Deliver(context.Background(), srv.config(), testEnvelope())
	require.Error(t, err)
	assert.Equal(t, KindAuth, KindOf(err))
	assert.False(t, Retryable(err))
	assert.Empty(t, srv.received())
}

func TestSMTPConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	tr := NewSMTPTransport(nil)
	cfg := Config{Server: "127.0.0.1", Port: addr.Port, Username: "u", Password: "p"}

	err = tr.Deliver(context.Background(), cfg, testEnvelope())
	assert.Equal(t, KindConnect, KindOf(err))
	assert.True(t, Retryable(err))
}

func TestSMTPServerHangsUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	tr := NewSMTPTransport(nil)
	cfg := Config{Server: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, Username: "u", Password: "p"}

	err = tr.Deliver(context.Background(), cfg, testEnvelope())
	assert.Equal(t, KindDisconnected, KindOf(err))
}

func TestSMTPTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var conns []net.Conn
	var mu sync.Mutex
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// 不发送问候语
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	tr := NewSMTPTransport(nil)
	cfg := Config{Server: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, Username: "u", Password: "p"}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = tr.Deliver(ctx, cfg, testEnvelope())
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTPBreakerOpensOnRepeatedConnectFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr := NewSMTPTransport(nil)
	cfg := Config{Server: "127.0.0.1", Port: port, Username: "u", Password: "p"}

	for i := 0; i < circuitbreaker.DefaultConfig().FailureThreshold; i++ {
		_ = tr.Deliver(context.Background(), cfg, testEnvelope())
	}
	assert.Equal(t, circuitbreaker.StateOpen, tr.BreakerState())

	err = tr.Deliver(context.Background(), cfg, testEnvelope())
	assert.Equal(t, KindConnect, KindOf(err))
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen))
}

func TestSMTPInvalidRecipientIsProtocolError(t *testing.T) {
	tr := NewSMTPTransport(nil)
	env := testEnvelope()
	env.To = "not an address"

	err := tr.Deliver(context.Background(), Config{Server: "127.0.0.1", Port: 1}, env)
	assert.Equal(t, KindProtocol, KindOf(err))
}

func TestSMTPPlainPortAuthOnNonLocalHost(t *testing.T) {
	srv := startFakeSMTPWith(t, fakeOptions{host: "127.0.0.2", authOK: true, mechs: "PLAIN LOGIN"})
	tr := NewSMTPTransport(nil)

	cfg := srv.config()
	require.Equal(t, "127.0.0.2", cfg.Server)
	require.NoError(t, tr.Deliver(context.Background(), cfg, testEnvelope()))

	auths := srv.authLog()
	require.Len(t, auths, 1)
	assert.Equal(t, "PLAIN", auths[0].mech)
	assert.Equal(t, "bot@example.com", auths[0].username)
	assert.Equal(t, "secret", auths[0].password)
	assert.False(t, auths[0].secure)
	assert.Len(t, srv.received(), 1)
}

func TestSMTPLoginAuthWhenPlainNotOffered(t *testing.T) {
	srv := startFakeSMTPWith(t, fakeOptions{authOK: true, mechs: "LOGIN"})
	tr := NewSMTPTransport(nil)

	require.NoError(t, tr.Deliver(context.Background(), srv.config(), testEnvelope()))

	auths := srv.authLog()
	require.Len(t, auths, 1)
	assert.Equal(t, "LOGIN", auths[0].mech)
	assert.Equal(t, "bot@example.com", auths[0].username)
	assert.Equal(t, "secret", auths[0].password)
}

func TestSMTPPlainPortWithoutAuthSkipsLogin(t *testing.T) {
	srv := startFakeSMTPWith(t, fakeOptions{authOK: true})
	tr := NewSMTPTransport(nil)

	require.NoError(t, tr.Deliver(context.Background(), srv.config(), testEnvelope()))
	assert.Zero(t, srv.authCount())
	assert.Len(t, srv.received(), 1)
}

func TestSMTPImplicitTLS(t *testing.T) {
	serverTLS, clientTLS := testTLSConfigs(t)
	srv := startFakeSMTPWith(t, fakeOptions{authOK: true, mechs: "PLAIN", implicitTLS: serverTLS})
	tr := NewSMTPTransport(nil)
	tr.TLSConfig = clientTLS

	cfg := srv.config()
	cfg.Security = SecurityImplicitTLS
	require.NoError(t, tr.Deliver(context.Background(), cfg, testEnvelope()))

	auths := srv.authLog()
	require.Len(t, auths, 1)
	assert.True(t, auths[0].secure)
	assert.Len(t, srv.received(), 1)
}

func TestSMTPImplicitTLSUntrustedCertificate(t *testing.T) {
	serverTLS, _ := testTLSConfigs(t)
	srv := startFakeSMTPWith(t, fakeOptions{authOK: true, mechs: "PLAIN", implicitTLS: serverTLS})
	tr := NewSMTPTransport(nil)

	cfg := srv.config()
	cfg.Security = SecurityImplicitTLS
	err := tr.Deliver(context.Background(), cfg, testEnvelope())
	require.Error(t, err)
	assert.Zero(t, srv.authCount())
}

func TestSMTPSTARTTLSBeforeAuth(t *testing.T) {
	serverTLS, clientTLS := testTLSConfigs(t)
	srv := startFakeSMTPWith(t, fakeOptions{authOK: true, mechs: "PLAIN", startTLS: serverTLS})
	tr := NewSMTPTransport(nil)
	tr.TLSConfig = clientTLS

	cfg := srv.config()
	cfg.Security = SecuritySTARTTLS
	require.NoError(t, tr.Deliver(context.Background(), cfg, testEnvelope()))

	auths := srv.authLog()
	require.Len(t, auths, 1)
	assert.True(t, auths[0].secure, "credentials must only travel after STARTTLS")
	assert.Len(t, srv.received(), 1)
}

func TestSMTPSTARTTLSRequiredButNotOffered(t *testing.T) {
	srv := startFakeSMTPWith(t, fakeOptions{authOK: true, mechs: "PLAIN"})
	tr := NewSMTPTransport(nil)

	cfg := srv.config()
	cfg.Security = SecuritySTARTTLS
	err := tr.Deliver(context.Background(), cfg, testEnvelope())
	assert.Equal(t, KindProtocol, KindOf(err))
	assert.Zero(t, srv.authCount())
	assert.Empty(t, srv.received())
}

func TestSMTPEncryptedWithoutAuthIsProtocolError(t *testing.T) {
	serverTLS, clientTLS := testTLSConfigs(t)
	srv := startFakeSMTPWith(t, fakeOptions{authOK: true, startTLS: serverTLS})
	tr := NewSMTPTransport(nil)
	tr.TLSConfig = clientTLS

	cfg := srv.config()
	cfg.Security = SecuritySTARTTLS
	err := tr.Deliver(context.Background(), cfg, testEnvelope())
	assert.Equal(t, KindProtocol, KindOf(err))
}

func TestSecurityResolveByPort(t *testing.T) {
	assert.Equal(t, SecurityImplicitTLS, SecurityAuto.resolve(465))
	assert.Equal(t, SecuritySTARTTLS, SecurityAuto.resolve(587))
	assert.Equal(t, SecurityPlain, SecurityAuto.resolve(25))
	assert.Equal(t, SecurityPlain, SecurityAuto.resolve(2525))
	// 显式设置优先于端口
	assert.Equal(t, SecuritySTARTTLS, SecuritySTARTTLS.resolve(465))
}

func TestParseSecurity(t *testing.T) {
	cases := map[string]Security{
		"":         SecurityAuto,
		"auto":     SecurityAuto,
		"TLS":      SecurityImplicitTLS,
		"ssl":      SecurityImplicitTLS,
		"starttls": SecuritySTARTTLS,
		"plain":    SecurityPlain,
		"none":     SecurityPlain,
	}
	for in, want := range cases {
		got, err := ParseSecurity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSecurity("tls1.3")
	assert.Error(t, err)
}

func TestAuthForPicksMechanism(t *testing.T) {
	cfg := Config{Username: "u", Password: "p"}

	mech, ir, err := authFor(cfg, "LOGIN PLAIN").Start(&smtp.ServerInfo{Name: "relay.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", mech)
	assert.Equal(t, []byte("\x00u\x00p"), ir)

	login := authFor(cfg, "login")
	mech, _, err = login.Start(&smtp.ServerInfo{Name: "relay.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "LOGIN", mech)

	_, err = login.Next([]byte("Token:"), true)
	assert.Error(t, err)
	resp, err := login.Next([]byte("Password:"), true)
	require.NoError(t, err)
	assert.Equal(t, []byte("p"), resp)
}
