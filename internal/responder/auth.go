package responder

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/emersion/go-sasl"
)

// Security 连接加密方式
type Security int

const (
	// SecurityAuto 按端口选择：465 隐式 TLS，587 STARTTLS，其它明文
	SecurityAuto Security = iota
	SecurityImplicitTLS
	SecuritySTARTTLS
	SecurityPlain
)

func (s Security) String() string {
	switch s {
	case SecurityImplicitTLS:
		return "tls"
	case SecuritySTARTTLS:
		return "starttls"
	case SecurityPlain:
		return "plain"
	}
	return "auto"
}

// ParseSecurity accepts "", "auto", "tls", "ssl", "starttls", "plain" and "none".
func ParseSecurity(s string) (Security, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return SecurityAuto, nil
	case "tls", "ssl":
		return SecurityImplicitTLS, nil
	case "starttls":
		return SecuritySTARTTLS, nil
	case "plain", "none":
		return SecurityPlain, nil
	}
	return SecurityAuto, fmt.Errorf("unknown smtp security %q", s)
}

func (s Security) resolve(port int) Security {
	if s != SecurityAuto {
		return s
	}
	switch port {
	case portImplicitTLS:
		return SecurityImplicitTLS
	case portSTARTTLS:
		return SecuritySTARTTLS
	}
	return SecurityPlain
}

// saslAuth 把 go-sasl 客户端适配成 smtp.Auth。加密方式由 Security 决定，
// 这里不再像 smtp.PlainAuth 那样拒绝非 localhost 的明文连接
type saslAuth struct {
	client sasl.Client
}

func (a saslAuth) Start(*smtp.ServerInfo) (string, []byte, error) {
	return a.client.Start()
}

func (a saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}

// authFor 优先 PLAIN，服务端只支持 LOGIN 时用 LOGIN
func authFor(cfg Config, mechs string) smtp.Auth {
	hasPlain, hasLogin := false, false
	for _, m := range strings.Fields(strings.ToUpper(mechs)) {
		switch m {
		case sasl.Plain:
			hasPlain = true
		case sasl.Login:
			hasLogin = true
		}
	}
	if hasLogin && !hasPlain {
		return saslAuth{client: sasl.NewLoginClient(cfg.Username, cfg.Password)}
	}
	return saslAuth{client: sasl.NewPlainClient("", cfg.Username, cfg.Password)}
}
