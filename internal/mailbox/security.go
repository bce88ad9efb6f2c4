package mailbox

import (
	"fmt"
	"strings"
)

const portIMAPSTARTTLS = 143

// Security IMAP 连接的加密方式。默认所有端口都用隐式 TLS，只有 143 走 STARTTLS。
type Security int

const (
	SecurityAuto Security = iota
	SecurityImplicitTLS
	SecuritySTARTTLS
)

func (s Security) String() string {
	switch s {
	case SecurityImplicitTLS:
		return "tls"
	case SecuritySTARTTLS:
		return "starttls"
	}
	return "auto"
}

// ParseSecurity accepts "", "auto", "tls", "ssl" and "starttls".
// Plaintext IMAP is not supported.
func ParseSecurity(s string) (Security, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return SecurityAuto, nil
	case "tls", "ssl":
		return SecurityImplicitTLS, nil
	case "starttls":
		return SecuritySTARTTLS, nil
	}
	return SecurityAuto, fmt.Errorf("unknown imap security %q", s)
}

func (s Security) resolve(port int) Security {
	if s != SecurityAuto {
		return s
	}
	if port == portIMAPSTARTTLS {
		return SecuritySTARTTLS
	}
	return SecurityImplicitTLS
}
