package responder

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// Envelope 一封待发送的回复
type Envelope struct {
	From      string
	To        string
	ReplyTo   string
	Subject   string
	Body      string
	InReplyTo string
}

// Compose renders env as an RFC 5322 text/plain message.
func Compose(env Envelope, date time.Time) ([]byte, error) {
	from, err := mail.ParseAddress(env.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", env.From, err)
	}
	to, err := mail.ParseAddress(env.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", env.To, err)
	}

	var h mail.Header
	h.SetDate(date)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	if env.ReplyTo != "" {
		replyTo, err := mail.ParseAddress(env.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("invalid reply-to address %q: %w", env.ReplyTo, err)
		}
		h.SetAddressList("Reply-To", []*mail.Address{replyTo})
	}
	h.SetSubject(env.Subject)
	if env.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{env.InReplyTo})
		h.SetMsgIDList("References", []string{env.InReplyTo})
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, env.Body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// bareAddress 返回 SMTP 信封使用的纯地址
func bareAddress(s string) (string, error) {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}
