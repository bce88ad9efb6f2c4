package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/taskinity/example-email/internal/model"
)

const defaultSubject = "No Subject"

// ParseMessage decodes one raw RFC 822 message. The body is the first
// text/plain part, or the first text/html part rendered as text when no
// plain part exists. Any attachment or non-text inline part sets
// HasAttachment. Unknown charsets and transfer encodings are tolerated;
// a malformed header or MIME structure is an error.
func ParseMessage(id string, data []byte) (model.EmailMessage, error) {
	// 未知字符集或传输编码时 message.Read 仍返回实体，正文保持原样
	entity, err := message.Read(bytes.NewReader(data))
	if entity == nil || (err != nil && !tolerable(err)) {
		if err == nil {
			err = fmt.Errorf("no entity")
		}
		return model.EmailMessage{}, fmt.Errorf("parse message %s: %w", id, err)
	}
	mr := mail.NewReader(entity)
	defer mr.Close()

	msg := model.EmailMessage{
		ID:      id,
		From:    firstAddress(mr.Header, "From"),
		To:      joinAddresses(mr.Header, "To"),
		Subject: headerText(mr.Header, "Subject"),
		Date:    mr.Header.Get("Date"),
	}
	if msg.Subject == "" {
		msg.Subject = defaultSubject
	}
	if mid, err := mr.Header.MessageID(); err == nil {
		msg.MessageID = mid
	}

	var plain, html string
	var havePlain, haveHTML bool
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && (part == nil || !tolerable(err)) {
			return model.EmailMessage{}, fmt.Errorf("parse message %s: %w", id, err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			ct = strings.ToLower(ct)
			switch {
			case ct == "" || ct == "text/plain":
				if havePlain {
					continue
				}
				body, err := io.ReadAll(part.Body)
				if err != nil {
					return model.EmailMessage{}, fmt.Errorf("read part of %s: %w", id, err)
				}
				plain, havePlain = string(body), true
			case ct == "text/html":
				if haveHTML {
					continue
				}
				body, err := io.ReadAll(part.Body)
				if err != nil {
					return model.EmailMessage{}, fmt.Errorf("read part of %s: %w", id, err)
				}
				html, haveHTML = string(body), true
			case !strings.HasPrefix(ct, "text/"):
				msg.HasAttachment = true
			}
		case *mail.AttachmentHeader:
			msg.HasAttachment = true
		}
	}

	switch {
	case havePlain:
		msg.Body = plain
	case haveHTML:
		text, err := md.ConvertString(html)
		if err != nil {
			// 转换失败时保留原始 HTML
			text = html
		}
		msg.Body = text
	}

	return msg, nil
}

func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func headerText(h mail.Header, key string) string {
	v, err := h.Text(key)
	if err != nil {
		return h.Get(key)
	}
	return v
}

// firstAddress 返回第一个地址；无法解析时退回原始头部值
func firstAddress(h mail.Header, key string) string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return headerText(h, key)
	}
	return addrs[0].Address
}

func joinAddresses(h mail.Header, key string) string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return headerText(h, key)
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return strings.Join(out, ", ")
}
