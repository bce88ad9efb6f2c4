// Package handler turns a classified message into a response draft.
// Handlers are pure: no I/O, no errors, same input gives the same draft.
package handler

import "github.com/taskinity/example-email/internal/model"

const (
	UrgentSubject  = "Re: Your message - High Priority"
	RegularSubject = "Re: Your message - Normal"
)

// Templates 可配置的回复文案
type Templates struct {
	UrgentBody        string
	AttachmentSubject string
	AttachmentBody    string
	RegularBody       string
}

func DefaultTemplates() Templates {
	return Templates{
		UrgentBody:        "Your urgent message has been received and will be processed immediately.",
		AttachmentSubject: "Re: Your message - Attachment Received",
		AttachmentBody:    "Thank you for your message. We have received your attachment(s) and will review them shortly.",
		RegularBody:       "Thank you for your message. We will get back to you soon.",
	}
}

// WithDefaults fills empty fields from DefaultTemplates.
func (t Templates) WithDefaults() Templates {
	d := DefaultTemplates()
	if t.UrgentBody == "" {
		t.UrgentBody = d.UrgentBody
	}
	if t.AttachmentSubject == "" {
		t.AttachmentSubject = d.AttachmentSubject
	}
	if t.AttachmentBody == "" {
		t.AttachmentBody = d.AttachmentBody
	}
	if t.RegularBody == "" {
		t.RegularBody = d.RegularBody
	}
	return t
}

// Handler produces the draft for one category.
type Handler interface {
	Category() model.Category
	Handle(msg model.EmailMessage) model.ResponseDraft
}

type staticHandler struct {
	category model.Category
	subject  string
	body     string
}

func (h staticHandler) Category() model.Category {
	return h.category
}

func (h staticHandler) Handle(msg model.EmailMessage) model.ResponseDraft {
	return model.ResponseDraft{
		Recipient: msg.From,
		Subject:   h.subject,
		Body:      h.body,
		SourceID:  msg.ID,
		InReplyTo: msg.MessageID,
		Category:  h.category,
	}
}

func NewUrgent(t Templates) Handler {
	return staticHandler{category: model.CategoryUrgent, subject: UrgentSubject, body: t.WithDefaults().UrgentBody}
}

func NewAttachment(t Templates) Handler {
	t = t.WithDefaults()
	return staticHandler{category: model.CategoryHasAttachment, subject: t.AttachmentSubject, body: t.AttachmentBody}
}

func NewRegular(t Templates) Handler {
	return staticHandler{category: model.CategoryRegular, subject: RegularSubject, body: t.WithDefaults().RegularBody}
}

// Set 按类别索引的三个处理器
type Set map[model.Category]Handler

func NewSet(t Templates) Set {
	return Set{
		model.CategoryUrgent:        NewUrgent(t),
		model.CategoryHasAttachment: NewAttachment(t),
		model.CategoryRegular:       NewRegular(t),
	}
}
