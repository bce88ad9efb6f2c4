package model

// EmailMessage is one mailbox message as normalized by the mailbox reader.
// Values are passed by copy and never modified after the reader builds them.
type EmailMessage struct {
	ID            string `json:"id"`
	MessageID     string `json:"message_id,omitempty"`
	From          string `json:"from"`
	To            string `json:"to"`
	Subject       string `json:"subject"`
	Date          string `json:"date"`
	Body          string `json:"body"`
	HasAttachment bool   `json:"has_attachment"`
}

// ClassifiedBatch groups a fetched batch by category.
// Every input message lands in exactly one group, input order is kept.
type ClassifiedBatch struct {
	Urgent        []EmailMessage
	HasAttachment []EmailMessage
	Regular       []EmailMessage
}

// Group returns the messages assigned to c.
func (b ClassifiedBatch) Group(c Category) []EmailMessage {
	switch c {
	case CategoryUrgent:
		return b.Urgent
	case CategoryHasAttachment:
		return b.HasAttachment
	case CategoryRegular:
		return b.Regular
	}
	return nil
}

// Len returns the total number of messages across all groups.
func (b ClassifiedBatch) Len() int {
	return len(b.Urgent) + len(b.HasAttachment) + len(b.Regular)
}

// Counts returns the group sizes.
func (b ClassifiedBatch) Counts() CategoryCounts {
	return CategoryCounts{
		Urgent:        len(b.Urgent),
		HasAttachment: len(b.HasAttachment),
		Regular:       len(b.Regular),
	}
}
