// Package classifier assigns each message exactly one handling category.
package classifier

import (
	"strings"

	"github.com/taskinity/example-email/internal/model"
)

// UrgentMarker 主题或正文中出现即视为紧急（不区分大小写）
const UrgentMarker = "urgent"

// Classify is total and deterministic. First match wins:
// urgent marker, then attachment flag, then regular.
func Classify(msg model.EmailMessage) model.Category {
	if containsFold(msg.Subject, UrgentMarker) || containsFold(msg.Body, UrgentMarker) {
		return model.CategoryUrgent
	}
	if msg.HasAttachment {
		return model.CategoryHasAttachment
	}
	return model.CategoryRegular
}

// Partition groups msgs by category, keeping input order inside each group.
func Partition(msgs []model.EmailMessage) model.ClassifiedBatch {
	var batch model.ClassifiedBatch
	for _, msg := range msgs {
		switch Classify(msg) {
		case model.CategoryUrgent:
			batch.Urgent = append(batch.Urgent, msg)
		case model.CategoryHasAttachment:
			batch.HasAttachment = append(batch.HasAttachment, msg)
		default:
			batch.Regular = append(batch.Regular, msg)
		}
	}
	return batch
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
