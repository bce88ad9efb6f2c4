package model

import "time"

// ResponseDraft is an unsent reply produced by a category handler.
type ResponseDraft struct {
	Recipient string   `json:"recipient"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	SourceID  string   `json:"source_id"`
	InReplyTo string   `json:"in_reply_to,omitempty"`
	Category  Category `json:"category"`
}

// RunStats is the aggregate result of one pipeline run.
type RunStats struct {
	RunID        string `json:"run_id"`
	Fetched      int    `json:"fetched"`
	ParseSkipped int    `json:"parse_skipped"`
	CacheHit     bool   `json:"cache_hit"`

	Classified      CategoryCounts `json:"classified"`
	Drafted         CategoryCounts `json:"drafted"`
	FailedBranches  []Category     `json:"failed_branches,omitempty"`
	SkippedBranches []Category     `json:"skipped_branches,omitempty"`

	Attempted  int `json:"attempted"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`

	Duration time.Duration `json:"duration"`
}

// Snapshot returns a copy that shares no slices with s.
func (s RunStats) Snapshot() RunStats {
	out := s
	if s.FailedBranches != nil {
		out.FailedBranches = append([]Category(nil), s.FailedBranches...)
	}
	if s.SkippedBranches != nil {
		out.SkippedBranches = append([]Category(nil), s.SkippedBranches...)
	}
	return out
}
