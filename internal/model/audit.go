package model

import "time"

// AuditStatus represents the current state of an audit.
type AuditStatus string

const (
	AuditStatusQueued    AuditStatus = "queued"
	AuditStatusScraping  AuditStatus = "scraping"
	AuditStatusAnalyzing AuditStatus = "analyzing"
	AuditStatusComplete  AuditStatus = "complete"
	AuditStatusFailed    AuditStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s AuditStatus) Terminal() bool {
	return s == AuditStatusComplete || s == AuditStatusFailed
}

// Audit is a persisted record of one visibility audit.
type Audit struct {
	ID           string      `json:"id" yaml:"id"`
	URL          string      `json:"url" yaml:"url"`
	Status       AuditStatus `json:"status" yaml:"status"`
	Report       *Report     `json:"report,omitempty" yaml:"report,omitempty"`
	Error        string      `json:"error,omitempty" yaml:"error,omitempty"`
	Model        string      `json:"model,omitempty" yaml:"model,omitempty"`
	InputTokens  int64       `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64       `json:"output_tokens" yaml:"output_tokens"`
	CreatedAt    time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" yaml:"updated_at"`
}

// AuditResult is what a completed audit contributes to its record.
type AuditResult struct {
	Report       *Report `json:"report" yaml:"report"`
	Model        string  `json:"model" yaml:"model"`
	InputTokens  int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64   `json:"output_tokens" yaml:"output_tokens"`
}
