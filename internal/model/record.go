package model

import (
	"slices"
	"time"
)

// Flag marks why an EmailRecord needs human attention.
type Flag string

const (
	FlagNeedsReview      Flag = "NEEDS_REVIEW"
	FlagUncertainContact Flag = "UNCERTAIN_CONTACT"
	FlagToneIssue        Flag = "TONE_ISSUE"
	FlagAccuracyIssue    Flag = "ACCURACY_ISSUE"
	FlagResearchFailed   Flag = "RESEARCH_FAILED"
	FlagGenerationFailed Flag = "GENERATION_FAILED"
)

// flagOrder fixes the presentation order of flags in exports.
var flagOrder = []Flag{
	FlagNeedsReview,
	FlagUncertainContact,
	FlagToneIssue,
	FlagAccuracyIssue,
	FlagResearchFailed,
	FlagGenerationFailed,
}

// RecordStatus is the terminal state of one organization's run.
type RecordStatus string

const (
	StatusAccepted         RecordStatus = "accepted"
	StatusExhausted        RecordStatus = "exhausted"
	StatusResearchFailed   RecordStatus = "research_failed"
	StatusGenerationFailed RecordStatus = "generation_failed"
	StatusCancelled        RecordStatus = "cancelled"
)

// EmailRecord is the final, reviewable unit produced per organization.
type EmailRecord struct {
	Organization    OrganizationRecord `json:"organization"`
	Contact         *Contact           `json:"contact,omitempty"`
	Candidates      []Contact          `json:"candidates,omitempty"`
	Draft           *Draft             `json:"draft,omitempty"`
	Critique        *Critique          `json:"critique,omitempty"`
	Validation      *ValidationResult  `json:"validation,omitempty"`
	FusedScore      float64            `json:"fused_score"`
	Attempts        int                `json:"attempts"`
	History         []Attempt          `json:"history,omitempty"`
	Flags           []Flag             `json:"flags"`
	Status          RecordStatus       `json:"status"`
	FinalConfidence int                `json:"final_confidence"`
	Error           string             `json:"error,omitempty"`
	Edited          bool               `json:"edited,omitempty"`
}

// HasFlag reports whether f is set on the record.
func (r *EmailRecord) HasFlag(f Flag) bool {
	return slices.Contains(r.Flags, f)
}

// ContactConfidence returns the selected contact's confidence, or 0.
func (r *EmailRecord) ContactConfidence() int {
	if r.Contact == nil {
		return 0
	}
	return r.Contact.Confidence
}

// FlagSet accumulates flags without duplicates.
type FlagSet map[Flag]struct{}

// Add sets f.
func (s FlagSet) Add(f Flag) { s[f] = struct{}{} }

// List returns the flags in canonical order.
func (s FlagSet) List() []Flag {
	out := make([]Flag, 0, len(s))
	for _, f := range flagOrder {
		if _, ok := s[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Batch is the ordered result set for one pipeline run.
type Batch struct {
	ID         string        `json:"id"`
	Records    []EmailRecord `json:"records"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Complete   bool          `json:"complete"`
	Usage      TokenUsage    `json:"usage"`
}

// BatchStats summarizes a batch for the review surface.
type BatchStats struct {
	Total         int `json:"total"`
	Flagged       int `json:"flagged"`
	Accepted      int `json:"accepted"`
	AvgConfidence int `json:"avg_confidence"`
}

// Stats computes summary counts over the batch.
func (b *Batch) Stats() BatchStats {
	st := BatchStats{Total: len(b.Records)}
	sum := 0
	for i := range b.Records {
		r := &b.Records[i]
		if len(r.Flags) > 0 {
			st.Flagged++
		}
		if r.Status == StatusAccepted {
			st.Accepted++
		}
		sum += r.FinalConfidence
	}
	if st.Total > 0 {
		st.AvgConfidence = sum / st.Total
	}
	return st
}
