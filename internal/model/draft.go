package model

// Draft is one generated candidate email. Each attempt yields a new Draft.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Attempt int    `json:"attempt"`
}

// Critique is the model-derived review of exactly one Draft.
type Critique struct {
	ToneScore     int    `json:"tone_score"`
	AccuracyScore int    `json:"accuracy_score"`
	OverallScore  int    `json:"overall_score"`
	Feedback      string `json:"feedback,omitempty"`
	Neutral       bool   `json:"neutral,omitempty"` // substituted after a failed critique call
}

// ViolationKind classifies a deterministic rule violation.
type ViolationKind string

const (
	ViolationTone      ViolationKind = "tone"
	ViolationAccuracy  ViolationKind = "accuracy"
	ViolationStructure ViolationKind = "structure"
	ViolationLength    ViolationKind = "length"
)

// Violation is a single failed validator rule.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Rule    string        `json:"rule"`
	Message string        `json:"message"`
}

// ValidationResult is the deterministic score of one Draft.
type ValidationResult struct {
	Violations []Violation `json:"violations"`
	Score      int         `json:"score"`
	WordCount  int         `json:"word_count"`
}

// Has reports whether any violation of kind k was recorded.
func (v *ValidationResult) Has(k ViolationKind) bool {
	if v == nil {
		return false
	}
	for _, vi := range v.Violations {
		if vi.Kind == k {
			return true
		}
	}
	return false
}

// Decision is the retry controller's verdict on an attempt.
type Decision string

const (
	DecisionAccept    Decision = "accept"
	DecisionRetry     Decision = "retry"
	DecisionExhausted Decision = "exhausted"
)

// QualityDecision records the fused score and verdict at decision time.
type QualityDecision struct {
	FusedScore float64  `json:"fused_score"`
	Decision   Decision `json:"decision"`
	Attempt    int      `json:"attempt"`
}

// Attempt is the full trace of one pass through the retry loop. Draft is nil
// when generation failed; Critique and Validation are nil in that case too.
type Attempt struct {
	Number     int               `json:"number"`
	Draft      *Draft            `json:"draft,omitempty"`
	Critique   *Critique         `json:"critique,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Decision   QualityDecision   `json:"decision"`
	Error      string            `json:"error,omitempty"`
}

// Failed reports whether the attempt produced no usable draft.
func (a Attempt) Failed() bool {
	return a.Draft == nil
}
