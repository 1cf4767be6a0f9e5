package resilience

import "time"

// Error classes reported by ClassifyError.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// Failure records an item that could not be completed, for reporting and
// later retry.
type Failure struct {
	Key       string    `json:"key"`
	Phase     string    `json:"phase,omitempty"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"` // "transient" or "permanent"
	FailedAt  time.Time `json:"failed_at"`
}

// NewFailure classifies err for key.
func NewFailure(key, phase string, err error) Failure {
	return Failure{
		Key:       key,
		Phase:     phase,
		Error:     err.Error(),
		ErrorType: ClassifyError(err),
		FailedAt:  time.Now().UTC(),
	}
}

// Retryable reports whether the failure is worth retrying later.
func (f Failure) Retryable() bool {
	return f.ErrorType == ErrorTransient
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}
