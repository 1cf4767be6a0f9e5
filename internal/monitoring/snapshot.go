// Package monitoring turns finished batches into health snapshots and
// webhook alerts.
package monitoring

import (
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Snapshot summarizes one batch for alert evaluation.
type Snapshot struct {
	BatchID       string  `json:"batch_id"`
	Total         int     `json:"total"`
	Accepted      int     `json:"accepted"`
	Flagged       int     `json:"flagged"`
	Failed        int     `json:"failed"` // research or generation failed
	Cancelled     int     `json:"cancelled"`
	FailRate      float64 `json:"fail_rate"`
	FlaggedRate   float64 `json:"flagged_rate"`
	CostUSD       float64 `json:"cost_usd"`
	AvgConfidence int     `json:"avg_confidence"`

	Elapsed time.Duration `json:"elapsed"`
}

// Collect builds a Snapshot from batch. Cancelled records are excluded from
// the rates.
func Collect(batch *model.Batch) *Snapshot {
	st := batch.Stats()
	snap := &Snapshot{
		BatchID:       batch.ID,
		Total:         st.Total,
		Accepted:      st.Accepted,
		Flagged:       st.Flagged,
		CostUSD:       batch.Usage.Cost,
		AvgConfidence: st.AvgConfidence,
		Elapsed:       batch.FinishedAt.Sub(batch.StartedAt),
	}
	flaggedFinished := 0
	for i := range batch.Records {
		switch batch.Records[i].Status {
		case model.StatusResearchFailed, model.StatusGenerationFailed:
			snap.Failed++
		case model.StatusCancelled:
			snap.Cancelled++
			continue
		}
		if len(batch.Records[i].Flags) > 0 {
			flaggedFinished++
		}
	}
	if finished := snap.Total - snap.Cancelled; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
		snap.FlaggedRate = float64(flaggedFinished) / float64(finished)
	}
	return snap
}
