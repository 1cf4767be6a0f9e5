package research

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrNoCandidates means research finished without any usable contact.
var ErrNoCandidates = eris.New("research: no contact candidates found")

// Options tune candidate selection.
type Options struct {
	// Floor is the minimum confidence a contact needs to be selected outright.
	Floor int
	// MaxCandidates caps the retained candidate list.
	MaxCandidates int
	// Timeout bounds one organization's search. Zero means no deadline.
	Timeout time.Duration
}

// Result is the outcome of researching one organization.
type Result struct {
	// Candidates are sorted by confidence, highest first.
	Candidates []model.Contact
	// Selected is the best candidate, or nil when there are none.
	Selected *model.Contact
	// BelowFloor is set when Selected did not reach the confidence floor.
	BelowFloor bool
	// Queries counts billable search calls, per provider name.
	Queries map[string]int
}

// Researcher finds and scores contacts for organizations.
type Researcher struct {
	searcher Searcher
	opts     Options
}

// NewResearcher creates a Researcher over searcher.
func NewResearcher(searcher Searcher, opts Options) *Researcher {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 3
	}
	return &Researcher{searcher: searcher, opts: opts}
}

// Research searches for contacts at org. The returned Result is never nil.
// Search failures are logged and reported as ErrNoCandidates, never as a
// hard error, so one organization cannot fail a batch.
func (r *Researcher) Research(ctx context.Context, org model.OrganizationRecord) (*Result, error) {
	log := zap.L().With(zap.String("organization", org.Name), zap.String("phase", "research"))
	res := &Result{Queries: make(map[string]int)}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	q := QueryFor(org)
	results, err := r.searcher.Search(ctx, q)
	if err != nil {
		res.Queries[r.searcher.Name()]++
		log.Warn("research: search failed", zap.Error(err))
		return res, eris.Wrapf(ErrNoCandidates, "search failed: %v", err)
	}
	for _, sr := range results {
		p := sr.Provider
		if p == "" {
			p = r.searcher.Name()
		}
		res.Queries[p] = 1
	}

	res.Candidates = r.rank(results, q)
	if len(res.Candidates) == 0 {
		log.Info("research: no candidates", zap.Int("results", len(results)))
		return res, ErrNoCandidates
	}

	best := res.Candidates[0]
	res.Selected = &best
	res.BelowFloor = best.Confidence < r.opts.Floor

	log.Info("research: contact selected",
		zap.String("email", best.Email),
		zap.Int("confidence", best.Confidence),
		zap.Bool("below_floor", res.BelowFloor),
		zap.Int("candidates", len(res.Candidates)),
	)
	return res, nil
}

// rank extracts, scores, dedupes, and orders candidates from results.
func (r *Researcher) rank(results []SearchResult, q Query) []model.Contact {
	byEmail := make(map[string]model.Contact)
	for _, sr := range results {
		for _, raw := range extractCandidates(sr) {
			c := scoreCandidate(raw, q)
			prev, ok := byEmail[c.Email]
			if !ok {
				byEmail[c.Email] = c
				continue
			}
			byEmail[c.Email] = merge(prev, c)
		}
	}

	out := make([]model.Contact, 0, len(byEmail))
	for _, c := range byEmail {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Email < out[j].Email
	})
	if len(out) > r.opts.MaxCandidates {
		out = out[:r.opts.MaxCandidates]
	}
	return out
}

// merge keeps the higher-confidence sighting of an address and fills its
// missing name or title from the other.
func merge(a, b model.Contact) model.Contact {
	if b.Confidence > a.Confidence {
		a, b = b, a
	}
	if a.Name == "" {
		a.Name = b.Name
	}
	if a.Title == "" {
		a.Title = b.Title
	}
	return a
}
