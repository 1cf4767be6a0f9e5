// Package research discovers and scores candidate contacts for an organization.
package research

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Query describes the organization being researched.
type Query struct {
	Organization string
	Category     string
	Website      string
}

// QueryFor builds a Query from an organization record.
func QueryFor(org model.OrganizationRecord) Query {
	return Query{Organization: org.Name, Category: org.Fit, Website: org.Website}
}

// SearchResult is one page or answer returned by a search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Content string `json:"content,omitempty"`
	// Provider names the backend that produced the result.
	Provider string `json:"provider,omitempty"`
}

// Text joins every textual field of the result.
func (r SearchResult) Text() string {
	return strings.Join([]string{r.Title, r.Snippet, r.Content}, "\n")
}

// Searcher finds web pages likely to list an organization's staff contacts.
type Searcher interface {
	Name() string
	Search(ctx context.Context, q Query) ([]SearchResult, error)
}

// contactQuery is the free-text query sent to keyword search backends.
func contactQuery(q Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q", q.Organization)
	if q.Category != "" {
		b.WriteString(" " + q.Category)
	}
	b.WriteString(" head of school principal director admissions staff directory email")
	return b.String()
}

// Chain tries each searcher in order and returns the first non-empty result
// set. Errors from one searcher are logged and the next one is tried.
type Chain struct {
	searchers []Searcher
}

// NewChain builds a fallback chain. Nil searchers are skipped.
func NewChain(searchers ...Searcher) *Chain {
	c := &Chain{}
	for _, s := range searchers {
		if s != nil {
			c.searchers = append(c.searchers, s)
		}
	}
	return c
}

// Name lists the chained backends.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.searchers))
	for _, s := range c.searchers {
		names = append(names, s.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Len returns the number of chained searchers.
func (c *Chain) Len() int { return len(c.searchers) }

// Search runs the chain. It returns an error only when every backend failed.
func (c *Chain) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	var lastErr error
	for _, s := range c.searchers {
		results, err := s.Search(ctx, q)
		if err != nil {
			zap.L().Warn("research: searcher failed, trying next",
				zap.String("searcher", s.Name()),
				zap.String("organization", q.Organization),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if len(results) > 0 {
			tagProvider(results, s.Name())
			return results, nil
		}
		lastErr = nil
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "research: all searchers failed")
	}
	return nil, nil
}

func tagProvider(results []SearchResult, name string) {
	for i := range results {
		if results[i].Provider == "" {
			results[i].Provider = name
		}
	}
}

// RecordSearcher surfaces contact columns already present in the input row
// (for example "Contact Email", "Contact Name", "Contact Title").
type RecordSearcher struct {
	records map[string]model.OrganizationRecord
}

// NewRecordSearcher indexes records by organization name.
func NewRecordSearcher(records []model.OrganizationRecord) *RecordSearcher {
	idx := make(map[string]model.OrganizationRecord, len(records))
	for _, r := range records {
		idx[strings.ToLower(strings.TrimSpace(r.Name))] = r
	}
	return &RecordSearcher{records: idx}
}

// Name implements Searcher.
func (s *RecordSearcher) Name() string { return "record" }

// Search implements Searcher.
func (s *RecordSearcher) Search(_ context.Context, q Query) ([]SearchResult, error) {
	rec, ok := s.records[strings.ToLower(strings.TrimSpace(q.Organization))]
	if !ok {
		return nil, nil
	}
	// Columns are visited in sorted order and the first non-empty match
	// wins, so rows with two email columns resolve the same way every run.
	var email, name, title string
	for _, k := range slices.Sorted(maps.Keys(rec.Extra)) {
		v := strings.TrimSpace(rec.Extra[k])
		if v == "" {
			continue
		}
		key := strings.ToLower(k)
		switch {
		case strings.Contains(key, "email"):
			if email == "" {
				email = v
			}
		case strings.Contains(key, "title") || strings.Contains(key, "role"):
			if title == "" {
				title = v
			}
		case strings.Contains(key, "contact") || strings.Contains(key, "name"):
			if name == "" {
				name = v
			}
		}
	}
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	return []SearchResult{{
		Title:   rec.Name,
		URL:     rec.Website,
		Content: strings.TrimSpace(fmt.Sprintf("%s, %s\n%s", name, title, email)),
	}}, nil
}

// StaticSearcher returns canned results. Used by offline runs and tests.
type StaticSearcher struct {
	Results map[string][]SearchResult
	Err     error
	calls   atomic.Int64
}

// Calls returns how many searches were made.
func (s *StaticSearcher) Calls() int { return int(s.calls.Load()) }

// Name implements Searcher.
func (s *StaticSearcher) Name() string { return "static" }

// Search implements Searcher.
func (s *StaticSearcher) Search(_ context.Context, q Query) ([]SearchResult, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Results[q.Organization], nil
}

var (
	_ Searcher = (*Chain)(nil)
	_ Searcher = (*RecordSearcher)(nil)
	_ Searcher = (*StaticSearcher)(nil)
)
