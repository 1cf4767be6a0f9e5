package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/gemini"
	"github.com/sells-group/outreach-cli/pkg/jina"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

// JinaSearcher searches with Jina Search and optionally reads the
// organization's own website through Jina Reader.
type JinaSearcher struct {
	client       jina.Client
	guard        *resilience.Guard
	maxResults   int
	readOfficial bool
}

// NewJinaSearcher wraps a Jina client. guard may be nil.
func NewJinaSearcher(client jina.Client, guard *resilience.Guard, maxResults int, readOfficial bool) *JinaSearcher {
	return &JinaSearcher{client: client, guard: guard, maxResults: maxResults, readOfficial: readOfficial}
}

// Name implements Searcher.
func (s *JinaSearcher) Name() string { return "jina" }

// Search implements Searcher.
func (s *JinaSearcher) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	var out []SearchResult

	if s.readOfficial && q.Website != "" {
		page, err := resilience.Call(ctx, s.guard, func(ctx context.Context) (*jina.ReadResponse, error) {
			return s.client.Read(ctx, q.Website)
		})
		if err != nil {
			zap.L().Debug("research: official site read failed",
				zap.String("organization", q.Organization),
				zap.String("url", q.Website),
				zap.Error(err),
			)
		} else if page != nil && strings.TrimSpace(page.Data.Content) != "" {
			url := page.Data.URL
			if url == "" {
				url = q.Website
			}
			out = append(out, SearchResult{Title: page.Data.Title, URL: url, Content: page.Data.Content})
		}
	}

	var opts []jina.SearchOption
	if s.maxResults > 0 {
		opts = append(opts, jina.WithCount(s.maxResults))
	}
	resp, err := resilience.Call(ctx, s.guard, func(ctx context.Context) (*jina.SearchResponse, error) {
		return s.client.Search(ctx, contactQuery(q), opts...)
	})
	if err != nil {
		if len(out) > 0 {
			return out, nil
		}
		return nil, eris.Wrap(err, "research: jina search")
	}
	for _, r := range resp.Data {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description, Content: r.Content})
		if s.maxResults > 0 && len(out) >= s.maxResults {
			break
		}
	}
	return out, nil
}

const contactPrompt = `Find the names, job titles, and email addresses of the senior administrators at %s%s.
Look for the head of school, principal, director, dean of admissions, or superintendent.
List each person on its own line as: Name, Title, email.
Only include people and addresses you found on a web page. Do not guess email addresses.`

func contactPromptFor(q Query) string {
	where := ""
	if q.Category != "" {
		where = fmt.Sprintf(" (%s)", q.Category)
	}
	if q.Website != "" {
		where += fmt.Sprintf(", website %s", q.Website)
	}
	return fmt.Sprintf(contactPrompt, q.Organization, where)
}

// PerplexitySearcher asks Perplexity's search-grounded model for contacts.
type PerplexitySearcher struct {
	client perplexity.Client
	guard  *resilience.Guard
}

// NewPerplexitySearcher wraps a Perplexity client. guard may be nil.
func NewPerplexitySearcher(client perplexity.Client, guard *resilience.Guard) *PerplexitySearcher {
	return &PerplexitySearcher{client: client, guard: guard}
}

// Name implements Searcher.
func (s *PerplexitySearcher) Name() string { return "perplexity" }

// Search implements Searcher. The answer text becomes one result whose URL is
// the first citation; remaining citations are listed without content.
func (s *PerplexitySearcher) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	temp := 0.2
	resp, err := resilience.Call(ctx, s.guard, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Messages:    []perplexity.Message{{Role: "user", Content: contactPromptFor(q)}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "research: perplexity search")
	}

	answer := strings.TrimSpace(resp.Content())
	if answer == "" {
		return nil, nil
	}

	citations := resp.Citations
	if len(citations) == 0 {
		for _, r := range resp.SearchResults {
			citations = append(citations, r.URL)
		}
	}

	first := ""
	if len(citations) > 0 {
		first = citations[0]
	}
	out := []SearchResult{{Title: q.Organization + " contacts", URL: first, Content: answer}}
	for i, r := range resp.SearchResults {
		if i == 0 && r.URL == first {
			continue
		}
		out = append(out, SearchResult{Title: r.Title, URL: r.URL})
	}
	return out, nil
}

// GeminiSearcher asks Gemini with Google Search grounding for contacts.
type GeminiSearcher struct {
	client gemini.Client
	guard  *resilience.Guard
	model  string
}

// NewGeminiSearcher wraps a Gemini client. guard may be nil; an empty model
// uses the client default.
func NewGeminiSearcher(client gemini.Client, guard *resilience.Guard, model string) *GeminiSearcher {
	return &GeminiSearcher{client: client, guard: guard, model: model}
}

// Name implements Searcher.
func (s *GeminiSearcher) Name() string { return "gemini" }

// Search implements Searcher.
func (s *GeminiSearcher) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	resp, err := resilience.Call(ctx, s.guard, func(ctx context.Context) (*gemini.GroundedResponse, error) {
		return s.client.GroundedSearch(ctx, s.model, contactPromptFor(q))
	})
	if err != nil {
		return nil, eris.Wrap(err, "research: gemini grounded search")
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return nil, nil
	}
	first := ""
	if len(resp.Sources) > 0 {
		first = resp.Sources[0].URI
	}
	out := []SearchResult{{Title: q.Organization + " contacts", URL: first, Content: answer}}
	for _, src := range resp.Sources {
		if src.URI == first {
			continue
		}
		out = append(out, SearchResult{Title: src.Title, URL: src.URI})
	}
	return out, nil
}

var (
	_ Searcher = (*JinaSearcher)(nil)
	_ Searcher = (*PerplexitySearcher)(nil)
	_ Searcher = (*GeminiSearcher)(nil)
)
