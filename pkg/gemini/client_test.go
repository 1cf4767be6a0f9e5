package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name       string
		in         error
		wantStatus int
	}{
		{name: "api_429", in: genai.APIError{Code: 429, Message: "quota"}, wantStatus: 429},
		{name: "api_503", in: genai.APIError{Code: 503}, wantStatus: 503},
		{name: "api_401", in: genai.APIError{Code: 401}, wantStatus: 401},
		{name: "plain", in: errors.New("dial tcp: refused"), wantStatus: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.in)
			var apiErr *APIError
			if tt.wantStatus == 0 {
				assert.False(t, errors.As(got, &apiErr))
				return
			}
			require.True(t, errors.As(got, &apiErr))
			assert.Equal(t, tt.wantStatus, apiErr.HTTPStatus())
		})
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.5-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "SUBJECT: Hello\nBODY: Hi there"}]}}],
			"usageMetadata": {"promptTokenCount": 30, "candidatesTokenCount": 12}
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), GenerateRequest{
		System:      "You write outreach emails.",
		Prompt:      "Write one.",
		Temperature: genai.Ptr[float32](0.7),
		MaxTokens:   256,
	})
	require.NoError(t, err)
	assert.Equal(t, "SUBJECT: Hello\nBODY: Hi there", resp.Text)
	assert.Equal(t, "gemini-2.5-flash", resp.Model)
	assert.Equal(t, 30, resp.Usage.InputTokens)
	assert.Equal(t, 12, resp.Usage.OutputTokens)
}

func TestGroundedSearch_DedupesSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "Jane Doe is Director of Admissions (jdoe@lakeside.edu)."}]},
				"groundingMetadata": {
					"webSearchQueries": ["Lakeside Academy admissions director"],
					"groundingChunks": [
						{"web": {"uri": "https://lakeside.edu/staff", "title": "Staff"}},
						{"web": {"uri": "https://lakeside.edu/staff", "title": "Staff"}},
						{"web": {"uri": "https://niche.com/lakeside", "title": "Niche"}}
					]
				}
			}]
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", WithBaseURL(srv.URL), WithModel("gemini-2.5-pro"))
	require.NoError(t, err)

	resp, err := c.GroundedSearch(context.Background(), "", "Who runs admissions at Lakeside Academy?")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "jdoe@lakeside.edu")
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "https://lakeside.edu/staff", resp.Sources[0].URI)
	assert.Equal(t, []string{"Lakeside Academy admissions director"}, resp.Queries)
}

func TestGenerate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "Resource exhausted", "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatus())
}
