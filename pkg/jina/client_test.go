package jina

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Lakeside Academy admissions director email", r.URL.Path)
		assert.Equal(t, "lakeside.edu", r.URL.Query().Get("site"))
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":200,"data":[
			{"title":"Admissions | Lakeside","url":"https://lakeside.edu/admissions","description":"Contact us","content":"Jane Doe, Director of Admissions, jdoe@lakeside.edu"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithSearchBaseURL(srv.URL))
	resp, err := c.Search(context.Background(), "Lakeside Academy admissions director email",
		WithSiteFilter("lakeside.edu"), WithCount(5))
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "https://lakeside.edu/admissions", resp.Data[0].URL)
	assert.Contains(t, resp.Data[0].Content, "jdoe@lakeside.edu")
}

func TestSearch_NoResultsIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	resp, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
}

func TestSearch_ErrorStatusIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "q")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus())
	assert.Contains(t, err.Error(), "busy")
}

func TestRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/https://lakeside.edu/contact", r.URL.Path)
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		_, _ = w.Write([]byte(`{"code":200,"data":{"title":"Contact","url":"https://lakeside.edu/contact","content":"Head of School: Tom Reyes treyes@lakeside.edu","usage":{"tokens":42}}}`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", WithBaseURL(srv.URL)).Read(context.Background(), "https://lakeside.edu/contact")
	require.NoError(t, err)
	assert.Equal(t, "Contact", resp.Data.Title)
	assert.Equal(t, 42, resp.Data.Usage.Tokens)
}

func TestRead_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{nope`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Read(context.Background(), "https://x.org")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jina: unmarshal response")
}
