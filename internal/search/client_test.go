package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najirlabs/najir/internal/chat"
)

func TestSearch(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/case-search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"cases":[{"id":"100","title":"Case A","summary":"s"}],"totalCount":31,"nextPageToken":"p2"}`))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL+"/", "secret").Search(context.Background(), "land dispute", "p1")
	require.NoError(t, err)

	assert.Equal(t, searchRequest{Query: "land dispute", PageToken: "p1", PageSize: PageSize}, got)
	assert.Equal(t, []chat.Case{{ID: "100", Title: "Case A", Summary: "s"}}, page.Cases)
	assert.Equal(t, 31, page.TotalCount)
	require.NotNil(t, page.NextPageToken)
	assert.Equal(t, "p2", *page.NextPageToken)
}

func TestSearchEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"nextPageToken":null}`))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL, "").Search(context.Background(), "nothing", "")
	require.NoError(t, err)

	assert.NotNil(t, page.Cases)
	assert.Empty(t, page.Cases)
	assert.Nil(t, page.NextPageToken)
}

func TestSearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "")

	_, err := c.Search(context.Background(), "x", "")
	assert.ErrorContains(t, err, "search status 502")

	_, err = c.Search(context.Background(), "   ", "")
	assert.ErrorContains(t, err, "query is required")
}
