package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"Nebula"}`)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)
	body, err := f.Fetch(context.Background(), srv.URL+"/ipfs/abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Nebula"}`, string(body))
}

func TestHTTPFetcher_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pin expired", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL+"/ipfs/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "pin expired")
}
