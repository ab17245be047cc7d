package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"c": 189.5}`))
	}))
	defer srv.Close()

	var out struct {
		C float64 `json:"c"`
	}
	err := New(0).JSON(context.Background(), srv.URL+"/quote", url.Values{"symbol": {"AAPL"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 189.5, out.C)
}

func TestClient_StatusErrorHidesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	var out map[string]any
	err := New(time.Second).JSON(context.Background(), srv.URL+"/quote", url.Values{"token": {"secret"}}, &out)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.NotContains(t, err.Error(), "secret")
}

func TestClient_DecodeAndContextErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out map[string]any
	assert.Error(t, New(0).JSON(context.Background(), srv.URL, nil, &out))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(0).JSON(ctx, srv.URL, url.Values{"token": {"secret"}}, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "secret")
}
