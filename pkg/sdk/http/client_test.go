package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/price", r.URL.Path)
		assert.Equal(t, "BTCUSD", r.URL.Query().Get("asset"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mid":"1.5"}`))
	}))
	defer srv.Close()

	var out struct {
		Mid string `json:"mid"`
	}
	c := NewClient(srv.URL + "/")
	require.NoError(t, c.Get(context.Background(), "/price", map[string]any{"asset": "BTCUSD"}, &out))
	assert.Equal(t, "1.5", out.Mid)
}

func TestPostJSONSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "{ ping }", body["query"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	c := NewClient("")
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]any{"query": "{ ping }"}, &out))
	assert.True(t, out.OK)
}

func TestNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad asset"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL).SetRetry(0, 0, 0)
	err := c.Get(context.Background(), "/", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad asset")
}

func TestRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL).SetRetry(3, time.Millisecond, 5*time.Millisecond)
	require.NoError(t, c.Get(context.Background(), "/", nil, nil))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestUnsupportedMethod(t *testing.T) {
	c := NewClient("http://127.0.0.1")
	_, err := c.DoRequest(context.Background(), http.MethodPatch, "/", nil, nil)
	assert.Error(t, err)
}
