package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
)

func fastPolicy(attempts int) config.RetryPolicy {
	return config.RetryPolicy{MaxAttempts: attempts, InitialDelayMs: 1, MaxDelayMs: 5, BackoffMultiplier: 2, TimeoutSec: 5}
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "85705", r.URL.Query().Get("zip"))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := New(fastPolicy(3), nil)
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.GetJSON(context.Background(), srv.URL, url.Values{"zip": {"85705"}}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRateLimitedAfterRepeated429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(fastPolicy(2), nil)
	_, err := c.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNonRetryableStatusStopsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(fastPolicy(5), nil)
	_, err := c.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrUnexpectedStatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostFormSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "1=1", r.PostForm.Get("where"))
		_, _ = w.Write([]byte(`{"count": 7}`))
	}))
	defer srv.Close()

	var out struct {
		Count int `json:"count"`
	}
	err := New(fastPolicy(1), nil).PostForm(context.Background(), srv.URL, url.Values{"where": {"1=1"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 7, out.Count)
}

func TestContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	policy := config.RetryPolicy{MaxAttempts: 10, InitialDelayMs: 1000, BackoffMultiplier: 1, TimeoutSec: 5}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(policy, nil).Get(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryAfter("2"))
	assert.Equal(t, 10*time.Second, retryAfter("120"))
	assert.Equal(t, time.Duration(0), retryAfter("soon"))
}
