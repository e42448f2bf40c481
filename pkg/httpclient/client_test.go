package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gtmarket/polyscope/pkg/ratelimit"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return New(ratelimit.New(nil, 0, 0), logger,
		WithBackoff(10*time.Millisecond, 100*time.Millisecond))
}

func TestFetchJSONRecoversFromServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newTestClient(t).FetchJSON(context.Background(), Request{URL: srv.URL}, &out)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, true, out["ok"])
}

func TestFetchJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	err := newTestClient(t).FetchJSON(context.Background(), Request{URL: srv.URL}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestFetchJSONRetriesTooManyRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := newTestClient(t).FetchJSON(context.Background(), Request{URL: srv.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchJSONExhaustsRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestClient(t).FetchJSON(context.Background(), Request{URL: srv.URL, MaxRetries: 3}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestFetchJSONDecodeFailureIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newTestClient(t).FetchJSON(context.Background(), Request{URL: srv.URL}, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchJSONStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(ratelimit.New(nil, 0, 0), logrus.New(),
		WithBackoff(time.Second, time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.FetchJSON(ctx, Request{URL: srv.URL}, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "cancellation must cut the backoff wait short")
}

func TestBackoffDelayBounds(t *testing.T) {
	c := newTestClient(t)
	c.backoffBase = 200 * time.Millisecond
	c.backoffCap = 30 * time.Second

	for n := 1; n <= 6; n++ {
		want := c.backoffBase * (1 << (n - 1))
		d := c.backoffDelay(n)
		assert.GreaterOrEqual(t, d, want)
		assert.Less(t, d, want+100*time.Millisecond)
	}

	// Far past the cap threshold the delay stays bounded.
	d := c.backoffDelay(40)
	assert.Less(t, d, c.backoffCap+100*time.Millisecond)
}
