package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTransport(url string, opts ...TransportOption) *Transport {
	opts = append([]TransportOption{WithRetryDelay(time.Millisecond), WithMaxDelay(5 * time.Millisecond)}, opts...)
	return NewTransport("test", url, opts...)
}

func TestTransport_RetriesOnRateLimitAndServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			assert.Equal(t, "/path", r.URL.Path)
			assert.Equal(t, "v", r.URL.Query().Get("k"))
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer server.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := fastTransport(server.URL).GetJSON(context.Background(), "op", "/path", map[string][]string{"k": {"v"}}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransport_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var out map[string]any
	err := fastTransport(server.URL, WithMaxRetries(2)).GetJSON(context.Background(), "op", "/", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransport_ClientErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad query"))
	}))
	defer server.Close()

	tr := fastTransport(server.URL)
	var out map[string]any

	err := tr.GetJSON(context.Background(), "op", "/missing", nil, &out)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = tr.GetJSON(context.Background(), "op", "/bad", nil, &out)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "bad query", statusErr.Body)

	assert.Equal(t, int32(2), calls.Load())
}

func TestTransport_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out map[string]any
	err := NewTransport("test", server.URL).GetJSON(ctx, "op", "/", nil, &out)
	assert.Error(t, err)
}

func TestTransport_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tr := fastTransport(server.URL, WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		var out map[string]any
		require.NoError(t, tr.GetJSON(context.Background(), "op", "/", nil, &out))
	}
	// burst 1 at 20 rps: the second and third calls wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
