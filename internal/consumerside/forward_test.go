package consumerside

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-test", "1")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	result, err := SendWithRetry(context.Background(), server.Client(), ForwardRequest{
		Method: "GET", URL: server.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, []byte("ok"), result.Body)
}

func TestSendWithRetryRetriesOnRetryableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	original := backoffFirstDelay
	backoffFirstDelay = time.Millisecond
	defer func() { backoffFirstDelay = original }()

	result, err := SendWithRetry(context.Background(), server.Client(), ForwardRequest{Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	original := backoffFirstDelay
	backoffFirstDelay = time.Millisecond
	defer func() { backoffFirstDelay = original }()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(500)
	}))
	defer server.Close()

	_, err := SendWithRetry(context.Background(), server.Client(), ForwardRequest{Method: "GET", URL: server.URL})
	assert.Error(t, err)
	assert.Equal(t, int32(maxRetries), atomic.LoadInt32(&calls))
}

func TestSendWithRetryDoesNotRetryNonRetryableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(404)
	}))
	defer server.Close()

	result, err := SendWithRetry(context.Background(), server.Client(), ForwardRequest{Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, 404, result.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendWithRetryRespectsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := SendWithRetry(ctx, server.Client(), ForwardRequest{Method: "GET", URL: server.URL})
	assert.Error(t, err)
}
