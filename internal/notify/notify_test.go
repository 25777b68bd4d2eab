package notify

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

func newTestNotifier(url string) *Notifier {
	n := New(Options{BackendURL: url + "/", ProjectID: 42, Token: "abc"})
	n.RetryBudget = 2 * time.Second
	n.RetryInterval = 10 * time.Millisecond
	return n
}

func TestSend_PostsStatus(t *testing.T) {
	var got struct {
		method, path, auth, contentType string
		body                            map[string]string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		got.contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	require.NoError(t, n.Send(context.Background(), StatusRunning))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/resultupload/42/", got.path)
	assert.Equal(t, "Token abc", got.auth)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, map[string]string{"status": "running"}, got.body)
}

func TestSend_DisabledIsNoop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := New(Options{BackendURL: srv.URL, ProjectID: 42})
	assert.False(t, n.Enabled())
	require.NoError(t, n.Send(context.Background(), StatusCompleted))
	assert.Zero(t, calls.Load())

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	require.NoError(t, n.Send(context.Background(), StatusAnalysing))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	err := n.Send(context.Background(), StatusFailed)
	require.Error(t, err)
	assert.ErrorContains(t, err, "401")
	assert.ErrorContains(t, err, "invalid token")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_GivesUpAfterBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	n.RetryBudget = 100 * time.Millisecond

	start := time.Now()
	err := n.Send(context.Background(), StatusRunning)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
