package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailmerge/internal/types"
)

func noSleep(time.Duration) {}

func newTestFuncClient(t *testing.T, endpoint string) *FuncClient {
	t.Helper()
	return NewFuncClient(FuncClientConfig{
		Endpoint: endpoint,
		APIKey:   types.SecretString("func-key-123"),
		Options:  []BaseClientOption{WithSleepFunc(noSleep)},
	})
}

func TestFuncClient_Send_Success(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody funcSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(funcSendResponse{Success: true})
	}))
	defer srv.Close()

	client := newTestFuncClient(t, srv.URL)
	err := client.Send(context.Background(), types.SendInput{
		To:      "ana@example.com",
		Subject: "Hello Ana",
		Body:    "Body text",
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer func-key-123", gotAuth)
	assert.Equal(t, "ana@example.com", gotBody.To)
	assert.Equal(t, "Hello Ana", gotBody.Subject)
	assert.Equal(t, "Body text", gotBody.Body)
}

func TestFuncClient_Send_PayloadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 OK transport with a failed send in the payload.
		_ = json.NewEncoder(w).Encode(funcSendResponse{Success: false, Error: "recipient suppressed"})
	}))
	defer srv.Close()

	client := newTestFuncClient(t, srv.URL)
	err := client.Send(context.Background(), types.SendInput{To: "ana@example.com"})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamSendRejected, appErr.Code)
	assert.Contains(t, appErr.Message, "recipient suppressed")
}

func TestFuncClient_Send_BadAPIKeyHint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(funcSendResponse{Success: false, Error: "invalid API key"})
	}))
	defer srv.Close()

	client := newTestFuncClient(t, srv.URL)
	err := client.Send(context.Background(), types.SendInput{To: "ana@example.com"})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamSendRejected, appErr.Code)
	assert.Contains(t, appErr.Message, "API key configuration")
}

func TestFuncClient_Send_RetriesOn5xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(funcSendResponse{Success: true})
	}))
	defer srv.Close()

	client := newTestFuncClient(t, srv.URL)
	err := client.Send(context.Background(), types.SendInput{To: "ana@example.com"})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFuncClient_Send_ExhaustedRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestFuncClient(t, srv.URL)
	err := client.Send(context.Background(), types.SendInput{To: "ana@example.com"})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
	assert.Equal(t, int32(3), calls.Load()) // initial attempt + 2 retries
}

func TestFuncClient_Send_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := newTestFuncClient(t, srv.URL)
	err := client.Send(context.Background(), types.SendInput{To: "ana@example.com"})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamEmailProvider, appErr.Code)
}

func TestBaseClient_ComputeBackoff_RetryAfterSeconds(t *testing.T) {
	t.Parallel()

	bc := NewBaseClient(http.DefaultClient, "test", DefaultRetryPolicy(), "")
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"2"}}}

	assert.Equal(t, 2*time.Second, bc.computeBackoff(0, resp))
}

func TestBaseClient_ComputeBackoff_ClampsToMaxWait(t *testing.T) {
	t.Parallel()

	bc := NewBaseClient(http.DefaultClient, "test", RetryPolicy{
		MaxRetries: 3,
		MinWait:    100 * time.Millisecond,
		MaxWait:    time.Second,
	}, "")
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}

	assert.Equal(t, time.Second, bc.computeBackoff(0, resp))
}

func TestBaseClient_ComputeBackoff_JitterWithinBounds(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second}
	bc := NewBaseClient(http.DefaultClient, "test", policy, "")

	for attempt := range 4 {
		wait := bc.computeBackoff(attempt, nil)
		assert.GreaterOrEqual(t, wait, policy.MinWait)
		assert.LessOrEqual(t, wait, policy.MaxWait)
	}
}

func TestBaseClient_MapError_Unwraps(t *testing.T) {
	t.Parallel()

	bc := NewBaseClient(http.DefaultClient, "test", DefaultRetryPolicy(), "")
	cause := errors.New("dial tcp: connection refused")

	appErr := bc.mapError(nil, cause)

	assert.Equal(t, types.ErrCodeUpstreamEmailProvider, appErr.Code)
	assert.ErrorIs(t, appErr, cause)
}
