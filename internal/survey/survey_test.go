package survey

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
)

func TestSendSurvey(t *testing.T) {
	var got payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d, err := New(srv.URL, WithToken("s3cret"), WithRate(0))
	require.NoError(t, err)
	require.NoError(t, d.SendSurvey(context.Background(), " buyer@acme.test "))

	assert.Equal(t, "buyer@acme.test", got.Email)
	assert.Equal(t, "Bearer s3cret", auth)
}

func TestSendSurveyRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, err := New(srv.URL, WithRetries(3, time.Millisecond), WithRate(0))
	require.NoError(t, err)
	require.NoError(t, d.SendSurvey(context.Background(), "a@b.test"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendSurveyGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, err := New(srv.URL, WithRetries(2, time.Millisecond), WithRate(0))
	require.NoError(t, err)
	err = d.SendSurvey(context.Background(), "a@b.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendSurveyPermanentNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad address", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	d, err := New(srv.URL, WithRetries(3, time.Millisecond), WithRate(0))
	require.NoError(t, err)
	err = d.SendSurvey(context.Background(), "a@b.test")
	assert.True(t, errors.Is(err, ErrPermanent))
	assert.Contains(t, err.Error(), "bad address")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendSurveyEmptyRecipient(t *testing.T) {
	d, err := New("http://127.0.0.1:1")
	require.NoError(t, err)
	assert.ErrorIs(t, d.SendSurvey(context.Background(), "  "), ErrPermanent)
}

func TestSendSurveyHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, err := New(srv.URL, WithRetries(5, time.Hour), WithRate(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = d.SendSurvey(ctx, "a@b.test")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestLogOnly(t *testing.T) {
	assert.NoError(t, LogOnly{}.SendSurvey(context.Background(), "a@b.test"))
}
