package smsverify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/verifications", r.URL.Path)
		assert.Equal(t, "Bearer api-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := New(srv.URL, "api-token", time.Second)
	err := client.Send(context.Background(), "+15550100")
	require.NoError(t, err)
	assert.Equal(t, "+15550100", got.To)
	assert.Equal(t, "sms", got.Channel)
}

func TestSendProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(srv.URL, "api-token", time.Second)
	err := client.Send(context.Background(), "+15550100")
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestSendUnconfigured(t *testing.T) {
	client := New("", "", time.Second)
	assert.ErrorIs(t, client.Send(context.Background(), "+15550100"), ErrDelivery)
}

func TestCheckVerdicts(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantValid bool
		wantErr   bool
	}{
		{"approved", http.StatusOK, `{"valid":true}`, true, false},
		{"denied", http.StatusOK, `{"valid":false}`, false, false},
		{"rejected request", http.StatusNotFound, `{}`, false, false},
		{"provider error", http.StatusInternalServerError, `{}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/verifications/check", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := New(srv.URL, "api-token", time.Second)
			valid, err := client.Check(context.Background(), "+15550100", "424242")

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDelivery)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantValid, valid)
		})
	}
}

func TestCheckUnreachable(t *testing.T) {
	// Reserved-for-documentation address, nothing listens there.
	client := New("http://192.0.2.1:9", "api-token", 100*time.Millisecond)
	_, err := client.Check(context.Background(), "+15550100", "424242")
	assert.ErrorIs(t, err, ErrDelivery)
}
