package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSMSClient_SendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "tok", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15551234567", r.PostForm.Get("To"))
		assert.Equal(t, "+15550000000", r.PostForm.Get("From"))
		assert.Equal(t, "see you at 3pm", r.PostForm.Get("Body"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM999","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewSMSClient(srv.URL, "AC1", "tok", "+15550000000", zap.NewNop())
	sid, err := c.SendText(context.Background(), "+15551234567", "see you at 3pm")
	require.NoError(t, err)
	assert.Equal(t, "SM999", sid)
}

func TestSMSClient_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid To"}`))
	}))
	defer srv.Close()

	c := NewSMSClient(srv.URL, "AC1", "tok", "+15550000000", zap.NewNop())
	_, err := c.SendText(context.Background(), "bad", "x")
	require.Error(t, err)

	var apiErr SMSAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestSMSClient_NotConfigured(t *testing.T) {
	c := NewSMSClient("http://localhost", "", "", "", zap.NewNop())
	_, err := c.SendText(context.Background(), "+15551234567", "x")
	require.Error(t, err)
}
