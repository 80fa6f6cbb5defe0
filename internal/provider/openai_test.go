package provider

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

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func TestOpenAIChatClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body["model"])
		_ = json.NewEncoder(w).Encode(chatResponse(`{"strategy":"TWAP"}`))
	}))
	defer srv.Close()

	c := NewOpenAIChatClient(srv.URL, "test-key", "gpt-4o", "", 5*time.Second, 0)
	out, err := c.Complete(context.Background(), ChatPayload{System: "sys", User: "hello", Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, `{"strategy":"TWAP"}`, out)
}

func TestOpenAIChatClient_AzureForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/my-deploy/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(chatResponse("ok"))
	}))
	defer srv.Close()

	c := NewOpenAIChatClient(srv.URL, "azure-key", "my-deploy", "2024-02-01", 5*time.Second, 0)
	out, err := c.Complete(context.Background(), ChatPayload{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestOpenAIChatClient_RetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse("retried"))
	}))
	defer srv.Close()

	c := NewOpenAIChatClient(srv.URL, "k", "m", "", 5*time.Second, 3)
	out, err := c.Complete(context.Background(), ChatPayload{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "retried", out)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestOpenAIChatClient_NoRetryOn400(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad prompt"}})
	}))
	defer srv.Close()

	c := NewOpenAIChatClient(srv.URL, "k", "m", "", 5*time.Second, 3)
	_, err := c.Complete(context.Background(), ChatPayload{User: "hi"})
	require.Error(t, err)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Error(), "bad prompt")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestOpenAIChatClient_Disabled(t *testing.T) {
	c := NewOpenAIChatClient("http://localhost", "", "m", "", time.Second, 0)
	assert.False(t, c.Enabled())
	_, err := c.Complete(context.Background(), ChatPayload{User: "hi"})
	assert.ErrorIs(t, err, ErrDisabled)
}
