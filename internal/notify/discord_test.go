package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDiscordEmptyURLIsNop(t *testing.T) {
	n := NewDiscord("")
	assert.IsType(t, Nop{}, n)
	n.Notify(Event{Type: EventKeyGenerated})
}

func TestPostKeyGenerated(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := &Discord{url: srv.URL, client: srv.Client()}
	err := d.post(context.Background(), Event{
		Type:      EventKeyGenerated,
		Key:       "AAAA1111BBBB2222CCCC3333DDDD4444",
		IP:        "1.2.3.4",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	require.Len(t, got.Embeds, 1)
	assert.Contains(t, got.Embeds[0].Description, "||AAAA1111BBBB2222CCCC3333DDDD4444||")
	assert.Contains(t, got.Embeds[0].Description, "1.2.3.4")
}

func TestPostFraudBlocked(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	d := &Discord{url: srv.URL, client: srv.Client()}
	err := d.post(context.Background(), Event{
		Type:   EventFraudBlocked,
		IP:     "1.2.3.4",
		Reason: "failed security checks (2/7)",
		Score:  3,
	})
	require.NoError(t, err)

	require.Len(t, got.Embeds, 1)
	assert.Contains(t, got.Embeds[0].Description, "failed security checks")
	assert.Equal(t, 0xFF0000, got.Embeds[0].Color)
}

func TestPostServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := &Discord{url: srv.URL, client: srv.Client()}
	err := d.post(context.Background(), Event{Type: EventKeyGenerated})
	assert.Error(t, err)
}
