package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidSlackWebhookURL(t *testing.T) {
	valid := []string{
		"https://hooks.slack.com/services/T0001/B0002/XXXXXXXXXXXXXXXXXXXXXXXX",
		"https://hooks.slack.com/services/TABC123/BDEF456/abcDEF123",
	}
	for _, u := range valid {
		require.True(t, ValidSlackWebhookURL(u), u)
	}

	invalid := []string{
		"",
		"http://hooks.slack.com/services/T0001/B0002/XXXX",
		"https://hooks.slack.com.evil.io/services/T0001/B0002/XXXX",
		"https://evil.io/services/T0001/B0002/XXXX",
		"https://hooks.slack.com/services/T0001/B0002/XXXX?next=http://169.254.169.254",
		"https://hooks.slack.com/services/t0001/B0002/XXXX",
		"https://hooks.slack.com/services/T0001/B0002/",
		"https://hooks.slack.com/T0001/B0002/XXXX",
		"file:///etc/passwd",
	}
	for _, u := range invalid {
		require.False(t, ValidSlackWebhookURL(u), u)
	}
}

func TestSlackNotifierSend(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	last := time.Date(2025, 6, 1, 11, 58, 0, 0, time.UTC)
	n := NewSlackNotifier(2*time.Second, zap.NewNop())
	err := n.Send(context.Background(), srv.URL, SlackMessage{
		CheckName: "nightly-export",
		Status:    "down",
		LastPing:  &last,
		Interval:  10 * time.Minute,
		Grace:     2 * time.Minute,
	})
	require.NoError(t, err)
	require.Equal(t, "application/json", gotContentType)

	var payload struct {
		Text   string `json:"text"`
		Blocks []struct {
			Type string `json:"type"`
		} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	require.Equal(t, "[down] nightly-export", payload.Text)
	require.Len(t, payload.Blocks, 2)
	require.Contains(t, string(gotBody), "2025-06-01T11:58:00Z")
}

func TestSlackNotifierSendNeverPinged(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	n := NewSlackNotifier(0, zap.NewNop())
	err := n.Send(context.Background(), srv.URL, SlackMessage{CheckName: "c", Status: "down"})
	require.NoError(t, err)
	require.True(t, strings.Contains(string(gotBody), "never"))
}

func TestSlackNotifierSendRejectedByServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewSlackNotifier(2*time.Second, zap.NewNop())
	err := n.Send(context.Background(), srv.URL, SlackMessage{CheckName: "c", Status: "down"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}
