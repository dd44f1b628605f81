package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railisac/reporting/internal/aggregate"
	"github.com/railisac/reporting/internal/chat"
	"github.com/railisac/reporting/internal/config"
	"github.com/railisac/reporting/internal/faults"
	"github.com/railisac/reporting/internal/model"
)

func testCounts() *aggregate.Counts {
	win := model.WindowEnding(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), 30)
	return aggregate.Aggregate([]model.Record{
		{Timestamp: win.Start, Category: "phishing", Source: "misp"},
		{Timestamp: win.Start, Category: "phishing", Source: "misp"},
		{Timestamp: win.End, Category: "malware", Source: "misp"},
	}, win)
}

func testPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashboard.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))
	return path
}

func TestSendPostsToEveryChannel(t *testing.T) {
	var posted []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/files":
			json.NewEncoder(w).Encode(map[string]any{
				"file_infos": []map[string]string{{"id": "fid-1"}},
			})
		case "/api/v4/posts":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			posted = append(posted, body)
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := chat.New(config.Mattermost{URL: srv.URL, Token: "tok", VerifySSL: true}, nil)
	channels := []config.Channel{{ID: "c1", Label: "reports"}, {ID: "c2", Label: "board"}}

	err := New(client, channels, nil).Send(context.Background(), testCounts(), "run-1", testPDF(t))
	require.NoError(t, err)
	require.Len(t, posted, 2)
	assert.Equal(t, "c1", posted[0]["channel_id"])
	assert.Equal(t, "c2", posted[1]["channel_id"])
	assert.Equal(t, []any{"fid-1"}, posted[0]["file_ids"])
	assert.Contains(t, posted[0]["message"], "run-1")
}

func TestSendFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := chat.New(config.Mattermost{URL: srv.URL, Token: "tok", VerifySSL: true}, nil)
	channels := []config.Channel{{ID: "c1", Label: "reports"}}

	err := New(client, channels, nil).Send(context.Background(), testCounts(), "run-1", testPDF(t))
	require.Error(t, err)
	assert.Equal(t, faults.KindNotify, faults.KindOf(err))
	assert.False(t, faults.Fatal(err))
}

func TestSendNoChannels(t *testing.T) {
	assert.NoError(t, New(nil, nil, nil).Send(context.Background(), testCounts(), "run-1", "x.pdf"))
}

func TestSummary(t *testing.T) {
	msg := Summary(testCounts(), "run-42")

	assert.Contains(t, msg, "run-42")
	assert.Contains(t, msg, "Records in window: 3")
	assert.Contains(t, msg, "2026-07-26")
	assert.Contains(t, msg, "```")
	assert.Contains(t, msg, "MONTH")
	assert.Contains(t, msg, "Jul 2026")
	assert.Contains(t, msg, "Aug 2026")
	assert.Contains(t, msg, "PHISHING")
	assert.Contains(t, msg, "MALWARE")
}

func TestSummaryEmpty(t *testing.T) {
	win := model.WindowEnding(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), 30)
	msg := Summary(aggregate.Aggregate(nil, win), "run-42")
	assert.Contains(t, msg, "Records in window: 0")
	assert.NotContains(t, msg, "```")
}
