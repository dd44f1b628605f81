package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railisac/reporting/internal/config"
	"github.com/railisac/reporting/internal/faults"
	"github.com/railisac/reporting/internal/model"
)

func testWindow() model.Window {
	return model.WindowEnding(time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC), 30)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.MISP{
		URL:          srv.URL,
		APIKey:       "test-key",
		VerifySSL:    true,
		Label:        "misp",
		CategoryTags: []string{"phishing", "malware"},
	}, nil)
}

func TestFetchEventsCategorizesByTag(t *testing.T) {
	win := testWindow()
	inWindow := win.End.Format("2006-01-02")
	outside := win.Start.AddDate(0, 0, -5).Format("2006-01-02")

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/events/restSearch", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "30d", payload["timestamp"])

		fmt.Fprintf(w, `{"response": [
			{"Event": {"id": "1", "date": %q, "Tag": [{"Tag": {"name": "osint:Phishing-campaign"}}]}},
			{"Event": {"id": "2", "date": %q, "Tag": [{"name": "tlp:green"}]}},
			{"Event": {"id": "3", "date": %q, "Tag": [{"Tag": {"name": "malware"}}]}}
		]}`, inWindow, inWindow, outside)
	})

	records, err := c.FetchEvents(context.Background(), win)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "phishing", records[0].Category)
	assert.Equal(t, CategoryUntagged, records[1].Category)
	assert.Equal(t, "misp", records[0].Source)
}

func TestFetchAttributes(t *testing.T) {
	win := testWindow()
	epoch := win.End.Add(10 * time.Hour).Unix()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attributes/restSearch", r.URL.Path)
		fmt.Fprintf(w, `{"response": {"Attribute": [
			{"category": "Payload delivery", "timestamp": "%d"},
			{"type": "ip-dst", "timestamp": %d},
			{"category": "Network activity", "timestamp": "0"}
		]}}`, epoch, epoch)
	})

	records, err := c.FetchAttributes(context.Background(), win)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Payload delivery", records[0].Category)
	// Category falls back to the attribute type.
	assert.Equal(t, "ip-dst", records[1].Category)
}

func TestFetchUnauthorizedIsFatal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"name": "Authentication failed."}`, http.StatusUnauthorized)
	})

	_, err := c.FetchEvents(context.Background(), testWindow())
	require.Error(t, err)
	assert.Equal(t, faults.KindFetch, faults.KindOf(err))
	assert.True(t, faults.Fatal(err))
	assert.Contains(t, err.Error(), "http 401")
}

func TestCountAllPaginates(t *testing.T) {
	pages := map[int]int{1: 2, 2: 2, 3: 1}
	var requested []int

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		page := int(payload["page"].(float64))
		requested = append(requested, page)

		items := make([]map[string]any, pages[page])
		for i := range items {
			items[i] = map[string]any{"Event": map[string]any{"id": fmt.Sprint(i)}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"response": items}))
	})
	c.pageLimit = 2

	total, err := c.CountAll(context.Background(), "events")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []int{1, 2, 3}, requested)
}

func TestExtractItemsShapes(t *testing.T) {
	cases := map[string]string{
		"wrapped dict": `{"response": {"Event": [{"id": "1"}, {"id": "2"}]}}`,
		"bare dict":    `{"Event": [{"id": "1"}, {"id": "2"}]}`,
		"bare list":    `[{"Event": {"id": "1"}}, {"Event": {"id": "2"}}]`,
		"wrapped list": `{"response": [{"id": "1"}, {"id": "2"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			items, err := extractItems("events", []byte(raw))
			require.NoError(t, err)
			assert.Len(t, items, 2)
		})
	}

	_, err := extractItems("events", []byte(`{invalid`))
	assert.Error(t, err)
}

func TestEventDayFallsBackToEpoch(t *testing.T) {
	ts, ok := eventDay(map[string]any{"date": "2026-08-20"})
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), ts)

	ts, ok = eventDay(map[string]any{"timestamp": "1756000000"})
	require.True(t, ok)
	assert.Equal(t, int64(1756000000), ts.Unix())

	_, ok = eventDay(map[string]any{"date": "not-a-date"})
	assert.False(t, ok)
}
