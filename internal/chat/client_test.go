package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railisac/reporting/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.Mattermost{URL: srv.URL, Token: "tok", VerifySSL: true}, nil)
}

func TestPostsSinceStopsAtBoundary(t *testing.T) {
	since := time.UnixMilli(10_000).UTC()
	pages := []map[string]any{
		{
			"order": []string{"c", "b"},
			"posts": map[string]Post{
				"c": {ID: "c", CreateAt: 30_000, Message: "newest"},
				"b": {ID: "b", CreateAt: 20_000, Message: "middle"},
			},
		},
		{
			"order": []string{"a"},
			"posts": map[string]Post{
				"a": {ID: "a", CreateAt: 5_000, Message: "too old"},
			},
		},
		{
			// Never requested: the previous page already crossed since.
			"order": []string{},
			"posts": map[string]Post{},
		},
	}
	var served int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v4/channels/chan1/posts", r.URL.Path)
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)
		served++
		require.NoError(t, json.NewEncoder(w).Encode(pages[page]))
	})

	posts, err := c.PostsSince(context.Background(), "chan1", since)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	// Oldest first, despite the API returning newest first.
	assert.Equal(t, "b", posts[0].ID)
	assert.Equal(t, "c", posts[1].ID)
	assert.Equal(t, 2, served)
}

func TestPostsSinceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	})
	_, err := c.PostsSince(context.Background(), "chan1", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 401")
}

func TestCreatePost(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v4/posts", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	err := c.CreatePost(context.Background(), "chan1", "hello", []string{"f1"})
	require.NoError(t, err)
	assert.Equal(t, "chan1", got["channel_id"])
	assert.Equal(t, "hello", got["message"])
	assert.Equal(t, []any{"f1"}, got["file_ids"])
}

func TestUploadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/files", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "chan1", r.FormValue("channel_id"))

		f, hdr, err := r.FormFile("files")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "report.pdf", hdr.Filename)
		body, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 test", string(body))

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"file_infos": []map[string]string{{"id": "file-id-1"}},
		}))
	})

	ids, err := c.UploadFile(context.Background(), "chan1", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"file-id-1"}, ids)
}

func TestUploadFileMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.UploadFile(context.Background(), "chan1", filepath.Join(t.TempDir(), "gone.pdf"))
	assert.Error(t, err)
}

func TestTagged(t *testing.T) {
	posts := []Post{
		{ID: "1", Message: "daily sync, nothing new"},
		{ID: "2", Message: "#Reporting sent the weekly digest"},
		{ID: "3", Message: "handled #incident 42"},
		{ID: "4", Message: "incident without the tag"},
	}
	tagged := Tagged(posts, "#reporting", "#incident")
	require.Len(t, tagged, 2)
	assert.Equal(t, "2", tagged[0].ID)
	assert.Equal(t, "3", tagged[1].ID)
}
