package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/railisac/reporting/internal/config"
	"github.com/railisac/reporting/internal/util"
)

const (
	defaultPerPage  = 200
	defaultMaxPages = 200
)

// Post is the subset of a Mattermost post the report cares about.
type Post struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	CreateAt  int64  `json:"create_at"` // epoch milliseconds
	Message   string `json:"message"`
}

// Created returns the post creation time in UTC.
func (p Post) Created() time.Time {
	return time.UnixMilli(p.CreateAt).UTC()
}

// Client is a minimal Mattermost v4 REST client: read posts, create posts,
// upload files. Errors are returned plain; callers decide fatality.
type Client struct {
	baseURL  string
	token    string
	perPage  int
	maxPages int
	client   *http.Client
	log      *zap.Logger
}

func New(cfg config.Mattermost, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	to := cfg.Timeout
	if to == 0 {
		to = time.Minute
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		token:    cfg.Token,
		perPage:  defaultPerPage,
		maxPages: defaultMaxPages,
		client:   util.NewHTTPClient(to, !cfg.VerifySSL),
		log:      log.Named("chat"),
	}
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("mattermost %s: http %d: %s",
			req.URL.Path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// PostsSince pages through a channel newest-first and returns every post
// created at or after since, oldest-first. Paging stops at the first older
// post, matching the channel-posts ordering guarantee.
func (c *Client) PostsSince(ctx context.Context, channelID string, since time.Time) ([]Post, error) {
	sinceMS := since.UnixMilli()
	var posts []Post
	for page := 0; page < c.maxPages; page++ {
		params := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(c.perPage)},
		}
		var data struct {
			Order []string        `json:"order"`
			Posts map[string]Post `json:"posts"`
		}
		if err := c.get(ctx, "/api/v4/channels/"+channelID+"/posts", params, &data); err != nil {
			return nil, err
		}
		if len(data.Order) == 0 {
			break
		}
		stop := false
		for _, id := range data.Order {
			p, ok := data.Posts[id]
			if !ok {
				continue
			}
			if p.CreateAt >= sinceMS {
				posts = append(posts, p)
			} else {
				stop = true
				break
			}
		}
		if stop {
			break
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreateAt < posts[j].CreateAt })
	c.log.Debug("fetched posts", zap.String("channel", channelID), zap.Int("count", len(posts)))
	return posts, nil
}

// CreatePost posts a message, optionally referencing previously uploaded
// file ids.
func (c *Client) CreatePost(ctx context.Context, channelID, message string, fileIDs []string) error {
	body, err := json.Marshal(map[string]any{
		"channel_id": channelID,
		"message":    message,
		"file_ids":   fileIDs,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v4/posts", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// UploadFile uploads a local file to a channel and returns the file ids to
// attach to a post.
func (c *Client) UploadFile(ctx context.Context, channelID, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.WriteField("channel_id", channelID); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v4/files", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		FileInfos []struct {
			ID string `json:"id"`
		} `json:"file_infos"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.FileInfos))
	for _, fi := range resp.FileInfos {
		ids = append(ids, fi.ID)
	}
	return ids, nil
}

// Tagged filters posts down to those containing at least one of the given
// tags, e.g. "#reporting" or "#incident".
func Tagged(posts []Post, tags ...string) []Post {
	var out []Post
	for _, p := range posts {
		msg := strings.ToLower(p.Message)
		for _, t := range tags {
			if strings.Contains(msg, strings.ToLower(t)) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
