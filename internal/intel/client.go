package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/railisac/reporting/internal/config"
	"github.com/railisac/reporting/internal/faults"
	"github.com/railisac/reporting/internal/util"
)

const defaultPageLimit = 5000

// Client talks to one MISP instance over its restSearch API. Requests are
// fail-fast: no retry, a non-2xx response surfaces as a fetch error.
type Client struct {
	name      string
	baseURL   string
	apiKey    string
	org       string
	tags      []string
	pageLimit int
	client    *http.Client
	log       *zap.Logger
}

func New(cfg config.MISP, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	to := cfg.Timeout
	if to == 0 {
		to = time.Minute
	}
	return &Client{
		name:      cfg.Label,
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		apiKey:    cfg.APIKey,
		org:       cfg.Org,
		tags:      cfg.CategoryTags,
		pageLimit: defaultPageLimit,
		client:    util.NewHTTPClient(to, !cfg.VerifySSL),
		log:       log.Named("intel").With(zap.String("instance", cfg.Label)),
	}
}

func (c *Client) Name() string { return c.name }

// restSearch POSTs {base}/{endpoint}/restSearch with the given filters and
// returns the raw response body.
func (c *Client) restSearch(ctx context.Context, endpoint string, payload map[string]any) ([]byte, error) {
	payload["returnFormat"] = "json"
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, faults.E(faults.KindFetch, err)
	}
	url := c.baseURL + "/" + endpoint + "/restSearch"
	c.log.Debug("restSearch", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, faults.E(faults.KindFetch, err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, faults.E(faults.KindFetch, errors.Wrapf(err, "%s: %s restSearch", c.name, endpoint))
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, faults.Errorf(faults.KindFetch, "%s: %s restSearch: http %d: %s",
			c.name, endpoint, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.E(faults.KindFetch, errors.Wrap(err, "read body"))
	}
	return raw, nil
}

// extractItems tolerates the response shapes MISP deployments actually
// return: {"response": {"Event": [...]}} with or without the outer
// wrapper, or a bare list.
func extractItems(endpoint string, raw []byte) ([]map[string]any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	body := doc
	if m, ok := doc.(map[string]any); ok {
		if r, ok := m["response"]; ok {
			body = r
		}
	}
	key := "Event"
	if endpoint == "attributes" {
		key = "Attribute"
	}
	switch t := body.(type) {
	case map[string]any:
		if list, ok := t[key].([]any); ok {
			return toMaps(list), nil
		}
		out := make([]map[string]any, 0, len(t))
		for _, v := range t {
			if m, ok := v.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, nil
	case []any:
		return toMaps(t), nil
	}
	return nil, nil
}

func toMaps(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// unwrap handles the item-nested-under-its-own-type shape, e.g.
// {"Event": {...}} vs the flat {...}.
func unwrap(m map[string]any, key string) map[string]any {
	if inner, ok := m[key].(map[string]any); ok {
		return inner
	}
	return m
}

// CountAll returns the total number of items on the instance for the given
// endpoint, walking the paginated restSearch until a short page.
func (c *Client) CountAll(ctx context.Context, endpoint string) (int, error) {
	total := 0
	for page := 1; ; page++ {
		payload := map[string]any{"page": page, "limit": c.pageLimit}
		if c.org != "" {
			payload["org"] = c.org
		}
		raw, err := c.restSearch(ctx, endpoint, payload)
		if err != nil {
			return 0, err
		}
		items, err := extractItems(endpoint, raw)
		if err != nil {
			return 0, faults.E(faults.KindFetch, err)
		}
		total += len(items)
		if len(items) < c.pageLimit {
			return total, nil
		}
	}
}
