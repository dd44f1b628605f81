package intel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/railisac/reporting/internal/faults"
	"github.com/railisac/reporting/internal/model"
)

// CategoryUntagged is the fallback category for events that match none of
// the configured tag keywords.
const CategoryUntagged = "untagged"

// FetchEvents returns one record per event inside the window. The category
// is the first configured tag keyword contained in any of the event's tags
// (case-insensitive), matching how campaign families are tracked.
func (c *Client) FetchEvents(ctx context.Context, win model.Window) ([]model.Record, error) {
	payload := map[string]any{
		"timestamp": fmt.Sprintf("%dd", win.Days),
		"metadata":  true,
	}
	if c.org != "" {
		payload["org"] = c.org
	}
	raw, err := c.restSearch(ctx, "events", payload)
	if err != nil {
		return nil, err
	}
	items, err := extractItems("events", raw)
	if err != nil {
		return nil, faults.E(faults.KindFetch, err)
	}

	var out []model.Record
	for _, item := range items {
		event := unwrap(item, "Event")
		ts, ok := eventDay(event)
		if !ok || !win.Contains(ts) {
			continue
		}
		out = append(out, model.Record{
			Timestamp: ts,
			Category:  c.categoryFor(event),
			Source:    c.name,
		})
	}
	c.log.Debug("fetched events", zap.Int("count", len(out)))
	return out, nil
}

// FetchAttributes returns one record per attribute inside the window,
// categorized by the MISP attribute category field.
func (c *Client) FetchAttributes(ctx context.Context, win model.Window) ([]model.Record, error) {
	payload := map[string]any{
		"timestamp": fmt.Sprintf("%dd", win.Days),
	}
	if c.org != "" {
		payload["org"] = c.org
	}
	raw, err := c.restSearch(ctx, "attributes", payload)
	if err != nil {
		return nil, err
	}
	items, err := extractItems("attributes", raw)
	if err != nil {
		return nil, faults.E(faults.KindFetch, err)
	}

	var out []model.Record
	for _, item := range items {
		attr := unwrap(item, "Attribute")
		ts, ok := epochField(attr, "timestamp")
		if !ok || !win.Contains(ts) {
			continue
		}
		category := str(attr["category"])
		if category == "" {
			category = str(attr["type"])
		}
		out = append(out, model.Record{
			Timestamp: ts,
			Category:  category,
			Source:    c.name,
		})
	}
	c.log.Debug("fetched attributes", zap.Int("count", len(out)))
	return out, nil
}

// categoryFor picks the first configured keyword found in the event's tag
// names.
func (c *Client) categoryFor(event map[string]any) string {
	tags, _ := event["Tag"].([]any)
	for _, t := range tags {
		m, ok := t.(map[string]any)
		if !ok {
			continue
		}
		name := strings.ToLower(str(unwrap(m, "Tag")["name"]))
		if name == "" {
			continue
		}
		for _, kw := range c.tags {
			if strings.Contains(name, strings.ToLower(kw)) {
				return kw
			}
		}
	}
	return CategoryUntagged
}

// eventDay prefers the event's date field, falling back to the epoch
// timestamp.
func eventDay(event map[string]any) (time.Time, bool) {
	if s := str(event["date"]); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t.UTC(), true
		}
	}
	return epochField(event, "timestamp")
}

// epochField parses an epoch-seconds field that MISP serializes as either
// a string or a number.
func epochField(m map[string]any, key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case string:
		if sec, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && sec > 0 {
			return time.Unix(sec, 0).UTC(), true
		}
	case float64:
		if v > 0 {
			return time.Unix(int64(v), 0).UTC(), true
		}
	}
	return time.Time{}, false
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
