package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/railisac/reporting/internal/aggregate"
	"github.com/railisac/reporting/internal/chat"
	"github.com/railisac/reporting/internal/config"
	"github.com/railisac/reporting/internal/faults"
	"github.com/railisac/reporting/internal/intel"
	"github.com/railisac/reporting/internal/metrics"
	"github.com/railisac/reporting/internal/model"
	"github.com/railisac/reporting/internal/notify"
	"github.com/railisac/reporting/internal/report"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	var (
		cfgPath = flag.String("config", "config.json", "path to JSON config")
		debug   = flag.Bool("debug", false, "verbose logging to stderr; skips the chat notification")
	)
	flag.Parse()

	// Credentials may live in a .env next to the binary instead of the
	// config file; absence is fine.
	_ = godotenv.Load()

	logger := newLogger(*debug)
	defer logger.Sync()

	if err := run(*cfgPath, *debug, logger); err != nil {
		fmt.Fprintln(os.Stderr, "railreport:", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

func run(cfgPath string, debug bool, logger *zap.Logger) error {
	start := time.Now()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if debug {
		fmt.Fprintln(os.Stderr, cfg.DumpYAML())
	}

	runID := uuid.NewString()
	log := logger.With(zap.String("run_id", runID))
	log.Info("starting run", zap.String("version", Version), zap.Int("days", cfg.Dashboard.Days))

	ctx := context.Background()
	now := time.Now().UTC()
	win := model.WindowEnding(now, cfg.Dashboard.Days)
	runMetrics := metrics.NewRun()

	// Fetch phase. Fail-fast: nothing is written until every intel fetch
	// has succeeded, so a 401 halfway through never clobbers yesterday's
	// report.
	primary := intel.New(cfg.MISP, log)
	events, err := primary.FetchEvents(ctx, win)
	if err != nil {
		return err
	}
	attrs, err := primary.FetchAttributes(ctx, win)
	if err != nil {
		return err
	}
	records := append(events, attrs...)
	runMetrics.ObserveFetch(primary.Name(), len(records))

	if cfg.Secondary.Enabled() {
		sec := intel.New(cfg.Secondary, log)
		secEvents, err := sec.FetchEvents(ctx, win)
		if err != nil {
			return err
		}
		secAttrs, err := sec.FetchAttributes(ctx, win)
		if err != nil {
			return err
		}
		records = append(records, secEvents...)
		records = append(records, secAttrs...)
		runMetrics.ObserveFetch(sec.Name(), len(secEvents)+len(secAttrs))
	}

	// All-time totals for the cover page.
	totalEvents, err := primary.CountAll(ctx, "events")
	if err != nil {
		return err
	}
	totalAttrs, err := primary.CountAll(ctx, "attributes")
	if err != nil {
		return err
	}

	counts := aggregate.Aggregate(records, win)
	log.Info("aggregated records",
		zap.Int("records", counts.TotalAll()),
		zap.Int("categories", len(counts.Categories())))

	data := report.Data{
		Title:       cfg.Dashboard.Title,
		TLP:         cfg.Dashboard.TLP,
		RunID:       runID,
		Window:      win,
		GeneratedAt: now,
		Counts:      counts,
		Stats: []report.Stat{
			{Label: "Events total", Value: formatCount(totalEvents), Color: report.EventBlue},
			{Label: fmt.Sprintf("Events last %dd", win.Days), Value: formatCount(len(events)), Color: report.EventBlue},
			{Label: "Attributes total", Value: formatCount(totalAttrs), Color: report.AttrOrange},
			{Label: fmt.Sprintf("Attributes last %dd", win.Days), Value: formatCount(len(attrs)), Color: report.AttrOrange},
		},
	}

	// Chat reads only feed optional pages; a failure there skips the page
	// instead of aborting the run.
	var chatClient *chat.Client
	if cfg.Mattermost.Enabled() {
		chatClient = chat.New(cfg.Mattermost, log)
		data.Worklog = worklogEntries(ctx, chatClient, cfg.Mattermost.WorklogChannel, win, log)
		data.Activity = activitySeries(ctx, chatClient, cfg.Mattermost.ActivityChannels, win, log)
	}

	if err := os.MkdirAll(cfg.Dashboard.OutputDir, 0o755); err != nil {
		return faults.E(faults.KindRender, errors.Wrap(err, "create output dir"))
	}
	outPath := report.ResolveOutputPath(cfg.Dashboard.OutputDir, cfg.Dashboard.OutputFile, now)
	pages, err := report.New(log).Render(data, outPath)
	if err != nil {
		return err
	}
	runMetrics.ObserveRender(pages)
	log.Info("report written", zap.String("path", outPath), zap.Int("pages", pages))

	if err := report.WriteIndex(cfg.Dashboard.OutputDir, cfg.Dashboard.Title); err != nil {
		log.Warn("index.html generation failed", zap.Error(err))
	}

	// The report file is the deliverable; from here on nothing may change
	// the exit code.
	if debug {
		log.Info("debug mode: skipping chat notification")
	} else if chatClient != nil {
		n := notify.New(chatClient, cfg.Mattermost.ReportChannels, log)
		if err := n.Send(ctx, counts, runID, outPath); err != nil {
			runMetrics.NotifyFailed()
			log.Error("notification failed", zap.Error(err))
		}
	}

	runMetrics.Finish(time.Since(start))
	if err := runMetrics.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}

	fmt.Printf("Dashboard created: %s\n", outPath)
	return nil
}

func worklogEntries(ctx context.Context, client *chat.Client, ch config.Channel, win model.Window, log *zap.Logger) []report.WorklogEntry {
	if ch.ID == "" {
		return nil
	}
	posts, err := client.PostsSince(ctx, ch.ID, win.Start)
	if err != nil {
		log.Warn("worklog fetch failed, skipping page", zap.Error(err))
		return nil
	}
	// Non-nil even when empty: the worklog page still renders with a
	// "no tagged messages" note.
	entries := make([]report.WorklogEntry, 0)
	for _, p := range chat.Tagged(posts, "#reporting", "#incident") {
		entries = append(entries, report.WorklogEntry{
			When:    p.Created(),
			Message: strings.TrimSpace(p.Message),
		})
	}
	return entries
}

func activitySeries(ctx context.Context, client *chat.Client, channels []config.Channel, win model.Window, log *zap.Logger) []report.ChannelSeries {
	var out []report.ChannelSeries
	for _, ch := range channels {
		posts, err := client.PostsSince(ctx, ch.ID, win.Start)
		if err != nil {
			log.Warn("activity fetch failed, skipping channel",
				zap.String("channel", ch.Label), zap.Error(err))
			continue
		}
		recs := make([]model.Record, 0, len(posts))
		for _, p := range posts {
			recs = append(recs, model.Record{Timestamp: p.Created(), Category: ch.Label, Source: "mattermost"})
		}
		days, values := aggregate.Aggregate(recs, win).DailySeries(ch.Label)
		out = append(out, report.ChannelSeries{Label: ch.Label, Days: days, Values: values, Total: len(posts)})
	}
	return out
}

// formatCount renders 12345 as "12 345", the style the dashboard always
// used for the big numbers.
func formatCount(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
