// Package notify posts the finished report to chat. Nothing here is
// allowed to fail the run: the PDF on disk is the deliverable, a missed
// notification is only logged.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/railisac/reporting/internal/aggregate"
	"github.com/railisac/reporting/internal/chat"
	"github.com/railisac/reporting/internal/config"
	"github.com/railisac/reporting/internal/faults"
)

type Notifier struct {
	client   *chat.Client
	channels []config.Channel
	log      *zap.Logger
}

func New(client *chat.Client, channels []config.Channel, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{client: client, channels: channels, log: log.Named("notify")}
}

// Send uploads the PDF and posts the summary to every configured report
// channel. It returns a notify-kinded error when any channel failed, after
// attempting all of them.
func (n *Notifier) Send(ctx context.Context, counts *aggregate.Counts, runID, pdfPath string) error {
	if n.client == nil || len(n.channels) == 0 {
		return nil
	}
	message := Summary(counts, runID)
	var lastErr error
	for _, ch := range n.channels {
		fileIDs, err := n.client.UploadFile(ctx, ch.ID, pdfPath)
		if err != nil {
			n.log.Error("upload failed", zap.String("channel", ch.Label), zap.Error(err))
			lastErr = err
			continue
		}
		if err := n.client.CreatePost(ctx, ch.ID, message, fileIDs); err != nil {
			n.log.Error("post failed", zap.String("channel", ch.Label), zap.Error(err))
			lastErr = err
			continue
		}
		n.log.Info("report posted", zap.String("channel", ch.Label))
	}
	return faults.E(faults.KindNotify, lastErr)
}

// Summary renders the short chat message: window, totals and the monthly
// table in a code block.
func Summary(counts *aggregate.Counts, runID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nightly intel report %s (run %s)\n", counts.Window, runID)
	fmt.Fprintf(&b, "Records in window: %d\n", counts.TotalAll())

	months := counts.Months()
	cats := counts.Categories()
	if len(months) == 0 || len(cats) == 0 {
		return b.String()
	}

	b.WriteString("```\n")
	table := tablewriter.NewWriter(&b)
	table.SetHeader(append([]string{"Month"}, cats...))
	for _, m := range months {
		row := []string{string(m)}
		for _, cat := range cats {
			row = append(row, strconv.Itoa(counts.Monthly[m][cat]))
		}
		table.Append(row)
	}
	table.Render()
	b.WriteString("```")
	return b.String()
}
