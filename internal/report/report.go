// Package report lays out the aggregated counts into a multi-page PDF
// dashboard: cover, worklog, time-series, category breakdown, monthly
// table and chat activity.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/railisac/reporting/internal/aggregate"
	"github.com/railisac/reporting/internal/faults"
	"github.com/railisac/reporting/internal/model"
)

// Dashboard palette.
var (
	EventBlue  = [3]int{31, 119, 180}
	AttrOrange = [3]int{255, 127, 14}

	tlpGreen = [3]int{51, 255, 0}
)

// Stat is one cover-page summary box.
type Stat struct {
	Label string
	Value string
	Color [3]int
}

// WorklogEntry is one tagged chat message for the worklog pages.
type WorklogEntry struct {
	When    time.Time
	Message string
}

// ChannelSeries is a posts-per-day series for one chat channel.
type ChannelSeries struct {
	Label  string
	Days   []time.Time
	Values []float64
	Total  int
}

// Data carries everything the renderer needs. Worklog and Activity are
// nil when chat is not configured; a non-nil empty Worklog still renders
// the "no tagged messages" page.
type Data struct {
	Title       string
	TLP         string
	RunID       string
	Window      model.Window
	GeneratedAt time.Time
	Counts      *aggregate.Counts
	Stats       []Stat
	Worklog     []WorklogEntry
	Activity    []ChannelSeries
}

type Renderer struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{log: log.Named("report")}
}

// Render writes the dashboard to path, overwriting any previous file.
// The PDF is assembled into a temp file and renamed so a failed render
// never clobbers an existing report. Returns the page count.
func (r *Renderer) Render(data Data, path string) (int, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(data.Title, true)
	pdf.SetAutoPageBreak(false, 12)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "", 7)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	r.coverPage(pdf, data)
	if data.Worklog != nil {
		r.worklogPages(pdf, data)
	}
	if err := r.timeSeriesPage(pdf, data); err != nil {
		return 0, faults.E(faults.KindRender, err)
	}
	if err := r.categoryPage(pdf, data); err != nil {
		return 0, faults.E(faults.KindRender, err)
	}
	r.monthlyTablePage(pdf, data)
	if len(data.Activity) > 0 {
		if err := r.activityPage(pdf, data); err != nil {
			return 0, faults.E(faults.KindRender, err)
		}
	}

	if pdf.Err() {
		return 0, faults.E(faults.KindRender, errors.Wrap(pdf.Error(), "assemble pdf"))
	}
	pages := pdf.PageCount()

	tmp := path + ".tmp"
	if err := pdf.OutputFileAndClose(tmp); err != nil {
		os.Remove(tmp)
		return 0, faults.E(faults.KindRender, errors.Wrap(err, "write pdf"))
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, faults.E(faults.KindRender, errors.Wrap(err, "move pdf into place"))
	}
	r.log.Debug("rendered report", zap.String("path", path), zap.Int("pages", pages))
	return pages, nil
}

func (r *Renderer) pageHeader(pdf *fpdf.Fpdf, data Data, heading, subtitle string) {
	pdf.AddPage()
	tlp := data.TLP
	if tlp == "" {
		tlp = "TLP:GREEN"
	}
	pdf.SetXY(-50, 8)
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(0, 0, 0)
	pdf.SetTextColor(tlpGreen[0], tlpGreen[1], tlpGreen[2])
	pdf.CellFormat(40, 5, tlp, "", 0, "C", true, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(10, 18)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, heading, "", 1, "C", false, 0, "")
	if subtitle != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, subtitle, "", 1, "C", false, 0, "")
	}
}

func (r *Renderer) coverPage(pdf *fpdf.Fpdf, data Data) {
	r.pageHeader(pdf, data, data.Title, data.Window.String())

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s  •  run %s",
		data.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"), data.RunID), "", 1, "C", false, 0, "")

	// 2x2 stat boxes, centered
	const boxW, boxH, gap = 70.0, 15.0, 10.0
	pageW, _ := pdf.GetPageSize()
	left := (pageW - 2*boxW - gap) / 2
	top := 60.0
	for i, s := range data.Stats {
		if i >= 4 {
			break
		}
		x := left + float64(i%2)*(boxW+gap)
		y := top + float64(i/2)*(boxH+5)
		r.statBox(pdf, x, y, boxW, boxH, s)
	}

	pdf.SetXY(10, top+2*(boxH+5)+15)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0, 0, 0)
	cats := data.Counts.Categories()
	pdf.CellFormat(0, 5, fmt.Sprintf("Records in window: %d  •  categories: %d",
		data.Counts.TotalAll(), len(cats)), "", 1, "C", false, 0, "")
}

func (r *Renderer) statBox(pdf *fpdf.Fpdf, x, y, w, h float64, s Stat) {
	pdf.SetDrawColor(s.Color[0], s.Color[1], s.Color[2])
	pdf.SetFillColor(245, 245, 245)
	pdf.SetLineWidth(0.4)
	pdf.RoundedRect(x, y, w, h, 2, "1234", "FD")
	pdf.SetXY(x, y+h/2-3)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(s.Color[0], s.Color[1], s.Color[2])
	pdf.CellFormat(w, 6, s.Label+": "+s.Value, "", 0, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

const worklogPerPage = 14

func (r *Renderer) worklogPages(pdf *fpdf.Fpdf, data Data) {
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if len(data.Worklog) == 0 {
		r.pageHeader(pdf, data, "Worklog", "Tagged #reporting / #incident")
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetXY(15, 60)
		pdf.CellFormat(0, 6, fmt.Sprintf("No tagged messages in the last %d days.", data.Window.Days), "", 1, "L", false, 0, "")
		return
	}
	for i, entry := range data.Worklog {
		if i%worklogPerPage == 0 {
			r.pageHeader(pdf, data, "Worklog",
				fmt.Sprintf("Tagged #reporting / #incident  •  last %d days", data.Window.Days))
			pdf.SetY(42)
		}
		pdf.SetX(15)
		pdf.SetFont("Helvetica", "B", 8)
		pdf.CellFormat(0, 4, entry.When.UTC().Format("2006-01-02 15:04 UTC"), "", 1, "L", false, 0, "")
		pdf.SetX(18)
		pdf.SetFont("Helvetica", "", 9)
		msg := strings.ReplaceAll(entry.Message, "\r", " ")
		pdf.MultiCell(255, 4.5, tr(msg), "", "L", false)
		y := pdf.GetY() + 1.5
		pdf.SetDrawColor(224, 224, 224)
		pdf.SetLineWidth(0.2)
		pdf.Line(15, y, 282, y)
		pdf.SetY(y + 2.5)
	}
}

func (r *Renderer) timeSeriesPage(pdf *fpdf.Fpdf, data Data) error {
	r.pageHeader(pdf, data, "Events over time",
		fmt.Sprintf("Records per day by category  •  %s", data.Window))

	cats := data.Counts.Categories()
	if len(cats) == 0 || data.Window.Days < 2 {
		r.noData(pdf)
		return nil
	}
	series := make([]lineSeries, 0, len(cats))
	for _, cat := range cats {
		days, values := data.Counts.DailySeries(cat)
		series = append(series, lineSeries{Name: cat, Days: days, Values: values})
	}
	png, err := timeSeriesPNG(series, 1400, 620)
	if err != nil {
		return errors.Wrap(err, "daily chart")
	}
	embedPNG(pdf, "daily", png, 20, 40, 257)
	return nil
}

func (r *Renderer) categoryPage(pdf *fpdf.Fpdf, data Data) error {
	r.pageHeader(pdf, data, "Category breakdown",
		fmt.Sprintf("Totals over the last %d days", data.Window.Days))

	cats := data.Counts.Categories()
	if len(cats) == 0 {
		r.noData(pdf)
		return nil
	}
	totals := make(map[string]float64, len(cats))
	for _, cat := range cats {
		totals[cat] = float64(data.Counts.Total(cat))
	}
	png, err := categoryBarPNG(cats, totals, 1400, 620)
	if err != nil {
		return errors.Wrap(err, "category chart")
	}
	embedPNG(pdf, "categories", png, 20, 40, 257)
	return nil
}

func (r *Renderer) monthlyTablePage(pdf *fpdf.Fpdf, data Data) {
	r.pageHeader(pdf, data, "Monthly summary", "Counts per category per month")

	months := data.Counts.Months()
	cats := data.Counts.Categories()
	if len(months) == 0 {
		r.noData(pdf)
		return
	}

	pageW, _ := pdf.GetPageSize()
	const monthW = 30.0
	catW := (pageW - 30 - monthW) / float64(len(cats))
	if catW > 45 {
		catW = 45
	}

	pdf.SetXY(15, 45)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(EventBlue[0], EventBlue[1], EventBlue[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(monthW, 8, "Month", "1", 0, "C", true, 0, "")
	for _, cat := range cats {
		pdf.CellFormat(catW, 8, cat, "1", 0, "C", true, 0, "")
	}
	pdf.CellFormat(catW, 8, "Total", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0, 0, 0)
	for i, m := range months {
		fill := i%2 == 1
		pdf.SetFillColor(240, 244, 248)
		pdf.SetX(15)
		pdf.CellFormat(monthW, 7, string(m), "1", 0, "C", fill, 0, "")
		rowTotal := 0
		for _, cat := range cats {
			n := data.Counts.Monthly[m][cat]
			rowTotal += n
			pdf.CellFormat(catW, 7, fmt.Sprintf("%d", n), "1", 0, "C", fill, 0, "")
		}
		pdf.CellFormat(catW, 7, fmt.Sprintf("%d", rowTotal), "1", 1, "C", fill, 0, "")
	}
}

func (r *Renderer) activityPage(pdf *fpdf.Fpdf, data Data) error {
	r.pageHeader(pdf, data, "Chat activity",
		fmt.Sprintf("Posts per day  •  last %d days", data.Window.Days))

	// Two charts side by side, wrapping onto additional pages if needed.
	const chartW = 128.0
	for i, ch := range data.Activity {
		if i > 0 && i%2 == 0 {
			r.pageHeader(pdf, data, "Chat activity", "")
		}
		if len(ch.Days) < 2 {
			continue
		}
		color := EventBlue
		if i%2 == 1 {
			color = AttrOrange
		}
		png, err := activityPNG(ch, color, 700, 560)
		if err != nil {
			return errors.Wrapf(err, "activity chart %s", ch.Label)
		}
		x := 15.0 + float64(i%2)*(chartW+10)
		embedPNG(pdf, fmt.Sprintf("activity-%d", i), png, x, 45, chartW)
	}
	return nil
}

func (r *Renderer) noData(pdf *fpdf.Fpdf) {
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetXY(15, 60)
	pdf.CellFormat(0, 6, "No data in the selected window.", "", 1, "L", false, 0, "")
}

// ResolveOutputPath inserts the run date into the configured output file
// name: an explicit {date} placeholder is substituted, otherwise the date
// is appended before the .pdf extension.
func ResolveOutputPath(dir, file string, date time.Time) string {
	ds := date.UTC().Format("2006-01-02")
	var name string
	switch {
	case strings.Contains(file, "{date}"):
		name = strings.ReplaceAll(file, "{date}", ds)
	case strings.EqualFold(filepath.Ext(file), ".pdf"):
		ext := filepath.Ext(file)
		name = strings.TrimSuffix(file, ext) + "_" + ds + ext
	default:
		name = file + "_" + ds + ".pdf"
	}
	return filepath.Join(dir, name)
}
