package report

import (
	"bytes"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

type lineSeries struct {
	Name   string
	Days   []time.Time
	Values []float64
}

// yRange pins the y axis to [0, max*1.1] so all-zero series still render
// instead of tripping go-chart's zero-delta range check.
func yRange(maxV float64) *chart.ContinuousRange {
	if maxV < 1 {
		maxV = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: maxV * 1.1}
}

func timeSeriesPNG(series []lineSeries, w, h int) ([]byte, error) {
	maxV := 0.0
	for _, s := range series {
		for _, v := range s.Values {
			if v > maxV {
				maxV = v
			}
		}
	}
	graph := chart.Chart{
		Width:  w,
		Height: h,
		Background: chart.Style{
			Padding: chart.Box{Top: 30, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{ValueFormatter: chart.TimeValueFormatterWithFormat("01-02")},
		YAxis: chart.YAxis{Range: yRange(maxV)},
	}
	for i, s := range series {
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    s.Name,
			XValues: s.Days,
			YValues: s.Values,
			Style: chart.Style{
				StrokeColor: chart.GetDefaultColor(i),
				StrokeWidth: 2,
			},
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func categoryBarPNG(cats []string, totals map[string]float64, w, h int) ([]byte, error) {
	maxV := 0.0
	bars := make([]chart.Value, 0, len(cats))
	for _, c := range cats {
		v := totals[c]
		if v > maxV {
			maxV = v
		}
		bars = append(bars, chart.Value{Label: c, Value: v})
	}
	bc := chart.BarChart{
		Width:    w,
		Height:   h,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{Top: 30, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.Style{FontSize: 9},
		YAxis: chart.YAxis{Range: yRange(maxV)},
		Bars:  bars,
	}
	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func activityPNG(ch ChannelSeries, rgb [3]int, w, h int) ([]byte, error) {
	maxV := 0.0
	for _, v := range ch.Values {
		if v > maxV {
			maxV = v
		}
	}
	graph := chart.Chart{
		Title:  ch.Label,
		Width:  w,
		Height: h,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{ValueFormatter: chart.TimeValueFormatterWithFormat("01-02")},
		YAxis: chart.YAxis{Range: yRange(maxV)},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "posts / day",
				XValues: ch.Days,
				YValues: ch.Values,
				Style: chart.Style{
					StrokeColor: drawing.Color{R: uint8(rgb[0]), G: uint8(rgb[1]), B: uint8(rgb[2]), A: 255},
					StrokeWidth: 2,
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func embedPNG(pdf *fpdf.Fpdf, name string, png []byte, x, y, w float64) {
	opt := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(png))
	pdf.ImageOptions(name, x, y, w, 0, false, opt, 0, "")
}
