package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// handleRateChart renders an interactive line chart (HTML) of the
// recent events/sec history using go-echarts. Debugging-only endpoint;
// the terminal overlay shows the same sparkline.
func (ws *WebServer) handleRateChart(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "stats not configured")
		return
	}
	s := ws.stats.Snapshot()
	if len(s.History) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no rate history yet")
		return
	}

	xAxis := make([]string, len(s.History))
	data := make([]opts.LineData, len(s.History))
	for i, v := range s.History {
		xAxis[i] = fmt.Sprintf("-%ds", len(s.History)-i)
		data[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Event Rate", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Events per second",
			Subtitle: fmt.Sprintf("%d frames, %d events total", s.TotalFrames, s.TotalEvents),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "events/sec"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("events/sec", data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleRatePlot renders the rate history as a static PNG via
// gonum/plot, for embedding in reports.
func (ws *WebServer) handleRatePlot(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "stats not configured")
		return
	}
	s := ws.stats.Snapshot()
	if len(s.History) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no rate history yet")
		return
	}

	pts := make(plotter.XYs, len(s.History))
	for i, v := range s.History {
		pts[i].X = float64(i - len(s.History))
		pts[i].Y = v
	}

	p := plot.New()
	p.Title.Text = "Event rate history"
	p.X.Label.Text = "seconds ago"
	p.Y.Label.Text = "events/sec"

	line, err := plotter.NewLine(pts)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to write plot: %v", err))
	}
}
