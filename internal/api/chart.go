package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/meridian-astro/photopipe/internal/monitoring"
	"github.com/meridian-astro/photopipe/internal/photom"
	"github.com/meridian-astro/photopipe/internal/timeutil"
)

// chartCurve renders a stored light curve as a standalone HTML page with an
// interactive line chart. Debugging/browsing aid; the JSON endpoint is the
// stable interface.
func (s *Server) chartCurve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	star, pb, ok := s.curveParams(w, r)
	if !ok {
		return
	}

	curve, err := s.db.GetLightCurve(star, pb)
	if errors.Is(err, photom.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "Light curve not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load curve: %v", err))
		return
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Star %d (%s)", star, pb),
			Subtitle: fmt.Sprintf("%d points, differential magnitude", len(curve.Points)),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "JD"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Δmag", Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	xs := make([]string, len(curve.Points))
	ys := make([]opts.LineData, len(curve.Points))
	for i, p := range curve.Points {
		xs[i] = fmt.Sprintf("%.5f", timeutil.UnixToJulian(p.UnixTime))
		ys[i] = opts.LineData{Value: p.Mag}
	}
	line.SetXAxis(xs).AddSeries("Δmag", ys,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(w); err != nil {
		monitoring.Logf("api: failed to render chart: %v", err)
	}
}
