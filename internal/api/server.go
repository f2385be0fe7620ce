// Package api serves the read-only viewer surface over a LEMONdB file:
// star and image metadata, box queries, light curves and run history. The
// pipeline writes the database; this server only ever reads it.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/meridian-astro/photopipe/internal/lemondb"
	"github.com/meridian-astro/photopipe/internal/monitoring"
	"github.com/meridian-astro/photopipe/internal/photom"
	"github.com/meridian-astro/photopipe/internal/timeutil"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Server exposes the viewer endpoints.
type Server struct {
	db *lemondb.DB
}

// NewServer wraps an open database.
func NewServer(db *lemondb.DB) *Server {
	return &Server{db: db}
}

// ServeMux routes the viewer API.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stars", s.listStars)
	mux.HandleFunc("/api/stars/", s.showStar)
	mux.HandleFunc("/api/filters", s.listFilters)
	mux.HandleFunc("/api/curves", s.showCurve)
	mux.HandleFunc("/api/curves/chart", s.chartCurve)
	mux.HandleFunc("/api/runs", s.listRuns)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: failed to write response: %v", err)
	}
}

// listStars handles GET /api/stars. Optional ra_min/ra_max/dec_min/dec_max
// query parameters restrict the result to a coordinate box.
func (s *Server) listStars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	box := [4]float64{0, 360, -90, 90}
	for i, param := range []string{"ra_min", "ra_max", "dec_min", "dec_max"} {
		if v := r.URL.Query().Get(param); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %q parameter", param))
				return
			}
			box[i] = f
		}
	}

	rows, err := s.db.StarsInBox(box[0], box[1], box[2], box[3])
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to query stars: %v", err))
		return
	}
	defer rows.Close()

	stars := []photom.Star{}
	for rows.Next() {
		star, err := rows.Star()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to scan star")
			return
		}
		stars = append(stars, star)
	}
	if err := rows.Err(); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to iterate stars")
		return
	}
	s.writeJSON(w, stars)
}

// showStar handles GET /api/stars/{id}.
func (s *Server) showStar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, err := strconv.ParseInt(r.URL.Path[len("/api/stars/"):], 10, 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid star id")
		return
	}
	star, err := s.db.GetStar(photom.StarID(id))
	if errors.Is(err, photom.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "Star not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load star: %v", err))
		return
	}
	s.writeJSON(w, star)
}

func (s *Server) listFilters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	filters, err := s.db.Filters()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load filters: %v", err))
		return
	}
	if filters == nil {
		filters = []photom.Passband{}
	}
	s.writeJSON(w, filters)
}

// curvePoint is the wire shape of a light-curve point: Julian date out,
// Unix seconds stay internal.
type curvePoint struct {
	JD  float64 `json:"jd"`
	Mag float64 `json:"mag"`
	SNR float64 `json:"snr,omitempty"`
}

type curveResponse struct {
	Star       photom.StarID        `json:"star"`
	Filter     photom.Passband      `json:"filter"`
	Comparison photom.ComparisonSet `json:"comparison,omitempty"`
	Points     []curvePoint         `json:"points"`
}

// curveParams pulls star/system/band out of the query string.
func (s *Server) curveParams(w http.ResponseWriter, r *http.Request) (photom.StarID, photom.Passband, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("star"), 10, 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'star' parameter")
		return 0, photom.Passband{}, false
	}
	pb := photom.Passband{
		System: r.URL.Query().Get("system"),
		Band:   r.URL.Query().Get("band"),
	}
	if pb.System == "" || pb.Band == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'system' or 'band' parameter")
		return 0, photom.Passband{}, false
	}
	return photom.StarID(id), pb, true
}

// showCurve handles GET /api/curves?star=&system=&band=.
func (s *Server) showCurve(w http.ResponseWriter, r *http.Request) {
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

	resp := curveResponse{Star: star, Filter: pb, Points: make([]curvePoint, len(curve.Points))}
	for i, p := range curve.Points {
		resp.Points[i] = curvePoint{JD: timeutil.UnixToJulian(p.UnixTime), Mag: p.Mag, SNR: p.SNR}
	}
	if cmp, err := s.db.GetComparisonSet(star, pb); err == nil {
		resp.Comparison = cmp
	}
	s.writeJSON(w, resp)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	runs, err := s.db.Runs()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load runs: %v", err))
		return
	}
	if runs == nil {
		runs = []lemondb.RunRecord{}
	}
	s.writeJSON(w, runs)
}
