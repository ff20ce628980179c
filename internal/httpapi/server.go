package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/middleware"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/observability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/poller"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/proto/govee"
)

// Adapter is the adapter surface served over HTTP.
type Adapter interface {
	Devices() []govee.DeviceInfo
	Diagnostics() govee.Diagnostics
	SetPollInterval(entryID string, d time.Duration) error
	PollInterval() time.Duration
}

type Server struct {
	adapter  Adapter
	verifier *middleware.Verifier
	metrics  http.Handler
	ws       http.Handler
	tracer   oteltrace.Tracer
}

type ServerOptions struct {
	// Verifier guards the admin routes; nil disables them.
	Verifier *middleware.Verifier
	Metrics  http.Handler
	Realtime http.Handler
	Tracer   oteltrace.Tracer
}

func NewServer(adapter Adapter, opts ServerOptions) *Server {
	return &Server{adapter: adapter, verifier: opts.Verifier, metrics: opts.Metrics, ws: opts.Realtime, tracer: opts.Tracer}
}

type jsonErr struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonErr{Error: msg, Code: status})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	if s.tracer != nil {
		r.Use(observability.MetricsAndTracingMiddleware(s.tracer, "govee-adapter"))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}
	r.Route("/api/govee", func(r chi.Router) {
		r.Get("/devices", s.handleDevices)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Require(s.verifier, "admin"))
			r.Get("/diagnostics", s.handleDiagnostics)
			r.Get("/poll-interval", s.handleGetPollInterval)
			r.Put("/poll-interval", s.handleSetPollInterval)
		})
	})
	return r
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.adapter.Devices()
	if id := strings.TrimSpace(r.URL.Query().Get("device_id")); id != "" {
		for _, d := range devices {
			if d.DeviceID == id || d.VendorID == id {
				writeJSON(w, http.StatusOK, d)
				return
			}
		}
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.adapter.Diagnostics())
}

type pollIntervalBody struct {
	EntryID      string `json:"entry_id"`
	ScanInterval int    `json:"scan_interval"`
}

func (s *Server) handleGetPollInterval(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pollIntervalBody{ScanInterval: int(s.adapter.PollInterval() / time.Second)})
}

func (s *Server) handleSetPollInterval(w http.ResponseWriter, r *http.Request) {
	var body pollIntervalBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	err := s.adapter.SetPollInterval(body.EntryID, time.Duration(body.ScanInterval)*time.Second)
	switch {
	case errors.Is(err, govee.ErrEntryMismatch):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, poller.ErrInterval):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pollIntervalBody{EntryID: body.EntryID, ScanInterval: body.ScanInterval})
}
