// Package webhook serves the local HTTP control and status surface: a status
// page, JSON state, manual tag and command injection, and a websocket stream
// of state snapshots.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/ledger"
	"github.com/dokzlo13/markerd/internal/marker"
	"github.com/dokzlo13/markerd/internal/state"
)

const submitTimeout = 2 * time.Second

// Submitter accepts state commands. *state.Core implements it.
type Submitter interface {
	Submit(ctx context.Context, cmd state.Command) error
}

// Presenter receives tags as if a card was held over the reader.
type Presenter interface {
	Present(tag marker.Tag)
}

// History lists recent ledger entries.
type History interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// Readiness reports whether the core has started processing. *state.Core implements it.
type Readiness interface {
	Ready() bool
}

// ButtonDriver holds or releases a virtual button. *gpio.VirtualButton implements it.
type ButtonDriver interface {
	Set(pressed bool)
}

// Deps are the collaborators the server exposes over HTTP.
// Everything except Core and Slot is optional.
type Deps struct {
	Core    Submitter
	Slot    *state.Slot[state.DeviceState]
	Ready   Readiness
	Tags    Presenter
	History History
	Hub     *Hub
	Bus     *eventbus.Bus
	Button  ButtonDriver

	// TagRate limits POST /api/tags requests per second. Zero means 5.
	TagRate float64
}

// Server is the HTTP control and status server.
type Server struct {
	addr       string
	deps       Deps
	limiter    *rate.Limiter
	router     chi.Router
	httpServer *http.Server
}

// NewServer creates a new server listening on host:port.
func NewServer(host string, port int, deps Deps) *Server {
	rps := deps.TagRate
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		deps:    deps,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/markers", s.handleMarkers)
		r.Get("/ledger", s.handleLedger)
		r.Post("/tags/{uid}", s.handleTag)
		r.Post("/markers/{color}", s.handleSetMarker)
		r.Post("/commands/{name}", s.handleCommand)
		r.Post("/button/{action}", s.handleButton)
	})

	if s.deps.Hub != nil {
		r.Get("/ws", s.deps.Hub.ServeHTTP)
	}
	return r
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting HTTP server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady reports ready once the core has processed its first command.
// Without a Readiness it falls back to the first broadcast snapshot.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := false
	if s.deps.Ready != nil {
		ready = s.deps.Ready.Ready()
	} else {
		_, ready = s.deps.Slot.Latest()
	}
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, _ := s.deps.Slot.Latest()
	writeJSON(w, http.StatusOK, snap)
}

type markerInfo struct {
	Color  marker.Color `json:"color"`
	Tag    string       `json:"tag"`
	Params marker.HSB   `json:"params"`
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	colors := marker.Colors()
	out := make([]markerInfo, 0, len(colors))
	for _, c := range colors {
		out = append(out, markerInfo{Color: c, Tag: marker.ToTag(c).String(), Params: marker.Params(c)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "ledger disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := s.deps.History.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleTag presents a tag to the RFID poller, as if the card were held over the reader.
func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tags == nil {
		writeError(w, http.StatusNotFound, "tag injection disabled")
		return
	}
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many tag requests")
		return
	}

	tag, err := marker.ParseTag(chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.deps.Tags.Present(tag)

	color, recognized := marker.FromTag(tag)
	resp := map[string]interface{}{
		"tag":        tag.String(),
		"recognized": recognized,
	}
	if recognized {
		resp["color"] = color.String()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleSetMarker(w http.ResponseWriter, r *http.Request) {
	color, err := marker.ParseColor(chi.URLParam(r, "color"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.submit(w, r, state.SetMarkerColor{Color: color})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd state.Command
	switch name := chi.URLParam(r, "name"); name {
	case "clear":
		cmd = state.ClearMarkerColor{}
	case "toggle-dimmer":
		cmd = state.ToggleDimmer{}
	case "sync":
		cmd = state.SyncState{}
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown command %q", name))
		return
	}
	s.submit(w, r, cmd)
}

// handleButton drives the virtual button. The button poller turns the
// press and release into gestures as it would for the physical one.
func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	if s.deps.Button == nil {
		writeError(w, http.StatusNotFound, "no virtual button")
		return
	}

	var pressed bool
	switch action := chi.URLParam(r, "action"); action {
	case "press":
		pressed = true
	case "release":
		pressed = false
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown button action %q", action))
		return
	}

	s.deps.Button.Set(pressed)
	log.Debug().Bool("pressed", pressed).Msg("Virtual button set over HTTP")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"pressed": pressed})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, cmd state.Command) {
	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()

	eventID := uuid.NewString()
	if err := s.deps.Core.Submit(ctx, cmd); err != nil {
		log.Warn().Err(err).Str("command", cmd.Name()).Msg("Failed to submit command over HTTP")
		writeError(w, http.StatusServiceUnavailable, "state core unavailable")
		return
	}

	log.Debug().Str("command", cmd.Name()).Str("event_id", eventID).Msg("Command submitted over HTTP")
	s.deps.Bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeCommandSubmitted,
		Data: map[string]interface{}{
			"command":    cmd.Name(),
			"source":     "http",
			"event_id":   eventID,
			"request_id": middleware.GetReqID(r.Context()),
		},
	})

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"command":  cmd.Name(),
		"event_id": eventID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
