// Package adminapi implements the read-only introspection surface plus the
// single write endpoint, mirroring the "server"/"webserver" component
// several retrieved gossipers carry alongside their UI, rebuilt to route
// every handler through the engine's event loop instead of reaching into
// engine state from an HTTP handler goroutine.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"rumorpeer/internal/engine"
)

// queryTimeout bounds how long a handler waits on the engine's reply
// channel before giving up; it guards against a wedged event loop hanging
// an HTTP client forever.
const queryTimeout = 2 * time.Second

// Handler builds the admin HTTP surface for one engine.
type Handler struct {
	eng    *engine.Engine
	logger *zap.Logger
}

// New returns an http.Handler exposing the admin surface for eng.
func New(eng *engine.Engine, logger *zap.Logger) http.Handler {
	h := &Handler{eng: eng, logger: logger}

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/api/peers", h.peersHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/origins", h.originsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/status", h.statusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rumors", h.rumorsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/messages", h.messagesHandler).Methods(http.MethodPost)
	return router
}

// query asks the engine for a snapshot, bounded by queryTimeout so a
// wedged event loop returns 503 instead of hanging the request forever.
func (h *Handler) query(kind engine.QueryKind) (engine.QueryResult, bool) {
	done := make(chan engine.QueryResult, 1)
	go func() { done <- h.eng.SubmitQuery(kind) }()

	select {
	case res := <-done:
		return res, true
	case <-time.After(queryTimeout):
		return engine.QueryResult{}, false
	}
}

func (h *Handler) peersHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := h.query(engine.QueryPeers)
	if !ok {
		h.serviceUnavailable(w)
		return
	}
	h.writeJSON(w, struct {
		Neighbors  []string `json:"neighbors"`
		Candidates []string `json:"candidates"`
	}{res.Neighbors, res.Candidates})
}

func (h *Handler) originsHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := h.query(engine.QueryOrigins)
	if !ok {
		h.serviceUnavailable(w)
		return
	}
	h.writeJSON(w, res.Origins)
}

func (h *Handler) statusHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := h.query(engine.QueryStatus)
	if !ok {
		h.serviceUnavailable(w)
		return
	}
	h.writeJSON(w, res.Status)
}

func (h *Handler) rumorsHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := h.query(engine.QueryRumors)
	if !ok {
		h.serviceUnavailable(w)
		return
	}
	h.writeJSON(w, res.Rumors)
}

func (h *Handler) messagesHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Debug("malformed admin message body", zap.Error(err))
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if body.Text == "" {
		http.Error(w, "text must not be empty", http.StatusBadRequest)
		return
	}

	h.eng.SubmitLine(body.Text)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) serviceUnavailable(w http.ResponseWriter) {
	http.Error(w, "engine did not respond in time", http.StatusServiceUnavailable)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode admin response", zap.Error(err))
	}
}

// Serve runs an HTTP server bound to addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
