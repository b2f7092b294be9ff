// internal/api/server.go

// Package api is the inbound surface the presentation layer talks to. All
// handlers are safe to call while a refresh round is in progress.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/monitor"
	"github.com/leader001a/ro-market-crawler-sub002/internal/utils"
)

// Persister saves the watch-list after mutations. The store satisfies it.
type Persister interface {
	SaveWatchlist(items []monitor.WatchItem) error
}

// Server wires the HTTP routes.
type Server struct {
	engine    *monitor.Engine
	tracker   *gnjoy.LimitTracker
	persister Persister
	logger    utils.Logger
	metrics   http.Handler

	httpServer *http.Server
}

// NewServer creates the API server. persister and metrics may be nil.
func NewServer(addr string, engine *monitor.Engine, tracker *gnjoy.LimitTracker, logger utils.Logger) *Server {
	if logger == nil {
		logger = utils.NewLogger()
	}
	s := &Server{
		engine:  engine,
		tracker: tracker,
		logger:  logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetPersister installs watch-list persistence for mutating calls.
func (s *Server) SetPersister(p Persister) {
	s.persister = p
}

// SetMetricsHandler mounts a /metrics endpoint.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

// Routes builds the router; exposed for tests.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/watch", s.handleAdd).Methods(http.MethodPost)
	r.HandleFunc("/watch", s.handleRemove).Methods(http.MethodDelete)
	r.HandleFunc("/watch/rename", s.handleRename).Methods(http.MethodPost)
	r.HandleFunc("/watch/server", s.handleUpdateServer).Methods(http.MethodPost)
	r.HandleFunc("/watch", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/results", s.handleResults).Methods(http.MethodGet)
	r.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/interval", s.handleInterval).Methods(http.MethodPut)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	return r
}

// Start runs the listener until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.logger.Infof("api listening on %s", s.httpServer.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

type watchRequest struct {
	Name    string `json:"name"`
	Server  int    `json:"server"`
	NewName string `json:"newName,omitempty"`
	NewSrv  int    `json:"newServer,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWatchRequest(w, r)
	if !ok {
		return
	}
	err := s.engine.Watchlist().Add(req.Name, gnjoy.Server(req.Server))
	if err != nil {
		s.writeConfigError(w, err)
		return
	}
	s.persist()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWatchRequest(w, r)
	if !ok {
		return
	}
	err := s.engine.Watchlist().Remove(req.Name, gnjoy.Server(req.Server))
	if err != nil {
		s.writeConfigError(w, err)
		return
	}
	s.persist()
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWatchRequest(w, r)
	if !ok {
		return
	}
	if req.NewName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "newName is required"})
		return
	}
	err := s.engine.Watchlist().Rename(req.Name, gnjoy.Server(req.Server), req.NewName)
	if err != nil {
		s.writeConfigError(w, err)
		return
	}
	s.persist()
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWatchRequest(w, r)
	if !ok {
		return
	}
	err := s.engine.Watchlist().UpdateServer(req.Name, gnjoy.Server(req.Server), gnjoy.Server(req.NewSrv))
	if err != nil {
		s.writeConfigError(w, err)
		return
	}
	s.persist()
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	items := s.engine.Watchlist().Items()
	type watchItemView struct {
		Name    string    `json:"name"`
		Server  int       `json:"server"`
		AddedAt time.Time `json:"addedAt"`
		NextDue time.Time `json:"nextDue"`
		Busy    bool      `json:"refreshing"`
	}
	views := make([]watchItemView, 0, len(items))
	for _, it := range items {
		views = append(views, watchItemView{
			Name:    it.Name,
			Server:  int(it.Server),
			AddedAt: it.AddedAt,
			NextDue: it.NextDue,
			Busy:    it.InProgress,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type resultsResponse struct {
	Results     []resultView `json:"results"`
	Completed   int          `json:"completed"`
	Total       int          `json:"total"`
	LockedUntil *time.Time   `json:"lockedUntil,omitempty"`
}

type resultView struct {
	Name        string                  `json:"name"`
	Server      int                     `json:"server"`
	RefreshedAt time.Time               `json:"refreshedAt"`
	Error       string                  `json:"error,omitempty"`
	Listings    []monitor.ResultListing `json:"listings"`
}

// handleResults returns the visible result store and, by reading it,
// confirms consumption so per-item countdowns restart.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	list := s.engine.Watchlist()
	results := list.Results()
	list.Confirm()

	resp := resultsResponse{Results: make([]resultView, 0, len(results))}
	for k, res := range results {
		resp.Results = append(resp.Results, resultView{
			Name:        k.Name,
			Server:      int(k.Server),
			RefreshedAt: res.RefreshedAt,
			Error:       res.Error,
			Listings:    res.Listings,
		})
	}
	resp.Completed, resp.Total = s.engine.Progress()

	if s.tracker != nil && s.tracker.IsLockedOut() {
		until := s.tracker.LockedUntil()
		resp.LockedUntil = &until
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.tracker != nil && s.tracker.IsLockedOut() {
		until := s.tracker.LockedUntil()
		w.Header().Set("Retry-After", strconv.Itoa(int(s.tracker.LockoutRemaining().Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "rate limited",
			"lockedUntil": until,
		})
		return
	}

	status, err := s.engine.RefreshNow(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Seconds <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "seconds must be a positive integer"})
		return
	}
	s.engine.Watchlist().SetInterval(time.Duration(req.Seconds) * time.Second)
	writeJSON(w, http.StatusOK, map[string]int{"seconds": req.Seconds})
}

// writeConfigError maps typed watch-list failures onto status codes the
// presentation layer can branch on.
func (s *Server) writeConfigError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Reason: "duplicate"})
	case errors.Is(err, monitor.ErrCapacityReached):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Reason: "limit"})
	case errors.Is(err, monitor.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Reason: "not_found"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) persist() {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveWatchlist(s.engine.Watchlist().Items()); err != nil {
		s.logger.Errorf("watchlist save failed: %v", err)
	}
}

func decodeWatchRequest(w http.ResponseWriter, r *http.Request) (watchRequest, bool) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return req, false
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
