package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/tunecache/tunecache-go/internal/errors"
	"github.com/tunecache/tunecache-go/internal/monitoring"
)

// routes builds the loopback HTTP API consumed by the desktop client
func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/search", a.handleSearch)
	r.Post("/api/downloads", a.handleDownload)
	r.Get("/api/items", a.handleListItems)
	r.Route("/api/items/{id}", func(r chi.Router) {
		r.Get("/", a.handleGetItem)
		r.Delete("/", a.handleDeleteItem)
		r.Get("/audio", a.handleItemAudio)
		r.Get("/artwork", a.handleItemArtwork)
	})
	r.Get("/api/stats", a.handleStats)
	r.Post("/api/play", a.handlePlay)
	r.Get("/api/connectivity", a.handleConnectivity)
	r.Post("/api/connectivity/recheck", a.handleRecheck)
	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (a *app) handleSearch(w http.ResponseWriter, r *http.Request) {
	ownerID, err := a.session.UserID()
	if err != nil {
		a.writeAppError(w, err)
		return
	}

	results, err := a.search.Search(r.Context(), r.URL.Query().Get("q"), ownerID)
	if err != nil {
		a.writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"offline": !a.monitor.IsOnline(),
	})
}

func (a *app) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID, err := a.session.UserID()
	if err != nil {
		a.writeAppError(w, err)
		return
	}

	record, err := a.orchestrator.Download(r.Context(), req.ItemID, ownerID)
	if err != nil {
		a.writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (a *app) handleListItems(w http.ResponseWriter, r *http.Request) {
	ownerID, err := a.session.UserID()
	if err != nil {
		a.writeAppError(w, err)
		return
	}

	records, err := a.cache.GetAllForOwner(ownerID)
	if err != nil {
		a.writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": records})
}

func (a *app) handleGetItem(w http.ResponseWriter, r *http.Request) {
	ownerID, err := a.session.UserID()
	if err != nil {
		a.writeAppError(w, err)
		return
	}

	record, err := a.cache.Get(chi.URLParam(r, "id"), ownerID)
	if err != nil {
		a.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *app) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := a.orchestrator.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleItemAudio(w http.ResponseWriter, r *http.Request) {
	a.serveBlob(w, chi.URLParam(r, "id"), "audio/mpeg", a.cache.GetAudio)
}

func (a *app) handleItemArtwork(w http.ResponseWriter, r *http.Request) {
	a.serveBlob(w, chi.URLParam(r, "id"), "image/jpeg", a.cache.GetImage)
}

func (a *app) serveBlob(w http.ResponseWriter, id, contentType string, load func(string) ([]byte, error)) {
	data, err := load(id)
	if err != nil {
		a.writeAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (a *app) handleStats(w http.ResponseWriter, r *http.Request) {
	ownerID, err := a.session.UserID()
	if err != nil {
		a.writeAppError(w, err)
		return
	}

	stats := a.reconciler.Recompute(ownerID)
	writeJSON(w, http.StatusOK, stats)
}

func (a *app) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID, err := a.session.UserID()
	if err != nil {
		a.writeAppError(w, err)
		return
	}

	if err := a.bridge.PlayCached(r.Context(), req.ItemID, ownerID); err != nil {
		a.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":        string(a.monitor.State()),
		"last_checked": a.monitor.LastChecked(),
	})
}

// handleRecheck is the window-focus-regained path: the client asks for an
// immediate connectivity re-check instead of waiting out the probe interval.
func (a *app) handleRecheck(w http.ResponseWriter, r *http.Request) {
	a.monitor.CheckNow()
	w.WriteHeader(http.StatusAccepted)
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	check := a.health.Check(string(a.monitor.State()), a.orchestrator.InFlightCount())

	status := http.StatusOK
	if check.Status == monitoring.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, check)
}

// writeAppError maps a typed application error to an HTTP response using the
// status code the error carries. Untyped errors become a 500.
func (a *app) writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if appErr, ok := err.(*apperrors.AppError); ok && appErr.StatusCode != 0 {
		status = appErr.StatusCode
	}
	if status >= 500 {
		a.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{
		"error": apperrors.UserMessage(err),
		"type":  string(apperrors.GetErrorType(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
