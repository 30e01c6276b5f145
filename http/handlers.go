package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mlserve/db"
	"mlserve/monitoring"
	"mlserve/serving"
)

// Handlers binds the serving core to the HTTP surface. No ambient state:
// everything arrives through the constructor.
type Handlers struct {
	svc     *serving.Service
	store   *serving.Store
	tracker *serving.Lifecycle
	metrics *monitoring.Registry
	hub     *monitoring.Hub
	log     *zap.Logger

	// listModels is nil unless the registry source is configured.
	listModels func() ([]db.ModelRecord, error)
}

func NewHandlers(svc *serving.Service, store *serving.Store, tracker *serving.Lifecycle, metrics *monitoring.Registry, hub *monitoring.Hub, log *zap.Logger) *Handlers {
	return &Handlers{
		svc:     svc,
		store:   store,
		tracker: tracker,
		metrics: metrics,
		hub:     hub,
		log:     log,
	}
}

// EnableRegistryListing exposes GET /model/versions backed by the model
// registry.
func (h *Handlers) EnableRegistryListing(list func() ([]db.ModelRecord, error)) {
	h.listModels = list
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /model/info", h.handleModelInfo)
	mux.HandleFunc("POST /model/reload", h.handleReload)
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("GET /api/stats", h.handleStats)
	if h.hub != nil {
		mux.HandleFunc("GET /api/ws/stats", h.hub.ServeWS)
	}
	if h.listModels != nil {
		mux.HandleFunc("GET /model/versions", h.handleModelVersions)
	}
	mux.HandleFunc("/", h.handleNotFound)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := h.tracker.State()
	model, err := h.store.Current()
	healthy := state == serving.StateReady && err == nil

	payload := map[string]interface{}{
		"status":         "healthy",
		"model_loaded":   err == nil,
		"state":          state,
		"last_reload":    h.tracker.LastReload(),
		"uptime_seconds": h.tracker.Uptime().Seconds(),
		"timestamp":      time.Now().UTC(),
	}
	if model != nil {
		payload["model_version"] = model.Version()
	}

	code := http.StatusOK
	if !healthy {
		payload["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		// Body read failures (oversized, aborted) are client errors on
		// this endpoint; count them like any other rejected request.
		h.metrics.ObserveError("validation")
		writeError(w, http.StatusBadRequest, "validation", "could not read request body")
		return
	}

	resp, err := h.svc.Predict(r.Context(), body)
	if err != nil {
		h.writeServingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	model, err := h.store.Current()
	if err != nil {
		h.writeServingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":       model.Version(),
		"model_type":    model.ModelType(),
		"feature_names": model.FeatureNames(),
		"class_names":   model.ClassNames(),
		"accuracy":      model.Accuracy(),
		"loaded_at":     model.LoadedAt(),
	})
}

func (h *Handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	previous := ""
	if m, err := h.store.Current(); err == nil {
		previous = m.Version()
	}

	model, err := h.store.Reload(r.Context())
	if err != nil {
		h.metrics.ObserveError(serving.ErrorKind(err))
		h.writeServingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "model reloaded",
		"version":          model.Version(),
		"previous_version": previous,
		"timestamp":        time.Now().UTC(),
	})
}

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.metrics.Snapshot()
	if err != nil {
		h.log.Error("stats snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not collect stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": snap,
		"system":  h.metrics.SystemStats(),
	})
}

func (h *Handlers) handleModelVersions(w http.ResponseWriter, r *http.Request) {
	records, err := h.listModels()
	if err != nil {
		h.log.Error("registry listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not list model versions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": records})
}

func (h *Handlers) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "not_found",
		"message": "the requested endpoint does not exist",
		"available_endpoints": []string{
			"GET /health",
			"POST /predict",
			"GET /model/info",
			"POST /model/reload",
			"GET /metrics",
			"GET /api/stats",
		},
	})
}

// writeServingError maps the serving error taxonomy onto status codes.
// Validation failures stay 400 no matter how the body failed to parse.
func (h *Handlers) writeServingError(w http.ResponseWriter, err error) {
	kind := serving.ErrorKind(err)
	switch kind {
	case "validation":
		writeError(w, http.StatusBadRequest, kind, err.Error())
	case "model_not_loaded":
		writeError(w, http.StatusServiceUnavailable, kind, "model not loaded, retry after a successful load")
	case "reload_in_progress":
		writeError(w, http.StatusConflict, kind, "a reload is already running, retry later")
	case "model_load":
		writeError(w, http.StatusBadGateway, kind, "model artifact could not be loaded")
	default:
		// Internal failures are logged with their cause but never leak it.
		h.log.Error("prediction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, map[string]string{"error": kind, "message": message})
}
