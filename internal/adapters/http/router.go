package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zxspring21/AISEMITEST/internal/application"
	"github.com/zxspring21/AISEMITEST/internal/domain"
	"github.com/zxspring21/AISEMITEST/internal/ingest"
	"go.uber.org/zap"
)

type Handler struct {
	service *application.StoreService
	logger  *zap.Logger
}

func NewRouter(service *application.StoreService, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{service: service, logger: logger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/overview", h.handleAPIOverview)
		api.Get("/imports", h.handleAPIListImports)
		api.Post("/loads", h.handleAPILoad)

		api.Get("/lots", h.handleAPIListLots)
		api.Route("/lots/{lotID}", func(lot chi.Router) {
			lot.Get("/", h.handleAPIGetLot)
			lot.Delete("/", h.handleAPIDeleteLot)
			lot.Get("/report", h.handleAPILotReport)
			lot.Get("/bins", h.handleAPIBins)
			lot.Get("/pareto", h.handleAPIPareto)
			lot.Get("/suites", h.handleAPISuites)
			lot.Get("/wafers", h.handleAPIWafers)
			lot.Get("/equipment", h.handleAPIEquipment)
		})
	})

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleAPIOverview(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Overview(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleAPIListImports(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	runs, err := h.service.ImportRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

type apiLoadRequest struct {
	Source  string `json:"source"`
	Company string `json:"company"`
	Product string `json:"product"`
	Stage   string `json:"stage"`
}

func (h *Handler) handleAPILoad(w http.ResponseWriter, r *http.Request) {
	var req apiLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "source is required"})
		return
	}

	res, err := h.service.Load(r.Context(), req.Source, ingest.Overrides{
		Company: req.Company,
		Product: req.Product,
		Stage:   req.Stage,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAPIListLots(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	lots, err := h.service.ListLots(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lots)
}

func (h *Handler) handleAPIGetLot(w http.ResponseWriter, r *http.Request) {
	lotID, ok := lotIDParam(w, r)
	if !ok {
		return
	}
	v, err := h.service.GetLot(r.Context(), lotID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleAPIDeleteLot(w http.ResponseWriter, r *http.Request) {
	lotID, ok := lotIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteLot(r.Context(), lotID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": lotID})
}

func (h *Handler) handleAPILotReport(w http.ResponseWriter, r *http.Request) {
	lotID, ok := lotIDParam(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	v, err := h.service.LotReport(r.Context(), lotID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleAPIBins(w http.ResponseWriter, r *http.Request) {
	lotID, ok := lotIDParam(w, r)
	if !ok {
		return
	}
	v, err := h.service.BinSummary(r.Context(), lotID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleAPIPareto(w http.ResponseWriter, r *http.Request) {
	lotID, ok := lotIDParam(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	v, err := h.service.FailPareto(r.Context(), lotID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleAPISuites(w http.ResponseWriter, r *http.Request) {
	lotID, ok := lotIDParam(w, r)
	if !ok {
		return
	}
	v, err := h.service.SuiteItems(r.Context(), lotID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleAPIWafers(w http.ResponseWriter, r *http.Request) {
	lotID, ok := lotIDParam(w, r)
	if !ok {
		return
	}
	v, err := h.service.WaferYields(r.Context(), lotID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleAPIEquipment(w http.ResponseWriter, r *http.Request) {
	lotID, ok := lotIDParam(w, r)
	if !ok {
		return
	}
	v, err := h.service.SiteEquipment(r.Context(), lotID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func lotIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "lotID")
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid lot id"})
		return 0, false
	}
	return uint(parsed), true
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}

// writeError maps store and ingest failures onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, ingest.ErrSourceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ingest.ErrDecode):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
