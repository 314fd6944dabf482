package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/signalhub/keyword-radar/internal/models"
	"github.com/signalhub/keyword-radar/internal/scheduler"
	"github.com/signalhub/keyword-radar/internal/storage"
)

// SchedulerControl is the scheduler surface the API drives
type SchedulerControl interface {
	Start() error
	Stop()
	RunNow()
	Status(ctx context.Context) (*scheduler.Status, error)
	AddKeyword(ctx context.Context, term string, intervalHours int, autoFetch bool, channels []string) (*models.Keyword, error)
	RemoveKeyword(ctx context.Context, term string) error
	UpdateInterval(ctx context.Context, term string, intervalHours int) error
	ListKeywords(ctx context.Context) ([]models.Keyword, error)
	RunCycle(ctx context.Context, term string, opts scheduler.CycleOptions) (*models.FetchResult, error)
}

// ItemLister is the item-store surface the API reads
type ItemLister interface {
	List(ctx context.Context, opts storage.ListOptions) ([]models.FeedItem, int, error)
}

// TrendReader serves trending keywords and per-keyword statistics
type TrendReader interface {
	TrendingKeywords(ctx context.Context, limit int) ([]models.Keyword, error)
}

// StatsReader serves the per-keyword rollup payload
type StatsReader interface {
	Stats(ctx context.Context, term string) (*models.KeywordStats, error)
}

// Handler wires the management API endpoints
type Handler struct {
	scheduler SchedulerControl
	items     ItemLister
	trends    TrendReader
	stats     StatsReader
}

func NewHandler(sched SchedulerControl, items ItemLister, trends TrendReader, stats StatsReader) *Handler {
	return &Handler{
		scheduler: sched,
		items:     items,
		trends:    trends,
		stats:     stats,
	}
}

// Router builds the management API routes
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.health).Methods("GET")
	router.HandleFunc("/api/scheduler/status", h.schedulerStatus).Methods("GET")
	router.HandleFunc("/api/scheduler/keywords", h.scheduledKeywords).Methods("GET")
	router.HandleFunc("/api/scheduler", requireElevatedRole(h.schedulerAction)).Methods("POST")
	router.HandleFunc("/api/fetch", requireElevatedRole(h.fetch)).Methods("POST")
	router.HandleFunc("/api/data", h.data).Methods("GET")
	router.HandleFunc("/api/trending", h.trending).Methods("GET")
	router.HandleFunc("/api/statistics", h.statistics).Methods("GET")

	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.scheduler.Status(r.Context())
	if err != nil {
		logrus.Errorf("Failed to read scheduler status: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read scheduler status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) scheduledKeywords(w http.ResponseWriter, r *http.Request) {
	keywords, err := h.scheduler.ListKeywords(r.Context())
	if err != nil {
		logrus.Errorf("Failed to list keywords: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list keywords")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keywords": keywords,
		"count":    len(keywords),
	})
}

type schedulerActionRequest struct {
	Action        string   `json:"action"`
	Keyword       string   `json:"keyword"`
	FetchInterval int      `json:"fetch_interval"`
	AutoFetch     *bool    `json:"auto_fetch"`
	Channels      []string `json:"channels"`
}

func (h *Handler) schedulerAction(w http.ResponseWriter, r *http.Request) {
	var req schedulerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "start":
		if err := h.scheduler.Start(); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to start scheduler: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "scheduler started"})

	case "stop":
		h.scheduler.Stop()
		writeJSON(w, http.StatusOK, map[string]string{"message": "scheduler stopped"})

	case "run-now":
		h.scheduler.RunNow()
		writeJSON(w, http.StatusOK, map[string]string{"message": "sweep triggered"})

	case "add-keyword":
		if strings.TrimSpace(req.Keyword) == "" {
			writeError(w, http.StatusBadRequest, "keyword is required")
			return
		}
		autoFetch := true
		if req.AutoFetch != nil {
			autoFetch = *req.AutoFetch
		}
		keyword, err := h.scheduler.AddKeyword(r.Context(), req.Keyword, req.FetchInterval, autoFetch, req.Channels)
		if err != nil {
			h.writeSchedulerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, keyword)

	case "remove-keyword":
		if strings.TrimSpace(req.Keyword) == "" {
			writeError(w, http.StatusBadRequest, "keyword is required")
			return
		}
		if err := h.scheduler.RemoveKeyword(r.Context(), req.Keyword); err != nil {
			h.writeSchedulerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "keyword deactivated"})

	case "update-interval":
		if strings.TrimSpace(req.Keyword) == "" {
			writeError(w, http.StatusBadRequest, "keyword is required")
			return
		}
		if err := h.scheduler.UpdateInterval(r.Context(), req.Keyword, req.FetchInterval); err != nil {
			h.writeSchedulerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "interval updated"})

	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
}

type fetchRequest struct {
	Keyword            string   `json:"keyword"`
	Channels           []string `json:"channels"`
	MaxPosts           int      `json:"max_posts"`
	MaxCommentsPerPost int      `json:"max_comments_per_post"`
	ForceRefresh       bool     `json:"force_refresh"`
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Keyword) == "" {
		writeError(w, http.StatusBadRequest, "keyword is required")
		return
	}
	if req.MaxPosts < 0 || req.MaxPosts > 100 {
		writeError(w, http.StatusBadRequest, "max_posts must be between 1 and 100")
		return
	}
	if req.MaxCommentsPerPost < 0 || req.MaxCommentsPerPost > 50 {
		writeError(w, http.StatusBadRequest, "max_comments_per_post must be between 1 and 50")
		return
	}

	result, err := h.scheduler.RunCycle(r.Context(), req.Keyword, scheduler.CycleOptions{
		Channels:           req.Channels,
		MaxPosts:           req.MaxPosts,
		MaxCommentsPerPost: req.MaxCommentsPerPost,
		IncludeComments:    req.MaxCommentsPerPost > 0,
		ForceRefresh:       req.ForceRefresh,
	})
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}

	// Cycle-fatal outcomes surface inside the result payload, not as an
	// HTTP failure.
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) data(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := storage.ListOptions{
		Keyword:   q.Get("keyword"),
		Sentiment: q.Get("sentiment"),
		Channel:   q.Get("channel"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Page:      intParam(q.Get("page"), 1),
		PageSize:  intParam(q.Get("page_size"), 20),
	}

	switch q.Get("type") {
	case "posts":
		opts.Kind = models.KindPost
	case "comments":
		opts.Kind = models.KindComment
	case "", "both":
		// both variants
	default:
		writeError(w, http.StatusBadRequest, "type must be posts, comments or both")
		return
	}

	items, total, err := h.items.List(r.Context(), opts)
	if err != nil {
		logrus.Errorf("Failed to list items: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":     items,
		"total":     total,
		"page":      opts.Page,
		"page_size": opts.PageSize,
	})
}

func (h *Handler) trending(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), 10)

	keywords, err := h.trends.TrendingKeywords(r.Context(), limit)
	if err != nil {
		logrus.Errorf("Failed to list trending keywords: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list trending keywords")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trending": keywords,
		"count":    len(keywords),
	})
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	if strings.TrimSpace(keyword) == "" {
		writeError(w, http.StatusBadRequest, "keyword is required")
		return
	}

	stats, err := h.stats.Stats(r.Context(), keyword)
	if err != nil {
		if errors.Is(err, storage.ErrKeywordNotFound) {
			writeError(w, http.StatusNotFound, "keyword not found")
			return
		}
		logrus.Errorf("Failed to compute statistics for '%s': %v", keyword, err)
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrKeywordNotFound):
		writeError(w, http.StatusNotFound, "keyword not found")
	case errors.Is(err, storage.ErrKeywordBusy):
		writeError(w, http.StatusConflict, "a cycle for this keyword is already running")
	default:
		logrus.Errorf("Scheduler operation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "scheduler operation failed")
	}
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
