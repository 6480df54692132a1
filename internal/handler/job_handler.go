package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"queuectl/internal/metrics"
	"queuectl/internal/models"
	"queuectl/internal/service"
	"strconv"
	"strings"
)

// JobHandler handles HTTP requests for jobs
type JobHandler struct {
	queue       *service.QueueService
	metrics     *metrics.Metrics
	rateLimiter *service.RateLimiter
}

// NewJobHandler creates a new job handler. rateLimiter may be nil.
func NewJobHandler(queue *service.QueueService, metrics *metrics.Metrics, rateLimiter *service.RateLimiter) *JobHandler {
	return &JobHandler{
		queue:       queue,
		metrics:     metrics,
		rateLimiter: rateLimiter,
	}
}

// Routes returns the API mux with CORS applied to every route
func (h *JobHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", cors(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.CreateJob(w, r)
		case http.MethodGet:
			h.ListJobs(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	mux.HandleFunc("/jobs/", cors(h.GetJob))
	mux.HandleFunc("/stats", cors(h.GetStats))
	mux.HandleFunc("/metrics", cors(h.GetMetrics))
	mux.HandleFunc("/dlq", cors(h.GetDeadLetterQueue))
	mux.HandleFunc("/dlq/", cors(h.RetryDeadJob))
	return mux
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// CreateJob handles POST /jobs
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.rateLimiter.Allow(clientKey(r)); err != nil {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req models.EnqueueRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.queue.Enqueue(r.Context(), &req)
	if err != nil {
		writeServiceError(w, "job creation failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// GetJob handles GET /jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || id == r.URL.Path {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	job, err := h.queue.GetJob(r.Context(), id)
	if err != nil {
		writeServiceError(w, "failed to retrieve job", err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /jobs?state=&limit=&offset=
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	limit, ok := intParam(w, query.Get("limit"), "limit", service.DefaultListLimit, 1)
	if !ok {
		return
	}
	offset, ok := intParam(w, query.Get("offset"), "offset", 0, 0)
	if !ok {
		return
	}

	jobs, err := h.queue.ListJobs(r.Context(), models.JobState(query.Get("state")), limit, offset)
	if err != nil {
		writeServiceError(w, "failed to list jobs", err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(jobs))
}

// GetStats handles GET /stats
func (h *JobHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		writeServiceError(w, "failed to count jobs", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetMetrics handles GET /metrics
func (h *JobHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.metrics.GetSnapshot())
}

// GetDeadLetterQueue handles GET /dlq
func (h *JobHandler) GetDeadLetterQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit", service.DefaultListLimit, 1)
	if !ok {
		return
	}

	jobs, err := h.queue.ListDeadJobs(r.Context(), limit)
	if err != nil {
		writeServiceError(w, "failed to retrieve dead letter queue", err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(jobs))
}

// RetryDeadJob handles POST /dlq/{id}/retry
func (h *JobHandler) RetryDeadJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/dlq/")
	id, ok := strings.CutSuffix(path, "/retry")
	if !ok || id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	job, err := h.queue.RetryFromDLQ(r.Context(), id)
	if err != nil {
		writeServiceError(w, "dlq retry failed", err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func writeServiceError(w http.ResponseWriter, prefix string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		http.Error(w, prefix+": "+err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrJobNotFound):
		http.Error(w, "job not found", http.StatusNotFound)
	case errors.Is(err, service.ErrDuplicateJobID):
		http.Error(w, prefix+": duplicate job id", http.StatusConflict)
	case errors.Is(err, service.ErrNotInDLQ), errors.Is(err, service.ErrInvalidTransition):
		http.Error(w, prefix+": "+err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrStorageUnavailable):
		log.Printf("%s: %v", prefix, err)
		http.Error(w, prefix+": storage unavailable", http.StatusServiceUnavailable)
	default:
		log.Printf("%s: %v", prefix, err)
		http.Error(w, prefix+": internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

func intParam(w http.ResponseWriter, raw, name string, def, min int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func nonNil(jobs []*models.Job) []*models.Job {
	if jobs == nil {
		return []*models.Job{}
	}
	return jobs
}
