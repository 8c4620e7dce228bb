package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fortuna/propline/internal/backfill"
)

// IngestService queues ingestion jobs and reports their progress.
type IngestService interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
	GetStatus(ctx context.Context) (*backfill.StatusSummary, error)
}

// IngestHandler proxies API calls to the ingestion job service.
type IngestHandler struct {
	service IngestService
}

// NewIngestHandler wires the REST layer to the ingestion job service.
func NewIngestHandler(service IngestService) *IngestHandler {
	return &IngestHandler{service: service}
}

type apiIngestRequest struct {
	League    string   `json:"league"`
	Leagues   []string `json:"leagues"`
	Days      int      `json:"days"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Season    string   `json:"season"`
	DryRun    bool     `json:"dry_run"`
}

// HandleIngestRequest handles POST /api/v1/ingest
func (h *IngestHandler) HandleIngestRequest(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "Ingestion service not configured", nil)
		return
	}

	var req apiIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ingestReq := backfill.Request{
		League:  req.League,
		Leagues: req.Leagues,
		Days:    req.Days,
		Season:  req.Season,
		DryRun:  req.DryRun,
	}

	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid start_date format (YYYY-MM-DD)", err)
			return
		}
		ingestReq.StartDate = &start
	}

	if req.EndDate != "" {
		end, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid end_date format (YYYY-MM-DD)", err)
			return
		}
		ingestReq.EndDate = &end
	}

	job, err := h.service.Enqueue(r.Context(), ingestReq)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to enqueue ingestion job", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job": jobPayload(job),
	})
}

// HandleIngestStatus handles GET /api/v1/ingest/status
func (h *IngestHandler) HandleIngestStatus(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "Ingestion service not configured", nil)
		return
	}

	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

func buildStatusPayload(summary *backfill.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active jobs",
		"history": []map[string]interface{}{},
	}

	if summary.ActiveJob != nil {
		response["status"] = summary.ActiveJob.Status
		if summary.ActiveJob.StatusMessage.Valid {
			response["message"] = summary.ActiveJob.StatusMessage.String
		}
		response["active_job"] = jobPayload(summary.ActiveJob)
	}

	history := make([]map[string]interface{}, 0, len(summary.History))
	for _, job := range summary.History {
		history = append(history, jobPayload(job))
	}

	response["history"] = history
	return response
}

func jobPayload(job *backfill.Job) map[string]interface{} {
	if job == nil {
		return nil
	}

	payload := map[string]interface{}{
		"job_id":           job.JobID,
		"job_type":         job.JobType,
		"leagues":          []string(job.Leagues),
		"dry_run":          job.DryRun,
		"status":           job.Status,
		"progress_current": job.ProgressCurrent,
		"progress_total":   job.ProgressTotal,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}

	if job.Days > 0 {
		payload["days"] = job.Days
	}
	if job.StatusMessage.Valid {
		payload["status_message"] = job.StatusMessage.String
	}
	if job.Season.Valid {
		payload["season"] = job.Season.String
	}
	if job.StartDate.Valid {
		payload["start_date"] = job.StartDate.Time.Format("2006-01-02")
	}
	if job.EndDate.Valid {
		payload["end_date"] = job.EndDate.Time.Format("2006-01-02")
	}
	if job.StartedAt.Valid {
		payload["started_at"] = job.StartedAt.Time
	}
	if job.CompletedAt.Valid {
		payload["completed_at"] = job.CompletedAt.Time
	}
	if job.LastError.Valid {
		payload["last_error"] = job.LastError.String
	}
	if len(job.Summary) > 0 {
		payload["summary"] = job.Summary
	}

	return payload
}
