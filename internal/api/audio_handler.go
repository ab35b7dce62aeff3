package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/scribe-api/internal/api/shared"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/service"
)

// AudioHandler serves audio registration, submission and lookup.
type AudioHandler struct {
	jobs   service.JobService
	logger *slog.Logger
}

// NewAudioHandler creates a new AudioHandler.
func NewAudioHandler(jobs service.JobService, logger *slog.Logger) *AudioHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioHandler{
		jobs:   jobs,
		logger: logger.With(slog.String("component", "audio_handler")),
	}
}

// Register handles POST /api/audio: records an uploaded file and queues it
// for processing.
func (h *AudioHandler) Register(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req RegisterAudioRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	submission, err := h.jobs.RegisterUpload(r.Context(), ownerID, req.toUpload())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to register audio")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("audio registered",
		"resource_id", submission.Record.ID,
		"task_id", submission.Task.ID)
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmissionResponse{
		Audio: audioToResponse(submission.Record),
		Task:  taskToResponse(submission.Task),
	})
}

// Process handles POST /api/audio/{id}/process.
func (h *AudioHandler) Process(w http.ResponseWriter, r *http.Request) {
	ownerID, resourceID, ok := handleOwnerAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	task, err := h.jobs.Submit(r.Context(), ownerID, resourceID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit audio for processing")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(task))
}

// Status handles GET /api/audio/{id}/status.
func (h *AudioHandler) Status(w http.ResponseWriter, r *http.Request) {
	ownerID, resourceID, ok := handleOwnerAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	task, err := h.jobs.GetStatus(r.Context(), ownerID, resourceID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve processing status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// Summary handles GET /api/audio/{id}/summary.
func (h *AudioHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ownerID, resourceID, ok := handleOwnerAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	task, result, err := h.jobs.GetResult(r.Context(), ownerID, resourceID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve processing result")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resultToSummary(task, result))
}
