package video

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reelhouse/reelhouse/internal/auth"
	"github.com/reelhouse/reelhouse/internal/httputil"
	"github.com/reelhouse/reelhouse/internal/transcoding"
)

type jobAccepted struct {
	JobID   string             `json:"jobId"`
	VideoID string             `json:"videoId"`
	Status  transcoding.Status `json:"status"`
	Attempt int                `json:"attempt"`
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	v, err := h.loadOwnedVideo(r.Context(), chi.URLParam(r, "id"), userID)
	if errors.Is(err, errVideoNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load video")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load video")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), v.ID, v.SourceObjectKey)
	if errors.Is(err, transcoding.ErrVideoNotUploaded) {
		httputil.WriteError(w, http.StatusConflict, "video is not awaiting processing")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("video_id", v.ID).Msg("failed to create transcoding job")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to start processing")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, jobAccepted{
		JobID:   job.ID,
		VideoID: job.VideoID,
		Status:  job.Status,
		Attempt: job.Attempt,
	})
}

func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	v, err := h.loadOwnedVideo(r.Context(), chi.URLParam(r, "id"), userID)
	if errors.Is(err, errVideoNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load video")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load video")
		return
	}

	job, err := h.jobs.Reprocess(r.Context(), v.ID)
	switch {
	case errors.Is(err, transcoding.ErrNotRetryable):
		httputil.WriteError(w, http.StatusConflict, "latest transcoding job has not failed")
		return
	case errors.Is(err, transcoding.ErrRetryLimit):
		httputil.WriteError(w, http.StatusConflict, "retry limit reached")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("video_id", v.ID).Msg("failed to reprocess video")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to start processing")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, jobAccepted{
		JobID:   job.ID,
		VideoID: job.VideoID,
		Status:  job.Status,
		Attempt: job.Attempt,
	})
}
