package video

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/reelhouse/reelhouse/internal/auth"
	"github.com/reelhouse/reelhouse/internal/httputil"
	"github.com/reelhouse/reelhouse/internal/storage"
	"github.com/reelhouse/reelhouse/internal/transcoding"
	"github.com/reelhouse/reelhouse/internal/validate"
)

const uploadURLExpiry = 30 * time.Minute

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
}

type createResponse struct {
	ID              string `json:"id"`
	Status          Status `json:"status"`
	UploadURL       string `json:"uploadUrl"`
	SourceObjectKey string `json:"sourceObjectKey"`
}

type jobSummary struct {
	ID           string             `json:"id"`
	Status       transcoding.Status `json:"status"`
	Attempt      int                `json:"attempt"`
	ErrorMessage *string            `json:"errorMessage,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	CompletedAt  *time.Time         `json:"completedAt,omitempty"`
}

type videoResponse struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Status          Status      `json:"status"`
	Visibility      Visibility  `json:"visibility"`
	SourceObjectKey string      `json:"sourceObjectKey"`
	ManifestPath    *string     `json:"manifestPath"`
	ViewCount       int64       `json:"viewCount"`
	ProcessedAt     *time.Time  `json:"processedAt"`
	CreatedAt       time.Time   `json:"createdAt"`
	LatestJob       *jobSummary `json:"latestJob"`
}

func sourceObjectKey(creatorID, videoID, contentType string) string {
	ext := "mp4"
	switch contentType {
	case "video/webm":
		ext = "webm"
	case "video/quicktime":
		ext = "mov"
	}
	return fmt.Sprintf("uploads/%s/%s.%s", creatorID, videoID, ext)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Visibility == "" {
		req.Visibility = string(VisibilityPublic)
	}
	if req.ContentType == "" {
		req.ContentType = "video/mp4"
	}
	for _, msg := range []string{
		validate.Title(req.Title),
		validate.Description(req.Description),
		validate.Visibility(req.Visibility),
		validate.ContentType(req.ContentType),
	} {
		if msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
	}
	if req.FileSize < 0 {
		httputil.WriteError(w, http.StatusBadRequest, "fileSize must not be negative")
		return
	}
	if h.cfg.MaxUploadBytes > 0 && req.FileSize > h.cfg.MaxUploadBytes {
		httputil.WriteError(w, http.StatusBadRequest, "file too large")
		return
	}

	videoID := uuid.NewString()
	key := sourceObjectKey(userID, videoID, req.ContentType)

	uploadURL, err := h.storage.GenerateUploadURL(r.Context(), key, req.ContentType, req.FileSize, uploadURLExpiry)
	if err != nil {
		h.logger.Error().Err(err).Str("video_id", videoID).Msg("failed to presign upload")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate upload URL")
		return
	}

	if _, err := h.db.Exec(r.Context(),
		`INSERT INTO videos (id, creator_id, title, description, visibility, source_object_key)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		videoID, userID, req.Title, req.Description, req.Visibility, key,
	); err != nil {
		h.logger.Error().Err(err).Msg("failed to insert video")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create video")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createResponse{
		ID:              videoID,
		Status:          StatusCreated,
		UploadURL:       uploadURL,
		SourceObjectKey: key,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
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

	resp := videoResponse{
		ID:              v.ID,
		Title:           v.Title,
		Description:     v.Description,
		Status:          v.Status,
		Visibility:      v.Visibility,
		SourceObjectKey: v.SourceObjectKey,
		ManifestPath:    v.ManifestPath,
		ViewCount:       v.ViewCount,
		ProcessedAt:     v.ProcessedAt,
		CreatedAt:       v.CreatedAt,
	}

	job, err := h.jobs.LatestForVideo(r.Context(), v.ID)
	switch {
	case err == nil:
		resp.LatestJob = &jobSummary{
			ID:           job.ID,
			Status:       job.Status,
			Attempt:      job.Attempt,
			ErrorMessage: job.ErrorMessage,
			CreatedAt:    job.CreatedAt,
			CompletedAt:  job.CompletedAt,
		}
	case errors.Is(err, transcoding.ErrJobNotFound):
	default:
		h.logger.Error().Err(err).Str("video_id", v.ID).Msg("failed to load latest job")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load video")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// MarkUploaded confirms the source object exists and moves the video from
// CREATED to UPLOADED.
func (h *Handler) MarkUploaded(w http.ResponseWriter, r *http.Request) {
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
	if v.Status != StatusCreated {
		httputil.WriteError(w, http.StatusConflict, "video upload already confirmed")
		return
	}

	info, err := h.storage.HeadObject(r.Context(), v.SourceObjectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		httputil.WriteError(w, http.StatusConflict, "source file has not been uploaded")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("key", v.SourceObjectKey).Msg("failed to check source object")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to verify upload")
		return
	}
	if h.cfg.MaxUploadBytes > 0 && info.Size > h.cfg.MaxUploadBytes {
		httputil.WriteError(w, http.StatusBadRequest, "file too large")
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`UPDATE videos SET status = 'UPLOADED', updated_at = now()
		 WHERE id = $1 AND status = 'CREATED'`,
		v.ID,
	)
	if err != nil {
		h.logger.Error().Err(err).Str("video_id", v.ID).Msg("failed to mark video uploaded")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update video")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusConflict, "video upload already confirmed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":     v.ID,
		"status": StatusUploaded,
		"size":   info.Size,
	})
}
