package video

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reelhouse/reelhouse/internal/auth"
	"github.com/reelhouse/reelhouse/internal/httputil"
	"github.com/reelhouse/reelhouse/internal/metrics"
	"github.com/reelhouse/reelhouse/internal/playback"
	"github.com/reelhouse/reelhouse/internal/viewcount"
)

type playbackTokenRequest struct {
	TTLSeconds int `json:"ttlSeconds"`
}

type playbackTokenResponse struct {
	PlaybackToken    string `json:"playbackToken"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

type streamResponse struct {
	VideoID     string `json:"videoId"`
	ManifestURL string `json:"manifestUrl"`
}

// IssuePlaybackToken grants a short-lived token for a READY video. Private
// videos are only playable by their creator.
func (h *Handler) IssuePlaybackToken(w http.ResponseWriter, r *http.Request) {
	var req playbackTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var ttl time.Duration
	if req.TTLSeconds != 0 {
		if !h.cfg.AllowTTLOverride {
			httputil.WriteError(w, http.StatusBadRequest, "ttl override not allowed")
			return
		}
		ttl = time.Duration(req.TTLSeconds) * time.Second
		if err := playback.ValidateTTL(ttl); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	v, err := h.loadVideo(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, errVideoNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load video")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load video")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	if v.Visibility == VisibilityPrivate && userID != v.CreatorID {
		httputil.WriteError(w, http.StatusForbidden, "video is private")
		return
	}
	if !v.Playable() {
		httputil.WriteError(w, http.StatusConflict, "video not ready")
		return
	}

	token, claims, err := h.issuer.Issue(v.ID, userID, ttl)
	if err != nil {
		h.logger.Error().Err(err).Str("video_id", v.ID).Msg("failed to issue playback token")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to issue playback token")
		return
	}
	metrics.PlaybackTokensIssuedTotal.Inc()

	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, playbackTokenResponse{
		PlaybackToken:    token,
		ExpiresInSeconds: int(claims.ExpiresAt.Sub(claims.IssuedAt.Time).Seconds()),
	})
}

// Stream resolves the manifest URL for a playback token and records the use
// for view counting before responding.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	raw, ok := httputil.BearerToken(r)
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "missing playback token")
		return
	}
	claims, err := h.issuer.Verify(raw)
	if err != nil {
		metrics.PlaybackTokenRejectionsTotal.Inc()
		httputil.WriteError(w, http.StatusUnauthorized, "invalid or expired playback token")
		return
	}

	videoID := chi.URLParam(r, "id")
	if claims.VideoID != videoID {
		metrics.PlaybackTokenRejectionsTotal.Inc()
		httputil.WriteError(w, http.StatusForbidden, "token does not grant access to this video")
		return
	}

	v, err := h.loadVideo(r.Context(), videoID)
	if errors.Is(err, errVideoNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load video")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load video")
		return
	}
	if !v.Playable() {
		httputil.WriteError(w, http.StatusConflict, "video not ready")
		return
	}

	h.views.Register(r.Context(), viewcount.Use{
		Claims: claims,
		Now:    h.now(),
		Viewer: h.viewerFromRequest(r),
	})

	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, streamResponse{
		VideoID:     v.ID,
		ManifestURL: h.cfg.ManifestBaseURL + *v.ManifestPath,
	})
}
