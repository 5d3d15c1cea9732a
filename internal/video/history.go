package video

import (
	"net/http"
	"strconv"
	"time"

	"github.com/reelhouse/reelhouse/internal/auth"
	"github.com/reelhouse/reelhouse/internal/httputil"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

type historyVideo struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatorID   string     `json:"creatorId"`
	Status      Status     `json:"status"`
	Visibility  Visibility `json:"visibility"`
	ViewCount   int64      `json:"viewCount"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type historyItem struct {
	VideoID       string       `json:"videoId"`
	LastWatchedAt time.Time    `json:"lastWatchedAt"`
	CreatedAt     time.Time    `json:"createdAt"`
	Video         historyVideo `json:"video"`
}

type historyResponse struct {
	History []historyItem `json:"history"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
}

func parsePagination(r *http.Request) (limit, page int, msg string) {
	limit, page = defaultHistoryLimit, 1
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			return 0, 0, "limit must be between 1 and 50"
		}
		limit = n
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, 0, "page must be a positive integer"
		}
		page = n
	}
	return limit, page, ""
}

// History lists the caller's recently watched videos. Only videos that are
// still public and ready are returned.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit, page, msg := parsePagination(r)
	if msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT wh.video_id, wh.last_watched_at, wh.created_at,
		        v.title, v.description, v.creator_id, v.status, v.visibility, v.view_count, v.created_at
		 FROM watch_history wh
		 JOIN videos v ON v.id = wh.video_id
		 WHERE wh.user_id = $1 AND v.status = 'READY' AND v.visibility = 'PUBLIC'
		 ORDER BY wh.last_watched_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, (page-1)*limit,
	)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to query watch history")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load watch history")
		return
	}
	defer rows.Close()

	items := make([]historyItem, 0, limit)
	for rows.Next() {
		var it historyItem
		if err := rows.Scan(
			&it.VideoID, &it.LastWatchedAt, &it.CreatedAt,
			&it.Video.Title, &it.Video.Description, &it.Video.CreatorID, &it.Video.Status,
			&it.Video.Visibility, &it.Video.ViewCount, &it.Video.CreatedAt,
		); err != nil {
			h.logger.Error().Err(err).Msg("failed to scan watch history")
			httputil.WriteError(w, http.StatusInternalServerError, "failed to load watch history")
			return
		}
		it.Video.ID = it.VideoID
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error().Err(err).Msg("failed to iterate watch history")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load watch history")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, historyResponse{History: items, Page: page, Limit: limit})
}
