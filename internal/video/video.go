package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusUploaded   Status = "UPLOADED"
	StatusProcessing Status = "PROCESSING"
	StatusReady      Status = "READY"
	StatusFailed     Status = "FAILED"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "PUBLIC"
	VisibilityUnlisted Visibility = "UNLISTED"
	VisibilityPrivate  Visibility = "PRIVATE"
)

var errVideoNotFound = errors.New("video not found")

type Video struct {
	ID              string
	CreatorID       string
	Title           string
	Description     string
	Status          Status
	Visibility      Visibility
	SourceObjectKey string
	ManifestPath    *string
	ViewCount       int64
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Playable reports whether a playback token may be issued for the video.
func (v *Video) Playable() bool {
	return v.Status == StatusReady && v.ManifestPath != nil
}

const videoColumns = `id, creator_id, title, description, status, visibility, source_object_key,
	manifest_path, view_count, processed_at, created_at, updated_at`

func scanVideo(row pgx.Row) (*Video, error) {
	var v Video
	err := row.Scan(
		&v.ID, &v.CreatorID, &v.Title, &v.Description, &v.Status, &v.Visibility, &v.SourceObjectKey,
		&v.ManifestPath, &v.ViewCount, &v.ProcessedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan video: %w", err)
	}
	return &v, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (h *Handler) loadVideo(ctx context.Context, id string) (*Video, error) {
	if !validID(id) {
		return nil, errVideoNotFound
	}
	return scanVideo(h.db.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1`, id,
	))
}

// loadOwnedVideo hides videos of other creators behind errVideoNotFound.
func (h *Handler) loadOwnedVideo(ctx context.Context, id, creatorID string) (*Video, error) {
	if !validID(id) {
		return nil, errVideoNotFound
	}
	return scanVideo(h.db.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1 AND creator_id = $2`, id, creatorID,
	))
}
