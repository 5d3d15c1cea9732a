package transcoding

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrNoPendingJob     = errors.New("no pending transcoding job")
	ErrJobNotFound      = errors.New("transcoding job not found")
	ErrVideoNotUploaded = errors.New("video is not in UPLOADED state")
	ErrNotRetryable     = errors.New("video has no failed transcoding job to retry")
	ErrRetryLimit       = errors.New("transcoding retry limit reached")
)

type Job struct {
	ID             string     `json:"id"`
	VideoID        string     `json:"videoId"`
	InputObjectKey string     `json:"inputObjectKey"`
	OutputPrefix   string     `json:"outputPrefix"`
	Status         Status     `json:"status"`
	Attempt        int        `json:"attempt"`
	ErrorMessage   *string    `json:"errorMessage,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

func OutputPrefix(videoID string) string {
	return "processed/" + videoID
}

// ManifestPath is the stored playback entry point of a processed video.
func ManifestPath(videoID string) string {
	return fmt.Sprintf("/%s/index.m3u8", OutputPrefix(videoID))
}
