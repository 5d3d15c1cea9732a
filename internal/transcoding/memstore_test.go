package transcoding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memVideo struct {
	status       string
	manifestPath string
}

// memStore mirrors PGStore's conditional transitions in memory.
type memStore struct {
	mu     sync.Mutex
	seq    int
	clock  time.Time
	videos map[string]*memVideo
	jobs   map[string]*Job

	claimErr    error
	completeErr error
}

func newMemStore() *memStore {
	return &memStore{
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		videos: map[string]*memVideo{},
		jobs:   map[string]*Job{},
	}
}

func (m *memStore) addVideo(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[id] = &memVideo{status: status}
}

func (m *memStore) video(id string) memVideo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.videos[id]
}

func (m *memStore) job(id string) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memStore) setClaimErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimErr = err
}

func (m *memStore) insertLocked(videoID, key string, attempt int) *Job {
	m.seq++
	m.clock = m.clock.Add(time.Millisecond)
	job := &Job{
		ID:             fmt.Sprintf("job-%03d", m.seq),
		VideoID:        videoID,
		InputObjectKey: key,
		OutputPrefix:   OutputPrefix(videoID),
		Status:         StatusPending,
		Attempt:        attempt,
		CreatedAt:      m.clock,
	}
	m.jobs[job.ID] = job
	copied := *job
	return &copied
}

func (m *memStore) CreateJob(_ context.Context, videoID, key string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[videoID]
	if !ok || v.status != "UPLOADED" {
		return nil, ErrVideoNotUploaded
	}
	v.status = "PROCESSING"
	return m.insertLocked(videoID, key, 1), nil
}

func (m *memStore) Reprocess(_ context.Context, videoID string, maxAttempts int) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[videoID]
	if !ok || v.status != "PROCESSING" {
		return nil, ErrNotRetryable
	}
	latest := m.latestLocked(videoID)
	if latest == nil || latest.Status != StatusFailed {
		return nil, ErrNotRetryable
	}
	if latest.Attempt >= maxAttempts {
		return nil, ErrRetryLimit
	}
	return m.insertLocked(videoID, latest.InputObjectKey, latest.Attempt+1), nil
}

func (m *memStore) ordered() []*Job {
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].ID < jobs[b].ID
		}
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs
}

func (m *memStore) latestLocked(videoID string) *Job {
	var latest *Job
	for _, j := range m.ordered() {
		if j.VideoID == videoID {
			latest = j
		}
	}
	return latest
}

func (m *memStore) ClaimNextPending(context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	for _, j := range m.ordered() {
		if j.Status == StatusPending {
			j.Status = StatusRunning
			started := m.clock
			j.StartedAt = &started
			copied := *j
			return &copied, nil
		}
	}
	return nil, ErrNoPendingJob
}

func (m *memStore) Complete(_ context.Context, job *Job, manifestPath string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	j, ok := m.jobs[job.ID]
	if !ok || j.Status != StatusRunning {
		return ErrJobNotFound
	}
	v := m.videos[job.VideoID]
	if v == nil || v.status != "PROCESSING" {
		return fmt.Errorf("video %s is no longer processing", job.VideoID)
	}
	j.Status = StatusCompleted
	j.CompletedAt = &at
	v.status = "READY"
	v.manifestPath = manifestPath
	return nil
}

func (m *memStore) Fail(_ context.Context, job *Job, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[job.ID]
	if !ok || j.Status != StatusRunning {
		return ErrJobNotFound
	}
	j.Status = StatusFailed
	j.ErrorMessage = &reason
	return nil
}

func (m *memStore) FindByID(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *j
	return &copied, nil
}

func (m *memStore) LatestForVideo(_ context.Context, videoID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.latestLocked(videoID)
	if j == nil {
		return nil, ErrJobNotFound
	}
	copied := *j
	return &copied, nil
}

// recordingTranscoder records the order of the jobs it sees.
type recordingTranscoder struct {
	mu   sync.Mutex
	seen []string
	fn   func(ctx context.Context, job *Job) error
}

func (r *recordingTranscoder) Transcode(ctx context.Context, job *Job) error {
	r.mu.Lock()
	r.seen = append(r.seen, job.VideoID)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(ctx, job)
	}
	return nil
}

func (r *recordingTranscoder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

type countingNotifier struct {
	mu     sync.Mutex
	jobIDs []string
	err    error
	wake   chan struct{}
}

func (c *countingNotifier) Notify(_ context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobIDs = append(c.jobIDs, jobID)
	return c.err
}

func (c *countingNotifier) Subscribe(context.Context) <-chan struct{} {
	return c.wake
}

func (c *countingNotifier) notified() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.jobIDs...)
}
