package transcoding

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestService_CreateJob(t *testing.T) {
	store := newMemStore()
	store.addVideo("v1", "UPLOADED")
	notifier := &countingNotifier{}
	svc := NewService(store, notifier, 3, zerolog.Nop())

	job, err := svc.CreateJob(context.Background(), "v1", "uploads/v1.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusPending || job.Attempt != 1 {
		t.Errorf("unexpected job %+v", job)
	}
	if job.InputObjectKey != "uploads/v1.mp4" || job.OutputPrefix != "processed/v1" {
		t.Errorf("unexpected keys %+v", job)
	}
	if v := store.video("v1"); v.status != "PROCESSING" {
		t.Errorf("expected video PROCESSING, got %s", v.status)
	}
	if got := notifier.notified(); len(got) != 1 || got[0] != job.ID {
		t.Errorf("expected one wake-up for %s, got %v", job.ID, got)
	}
}

func TestService_CreateJob_RejectsNonUploadedVideo(t *testing.T) {
	for _, status := range []string{"DRAFT", "PROCESSING", "READY"} {
		t.Run(status, func(t *testing.T) {
			store := newMemStore()
			store.addVideo("v1", status)
			notifier := &countingNotifier{}
			svc := NewService(store, notifier, 3, zerolog.Nop())

			_, err := svc.CreateJob(context.Background(), "v1", "uploads/v1.mp4")
			if !errors.Is(err, ErrVideoNotUploaded) {
				t.Fatalf("expected ErrVideoNotUploaded, got %v", err)
			}
			if v := store.video("v1"); v.status != status {
				t.Errorf("expected status %s unchanged, got %s", status, v.status)
			}
			if len(notifier.notified()) != 0 {
				t.Error("expected no wake-up")
			}
		})
	}
}

func TestService_CreateJob_NotifyFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	store.addVideo("v1", "UPLOADED")
	svc := NewService(store, &countingNotifier{err: errors.New("redis gone")}, 3, zerolog.Nop())

	if _, err := svc.CreateJob(context.Background(), "v1", "uploads/v1.mp4"); err != nil {
		t.Fatalf("expected enqueue to succeed without wake-up, got %v", err)
	}
}

func TestService_Reprocess(t *testing.T) {
	store := newMemStore()
	fail := &recordingTranscoder{fn: func(context.Context, *Job) error { return errors.New("boom") }}
	w := newTestWorker(store, fail, WorkerConfig{})
	svc := NewService(store, nil, 2, zerolog.Nop())
	ctx := context.Background()

	store.addVideo("v1", "UPLOADED")
	first, err := svc.CreateJob(ctx, "v1", "uploads/v1.mp4")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Reprocess(ctx, "v1"); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable while job is pending, got %v", err)
	}

	if _, err := w.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	second, err := svc.Reprocess(ctx, "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID == first.ID || second.Attempt != 2 {
		t.Errorf("expected a new attempt-2 job, got %+v", second)
	}
	if got := store.job(first.ID); got.Status != StatusFailed {
		t.Errorf("expected the failed job to stay FAILED, got %s", got.Status)
	}

	if _, err := w.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reprocess(ctx, "v1"); !errors.Is(err, ErrRetryLimit) {
		t.Fatalf("expected ErrRetryLimit, got %v", err)
	}
}

func TestService_LatestForVideo(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, 3, zerolog.Nop())

	if _, err := svc.LatestForVideo(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	store.addVideo("v1", "UPLOADED")
	job, err := svc.CreateJob(context.Background(), "v1", "uploads/v1.mp4")
	if err != nil {
		t.Fatal(err)
	}
	latest, err := svc.LatestForVideo(context.Background(), "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.ID != job.ID {
		t.Errorf("expected %s, got %s", job.ID, latest.ID)
	}
	found, err := svc.FindByID(context.Background(), job.ID)
	if err != nil || found.VideoID != "v1" {
		t.Errorf("FindByID: %+v, %v", found, err)
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
	}
	for status, want := range tests {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
