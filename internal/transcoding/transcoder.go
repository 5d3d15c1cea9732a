package transcoding

import (
	"context"
	"time"
)

// Transcoder turns a job's source object into playable output under the
// job's output prefix.
type Transcoder interface {
	Transcode(ctx context.Context, job *Job) error
}

// StubTranscoder stands in for real media processing with a fixed delay.
type StubTranscoder struct {
	Delay time.Duration
}

func (s StubTranscoder) Transcode(ctx context.Context, _ *Job) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
