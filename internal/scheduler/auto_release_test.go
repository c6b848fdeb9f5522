package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/escrow-engine/internal/service"
)

type fakeReleaser struct {
	calls   atomic.Int32
	block   chan struct{}
	started chan struct{}
	err     error
}

func (f *fakeReleaser) ProcessAutoReleases(_ context.Context, _ time.Time) (*service.AutoReleaseReport, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return &service.AutoReleaseReport{Scanned: 1, Released: []uuid.UUID{uuid.New()}}, f.err
}

func TestAutoRelease_RunOnce(t *testing.T) {
	releaser := &fakeReleaser{}
	s := NewAutoRelease(releaser, time.Minute)

	assert.True(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), releaser.calls.Load())
}

func TestAutoRelease_RunOnceReportsErrors(t *testing.T) {
	releaser := &fakeReleaser{err: errors.New("db down")}
	s := NewAutoRelease(releaser, time.Minute)

	// ошибка прохода только логируется, следующий проход не блокируется
	assert.True(t, s.RunOnce(context.Background()))
	assert.True(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(2), releaser.calls.Load())
}

func TestAutoRelease_SkipsOverlappingRun(t *testing.T) {
	releaser := &fakeReleaser{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewAutoRelease(releaser, time.Minute)

	done := make(chan bool)
	go func() { done <- s.RunOnce(context.Background()) }()
	<-releaser.started

	assert.False(t, s.RunOnce(context.Background()))

	close(releaser.block)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), releaser.calls.Load())
}

func TestAutoRelease_StartTicksUntilCancelled(t *testing.T) {
	releaser := &fakeReleaser{}
	s := NewAutoRelease(releaser, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	assert.Eventually(t, func() bool { return releaser.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	time.Sleep(30 * time.Millisecond)
	stopped := releaser.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, releaser.calls.Load())
}
