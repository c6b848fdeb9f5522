package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/goroutine"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

// AutoReleaser описывает операцию, которую периодически вызывает планировщик.
type AutoReleaser interface {
	ProcessAutoReleases(ctx context.Context, now time.Time) (*service.AutoReleaseReport, error)
}

// AutoRelease периодически освобождает escrow с наступившим сроком.
// Внутри процесса проходы не пересекаются; между процессами двойную выплату
// исключают блокировки строк escrow.
type AutoRelease struct {
	releaser AutoReleaser
	interval time.Duration
	now      func() time.Time
	running  sync.Mutex
}

func NewAutoRelease(releaser AutoReleaser, interval time.Duration) *AutoRelease {
	return &AutoRelease{releaser: releaser, interval: interval, now: time.Now}
}

// Start запускает цикл в отдельной горутине до отмены ctx.
func (s *AutoRelease) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, s.loop)
}

func (s *AutoRelease) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Log.WithField("interval", s.interval.String()).Info("планировщик автоосвобождения запущен")
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("планировщик автоосвобождения остановлен")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход. Возвращает false, если предыдущий проход ещё идёт.
func (s *AutoRelease) RunOnce(ctx context.Context) bool {
	if !s.running.TryLock() {
		logger.Log.Warn("предыдущий проход автоосвобождения ещё не завершён, пропускаем")
		return false
	}
	defer s.running.Unlock()

	started := s.now()
	report, err := s.releaser.ProcessAutoReleases(ctx, started)

	entry := logger.Log.WithField("duration", time.Since(started).String())
	if report != nil {
		entry = entry.WithFields(logrus.Fields{
			"scanned":  report.Scanned,
			"released": len(report.Released),
			"skipped":  len(report.Skipped),
			"failed":   len(report.Failed),
		})
	}
	if err != nil {
		entry.WithError(err).Error("проход автоосвобождения завершился с ошибками")
		return true
	}
	entry.Info("проход автоосвобождения завершён")
	return true
}
