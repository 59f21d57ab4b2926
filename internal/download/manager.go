package download

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
)

// Error aggregates every download that failed during one run. The manager
// never fails fast, so the list is complete: one report covers all problems.
type Error struct {
	Failed []string
}

func (e *Error) Error() string {
	return "the following downloads failed: " + strings.Join(e.Failed, ", ")
}

// Manager runs downloads concurrently, bounded by a semaphore, and waits for
// all of them before reporting.
type Manager struct {
	limit int64
}

// NewManager returns a manager allowing up to limit concurrent downloads.
// A limit below one means unbounded-ish: one slot per download.
func NewManager(limit int) *Manager {
	return &Manager{limit: int64(limit)}
}

// FetchAll fetches and verifies every download, each in its own goroutine.
// It waits for all of them to finish, then returns an *Error naming every
// failure, or nil when all succeeded.
func (m *Manager) FetchAll(ctx context.Context, downloads []*Download) error {
	logger := ctxlog.FromContext(ctx)
	if len(downloads) == 0 {
		return nil
	}

	limit := m.limit
	if limit < 1 {
		limit = int64(len(downloads))
	}
	sem := semaphore.NewWeighted(limit)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	logger.Info("Starting downloads.", "count", len(downloads))
	for _, d := range downloads {
		wg.Add(1)
		go func(d *Download) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				failed = append(failed, d.Name)
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			if err := d.Do(ctx); err != nil {
				logger.Error("Download failed.", "download", d.Name, "error", err)
				mu.Lock()
				failed = append(failed, d.Name)
				mu.Unlock()
				return
			}
			logger.Info("Download finished.", "download", d.Name)
		}(d)
	}
	wg.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		return &Error{Failed: failed}
	}
	return nil
}
