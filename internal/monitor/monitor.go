// Package monitor watches the solver's output file and reports progress
// while the calculation runs.
package monitor

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"siestarunner/internal/notify"
)

// Monitor polls a file's modification time and sends a running update
// whenever it advances.
type Monitor struct {
	Sender   notify.Sender
	Interval time.Duration
	Logger   *zap.SugaredLogger

	updates int
}

// New returns a Monitor polling every interval.
func New(sender notify.Sender, interval time.Duration, logger *zap.SugaredLogger) *Monitor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Monitor{Sender: sender, Interval: interval, Logger: logger}
}

// Updates returns the number of updates sent by the last Watch.
func (m *Monitor) Updates() int {
	return m.updates
}

// Watch blocks until ctx is cancelled. The modification time at the moment
// Watch starts is the baseline; a file that does not exist yet has a zero
// baseline so its creation counts as an update. Send errors are logged and
// do not stop the watch.
func (m *Monitor) Watch(ctx context.Context, path string) error {
	m.updates = 0
	last := modTime(path)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.Logger.Debugw("watching output", "path", path, "interval", m.Interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		current := modTime(path)
		if !current.After(last) {
			continue
		}
		last = current
		m.updates++

		if err := m.Sender.Send(ctx, notify.StatusRunning); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.Logger.Warnw("progress update not delivered", "path", path, "error", err)
			continue
		}
		m.Logger.Infow("output modified, update sent", "path", path, "mtime", current.Format(time.RFC3339))
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
