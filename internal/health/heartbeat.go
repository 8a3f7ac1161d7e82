package health

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Check reports nil while the process is healthy.
type Check func() error

// Heartbeat keeps a liveness file fresh for container probes. The file
// exists only while every check passes.
type Heartbeat struct {
	path     string
	interval time.Duration
	checks   []Check
	log      *logrus.Logger
}

func NewHeartbeat(path string, interval time.Duration, log *logrus.Logger, checks ...Check) *Heartbeat {
	return &Heartbeat{
		path:     path,
		interval: interval,
		checks:   checks,
		log:      log,
	}
}

// Run beats until ctx is cancelled and removes the file on the way out.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	defer h.remove()

	h.beat()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("stopping health heartbeat")
			return nil
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeat) beat() {
	for _, check := range h.checks {
		if err := check(); err != nil {
			h.log.WithError(err).Warn("health check failed")
			h.remove()
			return
		}
	}

	stamp := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(h.path, stamp, 0o644); err != nil {
		h.log.WithError(err).WithField("path", h.path).Error("failed to write health file")
	}
}

func (h *Heartbeat) remove() {
	if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.log.WithError(err).WithField("path", h.path).Error("failed to remove health file")
	}
}
