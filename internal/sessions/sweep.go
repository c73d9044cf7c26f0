package sessions

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepInterval is how often the Sweeper checks for expired sessions.
const SweepInterval = 5 * time.Minute

// Sweeper periodically evicts timed-out sessions from a Manager on a
// cron schedule.
type Sweeper struct {
	manager *Manager
	cron    *cron.Cron
}

// NewSweeper creates a Sweeper bound to manager. Call Start to begin the
// periodic sweep.
func NewSweeper(manager *Manager) *Sweeper {
	return &Sweeper{
		manager: manager,
		cron:    cron.New(),
	}
}

// Start schedules the sweep to run every SweepInterval and begins the
// cron scheduler's background goroutine.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc("@every 5m", func() {
		evicted := s.manager.Sweep()
		if evicted > 0 {
			slog.Info("session sweep evicted idle sessions", "count", evicted)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-progress sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
