// package scheduler fires the archival job on a recurring cron cadence.
//
// Only one job invocation is ever in flight: a firing that overlaps a
// run still going is skipped, not queued. The same guard covers the
// manual trigger used right after first authorization.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// DefaultExpr runs once daily at 05:00.
const DefaultExpr = "0 5 * * *"

// Scheduler wraps a [cron.Cron] around a single job.
type Scheduler struct {
	cron   *cron.Cron
	job    func()
	logger *log.Logger

	// held for the duration of a run; TryLock implements overlap skip
	mu sync.Mutex
}

// New creates a Scheduler firing job on the given 5-field cron
// expression. An empty expression uses [DefaultExpr].
func New(expr string, job func(), logger *log.Logger) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultExpr
	}

	s := &Scheduler{cron: cron.New(), job: job, logger: logger}
	if _, err := s.cron.AddFunc(expr, s.fire); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	logger.Info("archival schedule armed", "cron", expr)
	return s, nil
}

// Start begins firing on schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// RunNow triggers one asynchronous run, subject to the same overlap guard.
func (s *Scheduler) RunNow() {
	go s.fire()
}

// Stop halts the schedule and waits for any in-flight run.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	// Acquiring the lock waits out a run started by RunNow, which the
	// cron context does not track.
	s.mu.Lock()
	s.mu.Unlock()
}

func (s *Scheduler) fire() {
	if !s.mu.TryLock() {
		s.logger.Warn("previous archival run still in flight, skipping firing")
		return
	}
	defer s.mu.Unlock()
	s.job()
}
