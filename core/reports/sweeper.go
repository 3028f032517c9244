package reports

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lungsod-rms/config"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

const sweepBatchSize = 100

// Sweeper escalates pending reports that sat untouched past the configured
// age, one severity step per sweep, and records each escalation in the audit
// trail.
type Sweeper struct {
	mu      sync.Mutex
	cron    *cron.Cron
	reports store.ReportsStore
	cfg     config.ReportsConfig
	sched   config.SchedulerConfig
	logger  *utils.Logger
	running bool
}

func NewSweeper(reports store.ReportsStore, cfg config.ReportsConfig, sched config.SchedulerConfig, logger *utils.Logger) *Sweeper {
	return &Sweeper{reports: reports, cfg: cfg, sched: sched, logger: logger}
}

func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if !s.sched.Enabled {
		if s.logger != nil {
			s.logger.Printf("sweeper: disabled by config")
		}
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.sched.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil && s.logger != nil {
			s.logger.Errorf("sweeper: sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("sweeper: bad schedule %q: %w", s.sched.Spec, err)
	}
	c.Start()
	s.cron = c
	s.running = true
	if s.logger != nil {
		s.logger.Printf("sweeper: started, schedule %s, escalate after %s", s.sched.Spec, s.cfg.EscalateAfter)
	}
	return nil
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil
	s.running = false
}

// RunOnce performs a single sweep across all report tables.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	cutoff := utils.NowUTC().Add(-s.cfg.EscalateAfter)
	for _, d := range store.ReportDomains {
		stale, err := s.reports.ListStalePending(ctx, d, cutoff, sweepBatchSize)
		if err != nil {
			return fmt.Errorf("list stale %s: %w", d, err)
		}
		for i := range stale {
			r := &stale[i]
			next := store.EscalateSeverity(r.Severity)
			if next == r.Severity {
				continue
			}
			eff := store.TransitionEffect{
				Mutation: store.ReportMutation{Severity: &next},
				Audit: &store.AuditEntry{
					Title:  fmt.Sprintf("Report %s escalated", r.ReportID),
					Status: store.StatusPending,
					Actor:  "system",
					Details: fmt.Sprintf("severity raised %s to %s after %s pending",
						r.Severity, next, s.cfg.EscalateAfter),
				},
			}
			if _, err := s.reports.ApplyTransition(ctx, d, r.ID, r.Version, eff); err != nil {
				// A concurrent transition winning the race is fine, the
				// report is getting attention either way.
				if s.logger != nil {
					s.logger.Errorf("sweeper: escalate %s #%d: %v", d, r.ID, err)
				}
				continue
			}
			if s.logger != nil {
				s.logger.Printf("sweeper: escalated %s to %s", r.ReportID, next)
			}
		}
	}
	return nil
}
