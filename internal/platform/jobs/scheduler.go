package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/middleware"
)

// Scheduler runs the periodic maintenance jobs: the expired-hold sweep and
// the SLA auto-escalation sweep. Both are the explicit calls through which
// time-based state changes happen; nothing mutates on read.
type Scheduler struct {
	cron     *cron.Cron
	hold     portssvc.HoldSvcFacade
	approval portssvc.ApprovalSvcFacade
	logger   *slog.Logger
}

// NewScheduler creates a scheduler over the given services.
func NewScheduler(hold portssvc.HoldSvcFacade, approval portssvc.ApprovalSvcFacade, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		hold:     hold,
		approval: approval,
		logger:   logger,
	}
}

// Register wires the sweeps at the given cron specs.
func (s *Scheduler) Register(holdSweepSpec, slaSweepSpec string) error {
	if _, err := s.cron.AddFunc(holdSweepSpec, s.sweepHolds); err != nil {
		return fmt.Errorf("failed to register hold sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(slaSweepSpec, s.sweepSLA); err != nil {
		return fmt.Errorf("failed to register SLA sweep: %w", err)
	}
	return nil
}

// Start begins running registered jobs in their own goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Job scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Job scheduler stopped")
}

func (s *Scheduler) sweepHolds() {
	ctx := middleware.WithLogger(context.Background(), s.logger)
	released, err := s.hold.ReleaseExpiredHolds(ctx, 0)
	if err != nil {
		s.logger.Error("Hold sweep failed", slog.String("error", err.Error()))
		return
	}
	if released > 0 {
		s.logger.Info("Hold sweep finished", slog.Int("released", released))
	}
}

func (s *Scheduler) sweepSLA() {
	ctx := middleware.WithLogger(context.Background(), s.logger)
	escalated, err := s.approval.AutoEscalateOverdue(ctx, 0)
	if err != nil {
		s.logger.Error("SLA sweep failed", slog.String("error", err.Error()))
		return
	}
	if escalated > 0 {
		s.logger.Info("SLA sweep finished", slog.Int("escalated", escalated))
	}
}
