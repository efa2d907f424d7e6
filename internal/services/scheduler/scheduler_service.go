package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// ErrAlreadyRunning is returned by Trigger while a run is in progress
var ErrAlreadyRunning = errors.New("run already in progress")

// RunFunc performs one scheduled harness run and reports whether it passed
type RunFunc func(ctx context.Context) (passed bool, err error)

// Status is a point-in-time view of the scheduler
type Status struct {
	Schedule   string
	Runs       int
	Failures   int
	Skipped    int
	LastRun    *time.Time
	LastPassed bool
	LastError  string
	NextRun    *time.Time
	IsRunning  bool
}

// Service runs the harness on a cron schedule. Runs never overlap: a tick
// that fires while a run is still going is skipped.
type Service struct {
	cron     *cron.Cron
	schedule string
	run      RunFunc
	logger   arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex // protects fields below
	entryID cron.EntryID
	running bool
	busy    bool
	status  Status
	wg      sync.WaitGroup
}

// NewService validates schedule and returns a stopped scheduler
func NewService(schedule string, run RunFunc, logger arbor.ILogger) (*Service, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", schedule, err)
	}

	return &Service{
		cron:     cron.New(),
		schedule: schedule,
		run:      run,
		logger:   logger,
		status:   Status{Schedule: schedule},
	}, nil
}

// Start begins scheduling runs under ctx
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	id, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Trigger(); err != nil {
			s.logger.Warn().Err(err).Msg("Scheduled run skipped")
		}
	})
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = id

	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", s.schedule).Msg("Scheduler started")
	return nil
}

// Trigger starts a run now unless one is already in progress. It returns
// once the run has been started; use Wait to block for it.
func (s *Service) Trigger() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	if s.busy {
		s.status.Skipped++
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.busy = true
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go s.execute(ctx)
	return nil
}

func (s *Service) execute(ctx context.Context) {
	defer s.wg.Done()

	start := time.Now()
	passed, err := s.safeRun(ctx)

	s.mu.Lock()
	s.busy = false
	s.status.Runs++
	s.status.LastRun = &start
	s.status.LastPassed = passed && err == nil
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	if !s.status.LastPassed {
		s.status.Failures++
	}
	s.mu.Unlock()

	event := s.logger.Info()
	if !passed || err != nil {
		event = s.logger.Warn()
	}
	event.Bool("passed", passed).
		Str("duration", time.Since(start).Round(time.Millisecond).String()).
		Msg("Scheduled run finished")
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled run failed to execute")
	}
}

// safeRun converts a panicking run into an error so the scheduler survives
func (s *Service) safeRun(ctx context.Context) (passed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return s.run(ctx)
}

// Wait blocks until no run is in progress
func (s *Service) Wait() {
	s.wg.Wait()
}

// Status returns a copy of the scheduler state
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.status
	status.IsRunning = s.busy
	if s.running {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// Stop halts scheduling, cancels an in-progress run and waits for it
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()

	s.logger.Info().Msg("Scheduler stopped")
}
