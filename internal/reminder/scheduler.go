// Package reminder sweeps due reminders out of the record store and
// hands them to a delivery dispatcher.
//
// The scheduler claims each due reminder with a conditional mark before
// dispatching, so concurrent sweeps (overlapping ticks, multiple
// processes on one database) agree on a single winner per reminder.
// A failed dispatch reverts the mark and the reminder is retried on a
// later tick. Guest reminders are marked sent but never leave the
// process.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/ehr"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
	"github.com/fyrsmithlabs/medassistd/internal/observability"
)

const (
	// DefaultInterval is the sweep cadence when no option overrides it.
	DefaultInterval = time.Minute

	// sweepTimeout bounds one sweep across store and dispatch calls.
	sweepTimeout = 30 * time.Second
)

// Scheduler runs the reminder sweep loop in the background.
//
// All public methods are safe for concurrent use. The running state is
// protected by a mutex so Start and Stop cannot race.
type Scheduler struct {
	interval time.Duration
	now      func() time.Time

	store      ehr.Store
	dispatcher Dispatcher
	logger     *logging.Logger
	metrics    *observability.Metrics

	// mu protects running, stopCh and done.
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	// tickMu is try-acquired per tick so a slow sweep skips the next
	// tick instead of stacking sweeps.
	tickMu sync.Mutex
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the sweep interval. Defaults to one minute.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

// WithClock replaces the time source used to select due reminders.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a reminder scheduler. It does not start
// sweeping until Start is called.
func NewScheduler(store ehr.Store, dispatcher Dispatcher, logger *logging.Logger, metrics *observability.Metrics, opts ...SchedulerOption) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Scheduler{
		interval:   DefaultInterval,
		now:        time.Now,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.Named("reminder"),
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", s.interval)
	}
	if s.now == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}
	return s, nil
}

// Start launches the background sweep loop. Calling Start on a running
// scheduler returns an error without launching a second loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info(context.Background(), "reminder scheduler started",
		zap.Duration("interval", s.interval),
	)

	go s.run(s.stopCh, s.done)

	return nil
}

// Stop signals the sweep loop to exit and waits for it to finish.
// Stopping a scheduler that is not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info(context.Background(), "reminder scheduler stopped")
}

// run is the sweep loop. It exits when stopCh closes and recovers
// panics so a broken sweep cannot take the loop down silently.
func (s *Scheduler) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(), "scheduler goroutine panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeSweep()
		case <-stopCh:
			return
		}
	}
}

// safeSweep runs one sweep unless the previous tick is still running,
// in which case the tick is skipped and counted.
func (s *Scheduler) safeSweep() {
	if !s.tickMu.TryLock() {
		s.metrics.RecordTick(observability.TickSkipped)
		s.logger.Warn(context.Background(), "previous sweep still running, skipping tick")
		return
	}
	defer s.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(), "reminder sweep panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	s.sweep(ctx)
	s.metrics.RecordTick(observability.TickOK)
}

// sweep pushes every reminder due at the current tick through the
// dispatcher.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()
	due, err := s.store.DueReminders(ctx, now)
	if err != nil {
		s.logger.Error(ctx, "listing due reminders failed", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debug(ctx, "sweeping due reminders", zap.Int("count", len(due)))
	for _, rem := range due {
		s.deliver(ctx, rem, now)
	}
}

// deliver claims one due reminder and dispatches it. The mark runs
// before any delivery so a reminder is dispatched at most once even
// when sweeps race; a delivery failure reverts the mark.
func (s *Scheduler) deliver(ctx context.Context, rem ehr.Reminder, now time.Time) {
	if err := s.store.MarkReminderSent(ctx, rem.ID, now); err != nil {
		if errors.Is(err, ehr.ErrReminderAlreadySent) {
			// Another sweep won the race.
			return
		}
		s.logger.Error(ctx, "marking reminder sent failed",
			zap.String("reminder_id", rem.ID),
			zap.Error(err),
		)
		return
	}

	if rem.IsGuest() {
		s.logger.Info(ctx, "guest reminder due, delivery suppressed",
			zap.String("reminder_id", rem.ID),
			zap.Time("due_at", rem.DueAt),
		)
		s.metrics.RecordReminder(observability.ReminderOutcomeGuestSuppressed)
		return
	}

	patient, err := s.store.FindPatientByID(ctx, *rem.PatientID)
	if err != nil {
		s.retryLater(ctx, rem, err)
		return
	}
	if err := s.dispatcher.Dispatch(ctx, rem, patient); err != nil {
		s.retryLater(ctx, rem, err)
		return
	}

	s.logger.Info(ctx, "reminder dispatched",
		zap.String("reminder_id", rem.ID),
		zap.String("patient_ref", patient.Ref),
		zap.String("method", string(rem.Method)),
	)
	s.metrics.RecordReminder(observability.ReminderOutcomeSent)
}

// retryLater reverts the sent mark so the reminder stays pending and is
// picked up again on the next tick.
func (s *Scheduler) retryLater(ctx context.Context, rem ehr.Reminder, cause error) {
	s.logger.Error(ctx, "reminder dispatch failed, will retry",
		zap.String("reminder_id", rem.ID),
		zap.Error(cause),
	)
	s.metrics.RecordReminder(observability.ReminderOutcomeFailed)

	if err := s.store.RevertReminderSent(ctx, rem.ID); err != nil {
		s.logger.Error(ctx, "reverting reminder mark failed",
			zap.String("reminder_id", rem.ID),
			zap.Error(err),
		)
	}
}
