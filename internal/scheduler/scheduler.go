// Package scheduler owns the sync and enrichment job lifecycles: manual
// triggers, timer-driven runs, and status broadcasting.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lukaswerner/starmirror/internal/broadcast"
	"github.com/lukaswerner/starmirror/internal/models"
	"github.com/lukaswerner/starmirror/internal/service"
)

// ErrAlreadyRunning indicates a job of the same kind is in flight. Triggers
// conflict instead of queueing; the caller retries after the current run.
var ErrAlreadyRunning = errors.New("job already running")

const (
	jobDailySync         = "daily_sync"
	jobIncrementalReadme = "incremental_readme"

	incrementalInterval = 6 * time.Hour
	dailyHour           = 2
)

// SyncRunner runs one full mirror pass.
type SyncRunner interface {
	Run(ctx context.Context) (*service.SyncResult, error)
}

// ReadmeRunner runs one enrichment pass.
type ReadmeRunner interface {
	ProcessAll(ctx context.Context, maxRepos int, onProgress func(done, total int)) (*service.ReadmeResult, error)
}

// Scheduler coordinates the two job kinds. Sync and readme runs are
// independent and may overlap each other, but never themselves.
type Scheduler struct {
	syncer           SyncRunner
	enricher         ReadmeRunner
	hub              *broadcast.Hub
	incrementalLimit int

	mu              sync.Mutex
	sync            models.RunStatus
	readme          models.RunStatus
	nextIncremental time.Time

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a scheduler. hub may be nil when nothing subscribes.
func New(syncer SyncRunner, enricher ReadmeRunner, hub *broadcast.Hub, incrementalLimit int) *Scheduler {
	return &Scheduler{
		syncer:           syncer,
		enricher:         enricher,
		hub:              hub,
		incrementalLimit: incrementalLimit,
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// SyncStatus returns a copy of the sync job state.
func (s *Scheduler) SyncStatus() models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync
}

// ReadmeStatus returns a copy of the readme job state.
func (s *Scheduler) ReadmeStatus() models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readme
}

// Jobs describes the timer-driven jobs and their next fire times.
func (s *Scheduler) Jobs() []models.ScheduledJob {
	now := time.Now()

	s.mu.Lock()
	nextIncremental := s.nextIncremental
	s.mu.Unlock()
	if nextIncremental.IsZero() {
		// Timer loop not started; best estimate.
		nextIncremental = now.Add(incrementalInterval)
	}

	return []models.ScheduledJob{
		{ID: jobDailySync, Name: "Daily full sync and enrichment", NextRunAt: nextDaily(now)},
		{ID: jobIncrementalReadme, Name: "Incremental readme enrichment", NextRunAt: nextIncremental},
	}
}

func (s *Scheduler) setNextIncremental(t time.Time) {
	s.mu.Lock()
	s.nextIncremental = t
	s.mu.Unlock()
}

// StartSync launches a mirror run in the background. Returns
// ErrAlreadyRunning when a sync is in flight.
func (s *Scheduler) StartSync(ctx context.Context) error {
	if err := s.begin(&s.sync, "syncing starred repositories"); err != nil {
		return err
	}
	s.publishSyncStatus()

	go s.runSync(ctx)
	return nil
}

func (s *Scheduler) runSync(ctx context.Context) {
	var result *service.SyncResult
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
			slog.Error("sync run panicked", "panic", r)
		}

		processed := 0
		message := "sync complete"
		if result != nil {
			processed = result.Processed
			message = fmt.Sprintf("synced %d repositories (%d created, %d updated)",
				result.Processed, result.Created, result.Updated)
		}
		if err != nil {
			message = "sync failed: " + err.Error()
		}

		s.finish(&s.sync, processed, message)
		s.publishSyncStatus()
	}()

	result, err = s.syncer.Run(ctx)
	if err != nil {
		slog.Error("sync run failed", "error", err)
	}
}

// StartReadme launches an enrichment run in the background. maxRepos 0 means
// all repositories. Returns ErrAlreadyRunning when an enrichment is in
// flight.
func (s *Scheduler) StartReadme(ctx context.Context, maxRepos int) error {
	if err := s.begin(&s.readme, "processing readmes"); err != nil {
		return err
	}
	s.publishReadmeStatus()

	go s.runReadme(ctx, maxRepos)
	return nil
}

func (s *Scheduler) runReadme(ctx context.Context, maxRepos int) {
	var result *service.ReadmeResult
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("readme run panicked: %v", r)
			slog.Error("readme run panicked", "panic", r)
		}

		processed := 0
		message := "readme run complete"
		if result != nil {
			processed = result.Indexed
			message = fmt.Sprintf("processed %d readmes (%d indexed, %d unchanged, %d missing, %d failed)",
				result.Total, result.Indexed, result.Unchanged, result.Missing, result.Failed)
		}
		if err != nil {
			message = "readme run failed: " + err.Error()
		}

		s.finish(&s.readme, processed, message)
		s.publishReadmeStatus()
	}()

	result, err = s.enricher.ProcessAll(ctx, maxRepos, func(done, total int) {
		s.mu.Lock()
		s.readme.ProcessedCount = done
		s.mu.Unlock()

		if s.hub != nil {
			s.hub.Publish(broadcast.Event{
				Type: broadcast.EventSyncProgress,
				Data: map[string]any{"job": "readme", "done": done, "total": total},
			})
		}
	})
	if err != nil {
		slog.Error("readme run failed", "error", err)
	}
}

// begin transitions a job to running, rejecting concurrent runs of the same
// kind.
func (s *Scheduler) begin(status *models.RunStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status.Running {
		return ErrAlreadyRunning
	}
	status.RunID = uuid.New().String()
	status.Running = true
	status.ProcessedCount = 0
	status.Message = message
	return nil
}

// finish transitions a job back to idle unconditionally.
func (s *Scheduler) finish(status *models.RunStatus, processed int, message string) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	status.Running = false
	status.LastRunAt = &now
	status.ProcessedCount = processed
	status.Message = message

	// Only the enrichment job carries a next-run time; sync has no
	// schedule of its own beyond the daily combined pass.
	if status == &s.readme {
		next := time.Now().Add(incrementalInterval)
		status.NextRunAt = &next
	}
}

func (s *Scheduler) publishSyncStatus() {
	if s.hub == nil {
		return
	}
	s.hub.Publish(broadcast.Event{Type: broadcast.EventSyncStatus, Data: s.SyncStatus()})
}

func (s *Scheduler) publishReadmeStatus() {
	if s.hub == nil {
		return
	}
	s.hub.Publish(broadcast.Event{Type: broadcast.EventReadmeStatus, Data: s.ReadmeStatus()})
}

// Start launches the timer loop: a full sync plus enrichment every day at
// 02:00 local time, and an incremental enrichment pass every six hours
// capped at the configured limit. Triggers that collide with a manual run
// are skipped, not queued.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	daily := time.NewTimer(time.Until(nextDaily(time.Now())))
	defer daily.Stop()
	incremental := time.NewTicker(incrementalInterval)
	defer incremental.Stop()
	s.setNextIncremental(time.Now().Add(incrementalInterval))

	for {
		select {
		case <-daily.C:
			slog.Info("timer fired", "job", jobDailySync)
			if err := s.StartSync(ctx); err != nil {
				slog.Warn("scheduled sync skipped", "error", err)
			}
			if err := s.StartReadme(ctx, 0); err != nil {
				slog.Warn("scheduled readme run skipped", "error", err)
			}
			daily.Reset(time.Until(nextDaily(time.Now())))

		case <-incremental.C:
			s.setNextIncremental(time.Now().Add(incrementalInterval))
			slog.Info("timer fired", "job", jobIncrementalReadme)
			if err := s.StartReadme(ctx, s.incrementalLimit); err != nil {
				slog.Warn("incremental readme run skipped", "error", err)
			}

		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}
	}
}

// Stop terminates the timer loop. In-flight runs finish on their own.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// nextDaily returns the next occurrence of the daily fire time after now.
func nextDaily(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), dailyHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
