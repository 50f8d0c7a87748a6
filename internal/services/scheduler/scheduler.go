// Package scheduler runs the persistent cron job table: default scan jobs,
// one-shot reminders, and cron-expression jobs, with job lifecycle events
// broadcast over WebSocket.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

// Default job ids. Jobs with these ids are (re)created on Start when their
// configured interval is non-zero.
const (
	JobAlertScan     = "alert-scan"
	JobPortfolioSync = "portfolio-sync"
	JobDailyDigest   = "daily-digest"
	JobStopLossScan  = "stoploss-scan"
	JobIndexSync     = "index-sync"
)

// Services are the dispatch targets for job payloads.
type Services struct {
	Alert     interfaces.AlertService
	Portfolio interfaces.PortfolioService
	StopLoss  interfaces.StopLossService
	Digest    interfaces.DigestService
	Index     interfaces.MarketIndexService
	Notifier  interfaces.NotifierService
}

// Scheduler owns the cron job table. At most one execution per job id is in
// flight at a time: an in-process set serializes timer and tick firings, and
// the persisted RunningAtMS lease guards across restarts.
type Scheduler struct {
	storage  interfaces.StorageManager
	services Services
	logger   *common.Logger
	clock    common.Clock
	config   common.SchedulerConfig
	indexCfg common.IndexConfig
	hub      *Hub

	mu       sync.Mutex
	timers   map[string]*time.Timer
	inflight map[string]struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a scheduler.
func New(
	storage interfaces.StorageManager,
	services Services,
	logger *common.Logger,
	clock common.Clock,
	config common.SchedulerConfig,
	indexCfg common.IndexConfig,
) *Scheduler {
	return &Scheduler{
		storage:  storage,
		services: services,
		logger:   logger,
		clock:    clock,
		config:   config,
		indexCfg: indexCfg,
		hub:      NewHub(logger),
		timers:   map[string]*time.Timer{},
		inflight: map[string]struct{}{},
	}
}

// Hub exposes the job event hub for /ws/jobs registration.
func (s *Scheduler) Hub() *Hub {
	return s.hub
}

// safeGo launches a goroutine with panic recovery.
func (s *Scheduler) safeGo(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in scheduler goroutine")
			}
		}()
		fn()
	}()
}

// Start loads the job table, recovers stale leases, ensures default jobs,
// arms per-job timers, and runs the catch-up tick loop. Safe to call again
// after Stop.
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}
	if s.cancel != nil {
		s.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.ensureDefaultJobs(ctx); err != nil {
		cancel()
		s.cancel = nil
		return err
	}

	jobs, err := s.storage.CronStore().List(ctx)
	if err != nil {
		cancel()
		s.cancel = nil
		return fmt.Errorf("load cron jobs: %w", err)
	}

	now := s.clock.Now()
	for _, job := range jobs {
		if s.recoverJob(ctx, job, now) {
			s.armTimer(ctx, job)
		}
	}

	s.safeGo("event-hub", func() { s.hub.Run() })
	s.safeGo("tick-loop", func() { s.tickLoop(ctx) })

	s.logger.Info().
		Int("jobs", len(jobs)).
		Dur("tick", s.config.GetTick()).
		Msg("Scheduler started")
	return nil
}

// Stop cancels timers and loops and waits up to the drain timeout for
// in-flight jobs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.hub.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("Scheduler stopped")
	case <-time.After(s.config.GetDrainTimeout()):
		s.logger.Warn().Msg("Scheduler drain timeout expired with jobs in flight")
	}
}

// ensureDefaultJobs creates the built-in scan jobs that are missing. A zero
// interval disables the corresponding job.
func (s *Scheduler) ensureDefaultJobs(ctx context.Context) error {
	defaults := []struct {
		id       string
		name     string
		kind     string
		periodMS int64
	}{
		{JobAlertScan, "Alert scan", models.PayloadAlertScan, s.config.AlertIntervalMS},
		{JobPortfolioSync, "Portfolio sync", models.PayloadPortfolioSync, s.config.PortfolioIntervalMS},
		{JobDailyDigest, "Daily digest", models.PayloadDailyDigest, s.config.DigestIntervalMS},
		{JobStopLossScan, "Stop-loss scan", models.PayloadStopLossScan, s.config.StopLossIntervalMS},
		{JobIndexSync, "Market index sync", models.PayloadIndexSync, s.indexCfg.SyncIntervalMS},
	}

	nowMS := s.clock.Now().UnixMilli()
	for _, d := range defaults {
		if d.periodMS <= 0 {
			continue
		}
		if _, err := s.storage.CronStore().Get(ctx, d.id); err == nil {
			continue
		}
		job := &models.CronJob{
			ID:      d.id,
			Name:    d.name,
			Enabled: true,
			Schedule: models.Schedule{
				Kind:     models.ScheduleEvery,
				PeriodMS: d.periodMS,
				AnchorMS: nowMS,
			},
			Payload:     models.Payload{Kind: d.kind},
			CreatedAtMS: nowMS,
			UpdatedAtMS: nowMS,
		}
		job.State.NextRunAtMS = s.nextRunMS(job.Schedule, s.clock.Now())
		if err := s.storage.CronStore().Upsert(ctx, job); err != nil {
			return fmt.Errorf("create default job %s: %w", d.id, err)
		}
		s.logger.Info().Str("job_id", d.id).Int64("period_ms", d.periodMS).Msg("Created default job")
	}
	return nil
}

// recoverJob clears a stale execution lease and recomputes the next run.
// Returns true when the job should get a timer.
func (s *Scheduler) recoverJob(ctx context.Context, job *models.CronJob, now time.Time) bool {
	changed := false
	if job.State.RunningAtMS != 0 {
		s.logger.Warn().
			Str("job_id", job.ID).
			Int64("running_at_ms", job.State.RunningAtMS).
			Msg("Clearing stale execution lease")
		job.State.RunningAtMS = 0
		changed = true
	}

	if err := job.Schedule.Validate(); err != nil {
		if job.Enabled {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Disabling job with invalid schedule")
			job.Enabled = false
			changed = true
			s.broadcast("job_skipped", job, err.Error())
		}
	} else if next := s.nextRunMS(job.Schedule, now); next != job.State.NextRunAtMS {
		job.State.NextRunAtMS = next
		changed = true
	}

	if changed {
		job.UpdatedAtMS = now.UnixMilli()
		if err := s.storage.CronStore().Upsert(ctx, job); err != nil {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to persist recovered job")
		}
	}
	return job.Enabled && job.State.NextRunAtMS > 0
}

// armTimer schedules a one-shot timer for the job's next run.
func (s *Scheduler) armTimer(ctx context.Context, job *models.CronJob) {
	delay := time.Duration(job.State.NextRunAtMS-s.clock.Now().UnixMilli()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	id := job.ID
	s.mu.Lock()
	if old, ok := s.timers[id]; ok {
		old.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.safeGo("job-"+id, func() { s.runJob(ctx, id) })
	})
	s.mu.Unlock()
}

// tickLoop catches up jobs whose timers were lost or whose next run slipped
// into the past.
func (s *Scheduler) tickLoop(ctx context.Context) {
	for {
		if err := s.clock.Sleep(ctx, s.config.GetTick()); err != nil {
			return
		}
		s.runDue(ctx)
	}
}

// runDue runs every enabled, unleased job whose next run is in the past.
func (s *Scheduler) runDue(ctx context.Context) {
	jobs, err := s.storage.CronStore().List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Catch-up tick failed to list jobs")
		return
	}
	nowMS := s.clock.Now().UnixMilli()
	for _, job := range jobs {
		if !job.Enabled || job.State.RunningAtMS != 0 {
			continue
		}
		if job.State.NextRunAtMS <= 0 || job.State.NextRunAtMS > nowMS {
			continue
		}
		id := job.ID
		s.safeGo("job-"+id, func() { s.runJob(ctx, id) })
	}
}

// runJob executes one job under the RunningAtMS lease, persisting every
// state change and broadcasting lifecycle events.
func (s *Scheduler) runJob(ctx context.Context, jobID string) {
	// A per-job timer and the catch-up tick can both fire for the same id.
	// The in-flight set closes the window between reading the persisted
	// lease and writing it; the RunningAtMS lease still guards across
	// processes and restarts.
	s.mu.Lock()
	if _, busy := s.inflight[jobID]; busy {
		s.mu.Unlock()
		s.hub.Broadcast(models.JobEvent{
			Type:      "job_skipped",
			JobID:     jobID,
			Reason:    "already running",
			Timestamp: s.clock.Now().UTC(),
		})
		return
	}
	s.inflight[jobID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, jobID)
		s.mu.Unlock()
	}()

	store := s.storage.CronStore()
	job, err := store.Get(ctx, jobID)
	if err != nil {
		s.logger.Warn().Str("job_id", jobID).Err(err).Msg("Job vanished before execution")
		return
	}
	if !job.Enabled {
		return
	}
	if job.State.RunningAtMS != 0 {
		s.broadcast("job_skipped", job, "already running")
		return
	}

	start := s.clock.Now()
	job.State.RunningAtMS = start.UnixMilli()
	job.UpdatedAtMS = start.UnixMilli()
	if err := store.Upsert(ctx, job); err != nil {
		s.logger.Warn().Str("job_id", jobID).Err(err).Msg("Failed to take execution lease")
		return
	}
	s.broadcast("job_started", job, "")

	execErr := s.dispatch(ctx, job)
	end := s.clock.Now()

	job.State.RunningAtMS = 0
	job.State.LastRunAtMS = start.UnixMilli()
	job.State.LastDurationMS = end.Sub(start).Milliseconds()
	if execErr != nil {
		job.State.LastStatus = models.JobStatusError
		job.State.LastError = execErr.Error()
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("kind", job.Payload.Kind).
			Int64("duration_ms", job.State.LastDurationMS).
			Err(execErr).
			Msg("Job failed")
	} else {
		job.State.LastStatus = models.JobStatusOK
		job.State.LastError = ""
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("kind", job.Payload.Kind).
			Int64("duration_ms", job.State.LastDurationMS).
			Msg("Job completed")
	}

	if execErr == nil && job.IsOneShot() {
		if err := store.Delete(ctx, job.ID); err != nil {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to delete one-shot job")
		}
		s.broadcast("job_completed", job, "")
		return
	}

	// Non-At jobs reschedule even on error; a passed At job simply has no
	// next run.
	job.State.NextRunAtMS = s.nextRunMS(job.Schedule, end)
	job.UpdatedAtMS = end.UnixMilli()
	if err := store.Upsert(ctx, job); err != nil {
		s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to persist job state")
	}

	if execErr != nil {
		s.broadcast("job_failed", job, execErr.Error())
	} else {
		s.broadcast("job_completed", job, "")
	}

	if job.State.NextRunAtMS > 0 && ctx.Err() == nil {
		s.armTimer(ctx, job)
	}
}

// dispatch routes a payload to its service. Unknown kinds warn and no-op for
// forward compatibility.
func (s *Scheduler) dispatch(ctx context.Context, job *models.CronJob) error {
	p := job.Payload
	switch p.Kind {
	case models.PayloadAlertScan:
		return s.services.Alert.ScanAll(ctx)
	case models.PayloadAlertSingle:
		return s.services.Alert.ScanOne(ctx, p.AlertID)
	case models.PayloadMarketCheck:
		return s.services.Alert.CheckMarket(ctx, p.Venue, p.MarketID)
	case models.PayloadPortfolioSync:
		if p.UserID != "" {
			return s.services.Portfolio.SyncUser(ctx, p.UserID)
		}
		return s.services.Portfolio.SyncAll(ctx)
	case models.PayloadDailyDigest:
		return s.services.Digest.RunAll(ctx)
	case models.PayloadStopLossScan:
		if p.UserID != "" {
			return s.services.StopLoss.ScanUser(ctx, p.UserID)
		}
		return s.services.StopLoss.ScanAll(ctx)
	case models.PayloadIndexSync:
		_, err := s.services.Index.Sync(ctx, interfaces.IndexSyncOptions{Prune: true})
		return err
	case models.PayloadSystemEvent:
		if p.UserID == "" || p.Text == "" {
			s.logger.Warn().Str("job_id", job.ID).Msg("System event payload missing user or text")
			return nil
		}
		return s.services.Notifier.NotifyUser(ctx, p.UserID, p.Text)
	case models.PayloadAgentTurn:
		// Agent turns are routed by an external subsystem.
		s.logger.Warn().Str("job_id", job.ID).Msg("Agent turn payload has no local handler")
		return nil
	default:
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("kind", p.Kind).
			Msg("Unknown payload kind, skipping")
		return nil
	}
}

func (s *Scheduler) broadcast(eventType string, job *models.CronJob, reason string) {
	s.hub.Broadcast(models.JobEvent{
		Type:      eventType,
		JobID:     job.ID,
		JobName:   job.Name,
		Reason:    reason,
		Timestamp: s.clock.Now().UTC(),
	})
}
