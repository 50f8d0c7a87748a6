package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Schedule kinds.
const (
	ScheduleAt    = "at"
	ScheduleEvery = "every"
	ScheduleCron  = "cron"
)

// Schedule is the tagged schedule of a cron job. Exactly one kind's fields
// are meaningful:
//
//	at:    AtMS
//	every: PeriodMS, optional AnchorMS
//	cron:  Expr (5-field "m h dom mon dow"), optional TZ (evaluated as UTC)
type Schedule struct {
	Kind     string `json:"kind"`
	AtMS     int64  `json:"at_ms,omitempty"`
	PeriodMS int64  `json:"period_ms,omitempty"`
	AnchorMS int64  `json:"anchor_ms,omitempty"`
	Expr     string `json:"expr,omitempty"`
	TZ       string `json:"tz,omitempty"`
}

// Validate rejects structurally impossible schedules. Cron expression
// parseability is checked by the scheduler, which falls back to "next
// minute" rather than rejecting.
func (s *Schedule) Validate() error {
	switch s.Kind {
	case ScheduleAt:
		if s.AtMS <= 0 {
			return fmt.Errorf("at schedule requires at_ms")
		}
	case ScheduleEvery:
		if s.PeriodMS <= 0 {
			return fmt.Errorf("every schedule requires positive period_ms")
		}
	case ScheduleCron:
		if s.Expr == "" {
			return fmt.Errorf("cron schedule requires expr")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}

// Payload kinds dispatched by the scheduler.
const (
	PayloadAlertScan     = "alert_scan"
	PayloadAlertSingle   = "alert_single"
	PayloadMarketCheck   = "market_check"
	PayloadPortfolioSync = "portfolio_sync"
	PayloadDailyDigest   = "daily_digest"
	PayloadStopLossScan  = "stop_loss_scan"
	PayloadIndexSync     = "index_sync"
	PayloadAgentTurn     = "agent_turn"
	PayloadSystemEvent   = "system_event"
)

// Payload is the tagged work description of a cron job. Unknown kinds are
// preserved on load and treated as no-ops at dispatch for forward
// compatibility.
type Payload struct {
	Kind     string `json:"kind"`
	AlertID  string `json:"alert_id,omitempty"`
	MarketID string `json:"market_id,omitempty"`
	Venue    Venue  `json:"venue,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Job status constants
const (
	JobStatusOK    = "ok"
	JobStatusError = "error"
)

// JobState tracks run bookkeeping for a cron job. RunningAtMS doubles as the
// execution lease: non-zero means an invocation holds the job.
type JobState struct {
	NextRunAtMS    int64  `json:"next_run_at_ms,omitempty"`
	RunningAtMS    int64  `json:"running_at_ms,omitempty"`
	LastRunAtMS    int64  `json:"last_run_at_ms,omitempty"`
	LastStatus     string `json:"last_status,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	LastDurationMS int64  `json:"last_duration_ms,omitempty"`
}

// CronJob is a persisted scheduled job.
type CronJob struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	SessionTarget  string   `json:"session_target,omitempty"`
	WakeMode       string   `json:"wake_mode,omitempty"`
	DeleteAfterRun bool     `json:"delete_after_run,omitempty"`
	State          JobState `json:"state"`
	CreatedAtMS    int64    `json:"created_at_ms"`
	UpdatedAtMS    int64    `json:"updated_at_ms"`
}

// IsOneShot reports whether the job should be removed after a successful run.
func (j *CronJob) IsOneShot() bool {
	return j.Schedule.Kind == ScheduleAt && j.DeleteAfterRun
}

// EncodeCronJob serializes a job for the cron_jobs data column.
func EncodeCronJob(j *CronJob) (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("encode cron job: %w", err)
	}
	return string(b), nil
}

// DecodeCronJob deserializes a cron_jobs data column.
func DecodeCronJob(data string) (*CronJob, error) {
	var j CronJob
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("decode cron job: %w", err)
	}
	return &j, nil
}

// JobEvent is broadcast via WebSocket when job state changes.
type JobEvent struct {
	Type      string    `json:"type"` // "job_started", "job_completed", "job_failed", "job_skipped"
	JobID     string    `json:"job_id"`
	JobName   string    `json:"job_name"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
