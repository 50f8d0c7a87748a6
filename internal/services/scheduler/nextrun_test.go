package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/models"
	tcommon "github.com/drewfallon/vigil/tests/common"
)

func newBareScheduler(start time.Time) (*Scheduler, *common.ManualClock) {
	clock := common.NewManualClock(start)
	s := New(tcommon.NewMemStore(), Services{}, common.NewSilentLogger(), clock,
		common.SchedulerConfig{Enabled: true}, common.IndexConfig{})
	return s, clock
}

func TestNextRun_At(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, _ := newBareScheduler(now)

	future := now.Add(time.Hour).UnixMilli()
	assert.Equal(t, future, s.nextRunMS(models.Schedule{Kind: models.ScheduleAt, AtMS: future}, now))

	past := now.Add(-time.Hour).UnixMilli()
	assert.Equal(t, int64(-1), s.nextRunMS(models.Schedule{Kind: models.ScheduleAt, AtMS: past}, now))
}

func TestNextRun_EveryAnchorArithmetic(t *testing.T) {
	s, _ := newBareScheduler(time.Unix(0, 0))

	sched := models.Schedule{Kind: models.ScheduleEvery, PeriodMS: 500, AnchorMS: 1000}

	// Mid-period lands on the next boundary.
	assert.Equal(t, int64(2000), s.nextRunMS(sched, time.UnixMilli(1700)))
	// Exactly on a boundary moves to the following one.
	assert.Equal(t, int64(2500), s.nextRunMS(sched, time.UnixMilli(2000)))
	// Before the anchor the first run is the anchor itself.
	assert.Equal(t, int64(1000), s.nextRunMS(sched, time.UnixMilli(400)))
	// At the anchor the first period starts.
	assert.Equal(t, int64(1500), s.nextRunMS(sched, time.UnixMilli(1000)))
}

func TestNextRun_EveryZeroAnchorAlignsToEpoch(t *testing.T) {
	s, _ := newBareScheduler(time.Unix(0, 0))
	sched := models.Schedule{Kind: models.ScheduleEvery, PeriodMS: 30_000}
	assert.Equal(t, int64(60_000), s.nextRunMS(sched, time.UnixMilli(45_123)))
}

func TestNextRun_CronEveryMinute(t *testing.T) {
	s, _ := newBareScheduler(time.Unix(0, 0))
	now := time.Date(2023, 11, 15, 10, 30, 20, 0, time.UTC)

	next := s.nextRunMS(models.Schedule{Kind: models.ScheduleCron, Expr: "* * * * *"}, now)
	assert.Equal(t, time.Date(2023, 11, 15, 10, 31, 0, 0, time.UTC).UnixMilli(), next)
}

func TestNextRun_CronDailyNineUTC(t *testing.T) {
	s, _ := newBareScheduler(time.Unix(0, 0))
	sched := models.Schedule{Kind: models.ScheduleCron, Expr: "0 9 * * *"}

	before := time.Date(2023, 11, 15, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2023, 11, 15, 9, 0, 0, 0, time.UTC).UnixMilli(), s.nextRunMS(sched, before))

	after := time.Date(2023, 11, 15, 9, 0, 1, 0, time.UTC)
	assert.Equal(t, time.Date(2023, 11, 16, 9, 0, 0, 0, time.UTC).UnixMilli(), s.nextRunMS(sched, after))
}

// TZ is carried on the schedule but evaluation stays in UTC.
func TestNextRun_CronTZEvaluatedAsUTC(t *testing.T) {
	s, _ := newBareScheduler(time.Unix(0, 0))
	sched := models.Schedule{Kind: models.ScheduleCron, Expr: "0 9 * * *", TZ: "Australia/Sydney"}

	now := time.Date(2023, 11, 15, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2023, 11, 15, 9, 0, 0, 0, time.UTC).UnixMilli(), s.nextRunMS(sched, now))
}

func TestNextRun_CronUnparseableFallsBackToNextMinute(t *testing.T) {
	s, _ := newBareScheduler(time.Unix(0, 0))
	now := time.Date(2023, 11, 15, 10, 30, 20, 0, time.UTC)

	next := s.nextRunMS(models.Schedule{Kind: models.ScheduleCron, Expr: "not a cron"}, now)
	assert.Equal(t, time.Date(2023, 11, 15, 10, 31, 0, 0, time.UTC).UnixMilli(), next)
}

func TestNextRun_UnknownKind(t *testing.T) {
	s, _ := newBareScheduler(time.Unix(0, 0))
	assert.Equal(t, int64(-1), s.nextRunMS(models.Schedule{Kind: "lunar"}, time.UnixMilli(1000)))
}
