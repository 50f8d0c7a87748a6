package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/drewfallon/vigil/internal/models"
)

// cronParser accepts the standard 5-field "m h dom mon dow" form.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// nextRunMS computes the next run of a schedule after now, in unix
// milliseconds. Returns -1 when the schedule will never fire again (a
// one-time At in the past).
//
// Cron tz is accepted but the expression is evaluated in UTC; a per-zone
// evaluation would break determinism under the injected clock.
func (s *Scheduler) nextRunMS(sched models.Schedule, now time.Time) int64 {
	nowMS := now.UnixMilli()
	switch sched.Kind {
	case models.ScheduleAt:
		if sched.AtMS > nowMS {
			return sched.AtMS
		}
		return -1

	case models.ScheduleEvery:
		anchor := sched.AnchorMS
		if nowMS < anchor {
			return anchor
		}
		elapsed := nowMS - anchor
		return anchor + (elapsed/sched.PeriodMS+1)*sched.PeriodMS

	case models.ScheduleCron:
		spec, err := cronParser.Parse(sched.Expr)
		if err != nil {
			s.logger.Warn().
				Str("expr", sched.Expr).
				Err(err).
				Msg("Unparseable cron expression, falling back to next minute")
			return now.UTC().Truncate(time.Minute).Add(time.Minute).UnixMilli()
		}
		return spec.Next(now.UTC()).UnixMilli()

	default:
		return -1
	}
}
