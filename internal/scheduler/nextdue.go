package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard 5-field form: minute, hour, day-of-month,
// month, day-of-week.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextDue computes the next activation of a cron expression strictly after
// now. A malformed expression returns an error; callers fail closed.
func NextDue(expr string, now time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing schedule expression %q: %w", expr, err)
	}
	return sched.Next(now), nil
}
