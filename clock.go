package megarray

import "time"

// Clock is the time source used for schedule comparisons and cron
// evaluation. Inject a fake in tests to control "now".
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock (UTC).
func SystemClock() Clock { return systemClock{} }
