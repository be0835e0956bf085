package queue

import "time"

// RetryPolicy bounds connection establishment retries. Sleep is injectable so
// tests exercise the retry loop without real delays.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Sleep    func(time.Duration)
}

// DefaultRetryPolicy mirrors the configured storage defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 2 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	return p
}

// Run invokes op up to Attempts times, sleeping Delay between failures.
// The last error is returned when every attempt fails.
func (p RetryPolicy) Run(op func() error) error {
	p = p.normalized()
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 && p.Delay > 0 {
			p.Sleep(p.Delay)
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
