package sync

import (
	gosync "sync"
	"time"
)

// Scheduler arms repeating timers. The returned cancel func stops the timer
// and is safe to call more than once.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// TickerScheduler runs each timer on its own goroutine.
type TickerScheduler struct{}

var _ Scheduler = TickerScheduler{}

func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	doneCh := make(chan struct{})
	go func() {
		for {
			select {
			case <-doneCh:
				ticker.Stop()
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once gosync.Once
	return func() {
		once.Do(func() {
			close(doneCh)
		})
	}
}
