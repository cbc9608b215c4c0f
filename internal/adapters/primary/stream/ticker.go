package stream

import "time"

// Ticker is the subset of time.Ticker the stream uses, so tests can fire
// and inspect intervals by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory starts a ticker with period d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}
