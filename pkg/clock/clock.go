package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current instant. Billing code never calls time.Now
// directly so tests can pin "now".
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func System() Clock { return systemClock{} }

// Fixed is a Clock pinned to an instant. Advance moves it forward.
type Fixed struct {
	now time.Time
}

func NewFixed(now time.Time) *Fixed { return &Fixed{now: now} }

func (f *Fixed) Now() time.Time { return f.now }

func (f *Fixed) Advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *Fixed) Set(t time.Time) { f.now = t }

var Module = fx.Options(
	fx.Provide(System),
)
