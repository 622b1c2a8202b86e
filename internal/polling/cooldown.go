package polling

import (
	"time"

	"golang.org/x/time/rate"
)

// Cooldown lets at most one alert through per window.
type Cooldown struct {
	limiter *rate.Limiter
}

// NewCooldown returns a gate that opens once per window. A window <= 0
// never blocks.
func NewCooldown(window time.Duration) *Cooldown {
	limit := rate.Inf
	if window > 0 {
		limit = rate.Every(window)
	}
	return &Cooldown{limiter: rate.NewLimiter(limit, 1)}
}

// Allow reports whether an alert may fire at now and consumes the window if so.
func (c *Cooldown) Allow(now time.Time) bool {
	return c.limiter.AllowN(now, 1)
}
