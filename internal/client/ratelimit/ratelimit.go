// Package ratelimit soft-limits the client's own outbound message rate. The
// server bans flooders outright, so the client refuses to fire messages
// faster than a sane human rate and surfaces a local warning instead of
// letting the user walk into an antiflood ban.
package ratelimit

import (
	"os"
	"strconv"

	"golang.org/x/time/rate"
)

// Guard gates outbound sends.
type Guard struct {
	limiter *rate.Limiter
}

// New builds a Guard from environment overrides, with defaults generous
// enough that only machine-speed input trips them.
func New() *Guard {
	perSec := 5.0
	if v := os.Getenv("LOULT_MSG_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			perSec = f
		}
	}

	burst := 8
	if v := os.Getenv("LOULT_MSG_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}

	return &Guard{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// NewWithRate builds a Guard with explicit parameters, for tests.
func NewWithRate(perSec float64, burst int) *Guard {
	return &Guard{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Allow reports whether one more send fits inside the rate limit.
func (g *Guard) Allow() bool {
	return g.limiter.Allow()
}
