package devices

import (
	"errors"
	"fmt"
)

// TokenBucket configures one rate-limiter dimension.
type TokenBucket struct {
	Size             uint64 `json:"size"`
	OneTimeBurst     uint64 `json:"one_time_burst"`
	RefillTimeMillis uint64 `json:"refill_time_ms"`
}

func (b TokenBucket) validate() error {
	if b.Size == 0 || b.RefillTimeMillis == 0 {
		return errors.Join(ErrInvalidRateLimiter, fmt.Errorf("token bucket size %d, refill time %dms", b.Size, b.RefillTimeMillis))
	}
	return nil
}

// RateLimiter bounds device throughput in bytes and operations per
// second. A nil bucket leaves that dimension unlimited.
type RateLimiter struct {
	Bandwidth *TokenBucket `json:"bandwidth"`
	Ops       *TokenBucket `json:"ops"`
}

// Validate checks the configured buckets. A nil limiter is valid.
func (r *RateLimiter) Validate() error {
	if r == nil {
		return nil
	}
	if r.Bandwidth != nil {
		if err := r.Bandwidth.validate(); err != nil {
			return err
		}
	}
	if r.Ops != nil {
		if err := r.Ops.validate(); err != nil {
			return err
		}
	}
	return nil
}
