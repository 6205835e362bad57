package ec2

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/olivierlemasle/cloud-init/internal/core/ports"
)

const (
	defaultRateLimitRPS = 10
	minRateLimitRPS     = 1
	maxRateLimitRPS     = 100
)

var (
	imdsLimiter *rate.Limiter
	limiterOnce sync.Once
)

// InitializeLimiter bounds the request rate against the metadata service.
// IMDS throttles aggressively; pacing requests keeps the probe inside the
// instance's allowance.
func InitializeLimiter(rps int, logger ports.Logger) {
	limiterOnce.Do(func() {
		limitValue := defaultRateLimitRPS
		if rps >= minRateLimitRPS && rps <= maxRateLimitRPS {
			limitValue = rps
		} else if rps != 0 {
			logger.Warnf(nil, "Invalid IMDS RPS configured (%d), using default %d RPS. Valid range: %d-%d.", rps, defaultRateLimitRPS, minRateLimitRPS, maxRateLimitRPS)
		}
		imdsLimiter = rate.NewLimiter(rate.Limit(limitValue), limitValue)
	})
}

func waitLimiter(ctx context.Context, logger ports.Logger) error {
	if imdsLimiter == nil {
		InitializeLimiter(defaultRateLimitRPS, logger)
	}
	if err := imdsLimiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Warnf(ctx, "Error waiting for IMDS rate limiter: %v", err)
		}
		return err
	}
	return nil
}
