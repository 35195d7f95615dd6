package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/piescrow/piescrow-backend/pkg/enums"
	"github.com/piescrow/piescrow-backend/pkg/logger"
)

const defaultOrderTTL = 240 * time.Hour

// OrderTTLJobParams configure the stale order expiry job.
type OrderTTLJobParams struct {
	Logger *logger.Logger
	Orders staleOrderExpirer
	TTL    time.Duration
}

type staleOrderExpirer interface {
	ExpireStaleBefore(ctx context.Context, statuses []enums.OrderStatus, cutoff time.Time) (int64, error)
}

// expirableStatuses are the pre-funding states an abandoned order can sit in.
// A funded order never expires from inactivity.
var expirableStatuses = []enums.OrderStatus{
	enums.OrderStatusInitiated,
	enums.OrderStatusRequested,
}

// NewOrderTTLJob builds the cron job that expires orders never funded.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	return &orderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

type orderTTLJob struct {
	logg   *logger.Logger
	orders staleOrderExpirer
	ttl    time.Duration
	now    func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.orders.ExpireStaleBefore(ctx, expirableStatuses, cutoff)
	if err != nil {
		return fmt.Errorf("expire stale orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff": cutoff,
		"count":  expired,
	})
	j.logg.Info(logCtx, "order expiration complete")
	return nil
}
