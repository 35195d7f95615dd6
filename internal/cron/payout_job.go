package cron

import (
	"context"
	"fmt"

	"github.com/piescrow/piescrow-backend/pkg/logger"
)

const defaultMaxPayoutsPerRun = 25

// PayoutJobParams configure the disbursement queue drain.
type PayoutJobParams struct {
	Logger    *logger.Logger
	Processor payoutProcessor
	MaxPerRun int
}

type payoutProcessor interface {
	ProcessNextJob(ctx context.Context) (bool, error)
}

// NewPayoutJob builds the cron job that drains the payout queue.
func NewPayoutJob(params PayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payout processor required")
	}
	maxPerRun := params.MaxPerRun
	if maxPerRun <= 0 {
		maxPerRun = defaultMaxPayoutsPerRun
	}
	return &payoutJob{
		logg:      params.Logger,
		processor: params.Processor,
		maxPerRun: maxPerRun,
	}, nil
}

type payoutJob struct {
	logg      *logger.Logger
	processor payoutProcessor
	maxPerRun int
}

func (j *payoutJob) Name() string { return "payout-queue" }

// Run claims queue entries one at a time until the queue is idle or the
// per-run budget is spent. A failed entry is already parked by the processor,
// so the drain keeps going.
func (j *payoutJob) Run(ctx context.Context) error {
	processed := 0
	for processed < j.maxPerRun {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := j.processor.ProcessNextJob(ctx)
		if err != nil {
			return fmt.Errorf("process payout job: %w", err)
		}
		if !claimed {
			break
		}
		processed++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": processed})
	j.logg.Info(logCtx, "payout queue drain complete")
	return nil
}
