package cron

import (
	"context"
	"fmt"

	"github.com/brunovalongo/fretepay-backend/internal/consolidation"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

type consolidationRunner interface {
	ProcessAllClients(ctx context.Context, trigger string) (*consolidation.RunResult, error)
}

// ConsolidationJobParams configure the scheduled consolidation run.
type ConsolidationJobParams struct {
	Logger *logger.Logger
	Engine consolidationRunner
}

// NewConsolidationJob builds the cron job that runs one consolidation pass.
func NewConsolidationJob(params ConsolidationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("consolidation engine required")
	}
	return &consolidationJob{logg: params.Logger, engine: params.Engine}, nil
}

type consolidationJob struct {
	logg   *logger.Logger
	engine consolidationRunner
}

func (j *consolidationJob) Name() string { return "consolidation_run" }

func (j *consolidationJob) Run(ctx context.Context) error {
	result, err := j.engine.ProcessAllClients(ctx, consolidation.TriggerScheduled)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		// Group failures were already counted and logged per client; the
		// job itself still succeeded.
		j.logg.Warn(j.logg.WithField(ctx, "group_errors", len(result.Errors)), "consolidation run finished with group failures")
	}
	return nil
}
