package api

import (
	"context"

	"github.com/flathound/flathound/app/database"
	"github.com/flathound/flathound/app/jobs"
	"github.com/flathound/flathound/app/scheduler"
)

type OrchestratorInterface interface {
	Start()
	Stop()
	Status() jobs.Status
	PendingTasks() []scheduler.PendingTask
	Trigger(ctx context.Context, jobType string) (any, error)
}

var _ OrchestratorInterface = (*jobs.Orchestrator)(nil)

type Handler struct {
	orchestrator OrchestratorInterface
	db           jobs.Pinger
	listingRepo  database.ListingRepository
}
