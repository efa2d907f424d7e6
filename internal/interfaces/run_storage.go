package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/profiler-e2e/internal/models"
)

// ErrRunNotFound is returned when a run id is not in the ledger
var ErrRunNotFound = errors.New("run not found")

// RunStorage persists run records
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	// ListRuns returns the most recent runs first; limit <= 0 returns all
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
	DeleteRunsBefore(ctx context.Context, before time.Time) (int, error)
}
