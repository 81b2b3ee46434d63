package storage

import (
	"context"

	"stakescope/internal/model"
)

// Storage persists projected views and the sync cursor.
type Storage interface {
	SaveViews(ctx context.Context, pools []model.StakingPool, entries []model.StakingEntry, withdrawals []model.WithdrawalRecord) error
	SaveCursor(ctx context.Context, name string, block uint64) error
	LoadCursor(ctx context.Context, name string) (uint64, bool, error)
}
