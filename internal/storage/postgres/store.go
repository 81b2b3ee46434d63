package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stakescope/internal/model"
)

// Store provides Postgres persistence for the projected staking views.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveViews upserts pools, entries, and withdrawals in one batch. Upserts
// keep the operation idempotent across repeated syncs of the same range.
func (s *Store) SaveViews(
	ctx context.Context,
	pools []model.StakingPool,
	entries []model.StakingEntry,
	withdrawals []model.WithdrawalRecord,
) error {
	batch := &pgx.Batch{}

	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO staking_pools (
				id, total_pool, interest_rate_percent, staking_duration_days,
				min_staking, max_staking, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (id)
			DO UPDATE SET
				first_seen_block = LEAST(staking_pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ID),
			pool.TotalPool.String(),
			int64(pool.InterestRatePercent),
			int64(pool.StakingDurationDays),
			pool.MinStaking.String(),
			pool.MaxStaking.String(),
			int64(pool.FirstSeenBlock),
		)
	}

	for _, entry := range entries {
		batch.Queue(`
			INSERT INTO staking_entries (
				tx_hash, log_index, pool_id, staker, amount, interest_rate_percent,
				entered_at, referrer, withdrawn, referential_pending, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
			ON CONFLICT (tx_hash, log_index)
			DO UPDATE SET
				withdrawn = EXCLUDED.withdrawn,
				referential_pending = EXCLUDED.referential_pending,
				updated_at = now()
		`,
			entry.ID.TxHash,
			int64(entry.ID.LogIndex),
			int64(entry.PoolID),
			entry.Staker,
			entry.Amount.String(),
			int64(entry.InterestRatePercent),
			entry.EnteredAt,
			entry.Referrer,
			entry.Withdrawn,
			entry.ReferentialPending,
		)
	}

	for _, record := range withdrawals {
		batch.Queue(`
			INSERT INTO staking_withdrawals (
				tx_hash, log_index, pool_id, staker, staked_amount, interest_paid, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			record.ID.TxHash,
			int64(record.ID.LogIndex),
			int64(record.PoolID),
			record.Staker,
			record.StakedAmount.String(),
			record.InterestPaid.String(),
		)
	}

	if batch.Len() == 0 {
		return nil
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadCursor returns the last processed block for a name.
func (s *Store) LoadCursor(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("cursor name required")
	}
	var block uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM staking_sync_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return block, true, nil
}

// SaveCursor upserts the last processed block for a name.
func (s *Store) SaveCursor(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("cursor name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO staking_sync_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, block)
	return err
}
