package database

import (
	"context"
	"errors"

	"shrike/internal/domain"
	"shrike/internal/pool"
)

// SavePoolSnapshot persists one point-in-time view of the pool.
func SavePoolSnapshot(ctx context.Context, stats pool.Stats) error {
	if DB == nil {
		return errors.New("database: not connected")
	}

	snapshot := domain.PoolSnapshot{
		TotalCandidates:    stats.TotalCandidates,
		WorkingCount:       stats.WorkingCount,
		FailedCount:        stats.FailedCount,
		UntestedCount:      stats.UntestedCount,
		TotalAttempts:      stats.TotalAttempts,
		SuccessfulAttempts: stats.SuccessfulAttempts,
		FailedAttempts:     stats.FailedAttempts,
	}

	return DB.WithContext(ctx).Create(&snapshot).Error
}

// RecentPoolSnapshots returns up to limit snapshots, newest first.
func RecentPoolSnapshots(ctx context.Context, limit int) ([]domain.PoolSnapshot, error) {
	if DB == nil {
		return nil, errors.New("database: not connected")
	}

	var snapshots []domain.PoolSnapshot
	err := DB.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&snapshots).Error
	return snapshots, err
}
