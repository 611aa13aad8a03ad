package domain

import "time"

// PoolSnapshot is a periodic persisted view of the pool, used for
// observing pool health over time. The live counters themselves stay
// in-memory and reset on restart.
type PoolSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	TotalCandidates    int    `gorm:"not null" json:"total_candidates"`
	WorkingCount       int    `gorm:"not null" json:"working_count"`
	FailedCount        int    `gorm:"not null" json:"failed_count"`
	UntestedCount      int    `gorm:"not null" json:"untested_count"`
	TotalAttempts      uint64 `gorm:"not null" json:"total_attempts"`
	SuccessfulAttempts uint64 `gorm:"not null" json:"successful_attempts"`
	FailedAttempts     uint64 `gorm:"not null" json:"failed_attempts"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
