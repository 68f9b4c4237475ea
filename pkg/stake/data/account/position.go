package account

import (
	"errors"
	"time"
)

// PositionRecord is a user's stake in a pool. Rewards accrued before
// CheckpointAt have been folded into PendingRewards.
type PositionRecord struct {
	Id uint64

	Address string
	Pool    string
	Owner   string

	Amount         uint64
	PendingRewards uint64
	CheckpointAt   time.Time

	Bump uint8

	Version       uint64
	LastUpdatedAt time.Time
}

func (r *PositionRecord) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Pool) == 0 {
		return errors.New("pool is required")
	}

	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}

	if r.CheckpointAt.IsZero() {
		return errors.New("checkpoint is required")
	}

	return nil
}

func (r *PositionRecord) Clone() PositionRecord {
	return PositionRecord{
		Id: r.Id,

		Address: r.Address,
		Pool:    r.Pool,
		Owner:   r.Owner,

		Amount:         r.Amount,
		PendingRewards: r.PendingRewards,
		CheckpointAt:   r.CheckpointAt,

		Bump: r.Bump,

		Version:       r.Version,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}

func (r *PositionRecord) CopyTo(dst *PositionRecord) {
	dst.Id = r.Id

	dst.Address = r.Address
	dst.Pool = r.Pool
	dst.Owner = r.Owner

	dst.Amount = r.Amount
	dst.PendingRewards = r.PendingRewards
	dst.CheckpointAt = r.CheckpointAt

	dst.Bump = r.Bump

	dst.Version = r.Version
	dst.LastUpdatedAt = r.LastUpdatedAt
}
