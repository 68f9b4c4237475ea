package ledger

import (
	"context"
	"math/bits"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

// RewardPolicy computes rewards accrued by a staked amount over a time range.
// Implementations must be deterministic.
type RewardPolicy interface {
	// Accrued returns the rewards earned by amount staked from the start time
	// until the end time. Zero is returned when end is not after start.
	Accrued(ctx context.Context, amount uint64, start, end time.Time) (uint64, error)
}

// PeriodicRatePolicy pays Numerator/Denominator of the staked amount for every
// full Period staked, pro rata by whole elapsed seconds and rounded down.
type PeriodicRatePolicy struct {
	Numerator   uint64
	Denominator uint64
	Period      time.Duration
}

func (p *PeriodicRatePolicy) Validate() error {
	if p.Denominator == 0 {
		return errors.New("reward rate denominator must be positive")
	}

	if p.Period < time.Second {
		return errors.New("reward period must be at least one second")
	}

	return nil
}

// Accrued implements RewardPolicy.Accrued as
// floor(amount * numerator * elapsed / (denominator * period)).
func (p *PeriodicRatePolicy) Accrued(_ context.Context, amount uint64, start, end time.Time) (uint64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	elapsed := end.Unix() - start.Unix()
	if elapsed <= 0 || amount == 0 || p.Numerator == 0 {
		return 0, nil
	}

	// amount * numerator * elapsed is below 2^191 and can't wrap
	dividend := uint256.NewInt(amount)
	dividend.Mul(dividend, uint256.NewInt(p.Numerator))
	dividend.Mul(dividend, uint256.NewInt(uint64(elapsed)))

	divisor := uint256.NewInt(p.Denominator)
	divisor.Mul(divisor, uint256.NewInt(uint64(p.Period/time.Second)))

	accrued := new(uint256.Int).Div(dividend, divisor)
	if !accrued.IsUint64() {
		return 0, ErrOverflow
	}
	return accrued.Uint64(), nil
}

// poolRatePolicy is the rate stored on the pool when it was initialized
func poolRatePolicy(pool *account.PoolRecord) *PeriodicRatePolicy {
	return &PeriodicRatePolicy{
		Numerator:   pool.RewardRateNumerator,
		Denominator: pool.RewardRateDenominator,
		Period:      pool.RewardPeriod,
	}
}

// owedRewards adds rewards accrued since the checkpoint to the pending amount
func owedRewards(ctx context.Context, policy RewardPolicy, amount, pending uint64, checkpoint, now time.Time) (uint64, error) {
	accrued, err := policy.Accrued(ctx, amount, checkpoint, now)
	if err != nil {
		return 0, err
	}

	return checkedAdd(pending, accrued)
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}
