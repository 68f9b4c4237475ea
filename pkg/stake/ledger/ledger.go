package ledger

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/lock"
	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/rate"
	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/stake/auth"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
	sync_util "github.com/code-payments/code-staking/pkg/sync"
)

const (
	metricsStructName = "ledger.ledger"

	distributedLockPrefix = "stake/ledger/"
)

// Request is a signed staking program instruction
type Request struct {
	Instruction solana.Instruction
	Signatures  []solana.Signature
}

// Receipt describes a committed transition
type Receipt struct {
	Id         string
	Transition staking.InstructionType
	Signer     string

	// Tokens moved by the transition. For ClaimRewards, the amount of reward
	// tokens minted.
	Amount uint64

	Timestamp time.Time
}

// Ledger is the staking transition engine. Every transition validates all
// preconditions before committing a single changeset to the account store.
type Ledger struct {
	log  *logrus.Entry
	conf *conf

	store    account.Store
	verifier *auth.InstructionSignatureVerifier
	policy   RewardPolicy

	addresses        *deriver
	locks            *sync_util.StripedLock
	distributedLocks lock.Manager
	limiter          rate.Limiter

	now func() time.Time
}

type Option func(*Ledger)

// WithRewardPolicy replaces the periodic rate stored on the pool
func WithRewardPolicy(policy RewardPolicy) Option {
	return func(l *Ledger) {
		l.policy = policy
	}
}

// WithDistributedLocks additionally serializes transitions across processes
// sharing the account store.
func WithDistributedLocks(manager lock.Manager) Option {
	return func(l *Ledger) {
		l.distributedLocks = manager
	}
}

// WithRateLimiter limits how often a single signer can submit transitions
func WithRateLimiter(limiter rate.Limiter) Option {
	return func(l *Ledger) {
		l.limiter = limiter
	}
}

// WithClock overrides the time source used for reward checkpoints
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func New(store account.Store, configProvider ConfigProvider, opts ...Option) *Ledger {
	conf := configProvider()
	ctx := context.Background()

	l := &Ledger{
		log:       logrus.StandardLogger().WithField("type", "stake/ledger"),
		conf:      conf,
		store:     store,
		verifier:  auth.NewInstructionSignatureVerifier(),
		addresses: newDeriver(conf.derivationCacheSize.Get(ctx)),
		locks:     sync_util.NewStripedLock(uint(conf.lockStripes.Get(ctx))),
		limiter:   &rate.NoLimiter{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute authenticates and applies a staking instruction. The transition is
// either committed in full or rejected with no state change.
func (l *Ledger) Execute(ctx context.Context, req *Request) (receipt *Receipt, err error) {
	started := time.Now()
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Execute")
	defer tracer.End()

	// Rejections before the transition is decoded are recorded as unknown
	transition := staking.Unknown
	defer func() {
		transitionRecorder(ctx, transition, started, receipt, err)
		tracer.OnError(err)
	}()

	log := l.log.WithField("method", "Execute")

	decoded, err := staking.DecodeInstruction(req.Instruction)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidInstruction, err.Error())
	}
	transition = decoded.Type

	log = log.WithField("transition", decoded.Type.String())
	tracer.AddAttribute("transition", decoded.Type.String())

	identity := requiredSigner(decoded)
	if err := l.verifier.Authenticate(ctx, req.Instruction, req.Signatures, identity); err != nil {
		log.WithError(err).Debug("request is not authenticated")
		return nil, ErrUnauthorized
	}

	signer := base58.Encode(identity)
	allowed, err := l.limiter.Allow(signer)
	if err != nil {
		log.WithError(err).Warn("failure checking rate limit")
		return nil, err
	} else if !allowed {
		log.WithField("signer", signer).Debug("signer is rate limited")
		return nil, ErrRateLimited
	}

	switch decoded.Type {
	case staking.InstructionTypeInitializePool:
		receipt, err = l.initializePool(ctx, decoded.InitializePool)
	case staking.InstructionTypeStake:
		receipt, err = l.stake(ctx, decoded.Stake, decoded.StakeArgs.Amount)
	case staking.InstructionTypeUnstake:
		receipt, err = l.unstake(ctx, decoded.Unstake, decoded.UnstakeArgs.Amount)
	case staking.InstructionTypeClaimRewards:
		receipt, err = l.claimRewards(ctx, decoded.ClaimRewards)
	default:
		return nil, ErrInvalidInstruction
	}

	if err != nil {
		log.WithError(err).Info("transition rejected")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"receipt": receipt.Id,
		"signer":  receipt.Signer,
		"amount":  receipt.Amount,
	}).Debug("transition committed")
	return receipt, nil
}

// requiredSigner is the account whose signature authorizes the transition
func requiredSigner(decoded *staking.DecodedInstruction) ed25519.PublicKey {
	switch decoded.Type {
	case staking.InstructionTypeInitializePool:
		return decoded.InitializePool.Authority
	case staking.InstructionTypeStake:
		return decoded.Stake.User
	case staking.InstructionTypeUnstake:
		return decoded.Unstake.User
	case staking.InstructionTypeClaimRewards:
		return decoded.ClaimRewards.User
	}
	return nil
}

// withExclusiveAccess runs fn while holding the mutual exclusion domain for
// key, which is the user stake address for user transitions.
func (l *Ledger) withExclusiveAccess(ctx context.Context, key derivedAddress, fn func(ctx context.Context) error) error {
	unlock := l.locks.Lock(key.address)
	defer unlock()

	if l.distributedLocks == nil {
		return fn(ctx)
	}
	return lock.WithLock(ctx, l.distributedLocks, distributedLockPrefix+key.String(), fn)
}

func (l *Ledger) currentTime() time.Time {
	return l.now().UTC().Truncate(time.Second)
}

func (l *Ledger) newReceipt(transition staking.InstructionType, signer ed25519.PublicKey, amount uint64, ts time.Time) *Receipt {
	return &Receipt{
		Id:         uuid.New().String(),
		Transition: transition,
		Signer:     base58.Encode(signer),
		Amount:     amount,
		Timestamp:  ts,
	}
}

// loadPool loads the pool and its vault, checking the vault is the pool's
// canonical escrow account.
func (l *Ledger) loadPool(ctx context.Context, pool derivedAddress) (*account.PoolRecord, *account.TokenAccountRecord, error) {
	poolRecord, err := l.store.GetPool(ctx, pool.String())
	if err == account.ErrNotFound {
		return nil, nil, ErrNotInitialized
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "error getting pool")
	}

	vault, err := l.addresses.vault(pool.address)
	if err != nil {
		return nil, nil, err
	}
	if poolRecord.Vault != vault.String() || poolRecord.VaultBump != vault.bump || poolRecord.Bump != pool.bump {
		return nil, nil, ErrInvalidDerivedAddress
	}

	vaultRecord, err := l.store.GetTokenAccount(ctx, poolRecord.Vault)
	if err == account.ErrNotFound {
		return nil, nil, ErrNotInitialized
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "error getting vault")
	}
	if vaultRecord.Owner != poolRecord.Address || vaultRecord.Mint != poolRecord.StakeMint {
		return nil, nil, ErrNotInitialized
	}

	return poolRecord, vaultRecord, nil
}

// loadUserTokenAccount loads a token account the user must own, denominated in
// the expected mint.
func (l *Ledger) loadUserTokenAccount(ctx context.Context, address, user ed25519.PublicKey, mint string) (*account.TokenAccountRecord, error) {
	record, err := l.store.GetTokenAccount(ctx, base58.Encode(address))
	if err == account.ErrNotFound {
		return nil, ErrInvalidTokenAccount
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting token account")
	}

	if record.Mint != mint {
		return nil, ErrInvalidMint
	}
	if record.Owner != base58.Encode(user) {
		return nil, ErrUnauthorized
	}
	return record, nil
}

// loadPosition loads the user's stake position. ErrPositionNotFound is
// returned if the user never staked.
func (l *Ledger) loadPosition(ctx context.Context, userStake derivedAddress, user ed25519.PublicKey) (*account.PositionRecord, error) {
	position, err := l.store.GetPosition(ctx, userStake.String())
	if err == account.ErrNotFound {
		return nil, ErrPositionNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting user stake")
	}

	if position.Owner != base58.Encode(user) {
		return nil, ErrUnauthorized
	}
	return position, nil
}

// rewardPolicy is the policy accruing rewards for positions in pool
func (l *Ledger) rewardPolicy(pool *account.PoolRecord) RewardPolicy {
	if l.policy != nil {
		return l.policy
	}
	return poolRatePolicy(pool)
}

// settle folds rewards accrued since the position's checkpoint into its
// pending rewards and moves the checkpoint to now.
func (l *Ledger) settle(ctx context.Context, pool *account.PoolRecord, position *account.PositionRecord, now time.Time) error {
	owed, err := owedRewards(ctx, l.rewardPolicy(pool), position.Amount, position.PendingRewards, position.CheckpointAt, now)
	if err != nil {
		return err
	}

	position.PendingRewards = owed
	if now.After(position.CheckpointAt) {
		position.CheckpointAt = now
	}
	return nil
}
