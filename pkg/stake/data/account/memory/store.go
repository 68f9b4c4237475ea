package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

type store struct {
	mu            sync.Mutex
	pools         map[string]*account.PoolRecord
	positions     map[string]*account.PositionRecord
	mints         map[string]*account.MintRecord
	tokenAccounts map[string]*account.TokenAccountRecord
	last          uint64
}

// New returns a new in memory account.Store
func New() account.Store {
	return &store{
		pools:         make(map[string]*account.PoolRecord),
		positions:     make(map[string]*account.PositionRecord),
		mints:         make(map[string]*account.MintRecord),
		tokenAccounts: make(map[string]*account.TokenAccountRecord),
	}
}

// GetPool implements account.Store.GetPool
func (s *store) GetPool(_ context.Context, address string) (*account.PoolRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.pools[address]
	if !ok {
		return nil, account.ErrNotFound
	}
	cloned := item.Clone()
	return &cloned, nil
}

// GetPosition implements account.Store.GetPosition
func (s *store) GetPosition(_ context.Context, address string) (*account.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.positions[address]
	if !ok {
		return nil, account.ErrNotFound
	}
	cloned := item.Clone()
	return &cloned, nil
}

// GetAllPositions implements account.Store.GetAllPositions
func (s *store) GetAllPositions(_ context.Context, pool string) ([]*account.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []*account.PositionRecord
	for _, item := range s.positions {
		if item.Pool != pool {
			continue
		}
		cloned := item.Clone()
		res = append(res, &cloned)
	}

	if len(res) == 0 {
		return nil, account.ErrNotFound
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Address < res[j].Address
	})
	return res, nil
}

// GetMint implements account.Store.GetMint
func (s *store) GetMint(_ context.Context, address string) (*account.MintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.mints[address]
	if !ok {
		return nil, account.ErrNotFound
	}
	cloned := item.Clone()
	return &cloned, nil
}

// GetTokenAccount implements account.Store.GetTokenAccount
func (s *store) GetTokenAccount(_ context.Context, address string) (*account.TokenAccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.tokenAccounts[address]
	if !ok {
		return nil, account.ErrNotFound
	}
	cloned := item.Clone()
	return &cloned, nil
}

// GetStakeSummary implements account.Store.GetStakeSummary
func (s *store) GetStakeSummary(_ context.Context, pool string) (*account.StakeSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poolRecord, ok := s.pools[pool]
	if !ok {
		return nil, account.ErrNotFound
	}

	vault, ok := s.tokenAccounts[poolRecord.Vault]
	if !ok {
		return nil, account.ErrNotFound
	}

	res := &account.StakeSummary{
		Pool:         pool,
		TotalStaked:  poolRecord.TotalStaked,
		VaultBalance: vault.Amount,
	}
	for _, item := range s.positions {
		if item.Pool != pool {
			continue
		}

		if res.PositionSum > math.MaxUint64-item.Amount {
			return nil, account.ErrOverflow
		}
		res.PositionSum += item.Amount
		res.PositionCount++
	}
	return res, nil
}

// Commit implements account.Store.Commit
func (s *store) Commit(_ context.Context, changeset *account.Changeset) error {
	if err := changeset.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	staged := s.stage()

	for _, record := range changeset.NewMints {
		if staged.mint(record.Address) != nil {
			return account.ErrAlreadyExists
		}
		cloned := record.Clone()
		cloned.CreatedAt = now
		staged.mints[record.Address] = &cloned
	}

	for _, record := range changeset.NewTokenAccounts {
		if staged.tokenAccount(record.Address) != nil {
			return account.ErrAlreadyExists
		}
		if staged.mint(record.Mint) == nil {
			return account.ErrNotFound
		}
		cloned := record.Clone()
		cloned.CreatedAt = now
		staged.tokenAccounts[record.Address] = &cloned
	}

	if record := changeset.NewPool; record != nil {
		if staged.pool(record.Address) != nil {
			return account.ErrAlreadyExists
		}
		cloned := record.Clone()
		cloned.CreatedAt = now
		staged.pools[record.Address] = &cloned
	}

	for _, change := range changeset.AuthorityChanges {
		mint := staged.mint(change.Mint)
		if mint == nil {
			return account.ErrNotFound
		}
		if mint.Authority != change.CurrentAuthority {
			return account.ErrAuthorityMismatch
		}
		mint.Authority = change.NewAuthority
	}

	for _, transfer := range changeset.Transfers {
		source := staged.tokenAccount(transfer.Source)
		destination := staged.tokenAccount(transfer.Destination)
		if source == nil || destination == nil {
			return account.ErrNotFound
		}
		if source.Mint != destination.Mint {
			return account.ErrMintMismatch
		}
		if source.Amount < transfer.Amount {
			return account.ErrInsufficientBalance
		}
		if destination.Amount > math.MaxUint64-transfer.Amount {
			return account.ErrOverflow
		}
		source.Amount -= transfer.Amount
		destination.Amount += transfer.Amount
	}

	for _, mintTo := range changeset.MintTos {
		mint := staged.mint(mintTo.Mint)
		destination := staged.tokenAccount(mintTo.Destination)
		if mint == nil || destination == nil {
			return account.ErrNotFound
		}
		if mint.Authority != mintTo.Authority {
			return account.ErrAuthorityMismatch
		}
		if destination.Mint != mint.Address {
			return account.ErrMintMismatch
		}
		if mint.Supply > math.MaxUint64-mintTo.Amount || destination.Amount > math.MaxUint64-mintTo.Amount {
			return account.ErrOverflow
		}
		mint.Supply += mintTo.Amount
		destination.Amount += mintTo.Amount
	}

	for _, change := range changeset.StakeChanges {
		pool := staged.pool(change.Pool)
		if pool == nil {
			return account.ErrNotFound
		}
		if change.Withdraw {
			if pool.TotalStaked < change.Amount {
				return account.ErrInsufficientBalance
			}
			pool.TotalStaked -= change.Amount
		} else {
			if pool.TotalStaked > math.MaxUint64-change.Amount {
				return account.ErrOverflow
			}
			pool.TotalStaked += change.Amount
		}
	}

	for _, record := range changeset.Positions {
		existing := staged.position(record.Address)
		if record.Version == 0 && existing != nil {
			return account.ErrStaleVersion
		}
		if record.Version > 0 {
			if existing == nil {
				return account.ErrNotFound
			}
			if existing.Version != record.Version {
				return account.ErrStaleVersion
			}
		}
		if staged.pool(record.Pool) == nil {
			return account.ErrNotFound
		}

		cloned := record.Clone()
		if existing != nil {
			cloned.Id = existing.Id
		}
		cloned.Version++
		cloned.LastUpdatedAt = now
		staged.positions[record.Address] = &cloned
	}

	s.apply(staged)

	for _, record := range changeset.NewMints {
		s.mints[record.Address].CopyTo(record)
	}
	for _, record := range changeset.NewTokenAccounts {
		s.tokenAccounts[record.Address].CopyTo(record)
	}
	if record := changeset.NewPool; record != nil {
		s.pools[record.Address].CopyTo(record)
	}
	for _, record := range changeset.Positions {
		s.positions[record.Address].CopyTo(record)
	}

	return nil
}

// stagedState holds copy-on-write versions of every record touched by a
// changeset, so a failed commit leaves the store untouched.
type stagedState struct {
	s *store

	pools         map[string]*account.PoolRecord
	positions     map[string]*account.PositionRecord
	mints         map[string]*account.MintRecord
	tokenAccounts map[string]*account.TokenAccountRecord
}

func (s *store) stage() *stagedState {
	return &stagedState{
		s:             s,
		pools:         make(map[string]*account.PoolRecord),
		positions:     make(map[string]*account.PositionRecord),
		mints:         make(map[string]*account.MintRecord),
		tokenAccounts: make(map[string]*account.TokenAccountRecord),
	}
}

func (t *stagedState) pool(address string) *account.PoolRecord {
	if item, ok := t.pools[address]; ok {
		return item
	}
	item, ok := t.s.pools[address]
	if !ok {
		return nil
	}
	cloned := item.Clone()
	t.pools[address] = &cloned
	return &cloned
}

func (t *stagedState) position(address string) *account.PositionRecord {
	if item, ok := t.positions[address]; ok {
		return item
	}
	item, ok := t.s.positions[address]
	if !ok {
		return nil
	}
	cloned := item.Clone()
	t.positions[address] = &cloned
	return &cloned
}

func (t *stagedState) mint(address string) *account.MintRecord {
	if item, ok := t.mints[address]; ok {
		return item
	}
	item, ok := t.s.mints[address]
	if !ok {
		return nil
	}
	cloned := item.Clone()
	t.mints[address] = &cloned
	return &cloned
}

func (t *stagedState) tokenAccount(address string) *account.TokenAccountRecord {
	if item, ok := t.tokenAccounts[address]; ok {
		return item
	}
	item, ok := t.s.tokenAccounts[address]
	if !ok {
		return nil
	}
	cloned := item.Clone()
	t.tokenAccounts[address] = &cloned
	return &cloned
}

func (s *store) apply(staged *stagedState) {
	for address, item := range staged.mints {
		if item.Id == 0 {
			s.last++
			item.Id = s.last
		}
		s.mints[address] = item
	}
	for address, item := range staged.tokenAccounts {
		if item.Id == 0 {
			s.last++
			item.Id = s.last
		}
		s.tokenAccounts[address] = item
	}
	for address, item := range staged.pools {
		if item.Id == 0 {
			s.last++
			item.Id = s.last
		}
		s.pools[address] = item
	}
	for address, item := range staged.positions {
		if item.Id == 0 {
			s.last++
			item.Id = s.last
		}
		s.positions[address] = item
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools = make(map[string]*account.PoolRecord)
	s.positions = make(map[string]*account.PositionRecord)
	s.mints = make(map[string]*account.MintRecord)
	s.tokenAccounts = make(map[string]*account.TokenAccountRecord)
	s.last = 0
}
