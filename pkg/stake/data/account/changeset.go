package account

import (
	"errors"
)

// Transfer moves tokens between two token accounts of the same mint.
type Transfer struct {
	Source      string
	Destination string
	Amount      uint64
}

// MintTo increases a mint's supply and credits the destination. The mint's
// current authority must equal Authority.
type MintTo struct {
	Mint        string
	Destination string
	Authority   string
	Amount      uint64
}

// AuthorityChange hands a mint's authority from CurrentAuthority to
// NewAuthority. An empty NewAuthority disables minting.
type AuthorityChange struct {
	Mint             string
	CurrentAuthority string
	NewAuthority     string
}

// StakeChange adjusts a pool's total staked counter.
type StakeChange struct {
	Pool     string
	Amount   uint64
	Withdraw bool
}

// Changeset is a unit of work committed atomically by a Store. Operations are
// applied in field order.
//
// New mints and token accounts must start empty. Positions with a zero
// Version are inserted, all others are updated only if the stored version
// still matches.
type Changeset struct {
	NewMints         []*MintRecord
	NewTokenAccounts []*TokenAccountRecord
	NewPool          *PoolRecord

	AuthorityChanges []*AuthorityChange
	Transfers        []*Transfer
	MintTos          []*MintTo
	StakeChanges     []*StakeChange

	Positions []*PositionRecord
}

func (c *Changeset) Validate() error {
	if c.IsEmpty() {
		return errors.New("changeset is empty")
	}

	for _, mint := range c.NewMints {
		if err := mint.Validate(); err != nil {
			return err
		}
		if mint.Supply != 0 {
			return errors.New("new mint must have zero supply")
		}
	}

	for _, tokenAccount := range c.NewTokenAccounts {
		if err := tokenAccount.Validate(); err != nil {
			return err
		}
		if tokenAccount.Amount != 0 {
			return errors.New("new token account must be empty")
		}
	}

	if c.NewPool != nil {
		if err := c.NewPool.Validate(); err != nil {
			return err
		}
		if c.NewPool.TotalStaked != 0 {
			return errors.New("new pool must have nothing staked")
		}
	}

	for _, change := range c.AuthorityChanges {
		if len(change.Mint) == 0 || len(change.CurrentAuthority) == 0 {
			return errors.New("authority change requires a mint and current authority")
		}
	}

	for _, transfer := range c.Transfers {
		if len(transfer.Source) == 0 || len(transfer.Destination) == 0 {
			return errors.New("transfer requires a source and destination")
		}
		if transfer.Source == transfer.Destination {
			return errors.New("transfer source and destination must differ")
		}
	}

	for _, mintTo := range c.MintTos {
		if len(mintTo.Mint) == 0 || len(mintTo.Destination) == 0 || len(mintTo.Authority) == 0 {
			return errors.New("mint to requires a mint, destination and authority")
		}
	}

	for _, change := range c.StakeChanges {
		if len(change.Pool) == 0 {
			return errors.New("stake change requires a pool")
		}
	}

	seen := make(map[string]struct{})
	for _, position := range c.Positions {
		if err := position.Validate(); err != nil {
			return err
		}
		if _, ok := seen[position.Address]; ok {
			return errors.New("position written more than once")
		}
		seen[position.Address] = struct{}{}
	}

	return nil
}

func (c *Changeset) IsEmpty() bool {
	return len(c.NewMints) == 0 &&
		len(c.NewTokenAccounts) == 0 &&
		c.NewPool == nil &&
		len(c.AuthorityChanges) == 0 &&
		len(c.Transfers) == 0 &&
		len(c.MintTos) == 0 &&
		len(c.StakeChanges) == 0 &&
		len(c.Positions) == 0
}
