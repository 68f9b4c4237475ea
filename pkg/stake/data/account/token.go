package account

import (
	"errors"
	"time"
)

type MintRecord struct {
	Id uint64

	Address string

	// Authority is empty when minting has been permanently disabled
	Authority string
	Decimals  uint8
	Supply    uint64

	CreatedAt time.Time
}

func (r *MintRecord) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	return nil
}

func (r *MintRecord) Clone() MintRecord {
	return MintRecord{
		Id: r.Id,

		Address: r.Address,

		Authority: r.Authority,
		Decimals:  r.Decimals,
		Supply:    r.Supply,

		CreatedAt: r.CreatedAt,
	}
}

func (r *MintRecord) CopyTo(dst *MintRecord) {
	dst.Id = r.Id

	dst.Address = r.Address

	dst.Authority = r.Authority
	dst.Decimals = r.Decimals
	dst.Supply = r.Supply

	dst.CreatedAt = r.CreatedAt
}

type TokenAccountRecord struct {
	Id uint64

	Address string
	Mint    string
	Owner   string

	Amount uint64

	CreatedAt time.Time
}

func (r *TokenAccountRecord) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Mint) == 0 {
		return errors.New("mint is required")
	}

	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}

	return nil
}

func (r *TokenAccountRecord) Clone() TokenAccountRecord {
	return TokenAccountRecord{
		Id: r.Id,

		Address: r.Address,
		Mint:    r.Mint,
		Owner:   r.Owner,

		Amount: r.Amount,

		CreatedAt: r.CreatedAt,
	}
}

func (r *TokenAccountRecord) CopyTo(dst *TokenAccountRecord) {
	dst.Id = r.Id

	dst.Address = r.Address
	dst.Mint = r.Mint
	dst.Owner = r.Owner

	dst.Amount = r.Amount

	dst.CreatedAt = r.CreatedAt
}
