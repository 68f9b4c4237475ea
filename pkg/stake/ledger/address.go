package ledger

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/cache"
	"github.com/code-payments/code-staking/pkg/solana/staking"
)

type derivedAddress struct {
	address ed25519.PublicKey
	bump    uint8
}

func (a derivedAddress) String() string {
	return base58.Encode(a.address)
}

func (a derivedAddress) matches(key ed25519.PublicKey) bool {
	return bytes.Equal(a.address, key)
}

// deriver computes the canonical pool, vault and user stake addresses. Results
// are memoized when a cache is configured.
type deriver struct {
	cache cache.Cache[derivedAddress]
}

func newDeriver(cacheSize uint64) *deriver {
	d := &deriver{}
	if cacheSize > 0 {
		d.cache = cache.NewCache[derivedAddress](int(cacheSize))
	}
	return d
}

func (d *deriver) pool() (derivedAddress, error) {
	return d.derive("pool", func() (ed25519.PublicKey, uint8, error) {
		return staking.GetPoolAddress()
	})
}

func (d *deriver) vault(pool ed25519.PublicKey) (derivedAddress, error) {
	return d.derive("vault:"+string(pool), func() (ed25519.PublicKey, uint8, error) {
		return staking.GetVaultAddress(&staking.GetVaultAddressArgs{
			Pool: pool,
		})
	})
}

func (d *deriver) userStake(user ed25519.PublicKey) (derivedAddress, error) {
	return d.derive("user:"+string(user), func() (ed25519.PublicKey, uint8, error) {
		return staking.GetUserStakeAddress(&staking.GetUserStakeAddressArgs{
			User: user,
		})
	})
}

func (d *deriver) derive(key string, fn func() (ed25519.PublicKey, uint8, error)) (derivedAddress, error) {
	if d.cache != nil {
		if cached, ok := d.cache.Retrieve(key); ok {
			return cached, nil
		}
	}

	address, bump, err := fn()
	if err != nil {
		return derivedAddress{}, errors.Wrap(ErrDerivationFailed, err.Error())
	}

	res := derivedAddress{
		address: address,
		bump:    bump,
	}
	if d.cache != nil {
		// A concurrent derivation may have won the insert with the same result
		_ = d.cache.Insert(key, res, 1)
	}
	return res, nil
}

// verifyPool checks the supplied pool address is canonical
func (d *deriver) verifyPool(supplied ed25519.PublicKey) (derivedAddress, error) {
	expected, err := d.pool()
	return verify(supplied, expected, err)
}

// verifyVault checks the supplied vault address is canonical for pool
func (d *deriver) verifyVault(supplied, pool ed25519.PublicKey) (derivedAddress, error) {
	expected, err := d.vault(pool)
	return verify(supplied, expected, err)
}

// verifyUserStake checks the supplied user stake address is canonical for user
func (d *deriver) verifyUserStake(supplied, user ed25519.PublicKey) (derivedAddress, error) {
	expected, err := d.userStake(user)
	return verify(supplied, expected, err)
}

func verify(supplied ed25519.PublicKey, expected derivedAddress, err error) (derivedAddress, error) {
	if err != nil {
		return derivedAddress{}, err
	}
	if !expected.matches(supplied) {
		return derivedAddress{}, ErrInvalidDerivedAddress
	}
	return expected, nil
}
