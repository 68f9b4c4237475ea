package token

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana/layout"
)

type AccountState byte

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L125
const AccountSize = 165

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L16
const MintSize = 82

// COption tags are a little endian u32
const optionSize = 4

type Account struct {
	// The mint associated with this account
	Mint ed25519.PublicKey
	// The owner of this account.
	Owner ed25519.PublicKey
	// The amount of tokens this account holds.
	Amount uint64
	// If set, then the 'DelegatedAmount' represents the amount
	// authorized by the delegate.
	Delegate ed25519.PublicKey
	/// The account's state
	State AccountState
	// If set, this is a native token, and the value logs the rent-exempt reserve. An Account
	// is required to be rent-exempt, so the value is used by the Processor to ensure that wrapped
	// SOL accounts do not drop below this threshold.
	IsNative *uint64
	// The amount delegated
	DelegatedAmount uint64
	// Optional authority to close the account.
	CloseAuthority ed25519.PublicKey
}

func (a *Account) Marshal() []byte {
	return layout.NewEncoder(AccountSize).
		Key(a.Mint).
		Key(a.Owner).
		Uint64(a.Amount).
		OptionalKey(a.Delegate, optionSize).
		Uint8(byte(a.State)).
		OptionalUint64(a.IsNative, optionSize).
		Uint64(a.DelegatedAmount).
		OptionalKey(a.CloseAuthority, optionSize).
		Bytes()
}

// Unmarshal decodes b into a, reporting false if b isn't an account.
func (a *Account) Unmarshal(b []byte) bool {
	if len(b) != AccountSize {
		return false
	}

	d := layout.NewDecoder(b)
	a.Mint = d.Key()
	a.Owner = d.Key()
	a.Amount = d.Uint64()
	a.Delegate = d.OptionalKey(optionSize)
	a.State = AccountState(d.Uint8())
	a.IsNative = d.OptionalUint64(optionSize)
	a.DelegatedAmount = d.Uint64()
	a.CloseAuthority = d.OptionalKey(optionSize)
	return true
}

// Mint is the on-chain state of an SPL token mint.
type Mint struct {
	// Optional authority able to mint new tokens. Minting is permanently
	// disabled when unset.
	MintAuthority ed25519.PublicKey
	Supply        uint64
	Decimals      uint8
	IsInitialized bool
	// Optional authority able to freeze token accounts.
	FreezeAuthority ed25519.PublicKey
}

func (m *Mint) Marshal() []byte {
	return layout.NewEncoder(MintSize).
		OptionalKey(m.MintAuthority, optionSize).
		Uint64(m.Supply).
		Uint8(m.Decimals).
		Bool(m.IsInitialized).
		OptionalKey(m.FreezeAuthority, optionSize).
		Bytes()
}

// Unmarshal decodes b into m, reporting false if b isn't a mint.
func (m *Mint) Unmarshal(b []byte) bool {
	if len(b) != MintSize {
		return false
	}

	d := layout.NewDecoder(b)
	m.MintAuthority = d.OptionalKey(optionSize)
	m.Supply = d.Uint64()
	m.Decimals = d.Uint8()
	m.IsInitialized = d.Bool()
	m.FreezeAuthority = d.OptionalKey(optionSize)
	return true
}
