package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/system"
)

// AssociatedTokenAccountProgramKey is ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL
var AssociatedTokenAccountProgramKey = ed25519.PublicKey{140, 151, 37, 143, 78, 36, 137, 241, 187, 61, 16, 41, 20, 142, 13, 131, 11, 90, 19, 153, 218, 255, 16, 132, 4, 142, 123, 216, 219, 233, 248, 89}

const (
	commandCreate byte = iota
	commandCreateIdempotent
)

// associatedAccounts is the positional account list of a create instruction.
// The last three entries are fixed programs.
const (
	associatedSubsidizer = iota
	associatedAddress
	associatedOwner
	associatedMint
	associatedSystemProgram
	associatedTokenProgram
	associatedRentSysVar
	associatedAccountCount
)

// GetAssociatedAccount derives the canonical token account of wallet for mint.
func GetAssociatedAccount(wallet, mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	return solana.FindProgramAddress(AssociatedTokenAccountProgramKey, wallet, ProgramKey, mint)
}

// CreateAssociatedTokenAccount returns an instruction creating the associated
// token account of wallet for mint, funded by subsidizer, along with its
// address.
func CreateAssociatedTokenAccount(subsidizer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	return createAssociatedTokenAccount(commandCreate, subsidizer, wallet, mint)
}

// CreateAssociatedTokenAccountIdempotent is a create that is a no-op for an
// existing account.
func CreateAssociatedTokenAccountIdempotent(subsidizer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	return createAssociatedTokenAccount(commandCreateIdempotent, subsidizer, wallet, mint)
}

func createAssociatedTokenAccount(command byte, subsidizer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	address, err := GetAssociatedAccount(wallet, mint)
	if err != nil {
		return solana.Instruction{}, nil, err
	}

	accounts := make([]solana.AccountMeta, associatedAccountCount)
	accounts[associatedSubsidizer] = solana.NewAccountMeta(subsidizer, true)
	accounts[associatedAddress] = solana.NewAccountMeta(address, false)
	accounts[associatedOwner] = solana.NewReadonlyAccountMeta(wallet, false)
	accounts[associatedMint] = solana.NewReadonlyAccountMeta(mint, false)
	accounts[associatedSystemProgram] = solana.NewReadonlyAccountMeta(system.ProgramKey[:], false)
	accounts[associatedTokenProgram] = solana.NewReadonlyAccountMeta(ProgramKey, false)
	accounts[associatedRentSysVar] = solana.NewReadonlyAccountMeta(system.RentSysVar, false)

	return solana.NewInstruction(AssociatedTokenAccountProgramKey, []byte{command}, accounts...), address, nil
}

type DecompiledCreateAssociatedAccount struct {
	Subsidizer ed25519.PublicKey
	Address    ed25519.PublicKey
	Owner      ed25519.PublicKey
	Mint       ed25519.PublicKey
	Idempotent bool
}

func DecompileCreateAssociatedAccount(i solana.Instruction) (*DecompiledCreateAssociatedAccount, error) {
	if !bytes.Equal(i.Program, AssociatedTokenAccountProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}
	if len(i.Data) != 1 || i.Data[0] > commandCreateIdempotent {
		return nil, errors.New("unexpected data")
	}
	if len(i.Accounts) != associatedAccountCount {
		return nil, errors.Errorf("invalid number of accounts: %d (expected %d)", len(i.Accounts), associatedAccountCount)
	}

	for _, fixed := range []struct {
		index int
		key   ed25519.PublicKey
		name  string
	}{
		{associatedSystemProgram, system.ProgramKey[:], "system program"},
		{associatedTokenProgram, ProgramKey, "token program"},
		{associatedRentSysVar, system.RentSysVar, "rent sysvar"},
	} {
		if !bytes.Equal(i.Accounts[fixed.index].PublicKey, fixed.key) {
			return nil, errors.Errorf("%s mismatch", fixed.name)
		}
	}

	return &DecompiledCreateAssociatedAccount{
		Subsidizer: i.Accounts[associatedSubsidizer].PublicKey,
		Address:    i.Accounts[associatedAddress].PublicKey,
		Owner:      i.Accounts[associatedOwner].PublicKey,
		Mint:       i.Accounts[associatedMint].PublicKey,
		Idempotent: i.Data[0] == commandCreateIdempotent,
	}, nil
}
