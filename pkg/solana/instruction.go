package solana

import (
	"crypto/ed25519"
	"errors"
	"slices"
)

var (
	ErrIncorrectProgram     = errors.New("incorrect program")
	ErrIncorrectInstruction = errors.New("incorrect instruction")
)

// AccountMeta is an account referenced by an instruction, along with the
// access the instruction needs to it.
type AccountMeta struct {
	PublicKey  ed25519.PublicKey
	IsSigner   bool
	IsWritable bool
}

func NewAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{PublicKey: pub, IsSigner: isSigner, IsWritable: true}
}

func NewReadonlyAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{PublicKey: pub, IsSigner: isSigner}
}

// Instruction is a single program invocation. Accounts are positional; each
// program defines what every index means.
type Instruction struct {
	Program  ed25519.PublicKey
	Accounts []AccountMeta
	Data     []byte
}

func NewInstruction(program ed25519.PublicKey, data []byte, accounts ...AccountMeta) Instruction {
	return Instruction{Program: program, Accounts: accounts, Data: data}
}

// Signers returns the distinct signer keys in first appearance order.
func (i Instruction) Signers() []ed25519.PublicKey {
	var signers []ed25519.PublicKey
	for _, account := range i.Accounts {
		if !account.IsSigner {
			continue
		}
		seen := slices.ContainsFunc(signers, func(k ed25519.PublicKey) bool {
			return k.Equal(account.PublicKey)
		})
		if !seen {
			signers = append(signers, account.PublicKey)
		}
	}
	return signers
}
