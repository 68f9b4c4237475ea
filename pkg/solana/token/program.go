package token

import (
	"bytes"
	"crypto/ed25519"
	"math"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/layout"
	"github.com/code-payments/code-staking/pkg/solana/system"
)

// ProgramKey is the SPL token program, TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
var ProgramKey = ed25519.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

// Command is the first data byte of a token program instruction. Only the
// commands needed to custody staking funds are supported.
type Command byte

const (
	CommandInitializeMint    Command = 0
	CommandInitializeAccount Command = 1
	CommandTransfer          Command = 3
	CommandApprove           Command = 4
	CommandSetAuthority      Command = 6
	CommandMintTo            Command = 7

	CommandUnknown = Command(math.MaxUint8)
)

var commandNames = map[Command]string{
	CommandInitializeMint:    "initialize_mint",
	CommandInitializeAccount: "initialize_account",
	CommandTransfer:          "transfer",
	CommandSetAuthority:      "set_authority",
	CommandMintTo:            "mint_to",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// GetCommand returns the command of a token program instruction.
func GetCommand(i solana.Instruction) (Command, error) {
	if !bytes.Equal(i.Program, ProgramKey) {
		return CommandUnknown, solana.ErrIncorrectProgram
	}
	if len(i.Data) == 0 {
		return CommandUnknown, errors.New("token instruction missing data")
	}
	return Command(i.Data[0]), nil
}

// checkCommand validates the program, command and account count of i.
func checkCommand(i solana.Instruction, command Command, accounts int) error {
	if !bytes.Equal(i.Program, ProgramKey) {
		return solana.ErrIncorrectProgram
	}
	if len(i.Data) == 0 || Command(i.Data[0]) != command {
		return solana.ErrIncorrectInstruction
	}
	if len(i.Accounts) != accounts {
		return errors.Errorf("invalid number of accounts: %d (expected %d)", len(i.Accounts), accounts)
	}
	return nil
}

func checkDataSize(i solana.Instruction, size int) error {
	if len(i.Data) != size {
		return errors.Errorf("invalid instruction data size: %d (expected %d)", len(i.Data), size)
	}
	return nil
}

func checkRentSysVar(account solana.AccountMeta) error {
	if !bytes.Equal(account.PublicKey, system.RentSysVar) {
		return errors.New("invalid rent program")
	}
	return nil
}

const initializeMintSize = 1 + 1 + ed25519.PublicKeySize + 1

// InitializeMint initializes mint with no freeze authority.
//
// Accounts: [writable] mint, [] rent sysvar
func InitializeMint(mint, mintAuthority ed25519.PublicKey, decimals byte) solana.Instruction {
	data := layout.NewEncoder(initializeMintSize).
		Uint8(byte(CommandInitializeMint)).
		Uint8(decimals).
		Key(mintAuthority).
		Bool(false).
		Bytes()

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

type DecompiledInitializeMint struct {
	Mint          ed25519.PublicKey
	MintAuthority ed25519.PublicKey
	Decimals      byte
}

func DecompileInitializeMint(i solana.Instruction) (*DecompiledInitializeMint, error) {
	if err := checkCommand(i, CommandInitializeMint, 2); err != nil {
		return nil, err
	}
	if err := checkDataSize(i, initializeMintSize); err != nil {
		return nil, err
	}
	if err := checkRentSysVar(i.Accounts[1]); err != nil {
		return nil, err
	}

	d := layout.NewDecoder(i.Data[1:])
	decompiled := &DecompiledInitializeMint{Mint: i.Accounts[0].PublicKey}
	decompiled.Decimals = d.Uint8()
	decompiled.MintAuthority = d.Key()
	return decompiled, nil
}

// InitializeAccount initializes a token account for mint, owned by owner.
//
// Accounts: [writable] account, [] mint, [] owner, [] rent sysvar
func InitializeAccount(account, mint, owner ed25519.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandInitializeAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(owner, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

type DecompiledInitializeAccount struct {
	Account ed25519.PublicKey
	Mint    ed25519.PublicKey
	Owner   ed25519.PublicKey
}

func DecompileInitializeAccount(i solana.Instruction) (*DecompiledInitializeAccount, error) {
	if err := checkCommand(i, CommandInitializeAccount, 4); err != nil {
		return nil, err
	}
	if err := checkDataSize(i, 1); err != nil {
		return nil, err
	}
	if err := checkRentSysVar(i.Accounts[3]); err != nil {
		return nil, err
	}

	return &DecompiledInitializeAccount{
		Account: i.Accounts[0].PublicKey,
		Mint:    i.Accounts[1].PublicKey,
		Owner:   i.Accounts[2].PublicKey,
	}, nil
}

type AuthorityType byte

const (
	AuthorityTypeMintTokens AuthorityType = iota
	AuthorityTypeFreezeAccount
	AuthorityTypeAccountHolder
	AuthorityTypeCloseAccount
)

// SetAuthority replaces, or removes when newAuthority is nil, the authority
// of the given type on a mint or token account.
//
// Accounts: [writable] mint or account, [signer] current authority
func SetAuthority(account, currentAuthority, newAuthority ed25519.PublicKey, authorityType AuthorityType) solana.Instruction {
	data := []byte{byte(CommandSetAuthority), byte(authorityType), 0}
	if len(newAuthority) > 0 {
		data[2] = 1
		data = append(data, newAuthority...)
	}

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(currentAuthority, true),
	)
}

type DecompiledSetAuthority struct {
	Account          ed25519.PublicKey
	CurrentAuthority ed25519.PublicKey
	NewAuthority     ed25519.PublicKey
	Type             AuthorityType
}

func DecompileSetAuthority(i solana.Instruction) (*DecompiledSetAuthority, error) {
	if err := checkCommand(i, CommandSetAuthority, 2); err != nil {
		return nil, err
	}

	expected := 3
	if len(i.Data) >= 3 && i.Data[2] == 1 {
		expected += ed25519.PublicKeySize
	}
	if len(i.Data) != expected {
		return nil, errors.Errorf("invalid data size: %d (expected %d)", len(i.Data), expected)
	}

	decompiled := &DecompiledSetAuthority{
		Account:          i.Accounts[0].PublicKey,
		CurrentAuthority: i.Accounts[1].PublicKey,
		Type:             AuthorityType(i.Data[1]),
	}
	if expected > 3 {
		decompiled.NewAuthority = layout.NewDecoder(i.Data[3:]).Key()
	}
	return decompiled, nil
}

const amountInstructionSize = 1 + 8

func amountInstruction(command Command, amount uint64) []byte {
	return layout.NewEncoder(amountInstructionSize).
		Uint8(byte(command)).
		Uint64(amount).
		Bytes()
}

// Transfer moves amount tokens between accounts of the same mint.
//
// Accounts: [writable] source, [writable] destination, [signer] source owner
func Transfer(source, dest, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		amountInstruction(CommandTransfer, amount),
		solana.NewAccountMeta(source, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledTransfer struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
	Amount      uint64
}

func DecompileTransfer(i solana.Instruction) (*DecompiledTransfer, error) {
	if err := checkCommand(i, CommandTransfer, 3); err != nil {
		return nil, err
	}
	if err := checkDataSize(i, amountInstructionSize); err != nil {
		return nil, err
	}

	return &DecompiledTransfer{
		Source:      i.Accounts[0].PublicKey,
		Destination: i.Accounts[1].PublicKey,
		Owner:       i.Accounts[2].PublicKey,
		Amount:      layout.NewDecoder(i.Data[1:]).Uint64(),
	}, nil
}

// MintTo mints amount new tokens into dest.
//
// Accounts: [writable] mint, [writable] destination, [signer] mint authority
func MintTo(mint, dest, mintAuthority ed25519.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		amountInstruction(CommandMintTo, amount),
		solana.NewAccountMeta(mint, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(mintAuthority, true),
	)
}

type DecompiledMintTo struct {
	Mint          ed25519.PublicKey
	Destination   ed25519.PublicKey
	MintAuthority ed25519.PublicKey
	Amount        uint64
}

func DecompileMintTo(i solana.Instruction) (*DecompiledMintTo, error) {
	if err := checkCommand(i, CommandMintTo, 3); err != nil {
		return nil, err
	}
	if err := checkDataSize(i, amountInstructionSize); err != nil {
		return nil, err
	}

	return &DecompiledMintTo{
		Mint:          i.Accounts[0].PublicKey,
		Destination:   i.Accounts[1].PublicKey,
		MintAuthority: i.Accounts[2].PublicKey,
		Amount:        layout.NewDecoder(i.Data[1:]).Uint64(),
	}, nil
}
