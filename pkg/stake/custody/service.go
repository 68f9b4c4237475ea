package custody

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/token"
	"github.com/code-payments/code-staking/pkg/stake/auth"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

const (
	metricsStructName = "custody.service"
)

var (
	ErrAccountNotFound       = errors.New("token account not found")
	ErrMintNotFound          = errors.New("mint not found")
	ErrAccountExists         = errors.New("account already exists")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOverflow              = errors.New("token amount overflow")
	ErrOwnerMismatch         = errors.New("token account owner mismatch")
	ErrMintMismatch          = errors.New("token account mint mismatch")
	ErrAuthorityMismatch     = errors.New("mint authority mismatch")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrUnsupportedInstuction = errors.New("unsupported instruction")

	// ErrProgramSigner is returned when a program derived address is used to
	// authorize a direct call. Only the owning program signs for it.
	ErrProgramSigner = errors.New("program derived address cannot sign")
)

// Service is the token custody collaborator of the staking ledger. It owns
// mints and token accounts in the shared account store and executes SPL token
// instructions against them.
type Service struct {
	log      *logrus.Entry
	store    account.Store
	verifier *auth.InstructionSignatureVerifier
}

func NewService(store account.Store) *Service {
	return &Service{
		log:      logrus.StandardLogger().WithField("type", "stake/custody"),
		store:    store,
		verifier: auth.NewInstructionSignatureVerifier(),
	}
}

// CreateMint creates an empty mint. An empty authority creates a mint with
// minting disabled.
func (s *Service) CreateMint(ctx context.Context, mint, authority ed25519.PublicKey, decimals uint8) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "CreateMint")
	defer tracer.End()

	record := &account.MintRecord{
		Address:  base58.Encode(mint),
		Decimals: decimals,
	}
	if len(authority) > 0 {
		record.Authority = base58.Encode(authority)
	}

	err := s.commit(ctx, &account.Changeset{NewMints: []*account.MintRecord{record}})
	tracer.OnError(err)
	return err
}

// CreateTokenAccount creates an empty token account for mint owned by owner
func (s *Service) CreateTokenAccount(ctx context.Context, address, mint, owner ed25519.PublicKey) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "CreateTokenAccount")
	defer tracer.End()

	err := s.commit(ctx, &account.Changeset{
		NewTokenAccounts: []*account.TokenAccountRecord{
			{
				Address: base58.Encode(address),
				Mint:    base58.Encode(mint),
				Owner:   base58.Encode(owner),
			},
		},
	})
	tracer.OnError(err)
	return err
}

// CreateAssociatedTokenAccount creates the owner's associated token account for
// mint and returns its address. It is not an error if the account already
// exists with the same mint and owner.
func (s *Service) CreateAssociatedTokenAccount(ctx context.Context, owner, mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	address, err := token.GetAssociatedAccount(owner, mint)
	if err != nil {
		return nil, err
	}

	err = s.CreateTokenAccount(ctx, address, mint, owner)
	if err == ErrAccountExists {
		existing, err := s.store.GetTokenAccount(ctx, base58.Encode(address))
		if err != nil {
			return nil, translateError(err)
		}
		if existing.Owner != base58.Encode(owner) || existing.Mint != base58.Encode(mint) {
			return nil, ErrAccountExists
		}
		return address, nil
	} else if err != nil {
		return nil, err
	}
	return address, nil
}

// MintTo increases supply of mint by amount and credits destination. The
// authority must be the mint's current authority, and must be able to sign.
func (s *Service) MintTo(ctx context.Context, mint, destination, authority ed25519.PublicKey, amount uint64) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "MintTo")
	defer tracer.End()

	if amount == 0 {
		return ErrInvalidAmount
	}
	if err := checkSigner(authority); err != nil {
		return err
	}

	err := s.commit(ctx, &account.Changeset{
		MintTos: []*account.MintTo{
			{
				Mint:        base58.Encode(mint),
				Destination: base58.Encode(destination),
				Authority:   base58.Encode(authority),
				Amount:      amount,
			},
		},
	})
	tracer.OnError(err)
	return err
}

// Transfer moves amount from source to destination. The owner must own the
// source account.
func (s *Service) Transfer(ctx context.Context, source, destination, owner ed25519.PublicKey, amount uint64) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Transfer")
	defer tracer.End()

	if amount == 0 {
		return ErrInvalidAmount
	}
	if err := checkSigner(owner); err != nil {
		return err
	}

	sourceRecord, err := s.store.GetTokenAccount(ctx, base58.Encode(source))
	if err != nil {
		tracer.OnError(err)
		return translateError(err)
	}
	if sourceRecord.Owner != base58.Encode(owner) {
		return ErrOwnerMismatch
	}

	err = s.commit(ctx, &account.Changeset{
		Transfers: []*account.Transfer{
			{
				Source:      sourceRecord.Address,
				Destination: base58.Encode(destination),
				Amount:      amount,
			},
		},
	})
	tracer.OnError(err)
	return err
}

// SetMintAuthority hands minting rights of mint to newAuthority. A nil
// newAuthority permanently disables minting.
func (s *Service) SetMintAuthority(ctx context.Context, mint, currentAuthority, newAuthority ed25519.PublicKey) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "SetMintAuthority")
	defer tracer.End()

	if err := checkSigner(currentAuthority); err != nil {
		return err
	}

	change := &account.AuthorityChange{
		Mint:             base58.Encode(mint),
		CurrentAuthority: base58.Encode(currentAuthority),
	}
	if len(newAuthority) > 0 {
		change.NewAuthority = base58.Encode(newAuthority)
	}

	err := s.commit(ctx, &account.Changeset{AuthorityChanges: []*account.AuthorityChange{change}})
	tracer.OnError(err)
	return err
}

// Balance returns the token balance of a token account
func (s *Service) Balance(ctx context.Context, address ed25519.PublicKey) (uint64, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "Balance").End()

	record, err := s.store.GetTokenAccount(ctx, base58.Encode(address))
	if err != nil {
		return 0, translateError(err)
	}
	return record.Amount, nil
}

// Supply returns the total supply of a mint
func (s *Service) Supply(ctx context.Context, mint ed25519.PublicKey) (uint64, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "Supply").End()

	record, err := s.store.GetMint(ctx, base58.Encode(mint))
	if err == account.ErrNotFound {
		return 0, ErrMintNotFound
	} else if err != nil {
		return 0, err
	}
	return record.Supply, nil
}

// GetAccountData returns the SPL token encoding of a token account or mint
func (s *Service) GetAccountData(ctx context.Context, address ed25519.PublicKey) ([]byte, error) {
	encoded := base58.Encode(address)

	tokenAccount, err := s.store.GetTokenAccount(ctx, encoded)
	if err == nil {
		state := &token.Account{
			Mint:   mustDecode(tokenAccount.Mint),
			Owner:  mustDecode(tokenAccount.Owner),
			Amount: tokenAccount.Amount,
			State:  token.AccountStateInitialized,
		}
		return state.Marshal(), nil
	} else if err != account.ErrNotFound {
		return nil, err
	}

	mint, err := s.store.GetMint(ctx, encoded)
	if err == account.ErrNotFound {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, err
	}

	state := &token.Mint{
		Supply:        mint.Supply,
		Decimals:      mint.Decimals,
		IsInitialized: true,
	}
	if len(mint.Authority) > 0 {
		state.MintAuthority = mustDecode(mint.Authority)
	}
	return state.Marshal(), nil
}

// Process executes a signed SPL token or associated token account instruction.
// Every signer account of the instruction must have a valid signature, and
// the account authorizing the instruction must be one of them.
func (s *Service) Process(ctx context.Context, ix solana.Instruction, sigs []solana.Signature) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Process")
	defer tracer.End()

	log := s.log.WithFields(logrus.Fields{
		"method":  "Process",
		"program": base58.Encode(ix.Program),
	})

	err := s.process(ctx, ix, sigs)
	if err != nil {
		log.WithError(err).Debug("token instruction failed")
	}
	tracer.OnError(err)
	return err
}

func (s *Service) process(ctx context.Context, ix solana.Instruction, sigs []solana.Signature) error {
	if bytes.Equal(ix.Program, token.AssociatedTokenAccountProgramKey) {
		decompiled, err := token.DecompileCreateAssociatedAccount(ix)
		if err != nil {
			return err
		}

		expected, err := token.GetAssociatedAccount(decompiled.Owner, decompiled.Mint)
		if err != nil {
			return err
		}
		if !bytes.Equal(expected, decompiled.Address) {
			return errors.New("invalid associated token account address")
		}

		if err := s.verifier.Authenticate(ctx, ix, sigs, decompiled.Subsidizer); err != nil {
			return err
		}

		if decompiled.Idempotent {
			_, err = s.CreateAssociatedTokenAccount(ctx, decompiled.Owner, decompiled.Mint)
			return err
		}
		return s.CreateTokenAccount(ctx, decompiled.Address, decompiled.Mint, decompiled.Owner)
	}

	command, err := token.GetCommand(ix)
	if err != nil {
		return err
	}

	switch command {
	case token.CommandInitializeMint:
		decompiled, err := token.DecompileInitializeMint(ix)
		if err != nil {
			return err
		}
		if err := s.verifier.Authenticate(ctx, ix, sigs); err != nil {
			return err
		}
		return s.CreateMint(ctx, decompiled.Mint, decompiled.MintAuthority, decompiled.Decimals)
	case token.CommandInitializeAccount:
		decompiled, err := token.DecompileInitializeAccount(ix)
		if err != nil {
			return err
		}
		if err := s.verifier.Authenticate(ctx, ix, sigs); err != nil {
			return err
		}
		return s.CreateTokenAccount(ctx, decompiled.Account, decompiled.Mint, decompiled.Owner)
	case token.CommandSetAuthority:
		decompiled, err := token.DecompileSetAuthority(ix)
		if err != nil {
			return err
		}
		if decompiled.Type != token.AuthorityTypeMintTokens {
			return ErrUnsupportedInstuction
		}
		if err := s.verifier.Authenticate(ctx, ix, sigs, decompiled.CurrentAuthority); err != nil {
			return err
		}
		return s.SetMintAuthority(ctx, decompiled.Account, decompiled.CurrentAuthority, decompiled.NewAuthority)
	case token.CommandTransfer:
		decompiled, err := token.DecompileTransfer(ix)
		if err != nil {
			return err
		}
		if err := s.verifier.Authenticate(ctx, ix, sigs, decompiled.Owner); err != nil {
			return err
		}
		return s.Transfer(ctx, decompiled.Source, decompiled.Destination, decompiled.Owner, decompiled.Amount)
	case token.CommandMintTo:
		decompiled, err := token.DecompileMintTo(ix)
		if err != nil {
			return err
		}
		if err := s.verifier.Authenticate(ctx, ix, sigs, decompiled.MintAuthority); err != nil {
			return err
		}
		return s.MintTo(ctx, decompiled.Mint, decompiled.Destination, decompiled.MintAuthority, decompiled.Amount)
	default:
		return ErrUnsupportedInstuction
	}
}

// checkSigner rejects keys without a private key. Vault tokens and pool mint
// authority can only be exercised by the staking ledger.
func checkSigner(key ed25519.PublicKey) error {
	if !solana.IsOnCurve(key) {
		return ErrProgramSigner
	}
	return nil
}

func (s *Service) commit(ctx context.Context, changeset *account.Changeset) error {
	return translateError(s.store.Commit(ctx, changeset))
}

func translateError(err error) error {
	switch err {
	case nil:
		return nil
	case account.ErrNotFound:
		return ErrAccountNotFound
	case account.ErrAlreadyExists:
		return ErrAccountExists
	case account.ErrInsufficientBalance:
		return ErrInsufficientFunds
	case account.ErrOverflow:
		return ErrOverflow
	case account.ErrAuthorityMismatch:
		return ErrAuthorityMismatch
	case account.ErrMintMismatch:
		return ErrMintMismatch
	}
	return err
}

func mustDecode(address string) ed25519.PublicKey {
	decoded, err := base58.Decode(address)
	if err != nil {
		panic(err)
	}
	return decoded
}
