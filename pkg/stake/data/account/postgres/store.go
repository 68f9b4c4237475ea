package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/code-payments/code-staking/pkg/database/postgres"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres-backed account.Store
func New(db *sql.DB) account.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// GetPool implements account.Store.GetPool
func (s *store) GetPool(ctx context.Context, address string) (*account.PoolRecord, error) {
	model, err := dbGetPool(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromPoolModel(model), nil
}

// GetPosition implements account.Store.GetPosition
func (s *store) GetPosition(ctx context.Context, address string) (*account.PositionRecord, error) {
	model, err := dbGetPosition(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromPositionModel(model), nil
}

// GetAllPositions implements account.Store.GetAllPositions
func (s *store) GetAllPositions(ctx context.Context, pool string) ([]*account.PositionRecord, error) {
	models, err := dbGetAllPositions(ctx, s.db, pool)
	if err != nil {
		return nil, err
	}

	res := make([]*account.PositionRecord, len(models))
	for i, model := range models {
		res[i] = fromPositionModel(model)
	}
	return res, nil
}

// GetMint implements account.Store.GetMint
func (s *store) GetMint(ctx context.Context, address string) (*account.MintRecord, error) {
	model, err := dbGetMint(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromMintModel(model), nil
}

// GetTokenAccount implements account.Store.GetTokenAccount
func (s *store) GetTokenAccount(ctx context.Context, address string) (*account.TokenAccountRecord, error) {
	model, err := dbGetTokenAccount(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromTokenAccountModel(model), nil
}

// GetStakeSummary implements account.Store.GetStakeSummary
func (s *store) GetStakeSummary(ctx context.Context, pool string) (*account.StakeSummary, error) {
	return dbGetStakeSummary(ctx, s.db, pool)
}

// Commit implements account.Store.Commit
//
// All changes are applied within a single transaction, retried on
// serialization failures and deadlocks. Records in the changeset are only
// updated once the transaction commits.
func (s *store) Commit(ctx context.Context, changeset *account.Changeset) error {
	if err := changeset.Validate(); err != nil {
		return err
	}

	var (
		mints         []*mintModel
		tokenAccounts []*tokenAccountModel
		pool          *poolModel
		positions     []*positionModel
	)

	err := pgutil.ExecuteRetryableTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		// Models are rebuilt on every attempt, since a failed attempt may have
		// scanned partial results into them.
		mints = make([]*mintModel, len(changeset.NewMints))
		for i, record := range changeset.NewMints {
			mints[i] = toMintModel(record)
		}

		tokenAccounts = make([]*tokenAccountModel, len(changeset.NewTokenAccounts))
		for i, record := range changeset.NewTokenAccounts {
			tokenAccounts[i] = toTokenAccountModel(record)
		}

		pool = nil
		if changeset.NewPool != nil {
			pool = toPoolModel(changeset.NewPool)
		}

		positions = make([]*positionModel, len(changeset.Positions))
		for i, record := range changeset.Positions {
			positions[i] = toPositionModel(record)
		}

		now := time.Now().UTC()

		for _, model := range mints {
			if err := model.txInsert(ctx, tx, now); err != nil {
				return err
			}
		}

		for _, model := range tokenAccounts {
			if err := model.txInsert(ctx, tx, now); err != nil {
				return err
			}
		}

		if pool != nil {
			if err := pool.txInsert(ctx, tx, now); err != nil {
				return err
			}
		}

		for _, change := range changeset.AuthorityChanges {
			if err := txChangeAuthority(ctx, tx, change); err != nil {
				return err
			}
		}

		for _, transfer := range changeset.Transfers {
			if err := txTransfer(ctx, tx, transfer); err != nil {
				return err
			}
		}

		for _, mintTo := range changeset.MintTos {
			if err := txMintTo(ctx, tx, mintTo); err != nil {
				return err
			}
		}

		for _, change := range changeset.StakeChanges {
			if err := txChangeStake(ctx, tx, change); err != nil {
				return err
			}
		}

		for _, model := range positions {
			if err := model.txSave(ctx, tx, now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	for i, model := range mints {
		fromMintModel(model).CopyTo(changeset.NewMints[i])
	}
	for i, model := range tokenAccounts {
		fromTokenAccountModel(model).CopyTo(changeset.NewTokenAccounts[i])
	}
	if pool != nil {
		fromPoolModel(pool).CopyTo(changeset.NewPool)
	}
	for i, model := range positions {
		fromPositionModel(model).CopyTo(changeset.Positions[i])
	}

	return nil
}
