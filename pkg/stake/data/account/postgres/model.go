package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/code-payments/code-staking/pkg/database/postgres"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

const (
	poolTableName         = "stake__pool"
	positionTableName     = "stake__position"
	mintTableName         = "stake__mint"
	tokenAccountTableName = "stake__token_account"

	// Amounts are NUMERIC(20,0) so the full uint64 range is representable
	maxAmount = "18446744073709551615"
)

type poolModel struct {
	Id sql.NullInt64 `db:"id"`

	Address    string `db:"address"`
	Authority  string `db:"authority"`
	StakeMint  string `db:"stake_mint"`
	RewardMint string `db:"reward_mint"`
	Vault      string `db:"vault"`

	TotalStaked uint64 `db:"total_staked"`

	RewardRateNumerator   uint64 `db:"reward_rate_numerator"`
	RewardRateDenominator uint64 `db:"reward_rate_denominator"`
	RewardPeriodSeconds   uint64 `db:"reward_period_seconds"`

	Bump      uint8 `db:"bump"`
	VaultBump uint8 `db:"vault_bump"`

	CreatedAt time.Time `db:"created_at"`
}

type positionModel struct {
	Id sql.NullInt64 `db:"id"`

	Address string `db:"address"`
	Pool    string `db:"pool"`
	Owner   string `db:"owner"`

	Amount         uint64    `db:"amount"`
	PendingRewards uint64    `db:"pending_rewards"`
	CheckpointAt   time.Time `db:"checkpoint_at"`

	Bump uint8 `db:"bump"`

	Version       uint64    `db:"version"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

type mintModel struct {
	Id sql.NullInt64 `db:"id"`

	Address   string `db:"address"`
	Authority string `db:"authority"`
	Decimals  uint8  `db:"decimals"`
	Supply    uint64 `db:"supply"`

	CreatedAt time.Time `db:"created_at"`
}

type tokenAccountModel struct {
	Id sql.NullInt64 `db:"id"`

	Address string `db:"address"`
	Mint    string `db:"mint"`
	Owner   string `db:"owner"`
	Amount  uint64 `db:"amount"`

	CreatedAt time.Time `db:"created_at"`
}

const (
	poolColumns         = `id, address, authority, stake_mint, reward_mint, vault, total_staked, reward_rate_numerator, reward_rate_denominator, reward_period_seconds, bump, vault_bump, created_at`
	positionColumns     = `id, address, pool, owner, amount, pending_rewards, checkpoint_at, bump, version, last_updated_at`
	mintColumns         = `id, address, authority, decimals, supply, created_at`
	tokenAccountColumns = `id, address, mint, owner, amount, created_at`
)

func toPoolModel(obj *account.PoolRecord) *poolModel {
	return &poolModel{
		Id:                    sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:               obj.Address,
		Authority:             obj.Authority,
		StakeMint:             obj.StakeMint,
		RewardMint:            obj.RewardMint,
		Vault:                 obj.Vault,
		TotalStaked:           obj.TotalStaked,
		RewardRateNumerator:   obj.RewardRateNumerator,
		RewardRateDenominator: obj.RewardRateDenominator,
		RewardPeriodSeconds:   uint64(obj.RewardPeriod / time.Second),
		Bump:                  obj.Bump,
		VaultBump:             obj.VaultBump,
		CreatedAt:             obj.CreatedAt,
	}
}

func fromPoolModel(obj *poolModel) *account.PoolRecord {
	return &account.PoolRecord{
		Id:                    uint64(obj.Id.Int64),
		Address:               obj.Address,
		Authority:             obj.Authority,
		StakeMint:             obj.StakeMint,
		RewardMint:            obj.RewardMint,
		Vault:                 obj.Vault,
		TotalStaked:           obj.TotalStaked,
		RewardRateNumerator:   obj.RewardRateNumerator,
		RewardRateDenominator: obj.RewardRateDenominator,
		RewardPeriod:          time.Duration(obj.RewardPeriodSeconds) * time.Second,
		Bump:                  obj.Bump,
		VaultBump:             obj.VaultBump,
		CreatedAt:             obj.CreatedAt,
	}
}

func toPositionModel(obj *account.PositionRecord) *positionModel {
	return &positionModel{
		Id:             sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:        obj.Address,
		Pool:           obj.Pool,
		Owner:          obj.Owner,
		Amount:         obj.Amount,
		PendingRewards: obj.PendingRewards,
		CheckpointAt:   obj.CheckpointAt,
		Bump:           obj.Bump,
		Version:        obj.Version,
		LastUpdatedAt:  obj.LastUpdatedAt,
	}
}

func fromPositionModel(obj *positionModel) *account.PositionRecord {
	return &account.PositionRecord{
		Id:             uint64(obj.Id.Int64),
		Address:        obj.Address,
		Pool:           obj.Pool,
		Owner:          obj.Owner,
		Amount:         obj.Amount,
		PendingRewards: obj.PendingRewards,
		CheckpointAt:   obj.CheckpointAt,
		Bump:           obj.Bump,
		Version:        obj.Version,
		LastUpdatedAt:  obj.LastUpdatedAt,
	}
}

func toMintModel(obj *account.MintRecord) *mintModel {
	return &mintModel{
		Id:        sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:   obj.Address,
		Authority: obj.Authority,
		Decimals:  obj.Decimals,
		Supply:    obj.Supply,
		CreatedAt: obj.CreatedAt,
	}
}

func fromMintModel(obj *mintModel) *account.MintRecord {
	return &account.MintRecord{
		Id:        uint64(obj.Id.Int64),
		Address:   obj.Address,
		Authority: obj.Authority,
		Decimals:  obj.Decimals,
		Supply:    obj.Supply,
		CreatedAt: obj.CreatedAt,
	}
}

func toTokenAccountModel(obj *account.TokenAccountRecord) *tokenAccountModel {
	return &tokenAccountModel{
		Id:        sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:   obj.Address,
		Mint:      obj.Mint,
		Owner:     obj.Owner,
		Amount:    obj.Amount,
		CreatedAt: obj.CreatedAt,
	}
}

func fromTokenAccountModel(obj *tokenAccountModel) *account.TokenAccountRecord {
	return &account.TokenAccountRecord{
		Id:        uint64(obj.Id.Int64),
		Address:   obj.Address,
		Mint:      obj.Mint,
		Owner:     obj.Owner,
		Amount:    obj.Amount,
		CreatedAt: obj.CreatedAt,
	}
}

func (m *mintModel) txInsert(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	query := `INSERT INTO ` + mintTableName + `
			(address, authority, decimals, supply, created_at)
			VALUES ($1, $2, $3, 0, $4)
			ON CONFLICT DO NOTHING
			RETURNING ` + mintColumns

	err := tx.QueryRowxContext(ctx, query, m.Address, m.Authority, m.Decimals, now).StructScan(m)
	return pgutil.CheckNoRows(err, account.ErrAlreadyExists)
}

func (m *tokenAccountModel) txInsert(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	if _, err := txGetMint(ctx, tx, m.Mint); err != nil {
		return err
	}

	query := `INSERT INTO ` + tokenAccountTableName + `
			(address, mint, owner, amount, created_at)
			VALUES ($1, $2, $3, 0, $4)
			ON CONFLICT DO NOTHING
			RETURNING ` + tokenAccountColumns

	err := tx.QueryRowxContext(ctx, query, m.Address, m.Mint, m.Owner, now).StructScan(m)
	return pgutil.CheckNoRows(err, account.ErrAlreadyExists)
}

func (m *poolModel) txInsert(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	query := `INSERT INTO ` + poolTableName + `
			(address, authority, stake_mint, reward_mint, vault, total_staked, reward_rate_numerator, reward_rate_denominator, reward_period_seconds, bump, vault_bump, created_at)
			VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10, $11)
			ON CONFLICT DO NOTHING
			RETURNING ` + poolColumns

	err := tx.QueryRowxContext(
		ctx,
		query,
		m.Address,
		m.Authority,
		m.StakeMint,
		m.RewardMint,
		m.Vault,
		m.RewardRateNumerator,
		m.RewardRateDenominator,
		m.RewardPeriodSeconds,
		m.Bump,
		m.VaultBump,
		now,
	).StructScan(m)
	return pgutil.CheckNoRows(err, account.ErrAlreadyExists)
}

func (m *positionModel) txSave(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	if _, err := txGetPool(ctx, tx, m.Pool); err != nil {
		return err
	}

	if m.Version == 0 {
		query := `INSERT INTO ` + positionTableName + `
			(address, pool, owner, amount, pending_rewards, checkpoint_at, bump, version, last_updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
			ON CONFLICT DO NOTHING
			RETURNING ` + positionColumns

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.Pool,
			m.Owner,
			m.Amount,
			m.PendingRewards,
			m.CheckpointAt.UTC(),
			m.Bump,
			now,
		).StructScan(m)
		return pgutil.CheckNoRows(err, account.ErrStaleVersion)
	}

	query := `UPDATE ` + positionTableName + `
			SET amount = $3, pending_rewards = $4, checkpoint_at = $5, version = version + 1, last_updated_at = $6
			WHERE address = $1 AND version = $2
			RETURNING ` + positionColumns

	err := tx.QueryRowxContext(
		ctx,
		query,
		m.Address,
		m.Version,
		m.Amount,
		m.PendingRewards,
		m.CheckpointAt.UTC(),
		now,
	).StructScan(m)
	if pgutil.IsNoRows(err) {
		if _, err := txGetPosition(ctx, tx, m.Address); err != nil {
			return err
		}
		return account.ErrStaleVersion
	}
	return err
}

func txChangeAuthority(ctx context.Context, tx *sqlx.Tx, change *account.AuthorityChange) error {
	query := `UPDATE ` + mintTableName + `
			SET authority = $3
			WHERE address = $1 AND authority = $2
			RETURNING id`

	var id int64
	err := tx.GetContext(ctx, &id, query, change.Mint, change.CurrentAuthority, change.NewAuthority)
	if pgutil.IsNoRows(err) {
		if _, err := txGetMint(ctx, tx, change.Mint); err != nil {
			return err
		}
		return account.ErrAuthorityMismatch
	}
	return err
}

func txTransfer(ctx context.Context, tx *sqlx.Tx, transfer *account.Transfer) error {
	source, err := txGetTokenAccount(ctx, tx, transfer.Source)
	if err != nil {
		return err
	}
	destination, err := txGetTokenAccount(ctx, tx, transfer.Destination)
	if err != nil {
		return err
	}
	if source.Mint != destination.Mint {
		return account.ErrMintMismatch
	}

	if err := txDebit(ctx, tx, transfer.Source, transfer.Amount); err != nil {
		return err
	}
	return txCredit(ctx, tx, transfer.Destination, transfer.Amount)
}

func txMintTo(ctx context.Context, tx *sqlx.Tx, mintTo *account.MintTo) error {
	destination, err := txGetTokenAccount(ctx, tx, mintTo.Destination)
	if err != nil {
		return err
	}
	mint, err := txGetMint(ctx, tx, mintTo.Mint)
	if err != nil {
		return err
	}
	if mint.Authority != mintTo.Authority {
		return account.ErrAuthorityMismatch
	}
	if destination.Mint != mint.Address {
		return account.ErrMintMismatch
	}

	query := `UPDATE ` + mintTableName + `
			SET supply = supply + $3
			WHERE address = $1 AND authority = $2 AND supply <= ` + maxAmount + ` - $3
			RETURNING id`

	var id int64
	err = tx.GetContext(ctx, &id, query, mintTo.Mint, mintTo.Authority, mintTo.Amount)
	if pgutil.IsNoRows(err) {
		return account.ErrOverflow
	} else if err != nil {
		return err
	}

	return txCredit(ctx, tx, mintTo.Destination, mintTo.Amount)
}

func txDebit(ctx context.Context, tx *sqlx.Tx, address string, amount uint64) error {
	query := `UPDATE ` + tokenAccountTableName + `
			SET amount = amount - $2
			WHERE address = $1 AND amount >= $2
			RETURNING id`

	var id int64
	err := tx.GetContext(ctx, &id, query, address, amount)
	return pgutil.CheckNoRows(err, account.ErrInsufficientBalance)
}

func txCredit(ctx context.Context, tx *sqlx.Tx, address string, amount uint64) error {
	query := `UPDATE ` + tokenAccountTableName + `
			SET amount = amount + $2
			WHERE address = $1 AND amount <= ` + maxAmount + ` - $2
			RETURNING id`

	var id int64
	err := tx.GetContext(ctx, &id, query, address, amount)
	return pgutil.CheckNoRows(err, account.ErrOverflow)
}

func txChangeStake(ctx context.Context, tx *sqlx.Tx, change *account.StakeChange) error {
	if _, err := txGetPool(ctx, tx, change.Pool); err != nil {
		return err
	}

	query := `UPDATE ` + poolTableName + `
			SET total_staked = total_staked + $2
			WHERE address = $1 AND total_staked <= ` + maxAmount + ` - $2
			RETURNING id`
	outErr := account.ErrOverflow
	if change.Withdraw {
		query = `UPDATE ` + poolTableName + `
			SET total_staked = total_staked - $2
			WHERE address = $1 AND total_staked >= $2
			RETURNING id`
		outErr = account.ErrInsufficientBalance
	}

	var id int64
	err := tx.GetContext(ctx, &id, query, change.Pool, change.Amount)
	return pgutil.CheckNoRows(err, outErr)
}

func txGetPool(ctx context.Context, tx *sqlx.Tx, address string) (*poolModel, error) {
	res := &poolModel{}
	query := `SELECT ` + poolColumns + ` FROM ` + poolTableName + `
		WHERE address = $1
		LIMIT 1`
	err := tx.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return res, nil
}

func txGetPosition(ctx context.Context, tx *sqlx.Tx, address string) (*positionModel, error) {
	res := &positionModel{}
	query := `SELECT ` + positionColumns + ` FROM ` + positionTableName + `
		WHERE address = $1
		LIMIT 1`
	err := tx.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return res, nil
}

func txGetMint(ctx context.Context, tx *sqlx.Tx, address string) (*mintModel, error) {
	res := &mintModel{}
	query := `SELECT ` + mintColumns + ` FROM ` + mintTableName + `
		WHERE address = $1
		LIMIT 1`
	err := tx.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return res, nil
}

func txGetTokenAccount(ctx context.Context, tx *sqlx.Tx, address string) (*tokenAccountModel, error) {
	res := &tokenAccountModel{}
	query := `SELECT ` + tokenAccountColumns + ` FROM ` + tokenAccountTableName + `
		WHERE address = $1
		LIMIT 1`
	err := tx.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return res, nil
}

func dbGetPool(ctx context.Context, db *sqlx.DB, address string) (*poolModel, error) {
	res := &poolModel{}
	query := `SELECT ` + poolColumns + ` FROM ` + poolTableName + `
		WHERE address = $1
		LIMIT 1`
	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return res, nil
}

func dbGetPosition(ctx context.Context, db *sqlx.DB, address string) (*positionModel, error) {
	res := &positionModel{}
	query := `SELECT ` + positionColumns + ` FROM ` + positionTableName + `
		WHERE address = $1
		LIMIT 1`
	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return res, nil
}

func dbGetAllPositions(ctx context.Context, db *sqlx.DB, pool string) ([]*positionModel, error) {
	res := []*positionModel{}
	query := `SELECT ` + positionColumns + ` FROM ` + positionTableName + `
		WHERE pool = $1
		ORDER BY address ASC`
	err := db.SelectContext(ctx, &res, query, pool)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	if len(res) == 0 {
		return nil, account.ErrNotFound
	}
	return res, nil
}

func dbGetMint(ctx context.Context, db *sqlx.DB, address string) (*mintModel, error) {
	res := &mintModel{}
	query := `SELECT ` + mintColumns + ` FROM ` + mintTableName + `
		WHERE address = $1
		LIMIT 1`
	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return res, nil
}

func dbGetTokenAccount(ctx context.Context, db *sqlx.DB, address string) (*tokenAccountModel, error) {
	res := &tokenAccountModel{}
	query := `SELECT ` + tokenAccountColumns + ` FROM ` + tokenAccountTableName + `
		WHERE address = $1
		LIMIT 1`
	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrNotFound)
	}
	return res, nil
}

func dbGetStakeSummary(ctx context.Context, db *sqlx.DB, pool string) (*account.StakeSummary, error) {
	res := &account.StakeSummary{Pool: pool}
	err := pgutil.ExecuteInTx(ctx, db, sql.LevelRepeatableRead, func(tx *sqlx.Tx) error {
		poolRecord, err := txGetPool(ctx, tx, pool)
		if err != nil {
			return err
		}
		res.TotalStaked = poolRecord.TotalStaked

		vault, err := txGetTokenAccount(ctx, tx, poolRecord.Vault)
		if err != nil {
			return err
		}
		res.VaultBalance = vault.Amount

		query := `SELECT COALESCE(SUM(amount), 0) AS position_sum, COUNT(*) AS position_count FROM ` + positionTableName + `
			WHERE pool = $1`
		var aggregate struct {
			PositionSum   uint64 `db:"position_sum"`
			PositionCount uint64 `db:"position_count"`
		}
		if err := tx.GetContext(ctx, &aggregate, query, pool); err != nil {
			return err
		}
		res.PositionSum = aggregate.PositionSum
		res.PositionCount = aggregate.PositionCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
