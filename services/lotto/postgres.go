package lotto

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Schema declares the Postgres layout for the configuration record and the
// round registry. Rounds are append-mostly and never deleted.
const Schema = `
CREATE TABLE IF NOT EXISTS lotto_config (
    singleton                   BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
    manager                     TEXT        NOT NULL,
    oracle_address              TEXT        NOT NULL,
    community_pool              TEXT        NOT NULL,
    protocol_commission_percent INTEGER     NOT NULL,
    creator_commission_percent  INTEGER     NOT NULL,
    round_nonce                 BIGINT      NOT NULL DEFAULT 0,
    updated_at                  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS lotto_rounds (
    id                          BIGINT PRIMARY KEY,
    creator                     TEXT        NOT NULL,
    ticket_denom                TEXT        NOT NULL,
    ticket_amount               BIGINT      NOT NULL,
    balance                     BIGINT      NOT NULL,
    participants                TEXT[]      NOT NULL DEFAULT '{}',
    expiration                  TIMESTAMPTZ NOT NULL,
    number_of_winners           INTEGER     NOT NULL,
    community_pool_percentage   INTEGER     NOT NULL,
    protocol_commission_percent INTEGER     NOT NULL,
    creator_commission_percent  INTEGER     NOT NULL,
    winners                     TEXT[],
    settled_at                  TIMESTAMPTZ,
    created_at                  TIMESTAMPTZ NOT NULL,
    updated_at                  TIMESTAMPTZ NOT NULL
);
`

// PostgresStore is the durable Store implementation.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type configRow struct {
	Manager                   string    `db:"manager"`
	OracleAddress             string    `db:"oracle_address"`
	CommunityPool             string    `db:"community_pool"`
	ProtocolCommissionPercent int       `db:"protocol_commission_percent"`
	CreatorCommissionPercent  int       `db:"creator_commission_percent"`
	RoundNonce                int64     `db:"round_nonce"`
	UpdatedAt                 time.Time `db:"updated_at"`
}

func (r configRow) toConfig() Config {
	return Config{
		Manager:                   r.Manager,
		OracleAddress:             r.OracleAddress,
		CommunityPool:             r.CommunityPool,
		ProtocolCommissionPercent: r.ProtocolCommissionPercent,
		CreatorCommissionPercent:  r.CreatorCommissionPercent,
		RoundNonce:                uint64(r.RoundNonce),
		UpdatedAt:                 r.UpdatedAt,
	}
}

func (s *PostgresStore) InitConfig(ctx context.Context, cfg Config) (Config, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lotto_config (
			singleton, manager, oracle_address, community_pool,
			protocol_commission_percent, creator_commission_percent,
			round_nonce, updated_at
		) VALUES (TRUE, $1, $2, $3, $4, $5, 0, $6)
		ON CONFLICT (singleton) DO NOTHING`,
		cfg.Manager, cfg.OracleAddress, cfg.CommunityPool,
		cfg.ProtocolCommissionPercent, cfg.CreatorCommissionPercent,
		cfg.UpdatedAt,
	)
	if err != nil {
		return Config{}, fmt.Errorf("insert config: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Config{}, fmt.Errorf("insert config: %w", err)
	}
	if affected == 0 {
		return Config{}, ErrConfigExists
	}
	cfg.RoundNonce = 0
	return cfg, nil
}

func (s *PostgresStore) GetConfig(ctx context.Context) (Config, error) {
	var row configRow
	err := s.db.GetContext(ctx, &row, `
		SELECT manager, oracle_address, community_pool,
		       protocol_commission_percent, creator_commission_percent,
		       round_nonce, updated_at
		FROM lotto_config WHERE singleton`)
	if errors.Is(err, sql.ErrNoRows) {
		return Config{}, ErrConfigNotFound
	}
	if err != nil {
		return Config{}, fmt.Errorf("select config: %w", err)
	}
	return row.toConfig(), nil
}

func (s *PostgresStore) SetConfig(ctx context.Context, cfg Config) (Config, error) {
	var row configRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE lotto_config SET
			manager = $1, oracle_address = $2, community_pool = $3,
			protocol_commission_percent = $4, creator_commission_percent = $5,
			updated_at = $6
		WHERE singleton
		RETURNING manager, oracle_address, community_pool,
		          protocol_commission_percent, creator_commission_percent,
		          round_nonce, updated_at`,
		cfg.Manager, cfg.OracleAddress, cfg.CommunityPool,
		cfg.ProtocolCommissionPercent, cfg.CreatorCommissionPercent,
		cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Config{}, ErrConfigNotFound
	}
	if err != nil {
		return Config{}, fmt.Errorf("update config: %w", err)
	}
	return row.toConfig(), nil
}

func (s *PostgresStore) NextRoundID(ctx context.Context) (uint64, error) {
	var next int64
	err := s.db.GetContext(ctx, &next, `
		UPDATE lotto_config SET round_nonce = round_nonce + 1
		WHERE singleton
		RETURNING round_nonce - 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrConfigNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("allocate round id: %w", err)
	}
	return uint64(next), nil
}

type roundRow struct {
	ID                        int64          `db:"id"`
	Creator                   string         `db:"creator"`
	TicketDenom               string         `db:"ticket_denom"`
	TicketAmount              int64          `db:"ticket_amount"`
	Balance                   int64          `db:"balance"`
	Participants              pq.StringArray `db:"participants"`
	Expiration                time.Time      `db:"expiration"`
	NumberOfWinners           int            `db:"number_of_winners"`
	CommunityPoolPercentage   int            `db:"community_pool_percentage"`
	ProtocolCommissionPercent int            `db:"protocol_commission_percent"`
	CreatorCommissionPercent  int            `db:"creator_commission_percent"`
	Winners                   pq.StringArray `db:"winners"`
	SettledAt                 sql.NullTime   `db:"settled_at"`
	CreatedAt                 time.Time      `db:"created_at"`
	UpdatedAt                 time.Time      `db:"updated_at"`
}

func (r roundRow) toRound() Round {
	round := Round{
		ID:                        uint64(r.ID),
		Creator:                   r.Creator,
		TicketPrice:               Coin{Denom: r.TicketDenom, Amount: r.TicketAmount},
		Balance:                   r.Balance,
		Participants:              []string(r.Participants),
		Expiration:                r.Expiration,
		NumberOfWinners:           r.NumberOfWinners,
		CommunityPoolPercentage:   r.CommunityPoolPercentage,
		ProtocolCommissionPercent: r.ProtocolCommissionPercent,
		CreatorCommissionPercent:  r.CreatorCommissionPercent,
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
	}
	if round.Participants == nil {
		round.Participants = []string{}
	}
	if r.Winners != nil {
		round.Winners = []string(r.Winners)
	}
	if r.SettledAt.Valid {
		round.SettledAt = r.SettledAt.Time
	}
	return round
}

const roundColumns = `id, creator, ticket_denom, ticket_amount, balance,
	participants, expiration, number_of_winners, community_pool_percentage,
	protocol_commission_percent, creator_commission_percent, winners,
	settled_at, created_at, updated_at`

func (s *PostgresStore) CreateRound(ctx context.Context, round Round) (Round, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lotto_rounds (
			id, creator, ticket_denom, ticket_amount, balance,
			participants, expiration, number_of_winners,
			community_pool_percentage, protocol_commission_percent,
			creator_commission_percent, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		int64(round.ID), round.Creator, round.TicketPrice.Denom,
		round.TicketPrice.Amount, round.Balance,
		pq.StringArray(round.Participants), round.Expiration,
		round.NumberOfWinners, round.CommunityPoolPercentage,
		round.ProtocolCommissionPercent, round.CreatorCommissionPercent,
		round.CreatedAt, round.UpdatedAt,
	)
	if err != nil {
		return Round{}, fmt.Errorf("insert round: %w", err)
	}
	return round, nil
}

func (s *PostgresStore) GetRound(ctx context.Context, roundID uint64) (Round, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+roundColumns+` FROM lotto_rounds WHERE id = $1`, int64(roundID))
	if errors.Is(err, sql.ErrNoRows) {
		return Round{}, ErrRoundNotFound
	}
	if err != nil {
		return Round{}, fmt.Errorf("select round: %w", err)
	}
	return row.toRound(), nil
}

// RecordPurchase credits the balance and appends the buyer in one statement,
// so concurrent purchases serialize on the row and none are lost. The
// winners guard keeps settled rounds immutable. Winners are written
// exclusively by SettleRound.
func (s *PostgresStore) RecordPurchase(ctx context.Context, roundID uint64, buyer string, amount int64, at time.Time) (Round, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE lotto_rounds SET
			balance = balance + $2,
			participants = array_append(participants, $3),
			updated_at = $4
		WHERE id = $1 AND winners IS NULL
		RETURNING `+roundColumns,
		int64(roundID), amount, buyer, at,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetRound(ctx, roundID); getErr != nil {
			return Round{}, getErr
		}
		return Round{}, ErrRoundClosed
	}
	if err != nil {
		return Round{}, fmt.Errorf("record purchase: %w", err)
	}
	return row.toRound(), nil
}

func (s *PostgresStore) ListRounds(ctx context.Context, opts ListOptions) ([]Round, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + roundColumns + ` FROM lotto_rounds`
	args := []any{}
	if opts.StartAfter != nil {
		if opts.Order == OrderDescending {
			query += ` WHERE id < $1`
		} else {
			query += ` WHERE id > $1`
		}
		args = append(args, int64(*opts.StartAfter))
	}
	if opts.Order == OrderDescending {
		query += ` ORDER BY id DESC`
	} else {
		query += ` ORDER BY id ASC`
	}
	query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	var rows []roundRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}

	rounds := make([]Round, len(rows))
	for i, row := range rows {
		rounds[i] = row.toRound()
	}
	return rounds, nil
}

// SettleRound sets winners through a compare-and-set on their absence, so a
// retried callback can never settle the same round twice.
func (s *PostgresStore) SettleRound(ctx context.Context, roundID uint64, winners []string, settledAt time.Time) (Round, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE lotto_rounds SET
			winners = $2, settled_at = $3, updated_at = $3
		WHERE id = $1 AND winners IS NULL
		RETURNING `+roundColumns,
		int64(roundID), pq.StringArray(winners), settledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetRound(ctx, roundID); getErr != nil {
			return Round{}, getErr
		}
		return Round{}, ErrAlreadySettled
	}
	if err != nil {
		return Round{}, fmt.Errorf("settle round: %w", err)
	}
	return row.toRound(), nil
}
