package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transferWatch/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS transfer_notifications (
	tx_hash       TEXT        NOT NULL,
	log_index     BIGINT      NOT NULL,
	block_number  BIGINT      NOT NULL,
	direction     TEXT        NOT NULL,
	kind          TEXT        NOT NULL,
	wallet        TEXT        NOT NULL,
	wallet_label  TEXT        NOT NULL,
	token         TEXT        NOT NULL,
	symbol        TEXT        NOT NULL,
	decimals      SMALLINT    NOT NULL,
	raw_value     NUMERIC     NOT NULL,
	amount        NUMERIC     NOT NULL,
	observed_at   TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tx_hash, log_index)
)`

// nativeLogIndex marks native transfers, which have no log.
const nativeLogIndex = -1

// Store archives transfer events in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the archive table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create transfer_notifications: %w", err)
	}
	return nil
}

// PutEvents inserts events; rows already archived are left untouched.
func (s *Store) PutEvents(ctx context.Context, events []model.TransferEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		logIndex := int64(nativeLogIndex)
		if e.LogIndex != nil {
			logIndex = int64(*e.LogIndex)
		}
		batch.Queue(`
			INSERT INTO transfer_notifications (
				tx_hash, log_index, block_number, direction, kind, wallet, wallet_label,
				token, symbol, decimals, raw_value, amount, observed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			e.TxHash,
			logIndex,
			int64(e.BlockNumber),
			string(e.Direction),
			string(e.Kind),
			e.Wallet.Address.Hex(),
			e.Wallet.Label,
			e.Token,
			e.Symbol,
			int16(e.Decimals),
			e.RawValue,
			e.Amount.String(),
			e.ObservedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
