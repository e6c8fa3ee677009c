package wealth

import (
	"context"
	"database/sql"
)

// SQLSink persists ledger entries using database/sql.
// It supports both Postgres (lib/pq) and SQLite (modernc) via standard drivers.
type SQLSink struct {
	db *sql.DB
}

func NewSQLSink(db *sql.DB) *SQLSink {
	return &SQLSink{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	borg_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	amount_minor BIGINT NOT NULL,
	currency TEXT NOT NULL,
	scale INTEGER NOT NULL,
	counterparty_id TEXT,
	reason TEXT,
	ts TIMESTAMP NOT NULL,
	balance_after_minor BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries (borg_id, currency);
`

func (s *SQLSink) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const insertEntry = `
		INSERT INTO ledger_entries (id, borg_id, kind, amount_minor, currency, scale, counterparty_id, reason, ts, balance_after_minor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

// Append inserts one entry. The primary key makes re-appends idempotent
// failures rather than silent duplicates.
func (s *SQLSink) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, insertEntry,
		e.ID, e.BorgID, string(e.Kind), e.Amount.MinorUnits, e.Amount.Currency, e.Amount.Scale,
		e.CounterpartyID, e.Reason, e.Timestamp, e.BalanceAfter.MinorUnits,
	)
	return err
}

// AppendBatch inserts entries inside one transaction so a transfer's two
// halves commit or roll back together.
func (s *SQLSink) AppendBatch(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, insertEntry,
			e.ID, e.BorgID, string(e.Kind), e.Amount.MinorUnits, e.Amount.Currency, e.Amount.Scale,
			e.CounterpartyID, e.Reason, e.Timestamp, e.BalanceAfter.MinorUnits,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Load reads back the entry log for one account in append order.
// Used for recovery after restart; the in-memory ledger remains authoritative
// once loaded.
func (s *SQLSink) Load(ctx context.Context, borgID, currency string) ([]Entry, error) {
	query := `
		SELECT id, borg_id, kind, amount_minor, currency, scale, counterparty_id, reason, ts, balance_after_minor
		FROM ledger_entries WHERE borg_id = $1 AND currency = $2 ORDER BY ts, id
	`
	rows, err := s.db.QueryContext(ctx, query, borgID, currency)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var kind string
		var counterparty, reason sql.NullString
		if err := rows.Scan(&e.ID, &e.BorgID, &kind, &e.Amount.MinorUnits, &e.Amount.Currency, &e.Amount.Scale,
			&counterparty, &reason, &e.Timestamp, &e.BalanceAfter.MinorUnits); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.CounterpartyID = counterparty.String
		e.Reason = reason.String
		e.BalanceAfter.Currency = e.Amount.Currency
		e.BalanceAfter.Scale = e.Amount.Scale
		result = append(result, e)
	}
	return result, rows.Err()
}
