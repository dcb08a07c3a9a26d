package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/meditrack-pos/internal/domain/sale"
)

const (
	insertReceiptSQL = `INSERT INTO receipts (id, lines, total, message, created_at)
	VALUES ($1, $2, $3, $4, $5)`

	recentReceiptsSQL = `SELECT id, lines, total, message, created_at
	FROM receipts ORDER BY created_at DESC, id DESC LIMIT $1`

	receiptsBetweenSQL = `SELECT id, lines, total, message, created_at
	FROM receipts WHERE created_at >= $1 AND created_at < $2
	ORDER BY created_at, id`
)

var _ sale.Journal = (*Journal)(nil)

// Journal implements sale.Journal backed by PostgreSQL.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal returns a Journal that uses the given pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Record persists a confirmed sale. Lines are stored as JSONB.
func (j *Journal) Record(ctx context.Context, r *sale.Receipt) error {
	lines, err := json.Marshal(r.Lines)
	if err != nil {
		return errors.Wrap(err, "marshal receipt lines")
	}

	if _, err := j.pool.Exec(ctx, insertReceiptSQL,
		r.ID, lines, r.Total, r.Message, r.CreatedAt,
	); err != nil {
		return errors.Wrapf(err, "insert receipt %q", r.ID)
	}
	return nil
}

// Recent returns up to limit receipts, newest first. A non-positive limit
// returns everything.
func (j *Journal) Recent(ctx context.Context, limit int) ([]sale.Receipt, error) {
	var arg any
	if limit > 0 {
		arg = limit
	}
	rows, err := j.pool.Query(ctx, recentReceiptsSQL, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query recent receipts")
	}
	return collectReceipts(rows)
}

// Between returns receipts created in [from, to), oldest first.
func (j *Journal) Between(ctx context.Context, from, to time.Time) ([]sale.Receipt, error) {
	rows, err := j.pool.Query(ctx, receiptsBetweenSQL, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "query receipts")
	}
	return collectReceipts(rows)
}

func collectReceipts(rows pgx.Rows) ([]sale.Receipt, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sale.Receipt, error) {
		var (
			r     sale.Receipt
			lines []byte
		)
		if err := row.Scan(&r.ID, &lines, &r.Total, &r.Message, &r.CreatedAt); err != nil {
			return sale.Receipt{}, err
		}
		if err := json.Unmarshal(lines, &r.Lines); err != nil {
			return sale.Receipt{}, errors.Wrapf(err, "unmarshal lines of %q", r.ID)
		}
		return r, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan receipts")
	}
	return out, nil
}
