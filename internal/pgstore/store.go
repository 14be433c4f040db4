// Package pgstore persists the ledger, item states, inbound history and the
// import audit log in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/golab-ledger/internal/core"
)

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Store implements core.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// New returns a Store using pool. The schema must be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ImportedKeys returns every committed idempotency key.
func (s *Store) ImportedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT idempotency_key FROM ledger_entries`)
	if err != nil {
		return nil, err
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out, nil
}

const entryColumns = `idempotency_key, occurred_date, vendor, item_id, part_no, item_name,
	quantity, quantity_real, unit_price, unit_price_real, currency, doc_type, memo,
	source_row_ref, batch_id, imported_at`

// ListEntries returns committed entries in commit order.
func (s *Store) ListEntries(ctx context.Context, f core.EntryFilter) ([]core.LedgerEntry, error) {
	wb := newWhereBuilder()
	wb.Add("doc_type", string(f.DocType))
	wb.Add("item_id", f.ItemID)
	where, args := wb.Build()

	query, args := wb.page(`SELECT `+entryColumns+` FROM ledger_entries`+where+` ORDER BY seq`, args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]core.LedgerEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (core.LedgerEntry, error) {
	var (
		e               core.LedgerEntry
		qty, price      pgtype.Numeric
		qtyReal, prReal bool
		docType         string
		batchID         pgtype.UUID
	)
	err := row.Scan(
		&e.IdempotencyKey, &e.OccurredDate, &e.Vendor, &e.ItemID, &e.PartNo, &e.ItemName,
		&qty, &qtyReal, &price, &prReal, &e.Currency, &docType, &e.Memo,
		&e.SourceRowRef, &batchID, &e.ImportedAt,
	)
	if err != nil {
		return e, err
	}
	e.Quantity = core.NumberFromDecimal(fromPgNumeric(qty), qtyReal)
	e.UnitPrice = core.NumberFromDecimal(fromPgNumeric(price), prReal)
	e.DocType = core.DocType(docType)
	e.BatchID = fromPgUUID(batchID)
	return e, nil
}

const itemColumns = `item_id, display_name, vendor, part_no, identity, current_qty,
	average_unit_cost, created_at, updated_at`

// GetItem returns the item state, or nil when the item is unknown.
func (s *Store) GetItem(ctx context.Context, itemID string) (*core.ItemState, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM item_states WHERE item_id = $1`, itemID)
	st, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListItems returns all item states ordered by ID.
func (s *Store) ListItems(ctx context.Context) ([]core.ItemState, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM item_states ORDER BY item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]core.ItemState, 0)
	for rows.Next() {
		st, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, st)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (core.ItemState, error) {
	var (
		st       core.ItemState
		qty, avg pgtype.Numeric
	)
	err := row.Scan(&st.ItemID, &st.DisplayName, &st.Vendor, &st.PartNo, &st.Identity,
		&qty, &avg, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return st, err
	}
	st.CurrentQty = fromPgNumeric(qty)
	st.AverageUnitCost = fromPgNumeric(avg)
	return st, nil
}

// ItemHistory returns the history of one item, oldest first.
func (s *Store) ItemHistory(ctx context.Context, itemID string) ([]core.InboundHistoryRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, item_id, idempotency_key, kind, qty, unit_price,
		prev_qty, prev_avg_cost, resulting_qty, resulting_avg_cost, clamped, recorded_at
		FROM inbound_history WHERE item_id = $1 ORDER BY seq`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.InboundHistoryRecord, 0)
	for rows.Next() {
		var (
			h                          core.InboundHistoryRecord
			id                         pgtype.UUID
			kind                       string
			qty, price, pq, pa, rq, ra pgtype.Numeric
		)
		if err := rows.Scan(&id, &h.ItemID, &h.IdempotencyKey, &kind, &qty, &price,
			&pq, &pa, &rq, &ra, &h.Clamped, &h.RecordedAt); err != nil {
			return nil, err
		}
		h.ID = fromPgUUID(id)
		h.Kind = core.HistoryKind(kind)
		h.Qty = fromPgNumeric(qty)
		h.UnitPrice = fromPgNumeric(price)
		h.PrevQty = fromPgNumeric(pq)
		h.PrevAvgCost = fromPgNumeric(pa)
		h.ResultingQty = fromPgNumeric(rq)
		h.ResultingAvgCost = fromPgNumeric(ra)
		out = append(out, h)
	}
	return out, rows.Err()
}

// AppendAudit inserts an audit event.
func (s *Store) AppendAudit(ctx context.Context, ev core.AuditEvent) error {
	result, err := json.Marshal(ev.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO import_audit
		(id, kind, severity, layout, batch_id, batch_index, row_from, row_to, result,
		 error, ip_address, user_agent, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		toPgUUID(ev.ID), string(ev.Kind), string(ev.Severity), ev.Layout, toPgUUID(ev.BatchID),
		ev.BatchIndex, ev.RowFrom, ev.RowTo, result,
		ev.Error, ev.IPAddress, ev.UserAgent, ev.Source, ev.CreatedAt,
	)
	return err
}

// ListAudit returns matching events, newest first.
func (s *Store) ListAudit(ctx context.Context, f core.AuditFilter) ([]core.AuditEvent, error) {
	if f.Limit <= 0 {
		f.Limit = core.DefaultAuditLimit
	}

	wb := newWhereBuilder()
	wb.Add("kind", string(f.Kind))
	wb.Add("layout", f.Layout)
	where, args := wb.Build()

	query, args := wb.page(`SELECT id, kind, severity, layout, batch_id, batch_index, row_from,
		row_to, result, error, ip_address, user_agent, source, created_at
		FROM import_audit`+where+` ORDER BY seq DESC`, args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]core.AuditEvent, 0)
	for rows.Next() {
		var (
			ev             core.AuditEvent
			id, batchID    pgtype.UUID
			kind, severity string
			result         []byte
		)
		if err := rows.Scan(&id, &kind, &severity, &ev.Layout, &batchID, &ev.BatchIndex,
			&ev.RowFrom, &ev.RowTo, &result, &ev.Error, &ev.IPAddress, &ev.UserAgent,
			&ev.Source, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.ID = fromPgUUID(id)
		ev.BatchID = fromPgUUID(batchID)
		ev.Kind = core.Mode(kind)
		ev.Severity = core.AuditSeverity(severity)
		if err := json.Unmarshal(result, &ev.Result); err != nil {
			return nil, fmt.Errorf("audit %s result: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PurgeAudit deletes audit events created before cutoff and returns how
// many were removed.
func (s *Store) PurgeAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_audit WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InRow runs fn in one transaction.
func (s *Store) InRow(ctx context.Context, fn func(w core.RowWriter) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&rowTx{tx: tx})
	})
}

// rowTx writes one row's effects inside a transaction.
type rowTx struct {
	tx pgx.Tx
}

func (r *rowTx) AppendEntry(ctx context.Context, e core.LedgerEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.IdempotencyKey, e.OccurredDate, e.Vendor, e.ItemID, e.PartNo, e.ItemName,
		toPgNumeric(e.Quantity.Decimal()), e.Quantity.IsReal(),
		toPgNumeric(e.UnitPrice.Decimal()), e.UnitPrice.IsReal(),
		e.Currency, string(e.DocType), e.Memo, e.SourceRowRef, toPgUUID(e.BatchID), e.ImportedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrDuplicateKey, e.IdempotencyKey)
	}
	return err
}

// PutItem inserts next when prev is nil, and otherwise updates it only while
// the stored quantity and average still equal prev's. Zero affected rows
// means another writer got there first.
func (r *rowTx) PutItem(ctx context.Context, prev *core.ItemState, next core.ItemState) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if prev == nil {
		tag, err = r.tx.Exec(ctx, `INSERT INTO item_states (`+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (item_id) DO NOTHING`,
			next.ItemID, next.DisplayName, next.Vendor, next.PartNo, next.Identity,
			toPgNumeric(next.CurrentQty), toPgNumeric(next.AverageUnitCost), next.CreatedAt, next.UpdatedAt,
		)
	} else {
		tag, err = r.tx.Exec(ctx, `UPDATE item_states
			SET current_qty = $2, average_unit_cost = $3, updated_at = $4
			WHERE item_id = $1 AND current_qty = $5 AND average_unit_cost = $6`,
			next.ItemID, toPgNumeric(next.CurrentQty), toPgNumeric(next.AverageUnitCost), next.UpdatedAt,
			toPgNumeric(prev.CurrentQty), toPgNumeric(prev.AverageUnitCost),
		)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", core.ErrItemStateChanged, next.ItemID)
	}
	return nil
}

func (r *rowTx) AppendHistory(ctx context.Context, h core.InboundHistoryRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inbound_history
		(id, item_id, idempotency_key, kind, qty, unit_price, prev_qty, prev_avg_cost,
		 resulting_qty, resulting_avg_cost, clamped, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		toPgUUID(h.ID), h.ItemID, h.IdempotencyKey, string(h.Kind),
		toPgNumeric(h.Qty), toPgNumeric(h.UnitPrice), toPgNumeric(h.PrevQty), toPgNumeric(h.PrevAvgCost),
		toPgNumeric(h.ResultingQty), toPgNumeric(h.ResultingAvgCost), h.Clamped, h.RecordedAt,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
