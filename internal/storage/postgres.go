package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tmoretti/wfm-data/internal/model"
)

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. The caller owns the pool's lifecycle.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS order_history (
		order_id            TEXT PRIMARY KEY,
		item_id             BIGINT NOT NULL REFERENCES items(id),
		user_id             TEXT NOT NULL,
		side                TEXT NOT NULL,
		initial_price       DOUBLE PRECISION NOT NULL,
		final_price         DOUBLE PRECISION NOT NULL,
		quantity            INTEGER NOT NULL,
		first_seen          TIMESTAMPTZ NOT NULL,
		last_seen           TIMESTAMPTZ NOT NULL,
		visibility_seconds  DOUBLE PRECISION NOT NULL,
		price_change_count  INTEGER NOT NULL,
		listing_type        TEXT NOT NULL,
		status              TEXT NOT NULL,
		recent_quantities   BIGINT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_history_item_status
		ON order_history (item_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_order_history_item_last_seen
		ON order_history (item_id, last_seen)`,
	`CREATE TABLE IF NOT EXISTS item_prices (
		item_id     BIGINT NOT NULL REFERENCES items(id),
		recorded_at TIMESTAMPTZ NOT NULL,
		price       DOUBLE PRECISION NOT NULL,
		quantity    INTEGER NOT NULL,
		side        TEXT NOT NULL,
		UNIQUE (item_id, recorded_at, price, side)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_item_prices_item_recorded
		ON item_prices (item_id, recorded_at)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Postgres) UpsertItem(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO items (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert item %q: %w", name, err)
	}
	return id, nil
}

func (s *Postgres) Items(ctx context.Context) ([]model.Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.Name); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Postgres) UpsertOrderRecord(ctx context.Context, rec model.OrderRecord) error {
	quantities := make([]int64, len(rec.RecentQuantities))
	for i, q := range rec.RecentQuantities {
		quantities[i] = int64(q)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO order_history (
			order_id, item_id, user_id, side,
			initial_price, final_price, quantity,
			first_seen, last_seen, visibility_seconds,
			price_change_count, listing_type, status, recent_quantities
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (order_id) DO UPDATE SET
			final_price        = EXCLUDED.final_price,
			quantity           = EXCLUDED.quantity,
			last_seen          = EXCLUDED.last_seen,
			visibility_seconds = EXCLUDED.visibility_seconds,
			price_change_count = EXCLUDED.price_change_count,
			listing_type       = EXCLUDED.listing_type,
			status             = EXCLUDED.status,
			recent_quantities  = EXCLUDED.recent_quantities`,
		rec.OrderID, rec.ItemID, rec.UserID, string(rec.Side),
		rec.InitialPrice, rec.FinalPrice, rec.Quantity,
		rec.FirstSeen, rec.LastSeen, rec.VisibilityDuration.Seconds(),
		rec.PriceChangeCount, string(rec.ListingType), string(rec.Status), quantities)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", rec.OrderID, err)
	}
	return nil
}

const orderColumns = `order_id, item_id, user_id, side,
	initial_price, final_price, quantity,
	first_seen, last_seen, visibility_seconds,
	price_change_count, listing_type, status, recent_quantities`

func scanOrderRecord(rows pgx.Rows) (model.OrderRecord, error) {
	var (
		rec        model.OrderRecord
		side       string
		listing    string
		status     string
		visibility float64
		quantities []int64
	)
	err := rows.Scan(&rec.OrderID, &rec.ItemID, &rec.UserID, &side,
		&rec.InitialPrice, &rec.FinalPrice, &rec.Quantity,
		&rec.FirstSeen, &rec.LastSeen, &visibility,
		&rec.PriceChangeCount, &listing, &status, &quantities)
	if err != nil {
		return model.OrderRecord{}, err
	}
	rec.Side = model.Side(side)
	rec.ListingType = model.ListingType(listing)
	rec.Status = model.OrderStatus(status)
	rec.VisibilityDuration = time.Duration(visibility * float64(time.Second))
	rec.RecentQuantities = make([]int, len(quantities))
	for i, q := range quantities {
		rec.RecentQuantities[i] = int(q)
	}
	return rec, nil
}

func (s *Postgres) queryOrders(ctx context.Context, sql string, args ...any) ([]model.OrderRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var records []model.OrderRecord
	for rows.Next() {
		rec, err := scanOrderRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Postgres) ActiveOrderRecords(ctx context.Context, itemID int64) ([]model.OrderRecord, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM order_history
		 WHERE item_id = $1 AND status = 'active'`, itemID)
}

func (s *Postgres) TerminalOrderRecordsSince(ctx context.Context, itemID int64, since time.Time) ([]model.OrderRecord, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM order_history
		 WHERE item_id = $1 AND status IN ('fulfilled', 'dead') AND last_seen >= $2`,
		itemID, since)
}

func (s *Postgres) AppendPricePoint(ctx context.Context, p model.PricePoint) error {
	_, err := s.AppendPricePoints(ctx, []model.PricePoint{p})
	return err
}

func (s *Postgres) AppendPricePoints(ctx context.Context, points []model.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(
			`INSERT INTO item_prices (item_id, recorded_at, price, quantity, side)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (item_id, recorded_at, price, side) DO NOTHING`,
			p.ItemID, p.RecordedAt, p.Price, p.Quantity, string(p.Side))
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range points {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("append price points: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *Postgres) QueryPricePoints(ctx context.Context, itemID int64, from time.Time) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, recorded_at, price, quantity, side FROM item_prices
		 WHERE item_id = $1 AND recorded_at >= $2
		 ORDER BY recorded_at`, itemID, from)
	if err != nil {
		return nil, fmt.Errorf("query price points: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var (
			p    model.PricePoint
			side string
		)
		if err := rows.Scan(&p.ItemID, &p.RecordedAt, &p.Price, &p.Quantity, &side); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		p.Side = model.Side(side)
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Postgres) QueryOrderRecords(ctx context.Context, itemID int64, f OrderFilter) ([]model.OrderRecord, error) {
	sql := `SELECT ` + orderColumns + ` FROM order_history WHERE item_id = $1`
	args := []any{itemID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		sql += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Side != "" {
		args = append(args, string(f.Side))
		sql += fmt.Sprintf(" AND side = $%d", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		sql += fmt.Sprintf(" AND last_seen >= $%d", len(args))
	}
	sql += " ORDER BY first_seen"
	return s.queryOrders(ctx, sql, args...)
}

func (s *Postgres) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	prices, err := s.pool.Exec(ctx,
		`DELETE FROM item_prices WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge price points: %w", err)
	}
	orders, err := s.pool.Exec(ctx,
		`DELETE FROM order_history
		 WHERE status IN ('fulfilled', 'dead') AND last_seen < $1`, cutoff)
	if err != nil {
		return prices.RowsAffected(), fmt.Errorf("purge orders: %w", err)
	}
	return prices.RowsAffected() + orders.RowsAffected(), nil
}
