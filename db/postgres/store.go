// Package postgres is the relational store behind the catalog, wizard
// sessions, and quote writes. One Store over a shared *sql.DB satisfies
// catalog.Store, wizard.Store, and pricing.QuoteWriter.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"so101-builder/internal/catalog"
	"so101-builder/internal/wizard"
)

// schema is the full relational schema. Every statement is idempotent so
// Init can run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	slug        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	icon        TEXT NOT NULL DEFAULT '',
	sort_order  INT  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS components (
	id                   BIGSERIAL PRIMARY KEY,
	name                 TEXT    NOT NULL,
	slug                 TEXT    NOT NULL UNIQUE,
	category_id          BIGINT  NOT NULL REFERENCES categories(id),
	description          TEXT    NOT NULL DEFAULT '',
	image_url            TEXT    NOT NULL DEFAULT '',
	specifications       JSONB   NOT NULL DEFAULT '{}',
	is_default_for_so101 BOOLEAN NOT NULL DEFAULT FALSE,
	quantity_per_arm     INT     NOT NULL DEFAULT 1,
	arm_type             TEXT    NOT NULL DEFAULT 'both',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_components_category_id ON components (category_id);

CREATE TABLE IF NOT EXISTS vendors (
	id                    BIGSERIAL PRIMARY KEY,
	name                  TEXT    NOT NULL,
	slug                  TEXT    NOT NULL UNIQUE,
	website_url           TEXT    NOT NULL DEFAULT '',
	is_active             BOOLEAN NOT NULL DEFAULT TRUE,
	ships_to_us           BOOLEAN NOT NULL DEFAULT TRUE,
	ships_to_eu           BOOLEAN NOT NULL DEFAULT FALSE,
	typical_shipping_days INT     NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS component_quotes (
	id             BIGSERIAL PRIMARY KEY,
	component_id   BIGINT NOT NULL REFERENCES components(id) ON DELETE CASCADE,
	vendor_id      BIGINT NOT NULL REFERENCES vendors(id) ON DELETE CASCADE,
	price          NUMERIC(10, 2) NOT NULL,
	currency       TEXT NOT NULL DEFAULT 'USD',
	original_price NUMERIC(10, 2),
	shipping_cost  NUMERIC(10, 2),
	product_url    TEXT NOT NULL DEFAULT '',
	sku            TEXT NOT NULL DEFAULT '',
	in_stock       BOOLEAN NOT NULL DEFAULT TRUE,
	stock_quantity INT,
	fetched_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (component_id, vendor_id)
);

CREATE INDEX IF NOT EXISTS idx_component_quotes_component_id ON component_quotes (component_id);

CREATE TABLE IF NOT EXISTS setups (
	id             UUID PRIMARY KEY,
	profile        JSONB NOT NULL DEFAULT '{}',
	current_step   INT NOT NULL DEFAULT 1,
	completed      BOOLEAN NOT NULL DEFAULT FALSE,
	recommendation JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_setups_expires_at ON setups (expires_at);
`

// componentColumns is the select list shared by every component query.
// Requires components aliased c joined to categories aliased cat.
const componentColumns = "c.id, c.name, c.slug, c.category_id, cat.slug, cat.name, " +
	"c.description, c.image_url, c.specifications, c.is_default_for_so101, " +
	"c.quantity_per_arm, c.arm_type, c.created_at, c.updated_at"

const componentFrom = "FROM components c JOIN categories cat ON cat.id = c.category_id"

// quoteRollup aggregates current quotes per component for listing rows.
const quoteRollup = "LEFT JOIN (" +
	"SELECT component_id, MIN(price) AS lowest_price, COUNT(*) AS vendor_count, " +
	"BOOL_OR(in_stock) AS in_stock_anywhere FROM component_quotes GROUP BY component_id" +
	") q ON q.component_id = c.id"

const quoteColumns = "q.id, q.component_id, q.vendor_id, v.name, v.slug, q.price, " +
	"q.currency, q.original_price, q.shipping_cost, q.product_url, q.sku, " +
	"q.in_stock, q.stock_quantity, q.fetched_at"

// Store implements persistence over PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL using a lib/pq DSN.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return NewStore(db), nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the schema. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// =============================================================================
// CATALOG OPERATIONS
// =============================================================================

// ListComponents returns one page of components matching the filter plus the
// total match count before pagination.
func (s *Store) ListComponents(ctx context.Context, f catalog.ListFilter) ([]catalog.ComponentWithPricing, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.CategorySlug != "" {
		where = append(where, "cat.slug = "+arg(f.CategorySlug))
	}
	if f.ArmType != "" {
		// Parts marked for both arms match either side.
		where = append(where, "(c.arm_type = "+arg(f.ArmType)+" OR c.arm_type = 'both')")
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, "(c.name ILIKE "+p+" OR c.description ILIKE "+p+")")
	}
	if f.InStockOnly {
		where = append(where, "COALESCE(q.in_stock_anywhere, FALSE)")
	}
	if f.MinPrice != nil {
		where = append(where, "q.lowest_price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, "q.lowest_price <= "+arg(*f.MaxPrice))
	}

	base := componentFrom + " " + quoteRollup
	if len(where) > 0 {
		base += " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) "+base, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count components: %w", err)
	}

	query := "SELECT " + componentColumns +
		", q.lowest_price, COALESCE(q.vendor_count, 0), COALESCE(q.in_stock_anywhere, FALSE) " +
		base + " ORDER BY cat.sort_order, c.name LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query components: %w", err)
	}
	defer rows.Close()

	var components []catalog.ComponentWithPricing
	for rows.Next() {
		var (
			row    catalog.ComponentWithPricing
			specs  []byte
			lowest decimal.NullDecimal
		)
		if err := rows.Scan(
			&row.ID, &row.Name, &row.Slug, &row.CategoryID, &row.CategorySlug, &row.CategoryName,
			&row.Description, &row.ImageURL, &specs, &row.IsDefaultForSO101,
			&row.QuantityPerArm, &row.ArmType, &row.CreatedAt, &row.UpdatedAt,
			&lowest, &row.VendorCount, &row.InStockAnywhere,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan component: %w", err)
		}
		if err := unmarshalSpecs(specs, &row.Component); err != nil {
			return nil, 0, err
		}
		if lowest.Valid {
			row.LowestPrice = &lowest.Decimal
		}
		components = append(components, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read components: %w", err)
	}
	return components, total, nil
}

// GetComponent returns a component by id, or nil when it does not exist.
func (s *Store) GetComponent(ctx context.Context, id int64) (*catalog.Component, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+componentColumns+" "+componentFrom+" WHERE c.id = $1", id)
	return scanComponent(row)
}

// GetComponentBySlug returns a component by slug, or nil when it does not exist.
func (s *Store) GetComponentBySlug(ctx context.Context, slug string) (*catalog.Component, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+componentColumns+" "+componentFrom+" WHERE c.slug = $1", slug)
	return scanComponent(row)
}

// ComponentsByIDs returns the components that exist among ids, ordered by id.
func (s *Store) ComponentsByIDs(ctx context.Context, ids []int64) ([]catalog.Component, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+componentColumns+" "+componentFrom+" WHERE c.id = ANY($1) ORDER BY c.id",
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query components: %w", err)
	}
	defer rows.Close()

	var components []catalog.Component
	for rows.Next() {
		comp, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		components = append(components, *comp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read components: %w", err)
	}
	return components, nil
}

// AllComponentIDs returns every component id, used by whole-catalog price
// refreshes.
func (s *Store) AllComponentIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM components ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query component ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan component id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read component ids: %w", err)
	}
	return ids, nil
}

// DefaultComponents returns the parts of the stock SO-101 build in catalog order.
func (s *Store) DefaultComponents(ctx context.Context) ([]catalog.Component, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+componentColumns+" "+componentFrom+
			" WHERE c.is_default_for_so101 ORDER BY cat.sort_order, c.name")
	if err != nil {
		return nil, fmt.Errorf("failed to query default components: %w", err)
	}
	defer rows.Close()

	var components []catalog.Component
	for rows.Next() {
		comp, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		components = append(components, *comp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read default components: %w", err)
	}
	return components, nil
}

// QuotesByComponentIDs returns current quotes grouped by component, cheapest
// first within each component.
func (s *Store) QuotesByComponentIDs(ctx context.Context, ids []int64) (map[int64][]catalog.Quote, error) {
	quotes := make(map[int64][]catalog.Quote)
	if len(ids) == 0 {
		return quotes, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+quoteColumns+" FROM component_quotes q JOIN vendors v ON v.id = q.vendor_id"+
			" WHERE q.component_id = ANY($1) ORDER BY q.component_id, q.price, v.name",
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q        catalog.Quote
			original decimal.NullDecimal
			shipping decimal.NullDecimal
			stockQty sql.NullInt64
		)
		if err := rows.Scan(
			&q.ID, &q.ComponentID, &q.VendorID, &q.VendorName, &q.VendorSlug,
			&q.Price, &q.Currency, &original, &shipping,
			&q.ProductURL, &q.SKU, &q.InStock, &stockQty, &q.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		if original.Valid {
			q.OriginalPrice = &original.Decimal
		}
		if shipping.Valid {
			q.ShippingCost = &shipping.Decimal
		}
		if stockQty.Valid {
			n := int(stockQty.Int64)
			q.StockQuantity = &n
		}
		quotes[q.ComponentID] = append(quotes[q.ComponentID], q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read quotes: %w", err)
	}
	return quotes, nil
}

// Categories lists all categories with component counts in sort order.
func (s *Store) Categories(ctx context.Context) ([]catalog.CategoryWithCount, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT cat.id, cat.name, cat.slug, cat.description, cat.icon, cat.sort_order, COUNT(c.id)"+
			" FROM categories cat LEFT JOIN components c ON c.category_id = cat.id"+
			" GROUP BY cat.id ORDER BY cat.sort_order, cat.name")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []catalog.CategoryWithCount
	for rows.Next() {
		var c catalog.CategoryWithCount
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.Icon,
			&c.SortOrder, &c.ComponentCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}
	return categories, nil
}

// =============================================================================
// SETUP OPERATIONS
// =============================================================================

// CreateSetup inserts a new wizard session.
func (s *Store) CreateSetup(ctx context.Context, setup *wizard.Setup) error {
	profile, err := json.Marshal(setup.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO setups (id, profile, current_step, completed, recommendation, created_at, updated_at, expires_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		setup.ID, profile, setup.CurrentStep, setup.Completed,
		nullJSON(setup.Recommendation), setup.CreatedAt, setup.UpdatedAt, setup.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert setup: %w", err)
	}
	return nil
}

// GetSetup returns a wizard session by id, or nil when it does not exist.
func (s *Store) GetSetup(ctx context.Context, id uuid.UUID) (*wizard.Setup, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, profile, current_step, completed, recommendation, created_at, updated_at, expires_at"+
			" FROM setups WHERE id = $1", id)

	var (
		setup   wizard.Setup
		profile []byte
		rec     []byte
	)
	err := row.Scan(&setup.ID, &profile, &setup.CurrentStep, &setup.Completed,
		&rec, &setup.CreatedAt, &setup.UpdatedAt, &setup.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setup: %w", err)
	}

	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &setup.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}
	if len(rec) > 0 {
		setup.Recommendation = json.RawMessage(rec)
	}
	return &setup, nil
}

// UpdateSetup persists the full session state in one write.
func (s *Store) UpdateSetup(ctx context.Context, setup *wizard.Setup) error {
	profile, err := json.Marshal(setup.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE setups SET profile = $2, current_step = $3, completed = $4,"+
			" recommendation = $5, updated_at = $6, expires_at = $7 WHERE id = $1",
		setup.ID, profile, setup.CurrentStep, setup.Completed,
		nullJSON(setup.Recommendation), setup.UpdatedAt, setup.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update setup: %w", err)
	}
	return nil
}

// DeleteSetup removes a session, reporting whether a row existed.
func (s *Store) DeleteSetup(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM setups WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete setup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpiredSetups removes sessions whose expiry is strictly before cutoff.
func (s *Store) DeleteExpiredSetups(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM setups WHERE expires_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired setups: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// QUOTE OPERATIONS
// =============================================================================

// VendorsBySlug returns the active vendors keyed by slug.
func (s *Store) VendorsBySlug(ctx context.Context) (map[string]catalog.Vendor, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, slug, website_url, is_active, ships_to_us, ships_to_eu, typical_shipping_days"+
			" FROM vendors WHERE is_active")
	if err != nil {
		return nil, fmt.Errorf("failed to query vendors: %w", err)
	}
	defer rows.Close()

	vendors := make(map[string]catalog.Vendor)
	for rows.Next() {
		var v catalog.Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Slug, &v.WebsiteURL, &v.IsActive,
			&v.ShipsToUS, &v.ShipsToEU, &v.TypicalShippingDays); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors[v.Slug] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vendors: %w", err)
	}
	return vendors, nil
}

// UpsertQuote writes the current quote for a (component, vendor) pair,
// replacing any previous one.
func (s *Store) UpsertQuote(ctx context.Context, q *catalog.Quote) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO component_quotes (component_id, vendor_id, price, currency, original_price,"+
			" shipping_cost, product_url, sku, in_stock, stock_quantity, fetched_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)"+
			" ON CONFLICT (component_id, vendor_id) DO UPDATE SET"+
			" price = EXCLUDED.price, currency = EXCLUDED.currency,"+
			" original_price = EXCLUDED.original_price, shipping_cost = EXCLUDED.shipping_cost,"+
			" product_url = EXCLUDED.product_url, sku = EXCLUDED.sku,"+
			" in_stock = EXCLUDED.in_stock, stock_quantity = EXCLUDED.stock_quantity,"+
			" fetched_at = EXCLUDED.fetched_at",
		q.ComponentID, q.VendorID, q.Price, q.Currency, nullDecimal(q.OriginalPrice),
		nullDecimal(q.ShippingCost), q.ProductURL, q.SKU, q.InStock,
		nullInt(q.StockQuantity), q.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert quote: %w", err)
	}
	return nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponent(row rowScanner) (*catalog.Component, error) {
	var (
		c     catalog.Component
		specs []byte
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Slug, &c.CategoryID, &c.CategorySlug, &c.CategoryName,
		&c.Description, &c.ImageURL, &specs, &c.IsDefaultForSO101,
		&c.QuantityPerArm, &c.ArmType, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan component: %w", err)
	}
	if err := unmarshalSpecs(specs, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func unmarshalSpecs(raw []byte, c *catalog.Component) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &c.Specifications); err != nil {
		return fmt.Errorf("failed to decode specifications for %q: %w", c.Slug, err)
	}
	return nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
