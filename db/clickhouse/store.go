// Package clickhouse stores the price observation history.
// Optimized for append-heavy writes from the refresh job and per-component
// time range reads behind the history endpoint.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
)

// Observation is one observed vendor price for a component.
type Observation struct {
	ComponentID int64           `ch:"component_id"`
	VendorID    int64           `ch:"vendor_id"`
	VendorSlug  string          `ch:"vendor_slug"`
	Price       decimal.Decimal `ch:"price"`
	Currency    string          `ch:"currency"`
	InStock     bool            `ch:"in_stock"`
	Source      string          `ch:"source"`
	ObservedAt  time.Time       `ch:"observed_at"`
}

// Config holds ClickHouse connection configuration
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:     "localhost:9000",
		Database: "so101",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store implements the observation history over ClickHouse
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore creates a new ClickHouse observation store
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Init creates the observation table. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS price_observations (
			component_id UInt64,
			vendor_id    UInt64,
			vendor_slug  String,
			price        Decimal(10, 2),
			currency     String,
			in_stock     UInt8,
			source       String,
			observed_at  DateTime
		)
		ENGINE = MergeTree()
		ORDER BY (component_id, observed_at)
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create price_observations: %w", err)
	}
	return nil
}

// =============================================================================
// OBSERVATION OPERATIONS
// =============================================================================

// AppendObservations inserts observations efficiently using batch insert
func (s *Store) AppendObservations(ctx context.Context, observations []Observation) error {
	if len(observations) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_observations (
			component_id, vendor_id, vendor_slug, price, currency,
			in_stock, source, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, o := range observations {
		observedAt := o.ObservedAt
		if observedAt.IsZero() {
			observedAt = time.Now().UTC()
		}
		if err := batch.Append(
			uint64(o.ComponentID), uint64(o.VendorID), o.VendorSlug,
			o.Price, o.Currency, boolToUInt8(o.InStock), o.Source, observedAt,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// ObservationsSince returns the observation time series for a component,
// oldest first.
func (s *Store) ObservationsSince(ctx context.Context, componentID int64, since time.Time) ([]Observation, error) {
	query := `
		SELECT component_id, vendor_id, vendor_slug, price, currency,
			   in_stock, source, observed_at
		FROM price_observations
		WHERE component_id = ? AND observed_at >= ?
		ORDER BY observed_at ASC, vendor_slug ASC
	`
	rows, err := s.conn.Query(ctx, query, uint64(componentID), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var observations []Observation
	for rows.Next() {
		var (
			o           Observation
			componentID uint64
			vendorID    uint64
			inStock     uint8
		)
		if err := rows.Scan(
			&componentID, &vendorID, &o.VendorSlug, &o.Price, &o.Currency,
			&inStock, &o.Source, &o.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.ComponentID = int64(componentID)
		o.VendorID = int64(vendorID)
		o.InStock = inStock == 1
		observations = append(observations, o)
	}
	return observations, nil
}

// LatestObservation returns the most recent observation for a component and
// vendor, or nil when none exists.
func (s *Store) LatestObservation(ctx context.Context, componentID, vendorID int64) (*Observation, error) {
	query := `
		SELECT component_id, vendor_id, vendor_slug, price, currency,
			   in_stock, source, observed_at
		FROM price_observations
		WHERE component_id = ? AND vendor_id = ?
		ORDER BY observed_at DESC
		LIMIT 1
	`
	rows, err := s.conn.Query(ctx, query, uint64(componentID), uint64(vendorID))
	if err != nil {
		return nil, fmt.Errorf("failed to query latest observation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	var (
		o       Observation
		compID  uint64
		vendID  uint64
		inStock uint8
	)
	if err := rows.Scan(
		&compID, &vendID, &o.VendorSlug, &o.Price, &o.Currency,
		&inStock, &o.Source, &o.ObservedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan observation: %w", err)
	}
	o.ComponentID = int64(compID)
	o.VendorID = int64(vendID)
	o.InStock = inStock == 1
	return &o, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
