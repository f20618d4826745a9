package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"so101-builder/internal/catalog"
)

// ApplySeed upserts the seed fixtures inside one transaction. Rows are
// addressed by slug so reseeding updates in place instead of duplicating.
// The data is expected to come from catalog.ParseSeed, which has already
// verified every cross-reference.
func (s *Store) ApplySeed(ctx context.Context, data *catalog.SeedData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	categoryIDs := make(map[string]int64, len(data.Categories))
	for _, c := range data.Categories {
		var id int64
		err := tx.QueryRowContext(ctx,
			"INSERT INTO categories (name, slug, description, icon, sort_order)"+
				" VALUES ($1, $2, $3, $4, $5)"+
				" ON CONFLICT (slug) DO UPDATE SET"+
				" name = EXCLUDED.name, description = EXCLUDED.description,"+
				" icon = EXCLUDED.icon, sort_order = EXCLUDED.sort_order"+
				" RETURNING id",
			c.Name, c.Slug, c.Description, c.Icon, c.SortOrder).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to seed category %q: %w", c.Slug, err)
		}
		categoryIDs[c.Slug] = id
	}

	vendorIDs := make(map[string]int64, len(data.Vendors))
	for _, v := range data.Vendors {
		var id int64
		err := tx.QueryRowContext(ctx,
			"INSERT INTO vendors (name, slug, website_url, is_active, ships_to_us, ships_to_eu, typical_shipping_days)"+
				" VALUES ($1, $2, $3, $4, $5, $6, $7)"+
				" ON CONFLICT (slug) DO UPDATE SET"+
				" name = EXCLUDED.name, website_url = EXCLUDED.website_url,"+
				" is_active = EXCLUDED.is_active, ships_to_us = EXCLUDED.ships_to_us,"+
				" ships_to_eu = EXCLUDED.ships_to_eu, typical_shipping_days = EXCLUDED.typical_shipping_days"+
				" RETURNING id",
			v.Name, v.Slug, v.WebsiteURL, v.IsActive, v.ShipsToUS, v.ShipsToEU,
			v.TypicalShippingDays).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to seed vendor %q: %w", v.Slug, err)
		}
		vendorIDs[v.Slug] = id
	}

	componentIDs := make(map[string]int64, len(data.Components))
	for _, c := range data.Components {
		specs, err := json.Marshal(c.Specifications)
		if err != nil {
			return fmt.Errorf("failed to encode specifications for %q: %w", c.Slug, err)
		}
		var id int64
		err = tx.QueryRowContext(ctx,
			"INSERT INTO components (name, slug, category_id, description, image_url,"+
				" specifications, is_default_for_so101, quantity_per_arm, arm_type)"+
				" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)"+
				" ON CONFLICT (slug) DO UPDATE SET"+
				" name = EXCLUDED.name, category_id = EXCLUDED.category_id,"+
				" description = EXCLUDED.description, image_url = EXCLUDED.image_url,"+
				" specifications = EXCLUDED.specifications,"+
				" is_default_for_so101 = EXCLUDED.is_default_for_so101,"+
				" quantity_per_arm = EXCLUDED.quantity_per_arm, arm_type = EXCLUDED.arm_type,"+
				" updated_at = NOW()"+
				" RETURNING id",
			c.Name, c.Slug, categoryIDs[c.Category], c.Description, c.ImageURL, specs,
			c.IsDefaultForSO101, c.QuantityPerArm, c.ArmType).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to seed component %q: %w", c.Slug, err)
		}
		componentIDs[c.Slug] = id
	}

	for _, q := range data.Quotes {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO component_quotes (component_id, vendor_id, price, currency, product_url, sku, in_stock, fetched_at)"+
				" VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())"+
				" ON CONFLICT (component_id, vendor_id) DO UPDATE SET"+
				" price = EXCLUDED.price, currency = EXCLUDED.currency,"+
				" product_url = EXCLUDED.product_url, sku = EXCLUDED.sku,"+
				" in_stock = EXCLUDED.in_stock, fetched_at = EXCLUDED.fetched_at",
			componentIDs[q.Component], vendorIDs[q.Vendor], q.Price, q.Currency,
			q.ProductURL, q.SKU, q.InStock)
		if err != nil {
			return fmt.Errorf("failed to seed quote for %q at %q: %w", q.Component, q.Vendor, err)
		}
	}

	return tx.Commit()
}

// Wipe removes all catalog data and resets identities. Setups are left
// alone; they expire on their own.
func (s *Store) Wipe(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"TRUNCATE component_quotes, components, vendors, categories RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("failed to wipe catalog tables: %w", err)
	}
	return nil
}
