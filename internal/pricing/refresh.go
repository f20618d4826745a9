package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"so101-builder/db/clickhouse"
	"so101-builder/internal/catalog"
	"so101-builder/pkg/apperr"
)

// RefreshReport summarizes one refresh run.
type RefreshReport struct {
	Requested      int              `json:"requested"`
	Refreshed      int              `json:"refreshed"`
	QuotesUpserted int              `json:"quotes_upserted"`
	Observations   int              `json:"observations"`
	Failed         map[int64]string `json:"failed,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// offer is one usable price extracted from search results.
type offer struct {
	vendorSlug string
	price      decimal.Decimal
	url        string
	source     string
}

// Refresh re-prices the given components from web search: for each component
// it queries the configured providers, extracts vendor offers, upserts the
// quotes, and appends observations to the history store in one batch.
// Per-component failures go to the report; they never abort the run.
func (a *Aggregator) Refresh(ctx context.Context, componentIDs []int64) (*RefreshReport, error) {
	if len(a.searchers) == 0 {
		return nil, apperr.Validation("price search is not configured; set a Tavily or SerpAPI key")
	}
	if a.quotes == nil {
		return nil, apperr.Conflict("quote persistence is not configured for refresh")
	}
	if len(componentIDs) == 0 {
		// No explicit ids means refresh the whole catalog.
		all, err := a.catalog.AllComponentIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing components for refresh: %w", err)
		}
		componentIDs = all
	}

	report := &RefreshReport{
		Requested: len(componentIDs),
		Failed:    make(map[int64]string),
		StartedAt: time.Now().UTC(),
	}

	vendors, err := a.quotes.VendorsBySlug(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading vendors: %w", err)
	}

	components, err := a.catalog.ComponentsByIDs(ctx, componentIDs)
	if err != nil {
		return nil, fmt.Errorf("loading components: %w", err)
	}
	byID := make(map[int64]catalog.Component, len(components))
	for _, c := range components {
		byID[c.ID] = c
	}

	var observations []clickhouse.Observation

	for _, componentID := range componentIDs {
		comp, ok := byID[componentID]
		if !ok {
			report.Failed[componentID] = "component not found"
			continue
		}

		query := fmt.Sprintf("%s buy price", comp.Name)
		results, source, err := a.search(ctx, query)
		if err != nil {
			report.Failed[componentID] = err.Error()
			continue
		}

		offers := offersFrom(results, source)
		if len(offers) == 0 {
			report.Failed[componentID] = "no usable price offers in search results"
			continue
		}

		failed := false
		for _, o := range offers {
			vendor, ok := vendors[o.vendorSlug]
			if !ok {
				a.log.Warn().
					Str("vendor_slug", o.vendorSlug).
					Int64("component_id", componentID).
					Msg("offer from unknown vendor skipped")
				continue
			}

			now := time.Now().UTC()
			quote := &catalog.Quote{
				ComponentID: componentID,
				VendorID:    vendor.ID,
				VendorName:  vendor.Name,
				VendorSlug:  vendor.Slug,
				Price:       o.price,
				Currency:    "USD",
				ProductURL:  o.url,
				InStock:     true,
				FetchedAt:   now,
			}
			if err := a.quotes.UpsertQuote(ctx, quote); err != nil {
				report.Failed[componentID] = fmt.Sprintf("upserting quote: %v", err)
				failed = true
				break
			}
			report.QuotesUpserted++

			observations = append(observations, clickhouse.Observation{
				ComponentID: componentID,
				VendorID:    vendor.ID,
				VendorSlug:  vendor.Slug,
				Price:       o.price,
				Currency:    "USD",
				InStock:     true,
				Source:      o.source,
				ObservedAt:  now,
			})
		}
		if !failed {
			report.Refreshed++
		}

		a.log.Debug().
			Int64("component_id", componentID).
			Str("provider", source).
			Int("offers", len(offers)).
			Msg("component prices refreshed")
	}

	switch {
	case len(observations) == 0:
	case a.observations == nil:
		report.Warnings = append(report.Warnings, "price history not configured; observations not recorded")
	default:
		if err := a.observations.AppendObservations(ctx, observations); err != nil {
			a.log.Warn().Err(err).Msg("writing price observations failed")
			report.Warnings = append(report.Warnings, fmt.Sprintf("price history write failed: %v", err))
		} else {
			report.Observations = len(observations)
		}
	}

	report.FinishedAt = time.Now().UTC()
	a.log.Info().
		Int("requested", report.Requested).
		Int("refreshed", report.Refreshed).
		Int("quotes_upserted", report.QuotesUpserted).
		Int("failed", len(report.Failed)).
		Msg("price refresh finished")
	return report, nil
}

// search tries each provider in order, returning the first non-empty result
// set and the provider's name.
func (a *Aggregator) search(ctx context.Context, query string) ([]SearchResult, string, error) {
	var lastErr error
	for _, s := range a.searchers {
		results, err := s.Search(ctx, query)
		if err != nil {
			a.log.Warn().Str("provider", s.Name()).Err(err).Msg("price search provider failed")
			lastErr = err
			continue
		}
		if len(results) > 0 {
			return results, s.Name(), nil
		}
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", fmt.Errorf("no search results")
}

// offersFrom reduces search results to at most one offer per known vendor,
// keeping the lowest price seen.
func offersFrom(results []SearchResult, source string) []offer {
	best := make(map[string]offer)
	for _, r := range results {
		slug := r.Vendor
		if slug == "" {
			slug = vendorSlugFromURL(r.URL)
		}
		if slug == "" {
			continue
		}

		price := r.Price
		if price == nil {
			price = extractPrice(r.Title + " " + r.Content)
		}
		if price == nil {
			continue
		}

		current, ok := best[slug]
		if !ok || price.LessThan(current.price) {
			best[slug] = offer{
				vendorSlug: slug,
				price:      *price,
				url:        r.URL,
				source:     source,
			}
		}
	}

	offers := make([]offer, 0, len(best))
	for _, o := range best {
		offers = append(offers, o)
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].vendorSlug < offers[j].vendorSlug })
	return offers
}
