package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"so101-builder/internal/catalog"
	"so101-builder/pkg/apperr"
)

type fakeSearcher struct {
	name    string
	results []SearchResult
	err     error
	queries []string
}

func (f *fakeSearcher) Name() string { return f.name }

func (f *fakeSearcher) Search(_ context.Context, query string) ([]SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeQuoteWriter struct {
	vendors   map[string]catalog.Vendor
	upserts   []catalog.Quote
	upsertErr error
}

func (f *fakeQuoteWriter) VendorsBySlug(_ context.Context) (map[string]catalog.Vendor, error) {
	return f.vendors, nil
}

func (f *fakeQuoteWriter) UpsertQuote(_ context.Context, q *catalog.Quote) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, *q)
	return nil
}

func testVendors() map[string]catalog.Vendor {
	return map[string]catalog.Vendor{
		"amazon":     {ID: 1, Name: "Amazon", Slug: "amazon"},
		"aliexpress": {ID: 2, Name: "AliExpress", Slug: "aliexpress"},
		"waveshare":  {ID: 3, Name: "Waveshare", Slug: "waveshare"},
		"robotshop":  {ID: 4, Name: "RobotShop", Slug: "robotshop"},
	}
}

func motorSearchResults() []SearchResult {
	return []SearchResult{
		{
			Title:   "Feetech STS3215 Servo - AliExpress",
			URL:     "https://aliexpress.com/item/100500.html",
			Content: "STS3215 30KG serial bus servo $13.89 free shipping",
		},
		{
			Title:   "Feetech STS3215 - Amazon",
			URL:     "https://www.amazon.com/dp/B0ABC",
			Content: "In stock, $15.90 with Prime delivery",
		},
		{
			Title:   "STS3215 again on AliExpress, pricier listing",
			URL:     "https://aliexpress.com/item/100501.html",
			Content: "bundle for $16.99",
		},
		{
			Title:   "STS3215 review",
			URL:     "https://example-blog.com/sts3215-review",
			Content: "a great servo for $14",
		},
		{
			Title:   "STS3215 at RobotShop",
			URL:     "https://www.robotshop.com/products/sts3215",
			Content: "currently unavailable",
		},
	}
}

func TestRefreshUpsertsOffers(t *testing.T) {
	searcher := &fakeSearcher{name: "tavily", results: motorSearchResults()}
	writer := &fakeQuoteWriter{vendors: testVendors()}
	agg := NewAggregator(nil, testCatalog(), zerolog.Nop()).
		WithQuoteWriter(writer).
		WithSearchers(searcher)

	report, err := agg.Refresh(context.Background(), []int64{1, 99})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Requested)
	assert.Equal(t, 1, report.Refreshed)
	assert.Equal(t, "component not found", report.Failed[99])

	// One offer per vendor, lowest price kept; the blog result and the
	// priceless RobotShop result are dropped.
	require.Len(t, writer.upserts, 2)
	assert.Equal(t, 2, report.QuotesUpserted)

	bySlug := map[string]catalog.Quote{}
	for _, q := range writer.upserts {
		bySlug[q.VendorSlug] = q
	}
	require.Contains(t, bySlug, "aliexpress")
	require.Contains(t, bySlug, "amazon")
	assert.True(t, bySlug["aliexpress"].Price.Equal(dec("13.89")))
	assert.Equal(t, "https://aliexpress.com/item/100500.html", bySlug["aliexpress"].ProductURL)
	assert.Equal(t, int64(1), bySlug["aliexpress"].ComponentID)
	assert.True(t, bySlug["aliexpress"].InStock)

	require.Len(t, searcher.queries, 1)
	assert.Equal(t, "Feetech STS3215 Servo (1/345) buy price", searcher.queries[0])

	// No history store wired: observations are skipped with a warning.
	assert.Equal(t, 0, report.Observations)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "price history not configured")
}

func TestRefreshFallsBackToSecondProvider(t *testing.T) {
	failing := &fakeSearcher{name: "tavily", err: errors.New("quota exceeded")}
	fallback := &fakeSearcher{name: "serpapi", results: motorSearchResults()[:1]}
	writer := &fakeQuoteWriter{vendors: testVendors()}
	agg := NewAggregator(nil, testCatalog(), zerolog.Nop()).
		WithQuoteWriter(writer).
		WithSearchers(failing, fallback)

	report, err := agg.Refresh(context.Background(), []int64{1})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Refreshed)
	assert.Empty(t, report.Failed)
	require.Len(t, writer.upserts, 1)
	require.Len(t, fallback.queries, 1)
}

func TestRefreshAllProvidersFail(t *testing.T) {
	failing := &fakeSearcher{name: "tavily", err: errors.New("quota exceeded")}
	writer := &fakeQuoteWriter{vendors: testVendors()}
	agg := NewAggregator(nil, testCatalog(), zerolog.Nop()).
		WithQuoteWriter(writer).
		WithSearchers(failing)

	report, err := agg.Refresh(context.Background(), []int64{1})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Refreshed)
	assert.Contains(t, report.Failed[1], "quota exceeded")
	assert.Empty(t, writer.upserts)
}

func TestRefreshNoUsableOffers(t *testing.T) {
	searcher := &fakeSearcher{name: "tavily", results: []SearchResult{
		{Title: "STS3215 review", URL: "https://example-blog.com/post", Content: "lovely servo"},
	}}
	writer := &fakeQuoteWriter{vendors: testVendors()}
	agg := NewAggregator(nil, testCatalog(), zerolog.Nop()).
		WithQuoteWriter(writer).
		WithSearchers(searcher)

	report, err := agg.Refresh(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Contains(t, report.Failed[1], "no usable price offers")
}

func TestRefreshRequiresConfiguration(t *testing.T) {
	agg := NewAggregator(nil, testCatalog(), zerolog.Nop())

	_, err := agg.Refresh(context.Background(), []int64{1})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "no searchers configured")

	agg = agg.WithSearchers(&fakeSearcher{name: "tavily"})
	_, err = agg.Refresh(context.Background(), []int64{1})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "no quote writer configured")
}

func TestRefreshWithoutIDsCoversWholeCatalog(t *testing.T) {
	searcher := &fakeSearcher{name: "tavily", results: motorSearchResults()}
	agg := NewAggregator(nil, testCatalog(), zerolog.Nop()).
		WithSearchers(searcher).
		WithQuoteWriter(&fakeQuoteWriter{vendors: testVendors()})

	report, err := agg.Refresh(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Requested, "every catalog component is requested")
	assert.Len(t, searcher.queries, 3)
	assert.Empty(t, report.Failed)
}

func TestOffersFromKeepsLowestPerVendor(t *testing.T) {
	offers := offersFrom(motorSearchResults(), "tavily")

	require.Len(t, offers, 2)
	assert.Equal(t, "aliexpress", offers[0].vendorSlug)
	assert.True(t, offers[0].price.Equal(dec("13.89")))
	assert.Equal(t, "amazon", offers[1].vendorSlug)
	assert.True(t, offers[1].price.Equal(dec("15.90")))
	assert.Equal(t, "tavily", offers[0].source)
}
