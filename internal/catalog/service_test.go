package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"so101-builder/pkg/apperr"
)

type fakeStore struct {
	components []Component
	quotes     map[int64][]Quote
	categories []CategoryWithCount
	lastFilter ListFilter
}

func (f *fakeStore) ListComponents(_ context.Context, filter ListFilter) ([]ComponentWithPricing, int, error) {
	f.lastFilter = filter
	rows := make([]ComponentWithPricing, 0, len(f.components))
	for _, c := range f.components {
		rows = append(rows, ComponentWithPricing{Component: c})
	}
	return rows, len(rows), nil
}

func (f *fakeStore) GetComponent(_ context.Context, id int64) (*Component, error) {
	for _, c := range f.components {
		if c.ID == id {
			cc := c
			return &cc, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetComponentBySlug(_ context.Context, slug string) (*Component, error) {
	for _, c := range f.components {
		if c.Slug == slug {
			cc := c
			return &cc, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ComponentsByIDs(_ context.Context, ids []int64) ([]Component, error) {
	var out []Component
	for _, id := range ids {
		for _, c := range f.components {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) QuotesByComponentIDs(_ context.Context, ids []int64) (map[int64][]Quote, error) {
	out := make(map[int64][]Quote)
	for _, id := range ids {
		if qs, ok := f.quotes[id]; ok {
			out[id] = qs
		}
	}
	return out, nil
}

func (f *fakeStore) Categories(_ context.Context) ([]CategoryWithCount, error) {
	return f.categories, nil
}

func (f *fakeStore) DefaultComponents(_ context.Context) ([]Component, error) {
	var out []Component
	for _, c := range f.components {
		if c.IsDefaultForSO101 {
			out = append(out, c)
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testStore() *fakeStore {
	return &fakeStore{
		components: []Component{
			{ID: 1, Name: "Feetech STS3215 (1/345)", Slug: "feetech-sts3215-345", CategorySlug: "motors",
				IsDefaultForSO101: true, QuantityPerArm: 6, ArmType: ArmBoth},
			{ID: 2, Name: "Waveshare Bus Servo Driver", Slug: "waveshare-servo-driver", CategorySlug: "controllers",
				IsDefaultForSO101: true, QuantityPerArm: 1, ArmType: ArmBoth},
			{ID: 3, Name: "Intel RealSense D435", Slug: "realsense-d435", CategorySlug: "cameras",
				QuantityPerArm: 1, ArmType: ArmFollower},
		},
		quotes: map[int64][]Quote{
			1: {
				{ID: 10, ComponentID: 1, VendorName: "Amazon", Price: dec("15.90"), InStock: true},
				{ID: 11, ComponentID: 1, VendorName: "AliExpress", Price: dec("13.89"), InStock: true},
			},
			2: {
				{ID: 12, ComponentID: 2, VendorName: "Waveshare", Price: dec("9.99"), InStock: false},
			},
		},
	}
}

func TestListAppliesFilterDefaults(t *testing.T) {
	store := testStore()
	svc := NewService(store)

	res, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)

	assert.Equal(t, defaultPageSize, store.lastFilter.Limit)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Components, 3)
}

func TestListRejectsInvertedPriceBand(t *testing.T) {
	svc := NewService(testStore())

	min := dec("100")
	max := dec("50")
	_, err := svc.List(context.Background(), ListFilter{MinPrice: &min, MaxPrice: &max})

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListRejectsUnknownArmType(t *testing.T) {
	svc := NewService(testStore())

	_, err := svc.List(context.Background(), ListFilter{ArmType: "tripod"})

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGetBySlugSortsQuotesCheapestFirst(t *testing.T) {
	svc := NewService(testStore())

	detail, err := svc.Get(context.Background(), "feetech-sts3215-345")
	require.NoError(t, err)

	require.Len(t, detail.Quotes, 2)
	assert.Equal(t, "AliExpress", detail.Quotes[0].VendorName)
	assert.Equal(t, "Amazon", detail.Quotes[1].VendorName)

	require.NotNil(t, detail.Stats.Lowest)
	assert.True(t, detail.Stats.Lowest.Equal(dec("13.89")))
	require.NotNil(t, detail.Stats.Average)
	assert.True(t, detail.Stats.Average.Equal(dec("14.90")), "got %s", detail.Stats.Average)
	assert.Equal(t, 2, detail.Stats.InStockCount)
}

func TestGetByNumericID(t *testing.T) {
	svc := NewService(testStore())

	detail, err := svc.Get(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "waveshare-servo-driver", detail.Slug)
	assert.Equal(t, 0, detail.Stats.InStockCount)
}

func TestGetUnknownComponentIsNotFound(t *testing.T) {
	svc := NewService(testStore())

	_, err := svc.Get(context.Background(), "no-such-part")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDetailsByIDsReportsAllMissing(t *testing.T) {
	svc := NewService(testStore())

	_, err := svc.DetailsByIDs(context.Background(), []int64{1, 99, 100})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "99")
	assert.Contains(t, err.Error(), "100")
}

func TestDetailsByIDsPreservesOrder(t *testing.T) {
	svc := NewService(testStore())

	details, err := svc.DetailsByIDs(context.Background(), []int64{2, 1})
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, int64(2), details[0].ID)
	assert.Equal(t, int64(1), details[1].ID)
}

func TestDefaultsSingleBuild(t *testing.T) {
	svc := NewService(testStore())

	build, err := svc.Defaults(context.Background(), "single")
	require.NoError(t, err)

	require.Len(t, build.Items, 2)
	assert.Equal(t, 6, build.Items[0].Quantity)
	assert.Equal(t, 1, build.Items[1].Quantity)

	// 6 × 13.89 + 1 × 9.99
	assert.True(t, build.EstimatedTotal.Equal(dec("93.33")), "got %s", build.EstimatedTotal)
	assert.Empty(t, build.MissingPrices)
}

func TestDefaultsDualBuildDoublesSharedParts(t *testing.T) {
	svc := NewService(testStore())

	build, err := svc.Defaults(context.Background(), "dual")
	require.NoError(t, err)

	require.Len(t, build.Items, 2)
	assert.Equal(t, 12, build.Items[0].Quantity)
	assert.Equal(t, 2, build.Items[1].Quantity)
}

func TestDefaultsRejectsUnknownArmType(t *testing.T) {
	svc := NewService(testStore())

	_, err := svc.Defaults(context.Background(), "triple")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
