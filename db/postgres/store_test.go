package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"so101-builder/internal/catalog"
	"so101-builder/internal/wizard"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

var componentCols = []string{
	"id", "name", "slug", "category_id", "cat_slug", "cat_name",
	"description", "image_url", "specifications", "is_default_for_so101",
	"quantity_per_arm", "arm_type", "created_at", "updated_at",
}

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func motorRow(rows *sqlmock.Rows) *sqlmock.Rows {
	return rows.AddRow(
		1, "Feetech STS3215 Servo", "sts3215-12v", 1, "motors", "Motors",
		"12V servo motor", "", []byte(`{"gear_ratio":"1/345","voltage":"12V"}`),
		true, 6, "both", testTime, testTime)
}

func TestInit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS categories")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetComponent(t *testing.T) {
	store, mock := newMockStore(t)
	query := "SELECT " + componentColumns + " " + componentFrom + " WHERE c.id = $1"

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(int64(1)).
		WillReturnRows(motorRow(sqlmock.NewRows(componentCols)))

	comp, err := store.GetComponent(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, comp)
	assert.Equal(t, "sts3215-12v", comp.Slug)
	assert.Equal(t, "motors", comp.CategorySlug)
	assert.Equal(t, "Motors", comp.CategoryName)
	assert.Equal(t, "1/345", comp.Specifications["gear_ratio"])
	assert.True(t, comp.IsDefaultForSO101)
	assert.Equal(t, 6, comp.QuantityPerArm)

	// Unknown id is nil, not an error.
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(componentCols))

	comp, err = store.GetComponent(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, comp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetComponentBySlug(t *testing.T) {
	store, mock := newMockStore(t)
	query := "SELECT " + componentColumns + " " + componentFrom + " WHERE c.slug = $1"

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("sts3215-12v").
		WillReturnRows(motorRow(sqlmock.NewRows(componentCols)))

	comp, err := store.GetComponentBySlug(context.Background(), "sts3215-12v")
	require.NoError(t, err)
	require.NotNil(t, comp)
	assert.Equal(t, int64(1), comp.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListComponentsNoFilter(t *testing.T) {
	store, mock := newMockStore(t)
	base := componentFrom + " " + quoteRollup

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) " + base)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := append(append([]string{}, componentCols...),
		"lowest_price", "vendor_count", "in_stock_anywhere")
	rows := sqlmock.NewRows(cols).AddRow(
		1, "Feetech STS3215 Servo", "sts3215-12v", 1, "motors", "Motors",
		"12V servo motor", "", []byte(`{"gear_ratio":"1/345"}`),
		true, 6, "both", testTime, testTime,
		"13.89", 2, true)

	listQuery := "SELECT " + componentColumns +
		", q.lowest_price, COALESCE(q.vendor_count, 0), COALESCE(q.in_stock_anywhere, FALSE) " +
		base + " ORDER BY cat.sort_order, c.name LIMIT $1 OFFSET $2"
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).
		WithArgs(50, 0).
		WillReturnRows(rows)

	components, total, err := store.ListComponents(context.Background(), catalog.ListFilter{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, components, 1)
	assert.Equal(t, "sts3215-12v", components[0].Slug)
	require.NotNil(t, components[0].LowestPrice)
	assert.True(t, components[0].LowestPrice.Equal(decimal.RequireFromString("13.89")))
	assert.Equal(t, 2, components[0].VendorCount)
	assert.True(t, components[0].InStockAnywhere)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListComponentsComposesFilters(t *testing.T) {
	store, mock := newMockStore(t)

	minPrice := decimal.RequireFromString("10")
	maxPrice := decimal.RequireFromString("50")
	f := catalog.ListFilter{
		CategorySlug: "motors",
		ArmType:      "follower",
		Search:       "servo",
		InStockOnly:  true,
		MinPrice:     &minPrice,
		MaxPrice:     &maxPrice,
		Limit:        20,
		Offset:       40,
	}

	base := componentFrom + " " + quoteRollup +
		" WHERE cat.slug = $1" +
		" AND (c.arm_type = $2 OR c.arm_type = 'both')" +
		" AND (c.name ILIKE $3 OR c.description ILIKE $3)" +
		" AND COALESCE(q.in_stock_anywhere, FALSE)" +
		" AND q.lowest_price >= $4 AND q.lowest_price <= $5"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) " + base)).
		WithArgs("motors", "follower", "%servo%", minPrice, maxPrice).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	listQuery := "SELECT " + componentColumns +
		", q.lowest_price, COALESCE(q.vendor_count, 0), COALESCE(q.in_stock_anywhere, FALSE) " +
		base + " ORDER BY cat.sort_order, c.name LIMIT $6 OFFSET $7"
	cols := append(append([]string{}, componentCols...),
		"lowest_price", "vendor_count", "in_stock_anywhere")
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).
		WithArgs("motors", "follower", "%servo%", minPrice, maxPrice, 20, 40).
		WillReturnRows(sqlmock.NewRows(cols))

	components, total, err := store.ListComponents(context.Background(), f)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, components)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComponentsByIDs(t *testing.T) {
	store, mock := newMockStore(t)

	query := "SELECT " + componentColumns + " " + componentFrom +
		" WHERE c.id = ANY($1) ORDER BY c.id"
	rows := motorRow(sqlmock.NewRows(componentCols)).AddRow(
		2, "Waveshare Driver Board", "waveshare-driver", 2, "controllers", "Controllers",
		"Serial bus servo driver", "", []byte(`{}`), true, 1, "both", testTime, testTime)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(rows)

	components, err := store.ComponentsByIDs(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, components, 2)
	assert.Equal(t, int64(1), components[0].ID)
	assert.Equal(t, "waveshare-driver", components[1].Slug)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComponentsByIDsEmpty(t *testing.T) {
	store, _ := newMockStore(t)

	components, err := store.ComponentsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, components)
}

func TestDefaultComponents(t *testing.T) {
	store, mock := newMockStore(t)

	query := "SELECT " + componentColumns + " " + componentFrom +
		" WHERE c.is_default_for_so101 ORDER BY cat.sort_order, c.name"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(motorRow(sqlmock.NewRows(componentCols)))

	components, err := store.DefaultComponents(context.Background())
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.True(t, components[0].IsDefaultForSO101)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuotesByComponentIDs(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{
		"id", "component_id", "vendor_id", "vendor_name", "vendor_slug",
		"price", "currency", "original_price", "shipping_cost",
		"product_url", "sku", "in_stock", "stock_quantity", "fetched_at",
	}
	rows := sqlmock.NewRows(cols).
		AddRow(10, 1, 2, "AliExpress", "aliexpress", "13.89", "USD", "15.99", nil,
			"https://aliexpress.com/item/1", "", true, nil, testTime).
		AddRow(11, 1, 1, "Amazon", "amazon", "15.90", "USD", nil, "2.50",
			"https://amazon.com/dp/1", "B0TEST", true, 5, testTime).
		AddRow(12, 2, 4, "RobotShop", "robotshop", "9.99", "USD", nil, nil,
			"", "", false, nil, testTime)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT "+quoteColumns+" FROM component_quotes q JOIN vendors v ON v.id = q.vendor_id"+
			" WHERE q.component_id = ANY($1) ORDER BY q.component_id, q.price, v.name")).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(rows)

	quotes, err := store.QuotesByComponentIDs(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, quotes[1], 2)
	require.Len(t, quotes[2], 1)

	first := quotes[1][0]
	assert.Equal(t, "aliexpress", first.VendorSlug)
	assert.True(t, first.Price.Equal(decimal.RequireFromString("13.89")))
	require.NotNil(t, first.OriginalPrice)
	assert.True(t, first.OriginalPrice.Equal(decimal.RequireFromString("15.99")))
	assert.Nil(t, first.ShippingCost)
	assert.Nil(t, first.StockQuantity)

	second := quotes[1][1]
	require.NotNil(t, second.ShippingCost)
	require.NotNil(t, second.StockQuantity)
	assert.Equal(t, 5, *second.StockQuantity)

	assert.False(t, quotes[2][0].InStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuotesByComponentIDsEmpty(t *testing.T) {
	store, _ := newMockStore(t)

	quotes, err := store.QuotesByComponentIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestCategories(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "slug", "description", "icon", "sort_order", "count"}).
		AddRow(1, "Motors", "motors", "Servo motors", "gear", 1, 3).
		AddRow(2, "Controllers", "controllers", "", "cpu", 2, 1)

	mock.ExpectQuery(regexp.QuoteMeta("FROM categories cat LEFT JOIN components c ON c.category_id = cat.id")).
		WillReturnRows(rows)

	categories, err := store.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "motors", categories[0].Slug)
	assert.Equal(t, 3, categories[0].ComponentCount)
	assert.Equal(t, 1, categories[1].ComponentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSetup(t *testing.T) {
	store, mock := newMockStore(t)

	budget := decimal.NewFromInt(350)
	setup := &wizard.Setup{
		ID: uuid.New(),
		Profile: wizard.Profile{
			Experience: "beginner",
			BudgetUSD:  &budget,
			ArmType:    "single",
		},
		CurrentStep: 3,
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
		ExpiresAt:   testTime.Add(24 * time.Hour),
	}

	profileJSON := []byte(`{"experience":"beginner","budget_usd":"350","arm_type":"single"}`)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO setups")).
		WithArgs(setup.ID, profileJSON, 3, false, nil,
			setup.CreatedAt, setup.UpdatedAt, setup.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.CreateSetup(context.Background(), setup))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSetup(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	cols := []string{"id", "profile", "current_step", "completed", "recommendation",
		"created_at", "updated_at", "expires_at"}
	rows := sqlmock.NewRows(cols).AddRow(
		id.String(), []byte(`{"experience":"advanced","budget_usd":"800"}`), 5, true,
		[]byte(`{"summary":"stored"}`), testTime, testTime, testTime.Add(24*time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("FROM setups WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(rows)

	setup, err := store.GetSetup(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, setup)
	assert.Equal(t, id, setup.ID)
	assert.Equal(t, "advanced", setup.Profile.Experience)
	require.NotNil(t, setup.Profile.BudgetUSD)
	assert.True(t, setup.Profile.BudgetUSD.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, 5, setup.CurrentStep)
	assert.True(t, setup.Completed)
	assert.JSONEq(t, `{"summary":"stored"}`, string(setup.Recommendation))

	// Unknown session is nil, not an error.
	mock.ExpectQuery(regexp.QuoteMeta("FROM setups WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(cols))

	setup, err = store.GetSetup(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, setup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSetup(t *testing.T) {
	store, mock := newMockStore(t)

	setup := &wizard.Setup{
		ID:             uuid.New(),
		Profile:        wizard.Profile{Experience: "beginner"},
		CurrentStep:    5,
		Completed:      true,
		Recommendation: []byte(`{"summary":"x"}`),
		UpdatedAt:      testTime,
		ExpiresAt:      testTime.Add(24 * time.Hour),
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE setups SET profile = $2")).
		WithArgs(setup.ID, []byte(`{"experience":"beginner"}`), 5, true,
			[]byte(`{"summary":"x"}`), setup.UpdatedAt, setup.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.UpdateSetup(context.Background(), setup))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSetup(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM setups WHERE id = $1")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	found, err := store.DeleteSetup(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, found)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM setups WHERE id = $1")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err = store.DeleteSetup(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredSetups(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM setups WHERE expires_at < $1")).
		WithArgs(testTime).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.DeleteExpiredSetups(context.Background(), testTime)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVendorsBySlug(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "slug", "website_url", "is_active",
		"ships_to_us", "ships_to_eu", "typical_shipping_days"}).
		AddRow(1, "Amazon", "amazon", "https://amazon.com", true, true, true, 2).
		AddRow(2, "AliExpress", "aliexpress", "https://aliexpress.com", true, true, true, 15)

	mock.ExpectQuery(regexp.QuoteMeta("FROM vendors WHERE is_active")).
		WillReturnRows(rows)

	vendors, err := store.VendorsBySlug(context.Background())
	require.NoError(t, err)
	require.Len(t, vendors, 2)
	assert.Equal(t, int64(1), vendors["amazon"].ID)
	assert.Equal(t, 15, vendors["aliexpress"].TypicalShippingDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertQuote(t *testing.T) {
	store, mock := newMockStore(t)

	price := decimal.RequireFromString("13.89")
	quote := &catalog.Quote{
		ComponentID: 1,
		VendorID:    2,
		Price:       price,
		Currency:    "USD",
		ProductURL:  "https://aliexpress.com/item/1",
		InStock:     true,
		FetchedAt:   testTime,
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (component_id, vendor_id) DO UPDATE SET")).
		WithArgs(int64(1), int64(2), price, "USD", nil, nil,
			"https://aliexpress.com/item/1", "", true, nil, testTime).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, store.UpsertQuote(context.Background(), quote))
	assert.NoError(t, mock.ExpectationsWereMet())
}
