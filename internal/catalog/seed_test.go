package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"so101-builder/pkg/apperr"
)

const catalogYAML = `
categories:
  - name: Motors
    slug: motors
    sort_order: 1
components:
  - name: Feetech STS3215 (1/345)
    slug: feetech-sts3215-345
    category: motors
    specifications:
      model: STS3215
      gear_ratio: 1/345
    is_default_for_so101: true
    quantity_per_arm: 6
    arm_type: both
`

const vendorsYAML = `
vendors:
  - name: AliExpress
    slug: aliexpress
    website_url: https://www.aliexpress.com
    is_active: true
    ships_to_us: true
    ships_to_eu: true
    typical_shipping_days: 15
quotes:
  - component: feetech-sts3215-345
    vendor: aliexpress
    price: "13.89"
    in_stock: true
`

func TestParseSeed(t *testing.T) {
	data, err := ParseSeed([]byte(catalogYAML), []byte(vendorsYAML))
	require.NoError(t, err)

	require.Len(t, data.Components, 1)
	assert.Equal(t, 6, data.Components[0].QuantityPerArm)
	assert.Equal(t, "1/345", data.Components[0].Specifications["gear_ratio"])

	require.Len(t, data.Quotes, 1)
	assert.True(t, data.Quotes[0].Price.Equal(dec("13.89")))
	assert.Equal(t, "USD", data.Quotes[0].Currency)
}

func TestParseSeedRejectsUnknownCategory(t *testing.T) {
	bad := `
components:
  - name: Mystery Part
    slug: mystery
    category: nonexistent
`
	_, err := ParseSeed([]byte(bad), []byte(vendorsYAML))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestParseSeedRejectsDanglingQuote(t *testing.T) {
	bad := `
vendors:
  - name: Amazon
    slug: amazon
quotes:
  - component: feetech-sts3215-345
    vendor: amazon
    price: "15.90"
`
	_, err := ParseSeed([]byte(`categories: []`), []byte(bad))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestParseSeedRejectsBadPrice(t *testing.T) {
	bad := `
vendors:
  - name: AliExpress
    slug: aliexpress
quotes:
  - component: feetech-sts3215-345
    vendor: aliexpress
    price: "about twelve"
`
	_, err := ParseSeed([]byte(catalogYAML), []byte(bad))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
