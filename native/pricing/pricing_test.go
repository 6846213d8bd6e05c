package pricing

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

type symbolMap map[uint32]string

func (m symbolMap) Symbol(id uint32) ([]byte, error) {
	symbol, ok := m[id]
	if !ok {
		return nil, errors.New("unknown asset")
	}
	return []byte(symbol), nil
}

func tier(currency Currency, total int64, testing, qc int64) Tier {
	return Tier{
		Currency:   currency,
		Total:      big.NewInt(total),
		Components: []Component{{Label: "testing_price", Value: big.NewInt(testing)}},
		Additional: []Component{{Label: "qc_price", Value: big.NewInt(qc)}},
	}
}

func TestResolve(t *testing.T) {
	tiers := []Tier{tier(DBIO, 1000, 800, 200), tier(USN, 50, 40, 10)}

	got, err := Resolve(tiers, 1)
	require.NoError(t, err)
	require.Equal(t, USN, got.Currency)
	require.Equal(t, int64(50), got.Total.Int64())

	got.Total.SetInt64(1)
	require.Equal(t, int64(50), tiers[1].Total.Int64(), "resolved tier must be a copy")

	_, err = Resolve(tiers, 2)
	require.ErrorIs(t, err, ErrPriceIndexNotFound)
	_, err = Resolve(nil, 0)
	require.ErrorIs(t, err, ErrPriceIndexNotFound)
}

func TestTierValidate(t *testing.T) {
	require.NoError(t, tier(DBIO, 1000, 800, 200).Validate())
	require.ErrorIs(t, tier(DBIO, 999, 800, 200).Validate(), ErrPriceMismatch)
	require.ErrorIs(t, tier(DBIO, 600, 800, -200).Validate(), ErrNegativePrice)
	require.ErrorIs(t, tier(Currency(42), 1000, 800, 200).Validate(), ErrUnknownCurrency)
}

func TestCurrencyProperties(t *testing.T) {
	cases := []struct {
		currency     Currency
		native       bool
		transferable bool
		symbol       string
	}{
		{DBIO, true, true, ""},
		{USN, false, true, "USN"},
		{USDTE, false, true, "USDT.e"},
		{ETH, false, false, "ETH"},
		{USDT, false, false, "USDT"},
	}
	for _, tc := range cases {
		t.Run(tc.currency.String(), func(t *testing.T) {
			require.Equal(t, tc.native, tc.currency.Native())
			require.Equal(t, tc.transferable, tc.currency.Transferable())
			require.Equal(t, tc.symbol, tc.currency.Symbol())
			parsed, err := ParseCurrency(tc.currency.String())
			require.NoError(t, err)
			require.Equal(t, tc.currency, parsed)
		})
	}
	_, err := ParseCurrency("doge")
	require.ErrorIs(t, err, ErrUnknownCurrency)

	var c Currency
	require.NoError(t, c.UnmarshalText([]byte("usdte")))
	require.Equal(t, USDTE, c)
}

func TestValidateAsset(t *testing.T) {
	symbols := symbolMap{1: "usn", 2: "USDT.e", 3: "ETH"}
	id := func(v uint32) *uint32 { return &v }

	got, err := ValidateAsset(DBIO, id(7), symbols)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = ValidateAsset(USN, id(1), symbols)
	require.NoError(t, err)
	require.Equal(t, uint32(1), *got)

	got, err = ValidateAsset(USDTE, id(2), symbols)
	require.NoError(t, err)
	require.Equal(t, uint32(2), *got)

	_, err = ValidateAsset(USN, nil, symbols)
	require.ErrorIs(t, err, ErrAssetIDNotFound)
	_, err = ValidateAsset(USN, id(2), symbols)
	require.ErrorIs(t, err, ErrAssetIDNotFound)
	_, err = ValidateAsset(USDT, id(9), symbols)
	require.ErrorIs(t, err, ErrAssetIDNotFound)
}
