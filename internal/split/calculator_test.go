package split

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

func defaultRates(t *testing.T) Rates {
	t.Helper()
	return Rates{
		Courier:  decimal.NewFromInt(87),
		Manager:  decimal.NewFromInt(5),
		Platform: decimal.NewFromInt(8),
	}
}

func newTestCalculator(t *testing.T, rates Rates) *Calculator {
	t.Helper()
	calc, err := NewCalculator(rates, decimal.RequireFromString("1.00"))
	require.NoError(t, err)
	return calc
}

func strPtr(s string) *string { return &s }

func TestComputeHappyPathWithoutManager(t *testing.T) {
	calc := newTestCalculator(t, defaultRates(t))

	splits, err := calc.Compute(decimal.RequireFromString("150.00"), Accounts{CourierAccountID: "acc-courier"})
	require.NoError(t, err)
	require.Len(t, splits, 2)

	assert.Equal(t, enums.RecipientRoleCourier, splits[0].Role)
	assert.Equal(t, int64(13050), splits[0].AmountCents)
	assert.Equal(t, enums.RecipientRolePlatform, splits[1].Role)
	assert.Equal(t, int64(1950), splits[1].AmountCents)
	assert.Equal(t, "13", splits[1].Percent)
	assert.Equal(t, int64(15000), SumCents(splits))
}

func TestComputeWithManager(t *testing.T) {
	calc := newTestCalculator(t, defaultRates(t))

	splits, err := calc.Compute(decimal.RequireFromString("100.00"), Accounts{
		CourierAccountID: "acc-courier",
		ManagerAccountID: strPtr("acc-manager"),
	})
	require.NoError(t, err)
	require.Len(t, splits, 3)

	assert.Equal(t, int64(8700), splits[0].AmountCents)
	assert.Equal(t, int64(500), splits[1].AmountCents)
	assert.Equal(t, int64(800), splits[2].AmountCents)
	assert.True(t, splits[2].ResidualAbsorber)
	assert.Equal(t, int64(10000), SumCents(splits))
}

func TestSplitSumInvariantAcrossRange(t *testing.T) {
	calc := newTestCalculator(t, defaultRates(t))

	totals := []string{
		"1.00", "1.01", "3.33", "9.99", "10.01", "100.00", "100.01",
		"149.99", "1000.37", "33333.33", "999999.99", "1000000.00",
	}
	for _, raw := range totals {
		total := decimal.RequireFromString(raw)
		splits, err := calc.Compute(total, Accounts{
			CourierAccountID: "acc-courier",
			ManagerAccountID: strPtr("acc-manager"),
		})
		require.NoError(t, err, "total %s", raw)
		want := total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		assert.Equal(t, want, SumCents(splits), "total %s", raw)
	}
}

func TestResidualAbsorptionWithFractionalRates(t *testing.T) {
	fractional := Rates{
		Courier:  decimal.RequireFromString("86.7"),
		Manager:  decimal.RequireFromString("5.3"),
		Platform: decimal.RequireFromString("8.0"),
	}
	calc := newTestCalculator(t, fractional)

	total := decimal.RequireFromString("100.01")
	splits, err := calc.Compute(total, Accounts{
		CourierAccountID: "acc-courier",
		ManagerAccountID: strPtr("acc-manager"),
	})
	require.NoError(t, err)

	// 10001 * 86.7% = 8670.867 -> 8671; 10001 * 5.3% = 530.053 -> 530.
	assert.Equal(t, int64(8671), splits[0].AmountCents)
	assert.Equal(t, int64(530), splits[1].AmountCents)
	assert.Equal(t, int64(800), splits[2].AmountCents)
	assert.Equal(t, int64(10001), SumCents(splits))
}

func TestZeroRateStillEmitsEntry(t *testing.T) {
	rates := Rates{
		Courier:  decimal.NewFromInt(100),
		Manager:  decimal.NewFromInt(0),
		Platform: decimal.NewFromInt(0),
	}
	calc := newTestCalculator(t, rates)

	splits, err := calc.Compute(decimal.RequireFromString("50.00"), Accounts{
		CourierAccountID: "acc-courier",
		ManagerAccountID: strPtr("acc-manager"),
	})
	require.NoError(t, err)
	require.Len(t, splits, 3)
	assert.Equal(t, int64(5000), splits[0].AmountCents)
	assert.Equal(t, int64(0), splits[1].AmountCents)
	assert.Equal(t, int64(0), splits[2].AmountCents)
}

func TestBelowMinimumRejected(t *testing.T) {
	calc := newTestCalculator(t, defaultRates(t))

	_, err := calc.Compute(decimal.RequireFromString("0.99"), Accounts{CourierAccountID: "acc-courier"})
	require.Error(t, err)
}

func TestMissingCourierAccountRejected(t *testing.T) {
	calc := newTestCalculator(t, defaultRates(t))

	_, err := calc.Compute(decimal.RequireFromString("10.00"), Accounts{})
	require.Error(t, err)
}

func TestNewCalculatorRejectsBadRates(t *testing.T) {
	_, err := NewCalculator(Rates{
		Courier:  decimal.NewFromInt(87),
		Manager:  decimal.NewFromInt(5),
		Platform: decimal.NewFromInt(9),
	}, decimal.Zero)
	require.Error(t, err)

	_, err = NewCalculator(Rates{
		Courier:  decimal.NewFromInt(110),
		Manager:  decimal.NewFromInt(-10),
		Platform: decimal.NewFromInt(0),
	}, decimal.Zero)
	require.Error(t, err)
}
