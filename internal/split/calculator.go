package split

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/brunovalongo/fretepay-backend/pkg/db/models"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	pkgerrors "github.com/brunovalongo/fretepay-backend/pkg/errors"
)

// Rates are the configured revenue percentages. They are validated at
// startup (config.Load), so a Calculator never re-checks the sum.
type Rates struct {
	Courier  decimal.Decimal
	Manager  decimal.Decimal
	Platform decimal.Decimal
}

// Accounts carries the gateway sub-account ids of the split recipients.
// Manager is optional; when absent its rate folds into the platform share.
type Accounts struct {
	CourierAccountID string
	ManagerAccountID *string
}

// Calculator divides an invoice total among courier, manager and platform.
// Pure computation, no I/O.
type Calculator struct {
	rates     Rates
	minAmount decimal.Decimal
}

// NewCalculator builds a calculator for the given rates and minimum payable
// amount.
func NewCalculator(rates Rates, minAmount decimal.Decimal) (*Calculator, error) {
	hundred := decimal.NewFromInt(100)
	if sum := rates.Courier.Add(rates.Manager).Add(rates.Platform); !sum.Equal(hundred) {
		return nil, fmt.Errorf("split rates must sum to 100, got %s", sum)
	}
	if rates.Courier.IsNegative() || rates.Manager.IsNegative() || rates.Platform.IsNegative() {
		return nil, fmt.Errorf("split rates must be non-negative")
	}
	return &Calculator{rates: rates, minAmount: minAmount}, nil
}

var oneHundred = decimal.NewFromInt(100)

// Compute converts the total to integer minor units (half-up) and divides
// it. Courier and manager use half-up rounding; the platform entry comes
// last and absorbs the residual, so the entries always sum to the total
// exactly. A zero rate still emits its entry because gateway schemas expect
// one per recipient.
func (c *Calculator) Compute(total decimal.Decimal, accounts Accounts) ([]models.RecipientSplit, error) {
	if total.LessThan(c.minAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("total %s is below the minimum payable amount %s", total, c.minAmount))
	}
	if accounts.CourierAccountID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "courier account id is required")
	}

	totalCents := toCents(total)

	managerRate := c.rates.Manager
	platformRate := c.rates.Platform
	if accounts.ManagerAccountID == nil {
		platformRate = platformRate.Add(managerRate)
		managerRate = decimal.Zero
	}

	courierCents := shareCents(totalCents, c.rates.Courier)
	splits := []models.RecipientSplit{{
		Role:        enums.RecipientRoleCourier,
		AccountID:   &accounts.CourierAccountID,
		AmountCents: courierCents,
		Percent:     c.rates.Courier.String(),
	}}

	allocated := courierCents
	if accounts.ManagerAccountID != nil {
		managerCents := shareCents(totalCents, managerRate)
		splits = append(splits, models.RecipientSplit{
			Role:        enums.RecipientRoleManager,
			AccountID:   accounts.ManagerAccountID,
			AmountCents: managerCents,
			Percent:     managerRate.String(),
		})
		allocated += managerCents
	}

	// Platform is the system operator, so it absorbs the rounding noise.
	splits = append(splits, models.RecipientSplit{
		Role:             enums.RecipientRolePlatform,
		AmountCents:      totalCents - allocated,
		Percent:          platformRate.String(),
		ResidualAbsorber: true,
	})

	return splits, nil
}

// toCents converts a currency amount to minor units with half-up rounding.
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(oneHundred).Round(0).IntPart()
}

// shareCents applies a percentage to a minor-unit total with half-up
// rounding.
func shareCents(totalCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(totalCents).Mul(rate).Div(oneHundred).Round(0).IntPart()
}

// SumCents returns the total carried by the given splits.
func SumCents(splits []models.RecipientSplit) int64 {
	var sum int64
	for _, s := range splits {
		sum += s.AmountCents
	}
	return sum
}
