package fx

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// conversionScale is the decimal precision kept by conversions. Monetary
// rounding to cents happens at the posting boundary, not here.
const conversionScale = 6

// ErrInvalidRate indicates a zero or negative exchange rate.
var ErrInvalidRate = errors.New("fx: exchange rate must be positive")

// MissingRateError reports that no rate is configured for a currency.
type MissingRateError struct {
	Currency string
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("fx: no rate configured for %s", e.Currency)
}

// ToBase converts a foreign-currency amount into the base currency. The rate
// is expressed as foreign units per one base unit, so conversion divides.
func ToBase(amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidRate, rate)
	}
	return amount.DivRound(rate, conversionScale), nil
}

// ToForeign converts a base-currency amount into a foreign currency using the
// same base-units-per-foreign convention as ToBase.
func ToForeign(amountBase, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidRate, rate)
	}
	return amountBase.Mul(rate).Round(conversionScale), nil
}
