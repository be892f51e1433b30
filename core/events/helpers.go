package events

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// FormatEpoch renders an epoch counter for event attributes.
func FormatEpoch(epoch uint64) string {
	return strconv.FormatUint(epoch, 10)
}

// FormatAmount renders a decimal quantity without exponent notation.
func FormatAmount(amount decimal.Decimal) string {
	return amount.String()
}
