package payments

import "github.com/shopspring/decimal"

// Processor fee approximation and worker revenue share. Both are
// snapshotted into ScheduledService rows at generation time; changing them
// does not recalculate existing rows.
var (
	processorFeeRate   = decimal.NewFromFloat(0.029)
	processorFeeFixed  = decimal.NewFromFloat(0.30)
	workerRevenueShare = decimal.NewFromFloat(0.75)
	minorUnitsPerMajor = decimal.NewFromInt(100)
)

// FromMinorUnits converts a processor amount in minor units (cents) to a
// major-unit decimal. This conversion happens exactly once, at the
// processor boundary; downstream code only ever sees major units.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(minorUnitsPerMajor)
}

// ToMinorUnits converts a major-unit decimal back to processor cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitsPerMajor).Round(0).IntPart()
}

// WorkerEarnings computes the potential worker payout for a service priced
// at amount: the amount less the approximated processor fee, times the
// worker revenue share, rounded to cents.
func WorkerEarnings(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(processorFeeRate).Add(processorFeeFixed)
	return amount.Sub(fee).Mul(workerRevenueShare).Round(2)
}
