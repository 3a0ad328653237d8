package pricing

import "math"

// Rate and rounding policy for per-second call billing.
//
// The payer is debited ceil(elapsed * pricePerSecond) coins; the payee is
// credited floor(elapsed * earnRatePerSecond) coins. The asymmetry is the
// house-edge policy funding the earn-rate spread. Keep it; symmetric rounding
// here is a money bug, not a cleanup.

// PerSecondRate converts a creator's listed coins-per-minute price into the
// per-second metering rate.
func PerSecondRate(pricePerMinute int64) float64 {
	if pricePerMinute <= 0 {
		return 0
	}
	return float64(pricePerMinute) / 60.0
}

// MaxAffordableSeconds is the whole number of seconds a balance can pay for at
// the given rate. Used as the reaper's crash-recovery ceiling; the per-tick
// balance check is the primary funds guard.
func MaxAffordableSeconds(balance int64, perSecond float64) int64 {
	if balance <= 0 || perSecond <= 0 {
		return 0
	}
	return int64(math.Floor(float64(balance) / perSecond))
}

// DebitAmount is the payer's total charge for elapsed whole seconds.
func DebitAmount(elapsedSeconds int64, perSecond float64) int64 {
	if elapsedSeconds <= 0 || perSecond <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(elapsedSeconds) * perSecond))
}

// CreditAmount is the payee's total earnings for elapsed whole seconds.
func CreditAmount(elapsedSeconds int64, earnRatePerSecond float64) int64 {
	if elapsedSeconds <= 0 || earnRatePerSecond <= 0 {
		return 0
	}
	return int64(math.Floor(float64(elapsedSeconds) * earnRatePerSecond))
}
