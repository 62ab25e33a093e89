package domain

import "strings"

// Default spend ceilings in cents per plan tier.
const (
	DefaultSpendLimitCents = 4500
	ProSpendLimitCents     = 4500
	ProPlusSpendLimitCents = 13500
	UltraSpendLimitCents   = 45000
)

// SpendLimitCents maps a plan tier to its monthly spend ceiling in cents.
// The lookup is case-insensitive; unknown or empty tiers get the default.
// Never fails.
func SpendLimitCents(tier string) int {
	switch strings.ToLower(tier) {
	case "", "free":
		return DefaultSpendLimitCents
	case "pro", "pro_student":
		return ProSpendLimitCents
	case "pro_plus":
		return ProPlusSpendLimitCents
	case "ultra":
		return UltraSpendLimitCents
	default:
		return DefaultSpendLimitCents
	}
}
