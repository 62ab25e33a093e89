package domain

// BillingMode distinguishes the two upstream pricing generations. The
// original surface inferred this ad hoc from the presence of a billing anchor
// at every call site; here it is resolved once per account fetch and cached.
type BillingMode string

const (
	// ModeLegacy is the request-quota pricing: per-model numRequests against
	// maxRequestUsage, no usage events.
	ModeLegacy BillingMode = "legacy"
	// ModeEventMetered is the usage-event pricing: per-event costs aggregated
	// against a plan spend ceiling.
	ModeEventMetered BillingMode = "event_metered"
)

// ModelQuota is a legacy-mode per-model request quota from the account usage
// endpoint.
type ModelQuota struct {
	NumRequests     int  `json:"numRequests"`
	MaxRequestUsage *int `json:"maxRequestUsage"`
}

// AccountUsage is the account metadata the usage endpoint reports: the
// billing anchor (absent on legacy accounts) and legacy per-model quotas.
type AccountUsage struct {
	StartOfMonth string                `json:"startOfMonth"`
	Models       map[string]ModelQuota `json:"-"`
}

// Mode returns EventMetered iff the account reports a billing anchor.
func (u AccountUsage) Mode() BillingMode {
	if u.StartOfMonth != "" {
		return ModeEventMetered
	}
	return ModeLegacy
}
