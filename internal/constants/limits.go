package constants

import "time"

// AccountLimits holds per-day usage quotas for an account type.
type AccountLimits struct {
	DailySearches int
	DailyExports  int
}

// Account types assigned at provisioning time.
const (
	AccountTypeStandard = "standard"
	AccountTypePro      = "pro"
	AccountTypeFinder   = "finder"
	AccountTypeExpired  = "expired"
)

var accountLimits = map[string]AccountLimits{
	AccountTypeStandard: {DailySearches: 50, DailyExports: 20},
	AccountTypePro:      {DailySearches: 500, DailyExports: 200},
	AccountTypeFinder:   {DailySearches: 100, DailyExports: 50},
	AccountTypeExpired:  {DailySearches: 5, DailyExports: 0},
}

// GetAccountLimits returns the quota set for an account type, falling
// back to expired-tier limits for unknown types.
func GetAccountLimits(accountType string) AccountLimits {
	if l, ok := accountLimits[accountType]; ok {
		return l
	}
	return accountLimits[AccountTypeExpired]
}

// Request handling limits.
const (
	// GlobalIPRateLimitPerMinute is the ingress fallback limit applied
	// to every client address.
	GlobalIPRateLimitPerMinute = 100

	// GatewayTimeout bounds outbound calls to payment providers. On
	// timeout the caller reports the gateway unavailable and leaves
	// order state untouched.
	GatewayTimeout = 20 * time.Second

	// DownloadRedirectThreshold is the asset size above which the
	// download proxy issues a 307 redirect instead of streaming.
	DownloadRedirectThreshold = 5 * 1024 * 1024
)
