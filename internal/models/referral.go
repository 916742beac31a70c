package models

import (
	"fmt"
	"strings"
)

// ParseReferralCode decodes a promotion code of the form
// AGENT_PRODUCT_TIMESTAMP_RANDOM. The random suffix may itself contain
// underscores; everything after the third separator is rejoined.
func ParseReferralCode(code string) (ReferralCode, error) {
	parts := strings.Split(code, "_")
	if len(parts) < 4 {
		return ReferralCode{}, fmt.Errorf("referral code %q: want at least 4 segments, got %d", code, len(parts))
	}
	for _, p := range parts[:3] {
		if p == "" {
			return ReferralCode{}, fmt.Errorf("referral code %q: empty segment", code)
		}
	}
	return ReferralCode{
		AgentCode:   parts[0],
		ProductType: parts[1],
		Timestamp:   parts[2],
		Random:      strings.Join(parts[3:], "_"),
	}, nil
}
