package tiers

// Role to tier mapping used when the only signal about a caller's plan is
// the role claim on their token. Tier should eventually come from the
// subscription record instead.
// TODO(billing): source tier from the subscription service once it exposes
// plan lookups, and drop this mapping.
const (
	TierFree       = "tier_1"
	TierGrowth     = "tier_2"
	TierEnterprise = "tier_3"
)

// RoleToTier maps an authentication role to a subscription tier.
// Unknown or empty roles get the lowest tier.
func RoleToTier(role string) string {
	switch role {
	case "super_admin", "tenant_admin":
		return TierEnterprise
	case "manager":
		return TierGrowth
	default:
		return TierFree
	}
}
