package idp

import "context"

// EntitlementSource supplies the application names an identity is entitled
// to. The directory deployment this service targets has no live
// application-assignment API, so the default source is a static configured
// list. The seam exists so a real entitlement backend can replace it without
// touching the merge contract.
type EntitlementSource interface {
	Applications(ctx context.Context, key string) ([]string, error)
}

// StaticEntitlements returns the same application list for every identity.
type StaticEntitlements []string

func (s StaticEntitlements) Applications(_ context.Context, _ string) ([]string, error) {
	return append([]string(nil), s...), nil
}

// DefaultEntitlements mirrors the application set provisioned for every new
// hire in this deployment.
func DefaultEntitlements() StaticEntitlements {
	return StaticEntitlements{"Google Workspace", "Slack", "Jira"}
}
