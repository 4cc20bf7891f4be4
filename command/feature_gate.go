package command

import (
	"context"

	featuregate "github.com/goliatone/go-featuregate/gate"
)

// Feature keys consulted before self-registration.
const (
	FeatureSignup          = "credentials.signup"
	FeatureFederatedSignup = "credentials.federated_signup"
)

func featureEnabled(ctx context.Context, gate featuregate.FeatureGate, key string) (bool, error) {
	if gate == nil {
		return true, nil
	}
	return gate.Enabled(ctx, key, featuregate.WithScopeSet(featuregate.ScopeSet{System: true}))
}
