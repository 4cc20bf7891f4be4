package main

import (
	"context"

	"github.com/goliatone/go-credentials/cmd/credentiald/config"
	"github.com/goliatone/go-credentials/command"
	featuregate "github.com/goliatone/go-featuregate/gate"
)

// staticGate answers feature checks from the loaded configuration. Unknown
// keys are enabled.
type staticGate struct {
	flags map[string]bool
}

var _ featuregate.FeatureGate = (*staticGate)(nil)

func newStaticGate(cfg config.FeaturesConfig) *staticGate {
	return &staticGate{flags: map[string]bool{
		command.FeatureSignup:          cfg.Signup,
		command.FeatureFederatedSignup: cfg.FederatedSignup,
	}}
}

func (g *staticGate) Enabled(_ context.Context, key string, _ ...featuregate.ResolveOption) (bool, error) {
	enabled, ok := g.flags[key]
	if !ok {
		return true, nil
	}
	return enabled, nil
}
