package federated

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-credentials/pkg/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var defaultGoogleScopes = []string{"openid", "email", "profile"}

// GoogleConfig configures the authorization-code exchange.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// GoogleExchanger turns an authorization code into the ID token consumed by
// federated sign-in and sign-up.
type GoogleExchanger struct {
	conf *oauth2.Config
}

// NewGoogleExchanger validates cfg and returns an exchanger.
func NewGoogleExchanger(cfg GoogleConfig) (*GoogleExchanger, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("federated: google client id and secret required")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultGoogleScopes
	}
	return &GoogleExchanger{conf: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}}, nil
}

// AuthCodeURL returns the consent page URL for state.
func (g *GoogleExchanger) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades code for the provider token and returns its id_token.
func (g *GoogleExchanger) Exchange(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", types.ErrUnauthorized
	}
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return "", errors.Join(types.ErrUnauthorized, err)
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", types.ErrUnauthorized
	}
	return idToken, nil
}
