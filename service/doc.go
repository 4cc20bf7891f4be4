// Package service wires the credential stores, token issuer and session
// resolver into a single facade exposing sign-in, sign-up, sign-out, refresh
// and request authentication.
package service
