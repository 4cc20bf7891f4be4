// Package command exposes go-command compatible handlers implementing the
// credential flows (password and federated sign-in, sign-up, sign-out and
// access refresh). Handlers are wired by the service layer and can be invoked
// by any transport.
package command
