// Package httpapi exposes the credential service over a chi router: password
// and Google sign-in, sign-up, sign-out, refresh, the guarded profile and
// activity endpoints, and health, readiness and metrics endpoints.
package httpapi
