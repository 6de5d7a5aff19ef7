// Package auth carries request identity and the HTTP middleware around it:
// JWT bearer validation, request IDs and per-actor rate limiting.
package auth

import (
	"context"
	"errors"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller: a loan officer, a partner system
// or an internal service.
type Principal struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the principal carries the role. Admins carry
// every role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role || r == "admin" {
			return true
		}
	}
	return false
}

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, errors.New("no principal in context")
	}
	return p, nil
}
