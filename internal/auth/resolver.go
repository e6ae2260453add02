package auth

import (
	"context"
	"strings"
)

// Resolver turns a bearer token into the verified email it was issued for.
type Resolver struct {
	secret string
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: secret}
}

// ResolveIdentity returns "" for an empty token and an error for a bad one.
func (r *Resolver) ResolveIdentity(ctx context.Context, bearer string) (string, error) {
	_ = ctx
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return "", nil
	}
	claims, err := ParseJWT(bearer, r.secret)
	if err != nil {
		return "", err
	}
	return strings.ToLower(claims.Email), nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
