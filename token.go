package rentaly

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the SDK reads from a bearer token. The signature is not
// verified; the server stays the authority.
type TokenInfo struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry before now.
func (t *TokenInfo) Expired(now time.Time) bool {
	return t != nil && !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// ParseToken reads the claims of a JWT without verifying it.
func ParseToken(token string) (*TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, WrapError(ErrorInvalidToken, "parse token", err)
	}

	info := &TokenInfo{}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		info.Subject = sub
	} else {
		for _, key := range []string{"id", "userId", "_id"} {
			if v, ok := claims[key].(string); ok && v != "" {
				info.Subject = v
				break
			}
		}
	}
	if role, ok := claims["role"].(string); ok {
		info.Role = role
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// checkToken rejects empty and expired tokens. Opaque tokens that are not
// JWTs pass through unchanged.
func checkToken(token string, now time.Time) (*TokenInfo, error) {
	if token == "" {
		return nil, NewError(ErrorInvalidToken, "token is required")
	}
	info, err := ParseToken(token)
	if err != nil {
		return nil, nil
	}
	if info.Expired(now) {
		return info, NewError(ErrorInvalidToken, "token expired at "+info.ExpiresAt.Format(time.RFC3339))
	}
	return info, nil
}
