package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RolesClaim is the private claim carrying the customer's role labels.
const RolesClaim = "roles"

// TokenValidator validates structural and contextual properties of JWT tokens.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate ensures the supplied token satisfies issuer, audience, expiry, subject and algorithm requirements.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return err
	}
	if strings.TrimSpace(tok.Subject()) == "" {
		return errors.New("auth: token missing subject")
	}
	_, err := rolesOf(tok)
	return err
}

// rolesOf decodes the roles claim. A missing claim means no roles.
func rolesOf(tok jwt.Token) ([]string, error) {
	raw, ok := tok.Get(RolesClaim)
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("auth: %s claim holds %T", RolesClaim, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return strings.Fields(v), nil
	}
	return nil, fmt.Errorf("auth: %s claim holds %T", RolesClaim, raw)
}
