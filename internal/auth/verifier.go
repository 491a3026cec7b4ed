package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-rolepricing/internal/common"
)

// Config configures the token verifier.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Verifier checks HS256 bearer tokens issued by the shop's identity service and turns
// them into request sessions.
type Verifier struct {
	secret    []byte
	validator TokenValidator
	now       func() time.Time
}

// NewVerifier constructs a Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}
	return &Verifier{
		secret: []byte(secret),
		validator: TokenValidator{
			Issuer:    strings.TrimSpace(cfg.Issuer),
			Audience:  strings.TrimSpace(cfg.Audience),
			ClockSkew: skew,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithNow allows tests to override the time provider.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Verify validates token and returns the session it describes.
func (v *Verifier) Verify(token string) (common.Session, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Session{}, unauthorized(errNoToken)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return common.Session{}, unauthorized(err)
	}
	if algorithm != v.validator.Algorithm {
		return common.Session{}, unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return common.Session{}, unauthorized(err)
	}
	if err := v.validator.Validate(parsed, algorithm, v.now()); err != nil {
		return common.Session{}, unauthorized(err)
	}
	roles, err := rolesOf(parsed)
	if err != nil {
		return common.Session{}, unauthorized(err)
	}
	return common.Session{UserID: parsed.Subject(), Roles: roles}, nil
}

// Sign issues a token for a session. The API never issues tokens itself; this exists for
// seeding and tests.
func (v *Verifier) Sign(s common.Session, ttl time.Duration) (string, error) {
	now := v.now()
	b := jwt.NewBuilder().
		Subject(s.UserID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if len(s.Roles) > 0 {
		b = b.Claim(RolesClaim, s.Roles)
	}
	if v.validator.Issuer != "" {
		b = b.Issuer(v.validator.Issuer)
	}
	if v.validator.Audience != "" {
		b = b.Audience([]string{v.validator.Audience})
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(v.validator.Algorithm, v.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" || alg == jwa.NoSignature {
			return "", errors.New("auth: token missing algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
