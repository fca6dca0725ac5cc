package device

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/switchsentry/internal/automation"
)

// commandClaims binds a signed token to exactly the command it was issued
// for, so a bridge cannot replay a captured token against a different
// address or method.
type commandClaims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
	Method  string `json:"method"`
}

// JWTSigner signs device commands with a shared HMAC secret, implementing
// automation.CommandSigner. The secret is shared with the downstream
// bridge out of band (e.g. the same value in both processes' config).
type JWTSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTSigner returns a signer using secret, with tokens valid for ttl
// (zero defaults to 30 seconds, long enough to cover the bridge's own
// request handling without leaving a meaningfully replayable window).
func NewJWTSigner(secret string, ttl time.Duration) *JWTSigner {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &JWTSigner{secret: []byte(secret), ttl: ttl}
}

// Sign returns a compact JWT binding cmd.Address and cmd.Method, signed
// with HS256.
func (s *JWTSigner) Sign(cmd automation.DeviceCommand) (string, error) {
	now := time.Now()
	claims := commandClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "switchsentry",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		Address: cmd.Address,
		Method:  cmd.Method,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing device command: %w", err)
	}
	return signed, nil
}
