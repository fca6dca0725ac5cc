package device

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/switchsentry/internal/automation"
)

func TestJWTSigner_SignBindsAddressAndMethod(t *testing.T) {
	signer := NewJWTSigner("test-secret", 0)

	token, err := signer.Sign(automation.DeviceCommand{
		Address: "aa:bb:cc:dd:ee:ff",
		Method:  "turn_on",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := jwt.ParseWithClaims(token, &commandClaims{}, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	require.NoError(t, err)

	claims, ok := parsed.Claims.(*commandClaims)
	require.True(t, ok)
	require.Equal(t, "aa:bb:cc:dd:ee:ff", claims.Address)
	require.Equal(t, "turn_on", claims.Method)
	require.Equal(t, "switchsentry", claims.Issuer)
}

func TestJWTSigner_WrongSecretFailsVerification(t *testing.T) {
	signer := NewJWTSigner("test-secret", 0)
	token, err := signer.Sign(automation.DeviceCommand{Address: "x", Method: "y"})
	require.NoError(t, err)

	_, err = jwt.ParseWithClaims(token, &commandClaims{}, func(*jwt.Token) (any, error) {
		return []byte("wrong-secret"), nil
	})
	require.Error(t, err)
}
