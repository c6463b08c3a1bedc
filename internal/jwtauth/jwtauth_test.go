package jwtauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrace/internal/domain"
)

var testActor = domain.Actor{
	ID:            "factory-1",
	Role:          domain.RoleManufacturer,
	WalletAddress: "0x1111111111111111111111111111111111111111",
	Location:      "Lagos",
}

func TestRoundTrip(t *testing.T) {
	v := NewValidator("test-signing-key")

	token, err := v.IssueToken(testActor, time.Hour)
	require.NoError(t, err)

	actor, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, testActor, actor)
}

func TestRejectsWrongKey(t *testing.T) {
	token, err := NewValidator("key-one").IssueToken(testActor, time.Hour)
	require.NoError(t, err)

	_, err = NewValidator("key-two").ValidateToken(token)
	require.Error(t, err)
}

func TestRejectsExpired(t *testing.T) {
	v := NewValidator("test-signing-key")
	token, err := v.IssueToken(testActor, -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	require.Error(t, err)
}

func TestRejectsUnknownRole(t *testing.T) {
	v := NewValidator("test-signing-key")
	bogus := testActor
	bogus.Role = "auditor"
	token, err := v.IssueToken(bogus, time.Hour)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	require.Error(t, err)
}

func TestRejectsMissingSubject(t *testing.T) {
	v := NewValidator("test-signing-key")
	claims := Claims{
		Role: string(domain.RoleSupplier),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	require.Error(t, err)
}

func TestRejectsUnsignedAlgorithm(t *testing.T) {
	v := NewValidator("test-signing-key")
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             string(domain.RoleManufacturer),
		RegisteredClaims: jwt.RegisteredClaims{Subject: "factory-1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	require.Error(t, err)
}
