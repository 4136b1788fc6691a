package validator_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/loomcast/edgeauth/pkg/codec"
	"github.com/loomcast/edgeauth/pkg/jwks"
	"github.com/loomcast/edgeauth/pkg/signer"
	"github.com/loomcast/edgeauth/pkg/types"
	"github.com/loomcast/edgeauth/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://auth.loomcast.live"
	testAudience = "loomcast-edge"
)

// staticFetcher serves a fixed key set without any network traffic.
type staticFetcher struct {
	keySet *types.JWKS
}

func (f *staticFetcher) FetchKeys(context.Context, string) (*types.JWKS, error) {
	return f.keySet, nil
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// publishedJWKS builds the key set a resource server would fetch.
func publishedJWKS(kid string, publicKey *rsa.PublicKey) *types.JWKS {
	return &types.JWKS{Keys: []types.JSONWebKey{{
		KeyType:   "RSA",
		KeyID:     kid,
		Algorithm: "RS256",
		Use:       "sig",
		N:         codec.Encode(publicKey.N.Bytes()),
		E:         codec.Encode(big.NewInt(int64(publicKey.E)).Bytes()),
	}}}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims *types.SessionClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func sessionClaims(expiresIn time.Duration) *types.SessionClaims {
	return &types.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "user_42",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        "jti-test",
		},
		CustomerID: "cust_7",
	}
}

func TestLocalRoundTrip(t *testing.T) {
	key := generateKey(t)
	ctx := signingContext(t, key)
	v := validator.NewLocalVerifier(ctx, testIssuer, testAudience)

	claims := sessionClaims(time.Hour)
	token, err := ctx.Sign(claims)
	require.NoError(t, err)

	verified, err := v.Verify(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, claims.Subject, verified.Subject)
	assert.Equal(t, claims.CustomerID, verified.CustomerID)
	assert.Equal(t, claims.ID, verified.ID)
}

func TestTamperDetection(t *testing.T) {
	key := generateKey(t)
	ctx := signingContext(t, key)
	v := validator.NewLocalVerifier(ctx, testIssuer, testAudience)

	token, err := ctx.Sign(sessionClaims(time.Hour))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	flip := func(s string) string {
		b := []byte(s)
		if b[0] == 'A' {
			b[0] = 'B'
		} else {
			b[0] = 'A'
		}
		return string(b)
	}

	tampered := []string{
		parts[0] + "." + flip(parts[1]) + "." + parts[2], // payload
		parts[0] + "." + parts[1] + "." + flip(parts[2]), // signature
	}

	for _, tt := range tampered {
		_, err := v.Verify(context.Background(), tt)
		assert.ErrorIs(t, err, validator.ErrInvalidToken)
	}
}

func TestExpiredTokenFails(t *testing.T) {
	key := generateKey(t)
	ctx := signingContext(t, key)
	v := validator.NewLocalVerifier(ctx, testIssuer, testAudience)

	token, err := ctx.Sign(sessionClaims(-time.Minute))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, validator.ErrInvalidToken)
}

func TestWrongSegmentCountFails(t *testing.T) {
	key := generateKey(t)
	v := validator.NewLocalVerifier(signingContext(t, key), testIssuer, testAudience)

	for _, tt := range []string{"", "only-one", "two.parts", "a.b.c.d"} {
		_, err := v.Verify(context.Background(), tt)
		assert.ErrorIs(t, err, validator.ErrInvalidToken, tt)
	}
}

func TestNonRS256AlgorithmFails(t *testing.T) {
	key := generateKey(t)
	v := validator.NewLocalVerifier(signingContext(t, key), testIssuer, testAudience)

	// An HS256 token signed with a shared secret must be rejected even
	// before any key lookup happens.
	hmacToken := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims(time.Hour))
	signed, err := hmacToken.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, validator.ErrInvalidToken)
}

func TestWrongIssuerOrAudienceFails(t *testing.T) {
	key := generateKey(t)
	ctx := signingContext(t, key)

	token, err := ctx.Sign(sessionClaims(time.Hour))
	require.NoError(t, err)

	wrongIssuer := validator.NewLocalVerifier(ctx, "https://evil.example.com", testAudience)
	_, err = wrongIssuer.Verify(context.Background(), token)
	assert.ErrorIs(t, err, validator.ErrInvalidToken)

	wrongAudience := validator.NewLocalVerifier(ctx, testIssuer, "other-audience")
	_, err = wrongAudience.Verify(context.Background(), token)
	assert.ErrorIs(t, err, validator.ErrInvalidToken)
}

func TestRemoteVerification(t *testing.T) {
	key := generateKey(t)
	keySet := publishedJWKS("edge-key-1", &key.PublicKey)
	client := jwks.NewClient(testIssuer, jwks.WithFetcher(&staticFetcher{keySet: keySet}))
	v := validator.NewRemoteVerifier(client, testIssuer, testAudience)

	token := signToken(t, key, "edge-key-1", sessionClaims(time.Hour))

	verified, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user_42", verified.Subject)
}

func TestRemoteVerificationFirstKeyWhenNoKid(t *testing.T) {
	key := generateKey(t)
	keySet := publishedJWKS("edge-key-1", &key.PublicKey)
	client := jwks.NewClient(testIssuer, jwks.WithFetcher(&staticFetcher{keySet: keySet}))
	v := validator.NewRemoteVerifier(client, testIssuer, testAudience)

	token := signToken(t, key, "", sessionClaims(time.Hour))

	_, err := v.Verify(context.Background(), token)
	assert.NoError(t, err)
}

func TestRemoteVerificationUnknownKidFails(t *testing.T) {
	key := generateKey(t)
	keySet := publishedJWKS("edge-key-1", &key.PublicKey)
	client := jwks.NewClient(testIssuer, jwks.WithFetcher(&staticFetcher{keySet: keySet}))
	v := validator.NewRemoteVerifier(client, testIssuer, testAudience)

	token := signToken(t, key, "rotated-away", sessionClaims(time.Hour))

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, validator.ErrInvalidToken)
}

func TestRemoteVerificationEmptyKeySetFails(t *testing.T) {
	key := generateKey(t)
	client := jwks.NewClient(testIssuer, jwks.WithFetcher(&staticFetcher{keySet: &types.JWKS{}}))
	v := validator.NewRemoteVerifier(client, testIssuer, testAudience)

	token := signToken(t, key, "edge-key-1", sessionClaims(time.Hour))

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, validator.ErrInvalidToken)
}

func TestPublicKeyFromJWK(t *testing.T) {
	key := generateKey(t)
	jwk := publishedJWKS("k", &key.PublicKey).Keys[0]

	publicKey, err := validator.PublicKeyFromJWK(&jwk)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, publicKey.N)
	assert.Equal(t, key.PublicKey.E, publicKey.E)

	_, err = validator.PublicKeyFromJWK(&types.JSONWebKey{N: "!!", E: "AQAB"})
	assert.Error(t, err)
}

// signingContext imports key into a signer.Context the way the issuer
// bootstrap does.
func signingContext(t *testing.T, key *rsa.PrivateKey) *signer.Context {
	t.Helper()

	jwk := types.JSONWebKey{
		KeyType: "RSA",
		N:       codec.Encode(key.N.Bytes()),
		E:       codec.Encode(big.NewInt(int64(key.E)).Bytes()),
		D:       codec.Encode(key.D.Bytes()),
		P:       codec.Encode(key.Primes[0].Bytes()),
		Q:       codec.Encode(key.Primes[1].Bytes()),
	}
	raw, err := json.Marshal(jwk)
	require.NoError(t, err)

	ctx, err := signer.NewCache().Context(string(raw))
	require.NoError(t, err)
	return ctx
}
