// Package validator verifies session tokens. The issuer verifies with
// its own signing context; resource servers verify against the
// issuer's published key set. Every failure cause (malformed token,
// bad signature, expiry, wrong algorithm, unknown kid) collapses to a
// single outward error so callers cannot distinguish which check
// failed; the specific cause is preserved for logs only.
package validator

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/loomcast/edgeauth/pkg/codec"
	"github.com/loomcast/edgeauth/pkg/jwks"
	"github.com/loomcast/edgeauth/pkg/signer"
	"github.com/loomcast/edgeauth/pkg/types"
	"github.com/loomcast/edgeauth/pkg/utils"
)

// ErrInvalidToken is the only error Verify returns. Expired tokens are
// indistinguishable from bad signatures to callers.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenVerifierInterface is implemented by both verification paths.
type TokenVerifierInterface interface {
	Verify(ctx context.Context, token string) (*types.SessionClaims, error)
}

// Verifier verifies RS256 session tokens with a key source.
type Verifier struct {
	issuer   string
	audience string
	keys     keySource
}

// keySource resolves the public key for a presented token.
type keySource interface {
	keyFunc(ctx context.Context) jwt.Keyfunc
}

// NewLocalVerifier verifies tokens with the process's own signing
// context. Used by the issuing service for tokens it issued itself.
func NewLocalVerifier(signingCtx *signer.Context, issuer, audience string) *Verifier {
	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keys:     &localKeys{ctx: signingCtx},
	}
}

// NewRemoteVerifier verifies tokens against the issuer's published key
// set fetched through the remote key store.
func NewRemoteVerifier(client *jwks.Client, issuer, audience string) *Verifier {
	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keys:     &remoteKeys{client: client},
	}
}

// Verify checks the token's structure, signature, expiry and, when
// configured, issuer and audience. On success the decoded claims are
// returned; every failure is ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*types.SessionClaims, error) {
	if strings.Count(tokenString, ".") != 2 {
		slog.Debug("Token rejected", slog.String("reason", "not three segments"))
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
		jwt.WithIssuedAt(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parser := jwt.NewParser(opts...)

	var claims types.SessionClaims
	token, err := parser.ParseWithClaims(tokenString, &claims, v.keys.keyFunc(ctx))
	if err != nil {
		slog.Debug("Token rejected",
			slog.String("reason", failureReason(err)),
			slog.String("token", utils.RedactToken(tokenString, 10, 10)),
		)
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}

// failureReason maps a verification error to a log label. This is the
// internal side of the collapsed error contract.
func failureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "wrong issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "wrong audience"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "no verification key"
	default:
		return "invalid"
	}
}

type localKeys struct {
	ctx *signer.Context
}

func (l *localKeys) keyFunc(context.Context) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		if l.ctx == nil {
			return nil, errors.New("no signing context")
		}
		return l.ctx.PublicKey(), nil
	}
}

type remoteKeys struct {
	client *jwks.Client
}

func (r *remoteKeys) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		keySet := r.client.Keys(ctx)

		// Select by kid when the header carries one, first key
		// otherwise. No key means no signature can match.
		kid, _ := token.Header["kid"].(string)
		key, found := keySet.KeyByID(kid)
		if !found {
			return nil, fmt.Errorf("no key matching kid %q", kid)
		}

		return PublicKeyFromJWK(&key)
	}
}

// PublicKeyFromJWK constructs an RSA public key from a published JWK
// record.
func PublicKeyFromJWK(key *types.JSONWebKey) (*rsa.PublicKey, error) {
	nBytes, err := codec.Decode(key.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := codec.Decode(key.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
